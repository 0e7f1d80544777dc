package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"botup-realtime/internal/store"

	"github.com/rs/zerolog/log"
)

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// respondError maps domain errors onto HTTP statuses. Visitors never see
// these; they are for the dashboard/REST side only.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrNotAssigned):
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "Conversation not found"})
	case errors.Is(err, store.ErrValidation):
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, store.ErrAlreadyAssigned):
		respondJSON(w, http.StatusConflict, map[string]string{"error": "Conversation already assigned"})
	case errors.Is(err, store.ErrConversationEnded):
		respondJSON(w, http.StatusConflict, map[string]string{"error": "Conversation has ended"})
	default:
		log.Error().Err(err).Msg("Unhandled error in request")
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Server error"})
	}
}
