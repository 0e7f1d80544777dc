package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"botup-realtime/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Reply is the AI responder's outcome. NeedsHuman signals a deliberate
// handover judgement; infrastructure failures are reported as errors so the
// dispatcher can keep the two apart.
type Reply struct {
	Text       string
	NeedsHuman bool
}

// Responder generates a reply to a visitor message given the bot
// configuration and the conversation history in timestamp order.
type Responder interface {
	Respond(ctx context.Context, bot *models.Chatbot, history []models.Message, userMessage string) (*Reply, error)
}

// Phrases that explicitly request a human, checked before any model call.
var humanTriggerPhrases = []string{
	"speak to a human",
	"talk to an agent",
	"speak to a person",
	"talk to a representative",
	"connect me with someone",
	"real person",
	"human support",
	"speak to customer service",
	"talk to someone",
	"agent please",
	"human please",
}

const (
	handoverMessage = "I'll connect you with a human agent who can better assist you. Please wait a moment."
	complexMessage  = "This seems like a complex question. Let me connect you with a human agent who can help you better."

	historyLimit = 10
)

// GeminiResponder calls a Gemini-style generateContent REST API. Without an
// API key it runs in offline mode and answers from a local heuristic, which
// keeps development setups working end to end.
type GeminiResponder struct {
	httpClient *resty.Client
	apiKey     string
	model      string
}

// NewGeminiResponder creates a new GeminiResponder.
func NewGeminiResponder(baseURL, apiKey, model string) (*GeminiResponder, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("responder baseURL cannot be empty")
	}
	if model == "" {
		model = "gemini-pro"
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second)

	if apiKey == "" {
		log.Warn().Msg("GEMINI_API_KEY not set, AI responder running in offline mode")
	} else {
		log.Info().Str("baseURL", baseURL).Str("model", model).Msg("AI responder configured")
	}

	return &GeminiResponder{
		httpClient: client,
		apiKey:     apiKey,
		model:      model,
	}, nil
}

type generateRequest struct {
	Contents []generateContent `json:"contents"`
}

type generateContent struct {
	Parts []generatePart `json:"parts"`
}

type generatePart struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []generatePart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Respond implements Responder.
func (r *GeminiResponder) Respond(ctx context.Context, bot *models.Chatbot, history []models.Message, userMessage string) (*Reply, error) {
	if bot == nil {
		return nil, fmt.Errorf("chatbot configuration cannot be nil")
	}

	// Explicit human requests never reach the model.
	if containsHumanRequest(userMessage) {
		return &Reply{Text: handoverMessage, NeedsHuman: true}, nil
	}

	if r.apiKey == "" {
		return r.offlineReply(userMessage), nil
	}

	prompt := buildPrompt(bot, history, userMessage)

	var result generateResponse
	resp, err := r.httpClient.R().
		SetContext(ctx).
		SetQueryParam("key", r.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(generateRequest{
			Contents: []generateContent{{Parts: []generatePart{{Text: prompt}}}},
		}).
		SetResult(&result).
		Post(fmt.Sprintf("/v1beta/models/%s:generateContent", r.model))
	if err != nil {
		return nil, fmt.Errorf("AI request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("AI request returned status %d", resp.StatusCode())
	}
	if result.Error != nil {
		return nil, fmt.Errorf("AI request rejected: %s", result.Error.Message)
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("AI response contained no candidates")
	}

	text := strings.TrimSpace(result.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return nil, fmt.Errorf("AI response text was empty")
	}
	return &Reply{Text: text}, nil
}

// offlineReply mimics the hosted behavior without a model: long or
// complexity-flagged questions are routed to a human, everything else gets a
// canned acknowledgement.
func (r *GeminiResponder) offlineReply(userMessage string) *Reply {
	lower := strings.ToLower(userMessage)
	if strings.Contains(lower, "complex") || strings.Contains(lower, "difficult") || len(userMessage) > 100 {
		return &Reply{Text: complexMessage, NeedsHuman: true}
	}
	return &Reply{Text: fmt.Sprintf("[Offline Mode] This is a mock response to: %q", userMessage)}
}

func containsHumanRequest(message string) bool {
	lower := strings.ToLower(message)
	for _, phrase := range humanTriggerPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// buildPrompt assembles the bot persona, the recent history and the new user
// message into one prompt string.
func buildPrompt(bot *models.Chatbot, history []models.Message, userMessage string) string {
	botName := bot.Name
	if botName == "" {
		botName = "Assistant"
	}
	botPrompt := bot.Prompt
	if botPrompt == "" {
		botPrompt = "You are a friendly AI assistant. Answer questions helpfully and concisely."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are an AI assistant named %s. %s\n\n", botName, botPrompt)

	if len(history) > 0 {
		b.WriteString("Previous conversation:\n")
		for _, msg := range history {
			role := "Assistant"
			if msg.Sender == models.SenderUser {
				role = "User"
			}
			fmt.Fprintf(&b, "%s: %s\n", role, msg.Content)
		}
	}

	fmt.Fprintf(&b, "\nUser: %s\nAssistant:", userMessage)
	return b.String()
}
