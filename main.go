package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"botup-realtime/config"
	"botup-realtime/internal/db"
	"botup-realtime/internal/events"
	"botup-realtime/internal/handlers"
	"botup-realtime/internal/models"
	"botup-realtime/internal/realtime"
	"botup-realtime/internal/services"
	"botup-realtime/internal/store"
	"botup-realtime/pkg/logger"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/rs/zerolog/log" // Import zerolog's global logger
)

func main() {
	logger.InitLogger() // Configures the global log.Logger

	log.Info().Msg("Loading configuration...")
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log.Info().Msg("Configuration loaded successfully.")

	// Initialize Database
	log.Info().Str("database_url", cfg.DatabaseURL).Msg("Initializing database...")
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Run Migrations
	log.Info().Msg("Running database migrations...")
	if err := db.Migrate(conn, models.All()...); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	st, err := store.NewStore(conn)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize store")
	}

	// Realtime hub and presence router
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := realtime.NewHub()
	go func() {
		if err := hub.Run(ctx); err != nil {
			log.Info().Err(err).Msg("Realtime hub exited")
		}
	}()

	presence, err := realtime.NewRouter(hub, st)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize presence router")
	}

	// Event mirror (disabled when RABBITMQ_URL is unset)
	publisher := events.NewPublisher(cfg.RabbitMQURL, cfg.RabbitQueuePrefix)
	defer publisher.Close()

	notifier, err := events.NewNotifier(hub, publisher)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize event notifier")
	}

	// AI responder
	responder, err := services.NewGeminiResponder(cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize AI responder")
	}

	// Initialize Services
	conversationService, err := services.NewConversationService(st, notifier)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ConversationService")
	}
	log.Info().Msg("ConversationService initialized successfully")

	dispatcher, err := services.NewDispatcher(st, conversationService, responder, notifier)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Dispatcher")
	}
	log.Info().Msg("Dispatcher initialized successfully")

	// Initialize Handlers
	socketHandler, err := handlers.NewSocketHandler(hub, presence, dispatcher)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize SocketHandler")
	}
	conversationHandler, err := handlers.NewConversationHandler(st, conversationService)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ConversationHandler")
	}
	agentHandler, err := handlers.NewAgentHandler(st)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize AgentHandler")
	}

	// Setup HTTP routes
	router := mux.NewRouter()
	base := alice.New(handlers.RequestLogger)
	clientAuth := base.Append(handlers.ClientAuth(cfg.JWTSecret))
	agentAuth := base.Append(handlers.AgentAuth(cfg.JWTSecret))

	router.Handle("/ws", base.ThenFunc(socketHandler.ServeWS))

	api := router.PathPrefix("/api").Subrouter()
	api.Handle("/conversations", clientAuth.ThenFunc(conversationHandler.Create)).Methods("POST")
	api.Handle("/conversations/agent/{agentId}", base.ThenFunc(conversationHandler.AgentQueues)).Methods("GET")
	api.Handle("/conversations/{id}", clientAuth.ThenFunc(conversationHandler.Get)).Methods("GET")
	api.Handle("/conversations/{id}/transfer", clientAuth.ThenFunc(conversationHandler.Transfer)).Methods("POST")
	api.Handle("/conversations/{id}/accept", base.ThenFunc(conversationHandler.Accept)).Methods("POST")
	api.Handle("/conversations/{id}/end", base.ThenFunc(conversationHandler.End)).Methods("POST")
	api.Handle("/conversations/{id}/messages", base.ThenFunc(conversationHandler.ListMessages)).Methods("GET")
	api.Handle("/conversations/{id}/messages", clientAuth.ThenFunc(conversationHandler.AppendMessage)).Methods("POST")
	api.Handle("/conversations/{id}/messages/read", base.ThenFunc(conversationHandler.MarkMessagesRead)).Methods("PUT")
	api.Handle("/agents/status", agentAuth.ThenFunc(agentHandler.UpdateStatus)).Methods("PUT")
	api.Handle("/agents/profile", agentAuth.ThenFunc(agentHandler.Profile)).Methods("GET")

	router.Handle("/api", base.ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"online","message":"Realtime routing API is running"}`))
	})).Methods("GET")

	log.Info().Str("port", cfg.Port).Msgf("Server starting on port %s...", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
}
