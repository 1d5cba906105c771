// Package api provides the HTTP and WebSocket server for ORBI.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/orbi-bot/orbi/internal/chat"
	"github.com/orbi-bot/orbi/internal/config"
	"github.com/orbi-bot/orbi/internal/extension"
	"github.com/orbi-bot/orbi/internal/memory"
	"github.com/orbi-bot/orbi/internal/requests"
)

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server

	// Components
	config   *config.Config
	registry *extension.Registry
	versions *extension.VersionStore
	memory   *memory.Store
	requests *requests.Log
	chat     *chat.Service

	// Live state
	hub   *Hub
	state *StateManager
}

// Config for the server
type Config struct {
	Host     string
	Port     int
	Config   *config.Config
	Registry *extension.Registry
	Versions *extension.VersionStore
	Memory   *memory.Store
	Requests *requests.Log
	Chat     *chat.Service
	Hub      *Hub
}

// New creates a new API server
func New(cfg Config) *Server {
	hub := cfg.Hub
	if hub == nil {
		hub = NewHub()
	}

	s := &Server{
		config:   cfg.Config,
		registry: cfg.Registry,
		versions: cfg.Versions,
		memory:   cfg.Memory,
		requests: cfg.Requests,
		chat:     cfg.Chat,
		hub:      hub,
		state:    NewStateManager(hub, cfg.Registry),
	}

	s.setupRouter()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Hub returns the WebSocket hub so other components can broadcast.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Router returns the configured handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		// Chat
		r.Post("/chat", s.handleChat)
		r.Get("/chat/status", s.handleChatStatus)
		r.Delete("/chat/{conversationID}", s.handleClearConversation)

		// Extensions
		r.Route("/extensions", func(r chi.Router) {
			r.Get("/", s.handleListExtensions)
			r.Get("/categories", s.handleCategories)
			r.Get("/by-category/{category}", s.handleExtensionsByCategory)
			r.Get("/modes", s.handleModes)
			r.Get("/games", s.handleGames)
			r.Get("/emotions/all", s.handleAllEmotions)
			r.Get("/jokes/all", s.handleAllJokes)
			r.Get("/overlays/all", s.handleAllOverlays)
			r.Post("/reload", s.handleReloadExtensions)
			r.Get("/{extensionID}", s.handleGetExtension)
			r.Put("/{extensionID}/enabled", s.handleSetExtensionEnabled)
			r.Delete("/{extensionID}", s.handleDeleteExtension)
		})

		// Extension versions (backup / rollback)
		r.Route("/extension-versions", func(r chi.Router) {
			r.Get("/", s.handleAllVersions)
			r.Get("/{extensionID}", s.handleExtensionVersions)
			r.Post("/{extensionID}/backup", s.handleBackupExtension)
			r.Post("/{extensionID}/rollback/{versionID}", s.handleRollbackExtension)
			r.Put("/{extensionID}/{versionID}/status", s.handleSetVersionStatus)
		})

		// Memories
		r.Route("/memories", func(r chi.Router) {
			r.Get("/", s.handleListMemories)
			r.Post("/", s.handleAddMemory)
			r.Get("/stats", s.handleMemoryStats)
			r.Delete("/all", s.handleClearMemories)
			r.Delete("/{topic}", s.handleForgetMemory)
		})

		// Extension requests
		r.Route("/extension-requests", func(r chi.Router) {
			r.Get("/", s.handleListRequests)
			r.Post("/", s.handleCreateRequest)
			r.Get("/pending", s.handlePendingRequests)
			r.Get("/status", s.handleRequestsStatus)
		})

		// Config
		r.Route("/config", func(r chi.Router) {
			r.Get("/", s.handleGetConfig)
			r.Put("/", s.handleUpdateConfig)
			r.Get("/value", s.handleConfigValue)
		})

		// Robot state
		r.Get("/state", s.handleGetState)
	})

	s.router = r
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	fmt.Printf("ORBI server starting on http://%s\n", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

// --- Response helpers ---

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// --- Core handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ok",
		"robot":             s.config.RobotName(),
		"child":             s.config.ChildName(),
		"clients":           s.hub.ClientCount(),
		"extensions_loaded": len(s.registry.All()),
		"chat_ready":        s.chat.Ready(),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeWS(w, r, s.state.HandleMessage, s.state.OnConnect)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.state.State())
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message        string `json:"message"`
		ConversationID string `json:"conversation_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		s.respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	resp := s.chat.Handle(r.Context(), req.ConversationID, req.Message)
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChatStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"ready": s.chat.Ready(),
		"model": s.config.Claude.Model,
	})
}

func (s *Server) handleClearConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	s.chat.ClearConversation(id)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"cleared": id})
}
