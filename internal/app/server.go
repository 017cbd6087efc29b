// Package app wires the HTTP surface: router, middleware and the chat
// endpoint handler.
package app

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"comunicacion/chat-gateway/internal/config"
	"comunicacion/chat-gateway/internal/domain"
	"comunicacion/chat-gateway/internal/observability"
	"comunicacion/chat-gateway/internal/runner"
	"comunicacion/chat-gateway/internal/service/chat"
	"comunicacion/chat-gateway/internal/service/ports"
	"comunicacion/chat-gateway/internal/tools"
)

const version = "0.1.0"

type Dependencies struct {
	Auth   ports.AuthClient
	Store  ports.DataStore
	Runner ports.ChatRunner
}

type Server struct {
	cfg    config.Config
	auth   ports.AuthClient
	chat   *chat.Service
	genCfg runner.GenerateConfig
}

func NewServer(cfg config.Config, deps Dependencies) (*Server, error) {
	if deps.Auth == nil {
		return nil, errors.New("server requires an auth client")
	}
	if deps.Store == nil {
		return nil, errors.New("server requires a data store")
	}
	if deps.Runner == nil {
		return nil, errors.New("server requires a runner")
	}
	chatService, err := chat.NewService(chat.Dependencies{
		Runner: deps.Runner,
		Tools:  tools.NewRegistry(deps.Store),
	})
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:  cfg,
		auth: deps.Auth,
		chat: chatService,
		genCfg: runner.GenerateConfig{
			Model:     cfg.OpenAIModel,
			APIKey:    cfg.OpenAIAPIKey,
			BaseURL:   cfg.OpenAIBaseURL,
			TimeoutMS: cfg.ProviderTimeoutMS,
		},
	}, nil
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(observability.RequestID)
	r.Use(observability.Logging)
	r.Use(cors)

	r.Get("/version", s.handleVersion)
	r.Get("/healthz", s.handleHealthz)
	r.Post("/api/chat", s.processChat)

	return r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-Request-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": version})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func writeErr(w http.ResponseWriter, code int, errCode, message string, details interface{}) {
	writeJSON(w, code, domain.APIErrorBody{Error: domain.APIError{Code: errCode, Message: message, Details: details}})
}
