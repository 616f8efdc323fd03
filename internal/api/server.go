// ABOUTME: HTTP surface of the gateway: WebSocket intake, webhooks, admin API.
// ABOUTME: Routes are mounted on chi with JWT protection on the admin subtree.

package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/contextd/agentgate/internal/agent"
	"github.com/contextd/agentgate/internal/auth"
	"github.com/contextd/agentgate/internal/rules"
	"github.com/contextd/agentgate/internal/webhook"
)

// ServerParams bundles the dependencies for NewServer.
type ServerParams struct {
	Addr        string
	Manager     *agent.Manager
	Webhooks    *webhook.Service
	Engine      *rules.Engine
	Verifier    auth.TokenVerifier
	MetricsPath string
	Logger      *slog.Logger
}

// Server owns the HTTP listener and its routes.
type Server struct {
	httpServer *http.Server
	manager    *agent.Manager
	webhooks   *webhook.Service
	engine     *rules.Engine
	verifier   auth.TokenVerifier
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

// NewServer builds the router and the underlying http.Server.
func NewServer(params ServerParams) *Server {
	s := &Server{
		manager:  params.Manager,
		webhooks: params.Webhooks,
		engine:   params.Engine,
		verifier: params.Verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Agents connect from editors and CI, not browsers.
				return true
			},
		},
		logger: params.Logger,
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)

	router.Get("/ws", s.handleAgentSocket)
	router.Post("/webhooks/{agentType}", s.handleWebhook)
	router.Get("/healthz", s.handleHealthz)
	if params.MetricsPath != "" {
		router.Handle(params.MetricsPath, promhttp.Handler())
	}

	router.Route("/v1", func(r chi.Router) {
		r.Use(s.requireToken)
		r.Get("/connections", s.handleListConnections)
		r.Get("/connections/{connectionID}", s.handleGetConnection)
		r.Delete("/connections/{connectionID}", s.handleDisconnect)
		r.Get("/rules", s.handleGetRules)
		r.Put("/rules", s.handlePutRules)
	})

	s.httpServer = &http.Server{
		Addr:              params.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start blocks serving HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// requireToken guards admin routes with bearer-token verification.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		subject, err := s.verifier.Verify(token)
		if err != nil {
			s.logger.Warn("admin token rejected", "error", err)
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), subjectKey{}, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type subjectKey struct{}
