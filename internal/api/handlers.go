// ABOUTME: Route handlers: agent WebSocket intake, webhook ingestion, admin API.
// ABOUTME: Admission failures surface as HTTP statuses before any session exists.

package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"

	"github.com/contextd/agentgate/internal/rules"
	"github.com/contextd/agentgate/internal/transport"
	"github.com/contextd/agentgate/internal/webhook"
)

// handleAgentSocket upgrades the request and hands the socket to the
// connection manager. Parameter validation happens before the upgrade so
// bad requests get a plain HTTP status.
func (s *Server) handleAgentSocket(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	agentType := r.URL.Query().Get("agent_type")
	if agentID == "" || agentType == "" {
		respondError(w, http.StatusBadRequest, "agent_id and agent_type are required")
		return
	}
	token := bearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Warn("websocket upgrade failed", "agent_id", agentID, "error", err)
		return
	}

	tr := transport.NewWebSocket(conn)

	// The session outlives this handler.
	ctx := context.WithoutCancel(r.Context())
	if _, err := s.manager.CreateConnection(ctx, agentID, agentType, token, tr); err != nil {
		s.logger.Warn("agent connection refused",
			"agent_id", agentID,
			"agent_type", agentType,
			"error", err,
		)
		_ = tr.Close()
		return
	}
}

// handleWebhook reads the raw payload and passes it to the webhook service.
// The body is captured verbatim; signature verification needs the exact
// bytes sent on the wire.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	agentType := chi.URLParam(r, "agentType")

	maxBytes := s.engine.Config().Webhook.MaxPayloadBytes
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "reading request body")
		return
	}

	result, err := s.webhooks.Process(r.Context(), agentType, r.Header, body)
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrUnknownAgentType):
			respondError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, webhook.ErrSignatureInvalid):
			respondError(w, http.StatusUnauthorized, "signature verification failed")
		case errors.Is(err, rules.ErrRateLimited):
			respondError(w, http.StatusTooManyRequests, err.Error())
		default:
			respondError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	respondJSON(w, result)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := s.manager.GetHealthStatus()
	respondJSON(w, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
		"health": status,
	})
}

// connectionSummary is the admin-facing view of one connection.
type connectionSummary struct {
	ID        string `json:"id"`
	AgentID   string `json:"agent_id"`
	AgentType string `json:"agent_type"`
	State     string `json:"state"`

	MessagesIn    int64 `json:"messages_in"`
	MessagesOut   int64 `json:"messages_out"`
	Errors        int64 `json:"errors"`
	ToolCalls     int64 `json:"tool_calls"`
	ResourceReads int64 `json:"resource_reads"`
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	conns := s.manager.GetAllConnections()
	summaries := make([]connectionSummary, 0, len(conns))
	for _, conn := range conns {
		m := conn.Metrics()
		summaries = append(summaries, connectionSummary{
			ID:            conn.ID,
			AgentID:       conn.AgentID,
			AgentType:     conn.AgentType,
			State:         conn.State(),
			MessagesIn:    m.MessagesIn,
			MessagesOut:   m.MessagesOut,
			Errors:        m.Errors,
			ToolCalls:     m.ToolCalls,
			ResourceReads: m.ResourceReads,
		})
	}
	respondJSON(w, map[string]any{"connections": summaries})
}

func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "connectionID")
	conn, ok := s.manager.GetConnection(id)
	if !ok {
		respondError(w, http.StatusNotFound, "no such connection")
		return
	}
	m := conn.Metrics()
	respondJSON(w, connectionSummary{
		ID:            conn.ID,
		AgentID:       conn.AgentID,
		AgentType:     conn.AgentType,
		State:         conn.State(),
		MessagesIn:    m.MessagesIn,
		MessagesOut:   m.MessagesOut,
		Errors:        m.Errors,
		ToolCalls:     m.ToolCalls,
		ResourceReads: m.ResourceReads,
	})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "connectionID")
	conn, ok := s.manager.GetConnection(id)
	if !ok {
		respondError(w, http.StatusNotFound, "no such connection")
		return
	}
	conn.Disconnect()
	respondJSON(w, map[string]string{"status": "disconnected", "id": id})
}

func (s *Server) handleGetRules(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.engine.Config())
}

// handlePutRules replaces the rule snapshot. The new config must carry a
// version greater than the current one, or zero to auto-advance.
func (s *Server) handlePutRules(w http.ResponseWriter, r *http.Request) {
	var cfg rules.Config
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule config: "+err.Error())
		return
	}
	if err := s.engine.UpdateConfig(&cfg); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	s.logger.Info("rule configuration updated via api", "version", cfg.Version)
	respondJSON(w, map[string]any{"status": "updated", "version": cfg.Version})
}
