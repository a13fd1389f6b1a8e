// ABOUTME: HTTP server wiring: /a2a message intake, health, agent listing.
// ABOUTME: Maps router results onto wire responses; 503 only for store outages.

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/2389/agent-relay/internal/dedupe"
	"github.com/2389/agent-relay/internal/registry"
	"github.com/2389/agent-relay/internal/router"
	"github.com/2389/agent-relay/internal/wire"
)

const maxBodyBytes = 1 << 20

// Server is the HTTP face of one agent.
type Server struct {
	agentID  string
	router   *router.Router
	registry registry.Registry
	seen     *dedupe.Cache
	httpSrv  *http.Server
	logger   *slog.Logger
}

// New builds the server and its route table.
func New(agentID, addr string, r *router.Router, reg registry.Registry) *Server {
	s := &Server{
		agentID:  agentID,
		router:   r,
		registry: reg,
		seen:     dedupe.New(0, 0),
		logger:   slog.Default().With("component", "bridge", "agent_id", agentID),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /a2a", s.handleMessage)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/agents", s.handleAgents)

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("bridge listening", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("bridge server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the dedupe sweep.
func (s *Server) Shutdown(ctx context.Context) error {
	s.seen.Close()
	return s.httpSrv.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	if s.httpSrv.Addr == "" {
		return net.JoinHostPort("localhost", "8080")
	}
	return s.httpSrv.Addr
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg wire.Message
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&msg); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid message body")
		return
	}
	if msg.Content.Text == "" {
		s.writeError(w, http.StatusBadRequest, "content.text is required")
		return
	}

	conversationID := msg.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	if s.seen.Seen(msg.MessageID) {
		s.logger.Info("duplicate message acknowledged without re-processing",
			"message_id", msg.MessageID, "conversation_id", conversationID)
		s.writeResult(w, conversationID, "duplicate", "Message already processed.")
		return
	}

	result, err := s.router.Route(r.Context(), conversationID, msg.Content.Text)
	if err != nil {
		if errors.Is(err, registry.ErrStoreUnavailable) {
			s.writeError(w, http.StatusServiceUnavailable, "registry backend unavailable")
			return
		}
		s.logger.Error("routing failed", "conversation_id", conversationID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeResult(w, conversationID, string(result.Code), result.Reply)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"agent_id": s.agentID,
	})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	records, err := s.registry.List(r.Context())
	if err != nil {
		if errors.Is(err, registry.ErrStoreUnavailable) {
			s.writeError(w, http.StatusServiceUnavailable, "registry backend unavailable")
			return
		}
		s.logger.Error("listing agents", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	type agentView struct {
		AgentID      string `json:"agent_id"`
		Endpoint     string `json:"endpoint"`
		RegisteredAt string `json:"registered_at"`
		LastSeen     string `json:"last_seen"`
	}
	views := make([]agentView, 0, len(records))
	for _, rec := range records {
		views = append(views, agentView{
			AgentID:      rec.AgentID,
			Endpoint:     rec.Endpoint,
			RegisteredAt: rec.RegisteredAt.UTC().Format(time.RFC3339),
			LastSeen:     rec.LastSeen.UTC().Format(time.RFC3339),
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"agents": views})
}

func (s *Server) writeResult(w http.ResponseWriter, conversationID, status, text string) {
	reply := wire.NewText(wire.RoleAgent, text, conversationID)
	reply.Metadata = map[string]string{"status": status}
	s.writeJSON(w, http.StatusOK, reply)
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, map[string]string{"error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", "error", err)
	}
}
