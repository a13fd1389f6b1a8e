// ABOUTME: Minimal peer agent for local two-agent testing — answers /a2a with canned text.
// ABOUTME: Usage: echo-agent [-addr localhost:6001] [-id agent_b] [-registry registry.json]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/2389/agent-relay/internal/protocol"
	"github.com/2389/agent-relay/internal/registry"
	"github.com/2389/agent-relay/internal/wire"
)

func main() {
	addr := flag.String("addr", "localhost:6001", "listen address")
	agentID := flag.String("id", "agent_b", "agent ID")
	registryPath := flag.String("registry", "registry.json", "shared file registry path")
	flag.Parse()

	if err := run(*addr, *agentID, *registryPath); err != nil {
		log.Fatal(err)
	}
}

func run(addr, agentID, registryPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	reg, err := registry.NewFileRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("opening registry: %w", err)
	}
	if _, err := reg.Register(ctx, agentID, "http://"+addr); err != nil {
		return fmt.Errorf("registering: %w", err)
	}
	fmt.Fprintf(os.Stderr, "registered as %s at http://%s\n", agentID, addr)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /a2a", func(w http.ResponseWriter, r *http.Request) {
		var msg wire.Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			http.Error(w, "invalid message body", http.StatusBadRequest)
			return
		}

		log.Printf("received message [%s]: %.80s", msg.ConversationID, msg.Content.Text)

		reply := wire.NewText(wire.RoleAgent, echoReply(agentID, msg.Content.Text), msg.ConversationID)
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(reply); err != nil {
			log.Printf("encoding reply: %v", err)
		}
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// echoReply answers an external envelope with a response envelope at the
// same depth, and anything else with a plain echo.
func echoReply(agentID, text string) string {
	env := protocol.Classify(text)
	if env.Type != protocol.TypeExternalEnvelope {
		return fmt.Sprintf("Echo from %s: %s", agentID, text)
	}

	return protocol.Encode(&protocol.Envelope{
		Type:      protocol.TypeExternalEnvelope,
		FromAgent: agentID,
		ToAgent:   env.FromAgent,
		Content:   fmt.Sprintf("Echo from %s: %s", agentID, env.Content),
		Depth:     env.Depth,
		MaxDepth:  env.MaxDepth,
		Intent:    protocol.IntentResponse,
	})
}
