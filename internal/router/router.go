// ABOUTME: Message router: classify, then forward, reply, or reject.
// ABOUTME: Depth is checked strictly before any forward; replies never re-route.

package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/2389/agent-relay/internal/convlog"
	"github.com/2389/agent-relay/internal/protocol"
	"github.com/2389/agent-relay/internal/registry"
	"github.com/2389/agent-relay/internal/reply"
	"github.com/2389/agent-relay/internal/transport"
	"github.com/2389/agent-relay/internal/wire"
)

// Code is the terminal outcome of one routing invocation.
type Code string

const (
	// Accepted covers every path that produced a reply: a successful
	// forward, a local generator answer, a slash command, an inline
	// response to an external envelope.
	Accepted Code = "accepted"

	// RejectedNotFound means the mentioned agent is not registered.
	// Informational, not a fault; no network call was attempted.
	RejectedNotFound Code = "rejected:not_found"

	// RejectedDepthExceeded means the depth cutoff stopped a forward.
	// Informational: this is the loop-prevention guarantee working.
	RejectedDepthExceeded Code = "rejected:depth_exceeded"

	// ErrorTransport means delivery to the remote agent failed.
	ErrorTransport Code = "error:transport"

	// ErrorReplyGenerator means the generator failed and the reply is the
	// fixed fallback acknowledgment.
	ErrorReplyGenerator Code = "error:reply_generator"
)

// FallbackReply is returned when the reply generator fails. The caller
// always gets text, never the generator's error.
const FallbackReply = "Message received. I could not generate a full reply right now."

// Result is the terminal outcome returned to the boundary. Err carries
// the underlying infrastructure failure for the error codes; it is
// reported alongside the result, not instead of it.
type Result struct {
	Code     Code
	Reply    string
	Envelope *protocol.Envelope
	Err      error
}

// Options collects the router's collaborators. Registry, Transport, and
// Generator are required; Improver and Log are optional.
type Options struct {
	AgentID   string
	Registry  registry.Registry
	Transport transport.Transport
	Generator reply.Generator
	Improver  reply.Improver
	Log       *convlog.Logger
	MaxDepth  int
}

// Router routes one inbound message to its terminal outcome. Safe for
// concurrent use; each invocation is independent.
type Router struct {
	agentID   string
	registry  registry.Registry
	transport transport.Transport
	generator reply.Generator
	improver  reply.Improver
	convlog   *convlog.Logger
	maxDepth  int
	logger    *slog.Logger
}

// New constructs a router. MaxDepth <= 0 selects the default of 1.
func New(opts Options) (*Router, error) {
	if opts.AgentID == "" {
		return nil, errors.New("router: agent ID is required")
	}
	if opts.Registry == nil || opts.Transport == nil || opts.Generator == nil {
		return nil, errors.New("router: registry, transport, and generator are required")
	}
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = protocol.DefaultMaxDepth
	}
	return &Router{
		agentID:   opts.AgentID,
		registry:  opts.Registry,
		transport: opts.Transport,
		generator: opts.Generator,
		improver:  opts.Improver,
		convlog:   opts.Log,
		maxDepth:  maxDepth,
		logger:    slog.Default().With("component", "router", "agent_id", opts.AgentID),
	}, nil
}

// Route classifies raw text and drives it to a terminal result. The
// only Go error it returns is a registry backend failure; every
// business outcome, including transport and generator failures, comes
// back as a Result.
func (r *Router) Route(ctx context.Context, conversationID, raw string) (*Result, error) {
	env := protocol.Classify(raw)
	env.ConversationID = conversationID

	r.append(conversationID, "received", raw, map[string]any{
		"message_type": string(env.Type),
		"degraded":     env.Degraded,
	})
	if env.Degraded {
		r.logger.Info("malformed structured message degraded to plain text",
			"conversation_id", conversationID)
	}

	switch env.Type {
	case protocol.TypeAgentMention:
		return r.routeMention(ctx, env)
	case protocol.TypeSlashCommand:
		return r.runCommand(ctx, env), nil
	case protocol.TypeExternalEnvelope:
		return r.answerExternal(ctx, env), nil
	default:
		return r.replyLocally(ctx, env), nil
	}
}

// routeMention resolves the target and forwards one hop. Registry
// misses reject without touching the network; backend failures
// propagate as Go errors.
func (r *Router) routeMention(ctx context.Context, env *protocol.Envelope) (*Result, error) {
	env.FromAgent = r.agentID
	if env.MaxDepth == protocol.DefaultMaxDepth {
		env.MaxDepth = r.maxDepth
	}

	endpoint, err := r.registry.Lookup(ctx, env.ToAgent)
	if errors.Is(err, registry.ErrAgentNotFound) {
		r.append(env.ConversationID, "router", "target agent not registered", map[string]any{
			"to_agent": env.ToAgent,
		})
		return &Result{
			Code:     RejectedNotFound,
			Reply:    fmt.Sprintf("Agent %q is not registered.", env.ToAgent),
			Envelope: env,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", env.ToAgent, err)
	}

	if env.DepthExceeded() {
		r.append(env.ConversationID, "router", "depth limit reached, not forwarding", map[string]any{
			"to_agent":  env.ToAgent,
			"depth":     env.Depth,
			"max_depth": env.MaxDepth,
		})
		return &Result{
			Code:     RejectedDepthExceeded,
			Reply:    fmt.Sprintf("Depth limit reached (%d/%d); message logged, not forwarded.", env.Depth, env.MaxDepth),
			Envelope: env,
		}, nil
	}

	fwd := env.Forwarded(r.agentID)
	fwd.Type = protocol.TypeExternalEnvelope
	fwd.Content = reply.Improve(r.improver, env.Content, r.logger)

	msg := wire.NewText(wire.RoleUser, protocol.Encode(fwd), env.ConversationID)
	msg.MessageID = uuid.NewString()

	r.append(env.ConversationID, r.agentID, fwd.Content, map[string]any{
		"to_agent": fwd.ToAgent,
		"depth":    fwd.Depth,
	})

	peerReply, err := r.transport.Deliver(ctx, endpoint, msg)
	if err != nil {
		r.logger.Warn("delivery failed", "to_agent", fwd.ToAgent, "error", err)
		r.append(env.ConversationID, "router", "delivery failed", map[string]any{
			"to_agent": fwd.ToAgent,
			"error":    err.Error(),
		})
		return &Result{
			Code:     ErrorTransport,
			Reply:    fmt.Sprintf("Could not deliver message to %q.", fwd.ToAgent),
			Envelope: env,
			Err:      err,
		}, nil
	}

	return r.acceptReply(fwd, peerReply), nil
}

// acceptReply logs the peer's inline reply. The reply carries the depth
// the forward accumulated; it is bound by the same cutoff and with the
// default bounds it always terminates here rather than re-forwarding.
func (r *Router) acceptReply(fwd *protocol.Envelope, peerReply *wire.Message) *Result {
	replyEnv := protocol.Classify(peerReply.Content.Text)
	replyEnv.ConversationID = fwd.ConversationID

	r.append(fwd.ConversationID, fwd.ToAgent, replyEnv.Content, map[string]any{
		"depth":          replyEnv.Depth,
		"depth_exceeded": replyEnv.DepthExceeded(),
	})

	return &Result{Code: Accepted, Reply: replyEnv.Content, Envelope: fwd}
}

// answerExternal handles a well-formed envelope delivered by a peer.
// A query gets one generated reply, returned inline as a response
// envelope at the depth the chain has already accumulated. A response
// is the end of a chain: logged, never answered or re-forwarded.
func (r *Router) answerExternal(ctx context.Context, env *protocol.Envelope) *Result {
	r.append(env.ConversationID, env.FromAgent, env.Content, map[string]any{
		"depth":  env.Depth,
		"intent": string(env.Intent),
	})

	if env.Intent == protocol.IntentResponse {
		return &Result{Code: Accepted, Reply: "Reply received.", Envelope: env}
	}

	text, code := r.generate(ctx, env)

	resp := &protocol.Envelope{
		Type:           protocol.TypeExternalEnvelope,
		FromAgent:      r.agentID,
		ToAgent:        env.FromAgent,
		Content:        text,
		ConversationID: env.ConversationID,
		Depth:          env.Depth,
		MaxDepth:       env.MaxDepth,
		Intent:         protocol.IntentResponse,
	}

	r.append(env.ConversationID, r.agentID, text, map[string]any{
		"to_agent": env.FromAgent,
		"depth":    env.Depth,
	})

	return &Result{Code: code, Reply: protocol.Encode(resp), Envelope: env}
}

// replyLocally answers plain text (including degraded structured forms)
// with the reply generator. The response is terminal by construction.
func (r *Router) replyLocally(ctx context.Context, env *protocol.Envelope) *Result {
	text, code := r.generate(ctx, env)
	r.append(env.ConversationID, r.agentID, text, nil)
	return &Result{Code: code, Reply: text, Envelope: env}
}

// generate calls the reply generator exactly once, substituting the
// fixed fallback acknowledgment on failure.
func (r *Router) generate(ctx context.Context, env *protocol.Envelope) (string, Code) {
	text, err := r.generator.Generate(ctx, env.Content)
	if err != nil {
		r.logger.Warn("reply generator failed, using fallback", "error", err)
		r.append(env.ConversationID, "router", "reply generator failed", map[string]any{
			"error": err.Error(),
		})
		return FallbackReply, ErrorReplyGenerator
	}
	return text, Accepted
}

func (r *Router) append(conversationID, source, text string, meta map[string]any) {
	if r.convlog != nil {
		r.convlog.Append(conversationID, source, text, meta)
	}
}
