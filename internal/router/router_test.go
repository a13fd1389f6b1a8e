// ABOUTME: Router state machine tests: forwarding, depth cutoff, rejections.
// ABOUTME: Collaborators are recorded fakes; the registry is the real file backend.

package router

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/agent-relay/internal/convlog"
	"github.com/2389/agent-relay/internal/protocol"
	"github.com/2389/agent-relay/internal/registry"
	"github.com/2389/agent-relay/internal/reply"
	"github.com/2389/agent-relay/internal/wire"
)

// fakeTransport records deliveries and answers with a scripted reply.
type fakeTransport struct {
	calls     int
	endpoint  string
	delivered *wire.Message
	replyText string
	err       error
}

func (f *fakeTransport) Deliver(_ context.Context, endpoint string, msg *wire.Message) (*wire.Message, error) {
	f.calls++
	f.endpoint = endpoint
	f.delivered = msg
	if f.err != nil {
		return nil, f.err
	}
	return wire.NewText(wire.RoleAgent, f.replyText, msg.ConversationID), nil
}

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, string) (string, error) {
	return "", errors.New("completion backend down")
}

// brokenRegistry simulates an unreachable backend.
type brokenRegistry struct{}

func (brokenRegistry) Register(context.Context, string, string) (*registry.AgentRecord, error) {
	return nil, registry.ErrStoreUnavailable
}
func (brokenRegistry) Lookup(context.Context, string) (string, error) {
	return "", fmt.Errorf("dialing store: %w", registry.ErrStoreUnavailable)
}
func (brokenRegistry) List(context.Context) ([]*registry.AgentRecord, error) {
	return nil, registry.ErrStoreUnavailable
}
func (brokenRegistry) Unregister(context.Context, string) error {
	return registry.ErrStoreUnavailable
}

type fixture struct {
	router    *Router
	registry  *registry.FileRegistry
	transport *fakeTransport
	log       *convlog.Logger
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	dir := t.TempDir()

	reg, err := registry.NewFileRegistry(filepath.Join(dir, "registry.json"))
	require.NoError(t, err)
	clog, err := convlog.New("agent_a", filepath.Join(dir, "logs"))
	require.NoError(t, err)

	tr := &fakeTransport{replyText: "hi back"}

	if opts.AgentID == "" {
		opts.AgentID = "agent_a"
	}
	if opts.Registry == nil {
		opts.Registry = reg
	}
	if opts.Transport == nil {
		opts.Transport = tr
	}
	if opts.Generator == nil {
		opts.Generator = reply.Echo{}
	}
	opts.Log = clog

	r, err := New(opts)
	require.NoError(t, err)
	return &fixture{router: r, registry: reg, transport: tr, log: clog}
}

func TestRoute_MentionForwardsOneHop(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.registry.Register(context.Background(), "agent_b", "http://localhost:6001")
	require.NoError(t, err)

	res, err := f.router.Route(context.Background(), "conv-1", "@agent_b hello")
	require.NoError(t, err)

	assert.Equal(t, Accepted, res.Code)
	assert.Equal(t, "hi back", res.Reply)
	require.Equal(t, 1, f.transport.calls)
	assert.Equal(t, "http://localhost:6001", f.transport.endpoint)

	fwd := protocol.Classify(f.transport.delivered.Content.Text)
	assert.Equal(t, protocol.TypeExternalEnvelope, fwd.Type)
	assert.Equal(t, "agent_a", fwd.FromAgent)
	assert.Equal(t, "agent_b", fwd.ToAgent)
	assert.Equal(t, "hello", fwd.Content)
	assert.Equal(t, 1, fwd.Depth, "forward increments depth by exactly one")
	assert.Equal(t, 1, fwd.MaxDepth)
	assert.NotEmpty(t, f.transport.delivered.MessageID)
}

func TestRoute_ReplyAtDepthLimitIsLoggedNotReforwarded(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.registry.Register(context.Background(), "agent_b", "http://localhost:6001")
	require.NoError(t, err)

	// The peer answers with a response envelope carrying the hop's depth.
	f.transport.replyText = protocol.Encode(&protocol.Envelope{
		Type:      protocol.TypeExternalEnvelope,
		FromAgent: "agent_b",
		ToAgent:   "agent_a",
		Content:   "the answer",
		Depth:     1,
		MaxDepth:  1,
		Intent:    protocol.IntentResponse,
	})

	res, err := f.router.Route(context.Background(), "conv-2", "@agent_b hello")
	require.NoError(t, err)

	assert.Equal(t, Accepted, res.Code)
	assert.Equal(t, "the answer", res.Reply)
	assert.Equal(t, 1, f.transport.calls, "the reply must not trigger a second delivery")

	entries, err := f.log.ReadConversation("conv-2")
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, "agent_b", last.Source)
	assert.Equal(t, "the answer", last.Message)
	assert.Equal(t, true, last.Metadata["depth_exceeded"])
}

func TestRoute_MentionUnregisteredAgent(t *testing.T) {
	f := newFixture(t, Options{})

	res, err := f.router.Route(context.Background(), "conv-3", "@agent_c hi")
	require.NoError(t, err)

	assert.Equal(t, RejectedNotFound, res.Code)
	assert.Contains(t, res.Reply, "agent_c")
	assert.Equal(t, 0, f.transport.calls, "no network call for an unknown agent")
}

func TestRoute_DepthExceededNeverInvokesTransport(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.registry.Register(context.Background(), "agent_b", "http://localhost:6001")
	require.NoError(t, err)

	// Route the forwarded form directly: an envelope already at the cutoff
	// re-entering as a mention must stop at the depth check.
	env := &protocol.Envelope{
		Type:     protocol.TypeAgentMention,
		ToAgent:  "agent_b",
		Content:  "bounce",
		Depth:    1,
		MaxDepth: 1,
	}
	res, err := f.router.routeMention(context.Background(), env)
	require.NoError(t, err)

	assert.Equal(t, RejectedDepthExceeded, res.Code)
	assert.Equal(t, 0, f.transport.calls)

	entries, readErr := f.log.ReadConversation("")
	require.NoError(t, readErr)
	require.NotEmpty(t, entries, "the depth rejection's only effect is a log append")
}

func TestRoute_TransportFailure(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.registry.Register(context.Background(), "agent_b", "http://localhost:6001")
	require.NoError(t, err)
	f.transport.err = errors.New("connection refused")

	res, err := f.router.Route(context.Background(), "conv-4", "@agent_b hello")
	require.NoError(t, err)

	assert.Equal(t, ErrorTransport, res.Code)
	assert.Error(t, res.Err)
	assert.Equal(t, 1, f.transport.calls, "single attempt, no retry")
}

func TestRoute_StoreUnavailableSurfacesAsError(t *testing.T) {
	f := newFixture(t, Options{Registry: brokenRegistry{}})

	_, err := f.router.Route(context.Background(), "conv-5", "@agent_b hello")

	assert.ErrorIs(t, err, registry.ErrStoreUnavailable)
}

func TestRoute_PlainMessageGoesToGenerator(t *testing.T) {
	f := newFixture(t, Options{})

	res, err := f.router.Route(context.Background(), "conv-6", "hello there")
	require.NoError(t, err)

	assert.Equal(t, Accepted, res.Code)
	assert.Equal(t, "Acknowledged: hello there", res.Reply)
	assert.Equal(t, 0, f.transport.calls)
}

func TestRoute_DegradedEnvelopeGoesToGenerator(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.registry.Register(context.Background(), "agent_b", "http://localhost:6001")
	require.NoError(t, err)

	// Marker block missing __TO_AGENT__ degrades to a plain message.
	raw := "__EXTERNAL_MESSAGE__\n__FROM_AGENT__agent_b\n__MESSAGE_START__\nhi\n__MESSAGE_END__"
	res, err := f.router.Route(context.Background(), "conv-7", raw)
	require.NoError(t, err)

	assert.Equal(t, Accepted, res.Code)
	assert.Equal(t, 0, f.transport.calls, "degraded envelopes never reach the transport")
	assert.Contains(t, res.Reply, "Acknowledged:")
}

func TestRoute_GeneratorFailureUsesFallback(t *testing.T) {
	f := newFixture(t, Options{Generator: failingGenerator{}})

	res, err := f.router.Route(context.Background(), "conv-8", "hello")
	require.NoError(t, err)

	assert.Equal(t, ErrorReplyGenerator, res.Code)
	assert.Equal(t, FallbackReply, res.Reply)
}

func TestRoute_InboundExternalQueryAnsweredInline(t *testing.T) {
	f := newFixture(t, Options{})

	raw := protocol.Encode(&protocol.Envelope{
		Type:      protocol.TypeExternalEnvelope,
		FromAgent: "agent_b",
		ToAgent:   "agent_a",
		Content:   "what time is it?",
		Depth:     1,
		MaxDepth:  1,
		Intent:    protocol.IntentQuery,
	})

	res, err := f.router.Route(context.Background(), "conv-9", raw)
	require.NoError(t, err)
	assert.Equal(t, Accepted, res.Code)

	resp := protocol.Classify(res.Reply)
	assert.Equal(t, protocol.TypeExternalEnvelope, resp.Type)
	assert.Equal(t, protocol.IntentResponse, resp.Intent)
	assert.Equal(t, "agent_a", resp.FromAgent)
	assert.Equal(t, "agent_b", resp.ToAgent)
	assert.Equal(t, 1, resp.Depth, "inline reply carries the accumulated depth unchanged")
	assert.Equal(t, "Acknowledged: what time is it?", resp.Content)
	assert.Equal(t, 0, f.transport.calls)
}

func TestRoute_InboundResponseEnvelopeIsTerminal(t *testing.T) {
	f := newFixture(t, Options{})

	raw := protocol.Encode(&protocol.Envelope{
		Type:      protocol.TypeExternalEnvelope,
		FromAgent: "agent_b",
		ToAgent:   "agent_a",
		Content:   "final answer",
		Depth:     1,
		MaxDepth:  1,
		Intent:    protocol.IntentResponse,
	})

	res, err := f.router.Route(context.Background(), "conv-10", raw)
	require.NoError(t, err)

	assert.Equal(t, Accepted, res.Code)
	assert.Equal(t, 0, f.transport.calls)

	entries, err := f.log.ReadConversation("conv-10")
	require.NoError(t, err)
	var logged bool
	for _, e := range entries {
		if e.Source == "agent_b" && e.Message == "final answer" {
			logged = true
		}
	}
	assert.True(t, logged, "the response content must be logged")
}

func TestRoute_ImproverRewritesOutboundContent(t *testing.T) {
	f := newFixture(t, Options{
		Improver: func(text string) (string, error) { return "[polished] " + text, nil },
	})
	_, err := f.registry.Register(context.Background(), "agent_b", "http://localhost:6001")
	require.NoError(t, err)

	_, err = f.router.Route(context.Background(), "conv-11", "@agent_b rough draft")
	require.NoError(t, err)

	fwd := protocol.Classify(f.transport.delivered.Content.Text)
	assert.Equal(t, "[polished] rough draft", fwd.Content)
}

func TestRoute_SlashHelp(t *testing.T) {
	f := newFixture(t, Options{})

	res, err := f.router.Route(context.Background(), "conv-12", "/help")
	require.NoError(t, err)

	assert.Equal(t, Accepted, res.Code)
	assert.Contains(t, res.Reply, "/query")
	assert.Equal(t, 0, f.transport.calls)
}

func TestRoute_SlashQuery(t *testing.T) {
	f := newFixture(t, Options{})

	res, err := f.router.Route(context.Background(), "conv-13", "/query what is 2+2?")
	require.NoError(t, err)

	assert.Equal(t, Accepted, res.Code)
	assert.Equal(t, "Acknowledged: what is 2+2?", res.Reply)
}

func TestRoute_UnknownSlashCommand(t *testing.T) {
	f := newFixture(t, Options{})

	res, err := f.router.Route(context.Background(), "conv-14", "/frobnicate now")
	require.NoError(t, err)

	assert.Equal(t, Accepted, res.Code)
	assert.Contains(t, res.Reply, "frobnicate")
	assert.Contains(t, res.Reply, "/help")
	assert.Equal(t, 0, f.transport.calls)
}

func TestRoute_EveryTransitionIsLogged(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.router.Route(context.Background(), "conv-15", "hello")
	require.NoError(t, err)

	entries, err := f.log.ReadConversation("conv-15")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "received", entries[0].Source)
	assert.Equal(t, "hello", entries[0].Message)
	assert.Equal(t, "agent_a", entries[1].Source)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{AgentID: "a"})
	assert.Error(t, err)
}
