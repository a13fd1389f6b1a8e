// ABOUTME: Envelope struct and message type definitions for A2A messaging.
// ABOUTME: Depth bookkeeping fields bound recursive agent-to-agent chatter.

package protocol

// MessageType identifies which textual form an inbound message took.
type MessageType string

const (
	// TypeAgentMention is a "@agent_id text" message addressed to another agent.
	TypeAgentMention MessageType = "agent_mention"

	// TypeSlashCommand is a "/command args" message handled locally.
	TypeSlashCommand MessageType = "slash_command"

	// TypeExternalEnvelope is a structured envelope received from another agent.
	TypeExternalEnvelope MessageType = "external_envelope"

	// TypePlainMessage is any other text, answered by the reply generator.
	TypePlainMessage MessageType = "plain_message"
)

// Intent distinguishes a request envelope from the reply it provokes.
type Intent string

const (
	IntentQuery    Intent = "query"
	IntentResponse Intent = "response"
)

// Default depth bounds for senders that predate depth tracking.
const (
	DefaultDepth    = 0
	DefaultMaxDepth = 1
)

// Envelope is the structured unit exchanged between agents. It is created
// fresh per inbound message and immutable after classification; the router
// copies it with an incremented depth when forwarding.
type Envelope struct {
	Type           MessageType
	FromAgent      string
	ToAgent        string
	Content        string
	ConversationID string

	// Command and Args are populated only for TypeSlashCommand.
	Command string
	Args    string

	// Depth counts hops since the originating request. A forward is only
	// permitted while Depth < MaxDepth.
	Depth    int
	MaxDepth int

	Intent   Intent
	Metadata map[string]string

	// Degraded marks an envelope that arrived in a structured form but was
	// missing required fields and fell back to a plain message. Recorded as
	// an event by the router, never surfaced as an error.
	Degraded bool
}

// Forwarded returns a copy of the envelope addressed from the given agent,
// with the depth incremented by exactly one hop.
func (e *Envelope) Forwarded(fromAgent string) *Envelope {
	out := *e
	out.FromAgent = fromAgent
	out.Depth = e.Depth + 1
	out.Intent = IntentQuery
	return &out
}

// DepthExceeded reports whether the envelope has reached its forwarding
// cutoff. The check is strict (>=): with the default MaxDepth of 1 a chain
// allows exactly one hop plus one reply.
func (e *Envelope) DepthExceeded() bool {
	return e.Depth >= e.MaxDepth
}
