// ABOUTME: Wire message structs and role constants for the /a2a endpoint.
// ABOUTME: Format compatibility with existing senders is load-bearing; change with care.

package wire

// Message roles. Inbound messages carry RoleUser; bridge replies carry
// RoleAgent.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// ContentTypeText is the only content type currently defined.
const ContentTypeText = "text"

// Content is the typed payload of a message.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Message is the body POSTed to an agent bridge's /a2a endpoint and the
// body returned from it.
type Message struct {
	Role           string            `json:"role"`
	Content        Content           `json:"content"`
	ConversationID string            `json:"conversation_id"`
	MessageID      string            `json:"message_id,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// NewText builds a message with a text content block.
func NewText(role, text, conversationID string) *Message {
	return &Message{
		Role:           role,
		Content:        Content{Type: ContentTypeText, Text: text},
		ConversationID: conversationID,
	}
}
