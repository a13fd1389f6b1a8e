// ABOUTME: Slash command handling: help and direct generator queries.
// ABOUTME: Commands are always terminal and never create an outbound route.

package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389/agent-relay/internal/protocol"
)

const helpText = `Available commands:
  /help           show this message
  /query <text>   ask the reply generator directly

Message forms:
  @<agent_id> <text>   forward text to a registered agent
  <text>               plain message, answered locally`

// runCommand dispatches a slash command. Unknown commands answer with
// the help text rather than an error.
func (r *Router) runCommand(ctx context.Context, env *protocol.Envelope) *Result {
	var text string
	code := Accepted

	switch strings.ToLower(env.Command) {
	case "help":
		text = helpText
	case "query":
		if env.Args == "" {
			text = "Usage: /query <text>"
			break
		}
		query := *env
		query.Content = env.Args
		text, code = r.generate(ctx, &query)
	default:
		text = fmt.Sprintf("Unknown command %q.\n\n%s", env.Command, helpText)
	}

	r.append(env.ConversationID, r.agentID, text, map[string]any{
		"command": env.Command,
	})
	return &Result{Code: code, Reply: text, Envelope: env}
}
