// ABOUTME: Generator interface, the deterministic Echo implementation, and the improver hook.
// ABOUTME: Improver failures are tolerated; the original text is used unchanged.

package reply

import (
	"context"
	"fmt"
	"log/slog"
)

// Generator produces a conversational response for a prompt. It may fail;
// callers substitute their own fallback text rather than propagating the
// error to the original sender.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Improver optionally rewrites outbound message text before forwarding.
// It is best-effort: any error leaves the original text in place.
type Improver func(text string) (string, error)

// Echo is the default generator: a deterministic acknowledgment used in
// tests and deployments without a completion backend.
type Echo struct{}

// Generate returns a canned acknowledgment that quotes the prompt.
func (Echo) Generate(_ context.Context, prompt string) (string, error) {
	return fmt.Sprintf("Acknowledged: %s", prompt), nil
}

// Improve applies the improver to text, tolerating failure. A nil improver
// or a failing one returns the text unchanged; the failure is only logged.
func Improve(improver Improver, text string, logger *slog.Logger) string {
	if improver == nil {
		return text
	}
	improved, err := improver(text)
	if err != nil {
		logger.Warn("message improvement failed, sending original", "error", err)
		return text
	}
	return improved
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
