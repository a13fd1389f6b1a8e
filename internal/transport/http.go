// ABOUTME: HTTP transport POSTing wire messages to a peer bridge's /a2a endpoint.
// ABOUTME: Appends the /a2a path only when the registered endpoint lacks it.

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/agent-relay/internal/wire"
)

// ErrDeliveryFailed wraps every transport-level failure: connection
// errors, timeouts, and non-2xx responses all look the same to the router.
var ErrDeliveryFailed = errors.New("message delivery failed")

const defaultDeliverTimeout = 30 * time.Second

// Transport delivers a wire message to a remote agent endpoint and
// returns the peer's reply.
type Transport interface {
	Deliver(ctx context.Context, endpoint string, msg *wire.Message) (*wire.Message, error)
}

// HTTPTransport delivers messages over plain HTTP.
type HTTPTransport struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPTransport creates a transport with the given per-delivery
// timeout (default 30s).
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = defaultDeliverTimeout
	}
	return &HTTPTransport{
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default().With("component", "transport"),
	}
}

// Deliver POSTs the message to <endpoint>/a2a and decodes the reply.
// A single attempt: any failure wraps ErrDeliveryFailed.
func (t *HTTPTransport) Deliver(ctx context.Context, endpoint string, msg *wire.Message) (*wire.Message, error) {
	url := endpoint
	if !strings.HasSuffix(url, "/a2a") {
		url = strings.TrimRight(url, "/") + "/a2a"
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding wire message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: building request for %s: %v", ErrDeliveryFailed, url, err)
	}
	req.Header.Set("Content-Type", "application/json")

	t.logger.Debug("delivering message", "url", url, "conversation_id", msg.ConversationID)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: posting to %s: %v", ErrDeliveryFailed, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: %s returned status %d: %s",
			ErrDeliveryFailed, url, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var reply wire.Message
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("%w: decoding reply from %s: %v", ErrDeliveryFailed, url, err)
	}
	return &reply, nil
}
