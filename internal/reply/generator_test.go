// ABOUTME: Tests for the echo generator, improver tolerance, and completion client.
// ABOUTME: Uses httptest servers for the completion API; no live network access.

package reply

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEcho_Generate(t *testing.T) {
	text, err := Echo{}.Generate(context.Background(), "hello")

	require.NoError(t, err)
	assert.Equal(t, "Acknowledged: hello", text)
}

func TestImprove_NilImproverReturnsOriginal(t *testing.T) {
	assert.Equal(t, "hello", Improve(nil, "hello", discardLogger()))
}

func TestImprove_AppliesImprover(t *testing.T) {
	improver := func(text string) (string, error) { return text + "!", nil }

	assert.Equal(t, "hello!", Improve(improver, "hello", discardLogger()))
}

func TestImprove_FailureKeepsOriginal(t *testing.T) {
	improver := func(text string) (string, error) { return "", errors.New("boom") }

	assert.Equal(t, "hello", Improve(improver, "hello", discardLogger()))
}

func TestCompletion_Generate(t *testing.T) {
	var gotPath string
	var gotBody completionRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": "  the answer  "}},
		})
	}))
	defer srv.Close()

	client, err := NewCompletion(CompletionConfig{
		BaseURL:      srv.URL,
		APIKey:       "test-key",
		SystemPrompt: "be helpful",
	})
	require.NoError(t, err)

	text, err := client.Generate(context.Background(), "what is 2+2?")
	require.NoError(t, err)

	assert.Equal(t, "the answer", text)
	assert.Equal(t, "/v1/messages", gotPath)
	assert.Equal(t, "be helpful", gotBody.System)
	require.Len(t, gotBody.Messages, 1)
	assert.Equal(t, "what is 2+2?", gotBody.Messages[0].Content)
}

func TestCompletion_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "over quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, err := NewCompletion(CompletionConfig{BaseURL: srv.URL, APIKey: "test-key"})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestCompletion_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"content": []map[string]string{}})
	}))
	defer srv.Close()

	client, err := NewCompletion(CompletionConfig{BaseURL: srv.URL, APIKey: "test-key"})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "hi")
	assert.Error(t, err)
}

func TestNewCompletion_RequiresConfig(t *testing.T) {
	_, err := NewCompletion(CompletionConfig{APIKey: "k"})
	assert.Error(t, err)

	_, err = NewCompletion(CompletionConfig{BaseURL: "http://localhost"})
	assert.Error(t, err)
}
