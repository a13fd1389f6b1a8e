// ABOUTME: JSONL conversation logger, one file per conversation per agent.
// ABOUTME: Append never fails upward; I/O errors go to the telemetry logger only.

package convlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry is a single conversation log record.
type Entry struct {
	Timestamp      string         `json:"timestamp"`
	AgentID        string         `json:"agent_id"`
	ConversationID string         `json:"conversation_id"`
	Source         string         `json:"source"`
	Message        string         `json:"message"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Logger appends conversation events for one agent. Logs are organized as
// logs/agent_<agent_id>/conversation_<conversation_id>.jsonl so standard
// tooling (grep, jq) can scan them without a query API.
type Logger struct {
	agentID string
	dir     string
	ledger  *Ledger
	logger  *slog.Logger
	mu      sync.Mutex
	now     func() time.Time
}

// New creates a conversation logger rooted at baseDir. The agent's log
// directory is created eagerly so the first append is a plain file append.
func New(agentID, baseDir string) (*Logger, error) {
	if agentID == "" {
		return nil, fmt.Errorf("agent id required")
	}
	dir := filepath.Join(baseDir, "agent_"+agentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	return &Logger{
		agentID: agentID,
		dir:     dir,
		logger:  slog.Default().With("component", "convlog", "agent_id", agentID),
		now:     time.Now,
	}, nil
}

// WithLedger tees every append into the given SQLite ledger. Ledger write
// failures follow the same swallow-and-report policy as file appends.
func (l *Logger) WithLedger(ledger *Ledger) *Logger {
	l.ledger = ledger
	return l
}

// Append records one event. It never returns an error: the conversation
// log must not influence routing outcomes, so failures are only reported
// through the process logger.
func (l *Logger) Append(conversationID, source, text string, meta map[string]any) {
	entry := Entry{
		Timestamp:      l.now().UTC().Format(time.RFC3339),
		AgentID:        l.agentID,
		ConversationID: conversationID,
		Source:         source,
		Message:        text,
		Metadata:       meta,
	}

	line, err := json.Marshal(entry)
	if err != nil {
		l.logger.Error("encoding log entry", "error", err, "conversation_id", conversationID)
		return
	}

	l.mu.Lock()
	err = l.appendLine(conversationID, line)
	l.mu.Unlock()
	if err != nil {
		l.logger.Error("appending log entry", "error", err, "conversation_id", conversationID)
	}

	if l.ledger != nil {
		if err := l.ledger.SaveEntry(&entry); err != nil {
			l.logger.Error("writing ledger entry", "error", err, "conversation_id", conversationID)
		}
	}
}

func (l *Logger) appendLine(conversationID string, line []byte) error {
	f, err := os.OpenFile(l.Path(conversationID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return nil
}

// Path returns the JSONL file for a conversation.
func (l *Logger) Path(conversationID string) string {
	return filepath.Join(l.dir, "conversation_"+conversationID+".jsonl")
}

// ReadConversation returns all entries for a conversation in append order.
// A missing file yields an empty slice; malformed lines are skipped.
func (l *Logger) ReadConversation(conversationID string) ([]Entry, error) {
	data, err := os.ReadFile(l.Path(conversationID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading conversation log: %w", err)
	}

	var entries []Entry
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			l.logger.Warn("skipping malformed log line", "conversation_id", conversationID, "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ListConversations returns the IDs of all logged conversations, sorted.
func (l *Logger) ListConversations() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(l.dir, "conversation_*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("listing conversation logs: %w", err)
	}

	ids := make([]string, 0, len(files))
	for _, f := range files {
		name := strings.TrimSuffix(filepath.Base(f), ".jsonl")
		ids = append(ids, strings.TrimPrefix(name, "conversation_"))
	}
	sort.Strings(ids)
	return ids, nil
}

// ClearConversation deletes a conversation's log file. Clearing a
// conversation that was never logged is a no-op.
func (l *Logger) ClearConversation(conversationID string) error {
	err := os.Remove(l.Path(conversationID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
