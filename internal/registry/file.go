// ABOUTME: JSON-file registry backend for local development.
// ABOUTME: Read-modify-write under a writer mutex with atomic rename replace.

package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// fileRecord is the on-disk shape of a registry entry. The document is a
// single JSON object keyed by agent_id.
type fileRecord struct {
	AgentURL     string `json:"agent_url"`
	RegisteredAt string `json:"registered_at"`
	LastSeen     string `json:"last_seen"`
}

// FileRegistry stores the directory in a single JSON document. Every
// mutation re-reads the file, applies the change, and atomically replaces
// the file, so concurrent registrations from separate processes never lose
// an update. Reads are lock-free snapshot reads: the rename-based replace
// guarantees a reader always sees a complete document.
type FileRegistry struct {
	path   string
	mu     sync.Mutex // serializes read-modify-write cycles
	logger *slog.Logger
	now    func() time.Time
}

// NewFileRegistry creates a file-backed registry at the given path. The
// parent directory is created if needed; a missing or corrupt file is
// treated as an empty registry.
func NewFileRegistry(path string) (*FileRegistry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating registry directory: %w", err)
	}
	return &FileRegistry{
		path:   path,
		logger: slog.Default().With("component", "registry"),
		now:    time.Now,
	}, nil
}

// Register upserts an agent record. Re-registration preserves the original
// registered_at and refreshes endpoint and last_seen.
func (r *FileRegistry) Register(ctx context.Context, agentID, endpoint string) (*AgentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return nil, err
	}

	now := r.now().UTC().Format(time.RFC3339)
	rec, exists := records[agentID]
	if exists {
		rec.AgentURL = endpoint
		rec.LastSeen = now
	} else {
		rec = fileRecord{AgentURL: endpoint, RegisteredAt: now, LastSeen: now}
	}
	records[agentID] = rec

	if err := r.save(records); err != nil {
		return nil, err
	}

	r.logger.Debug("agent registered", "agent_id", agentID, "endpoint", endpoint, "new", !exists)
	return toAgentRecord(agentID, rec), nil
}

// Lookup returns the endpoint for an agent, or ErrAgentNotFound.
func (r *FileRegistry) Lookup(ctx context.Context, agentID string) (string, error) {
	records, err := r.load()
	if err != nil {
		return "", err
	}
	rec, ok := records[agentID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	return rec.AgentURL, nil
}

// List returns all records from a single snapshot read, sorted by agent ID.
func (r *FileRegistry) List(ctx context.Context) ([]*AgentRecord, error) {
	records, err := r.load()
	if err != nil {
		return nil, err
	}

	out := make([]*AgentRecord, 0, len(records))
	for id, rec := range records {
		out = append(out, toAgentRecord(id, rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

// Unregister removes an agent record. Removing an absent agent is a no-op.
func (r *FileRegistry) Unregister(ctx context.Context, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return err
	}
	if _, ok := records[agentID]; !ok {
		return nil
	}
	delete(records, agentID)

	if err := r.save(records); err != nil {
		return err
	}
	r.logger.Debug("agent unregistered", "agent_id", agentID)
	return nil
}

// load reads the full document. A missing file is an empty registry; a
// corrupt file is treated the same rather than blocking all registrations.
func (r *FileRegistry) load() (map[string]fileRecord, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return map[string]fileRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrStoreUnavailable, r.path, err)
	}

	records := map[string]fileRecord{}
	if err := json.Unmarshal(data, &records); err != nil {
		r.logger.Warn("registry file corrupt, starting fresh", "path", r.path, "error", err)
		return map[string]fileRecord{}, nil
	}
	return records, nil
}

// save writes the document to a temp file and renames it into place, so
// concurrent snapshot readers never observe a partial write.
func (r *FileRegistry) save(records map[string]fileRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".registry-*.json")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %v", ErrStoreUnavailable, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: writing %s: %v", ErrStoreUnavailable, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: closing %s: %v", ErrStoreUnavailable, tmpName, err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: replacing %s: %v", ErrStoreUnavailable, r.path, err)
	}
	return nil
}

func toAgentRecord(agentID string, rec fileRecord) *AgentRecord {
	out := &AgentRecord{AgentID: agentID, Endpoint: rec.AgentURL}
	// Timestamps written by older tools may be absent or malformed; a zero
	// time is preferable to refusing the record.
	out.RegisteredAt, _ = time.Parse(time.RFC3339, rec.RegisteredAt)
	out.LastSeen, _ = time.Parse(time.RFC3339, rec.LastSeen)
	return out
}
