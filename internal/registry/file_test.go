// ABOUTME: Tests for the JSON-file registry backend.
// ABOUTME: Covers upsert semantics, persistence format, and concurrent registration.

package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *FileRegistry {
	t.Helper()
	reg, err := NewFileRegistry(filepath.Join(t.TempDir(), "registry.json"))
	require.NoError(t, err)
	return reg
}

func TestFileRegistry_RegisterThenLookup(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Register(ctx, "agent_a", "http://localhost:6000")
	require.NoError(t, err)

	endpoint, err := reg.Lookup(ctx, "agent_a")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:6000", endpoint)
}

func TestFileRegistry_LookupUnknown(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Lookup(context.Background(), "agent_zz")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestFileRegistry_ReRegisterPreservesRegisteredAt(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	first := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(2 * time.Hour)

	reg.now = func() time.Time { return first }
	rec, err := reg.Register(ctx, "agent_a", "http://localhost:6000")
	require.NoError(t, err)
	assert.Equal(t, first, rec.RegisteredAt)

	reg.now = func() time.Time { return second }
	rec, err = reg.Register(ctx, "agent_a", "http://localhost:7000")
	require.NoError(t, err)

	assert.Equal(t, first, rec.RegisteredAt, "registered_at must survive re-registration")
	assert.Equal(t, second, rec.LastSeen)
	assert.Equal(t, "http://localhost:7000", rec.Endpoint)
}

func TestFileRegistry_Unregister(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Register(ctx, "agent_a", "http://localhost:6000")
	require.NoError(t, err)

	require.NoError(t, reg.Unregister(ctx, "agent_a"))

	_, err = reg.Lookup(ctx, "agent_a")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestFileRegistry_UnregisterAbsentIsNoop(t *testing.T) {
	reg := newTestRegistry(t)

	assert.NoError(t, reg.Unregister(context.Background(), "never-registered"))
}

func TestFileRegistry_ListSortedByAgentID(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	for _, id := range []string{"agent_c", "agent_a", "agent_b"} {
		_, err := reg.Register(ctx, id, "http://localhost:6000")
		require.NoError(t, err)
	}

	records, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "agent_a", records[0].AgentID)
	assert.Equal(t, "agent_b", records[1].AgentID)
	assert.Equal(t, "agent_c", records[2].AgentID)
}

func TestFileRegistry_PersistenceFormat(t *testing.T) {
	// The on-disk document is one JSON object keyed by agent_id with
	// ISO-8601 timestamps; external tooling depends on this shape.
	path := filepath.Join(t.TempDir(), "registry.json")
	reg, err := NewFileRegistry(path)
	require.NoError(t, err)

	_, err = reg.Register(context.Background(), "agent_a", "http://localhost:6000")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]struct {
		AgentURL     string `json:"agent_url"`
		RegisteredAt string `json:"registered_at"`
		LastSeen     string `json:"last_seen"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))

	entry, ok := doc["agent_a"]
	require.True(t, ok)
	assert.Equal(t, "http://localhost:6000", entry.AgentURL)

	_, err = time.Parse(time.RFC3339, entry.RegisteredAt)
	assert.NoError(t, err)
	_, err = time.Parse(time.RFC3339, entry.LastSeen)
	assert.NoError(t, err)
}

func TestFileRegistry_CorruptFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	reg, err := NewFileRegistry(path)
	require.NoError(t, err)

	_, err = reg.Lookup(context.Background(), "agent_a")
	assert.ErrorIs(t, err, ErrAgentNotFound)

	_, err = reg.Register(context.Background(), "agent_a", "http://localhost:6000")
	assert.NoError(t, err)
}

func TestFileRegistry_ConcurrentRegistrationsAllPersist(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("agent_%02d", i)
			if _, err := reg.Register(ctx, id, "http://localhost:6000"); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	records, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, n, "no registration may be lost to a concurrent write")
}

func TestFileRegistry_SharedFileAcrossInstances(t *testing.T) {
	// Two registry instances over the same file model two agent processes
	// sharing a local registry.
	path := filepath.Join(t.TempDir(), "registry.json")
	regA, err := NewFileRegistry(path)
	require.NoError(t, err)
	regB, err := NewFileRegistry(path)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = regA.Register(ctx, "agent_a", "http://localhost:6000")
	require.NoError(t, err)
	_, err = regB.Register(ctx, "agent_b", "http://localhost:6001")
	require.NoError(t, err)

	endpoint, err := regA.Lookup(ctx, "agent_b")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:6001", endpoint)

	_, err = regB.Lookup(ctx, "agent_c")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}
