// ABOUTME: Registry interface, AgentRecord type, and shared sentinel errors.
// ABOUTME: Register is an idempotent upsert; lookup misses are expected outcomes.

package registry

import (
	"context"
	"errors"
	"time"
)

// ErrAgentNotFound is returned by Lookup when no record exists for the
// agent. It is an expected control-flow outcome, not a fault.
var ErrAgentNotFound = errors.New("agent not found in registry")

// ErrStoreUnavailable indicates the backing store could not be reached.
// Callers must not silently fall back to a different backend.
var ErrStoreUnavailable = errors.New("registry store unavailable")

// AgentRecord is a single entry in the discovery directory.
type AgentRecord struct {
	AgentID      string
	Endpoint     string
	RegisteredAt time.Time
	LastSeen     time.Time
}

// Registry is the discovery directory contract shared by all backends.
//
// Register is an idempotent upsert: re-registering an agent updates its
// endpoint and last-seen timestamp while preserving the original
// registration time. Unregister is a no-op for absent agents. List returns
// a stable snapshot ordered by agent ID.
type Registry interface {
	Register(ctx context.Context, agentID, endpoint string) (*AgentRecord, error)
	Lookup(ctx context.Context, agentID string) (string, error)
	List(ctx context.Context) ([]*AgentRecord, error)
	Unregister(ctx context.Context, agentID string) error
}
