// ABOUTME: Package transport delivers wire messages to remote agent endpoints.
// ABOUTME: Single-attempt HTTP POST with an enforced timeout, no retries.

// Package transport carries envelopes across the network boundary to
// another agent's bridge. Delivery is one blocking POST per call: a
// failure or timeout surfaces immediately and is never retried here.
// Retry policy, if any, belongs to callers.
package transport
