// ABOUTME: Package registry provides agent discovery backed by pluggable stores.
// ABOUTME: Maps agent identifiers to reachable endpoints with registration metadata.

// Package registry implements the agent discovery directory. A Registry
// maps an agent identifier to its reachable endpoint and tracks when the
// agent first registered and was last seen.
//
// Two interchangeable backends are provided: a JSON-file store for local
// development and a Redis-backed store for distributed deployments. The
// backend is chosen once at construction and injected into the router;
// nothing else branches on the concrete type.
package registry
