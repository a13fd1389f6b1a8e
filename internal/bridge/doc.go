// ABOUTME: Package bridge is the HTTP boundary in front of the router.
// ABOUTME: Serves /a2a for peers plus health and registry listing endpoints.

// Package bridge exposes one agent over HTTP. Peers POST wire messages
// to /a2a; the bridge deduplicates by message ID, hands the text to the
// router, and returns the router's terminal result as the response
// body. Operational endpoints: GET /health and GET /api/agents.
package bridge
