// ABOUTME: Package convlog records conversation events for observability.
// ABOUTME: Append-only JSONL files with an optional SQLite ledger sink.

// Package convlog provides the append-only conversation log. Every routing
// transition is recorded as one independently parseable JSON line under
// logs/agent_<id>/conversation_<conversation_id>.jsonl, optionally tee'd
// into a SQLite ledger for queryable history.
//
// The log is side-effect-only: append failures are reported through the
// process logger and never propagate back into the router.
package convlog
