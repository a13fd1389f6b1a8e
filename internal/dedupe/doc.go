// ABOUTME: Package dedupe remembers recently seen message IDs.
// ABOUTME: TTL-bounded and size-capped so memory stays flat under load.

// Package dedupe provides a seen-set the bridge consults before
// routing an inbound message. Senders may redeliver on timeout; a
// message ID seen within the TTL window is dropped instead of routed
// twice.
package dedupe
