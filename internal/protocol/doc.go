// ABOUTME: Package protocol implements the A2A message envelope codec.
// ABOUTME: Classifies raw text into typed envelopes and encodes them back.

// Package protocol defines the agent-to-agent message envelope and the
// codec that maps between raw message text and typed envelopes.
//
// Classification is total: every input maps to exactly one message type
// using fixed precedence (@mention, /command, structured external
// envelope, plain text). Malformed structured messages never fail to
// decode; they degrade to plain messages carrying the raw text.
package protocol
