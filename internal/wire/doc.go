// ABOUTME: Package wire defines the JSON message body exchanged over HTTP.
// ABOUTME: Shared by the transport client and the bridge server.

// Package wire pins the HTTP request/response body used between agent
// bridges: {role, content: {type, text}, conversation_id}. The content
// text is the value handed to the protocol codec; everything else is
// routing bookkeeping.
package wire
