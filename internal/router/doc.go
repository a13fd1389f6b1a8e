// ABOUTME: Package router decides what happens to each inbound message.
// ABOUTME: Terminal outcomes only; depth bookkeeping prevents reply loops.

// Package router implements the message state machine: classify the
// raw text, then either forward a mention to a registered peer, run a
// slash command, answer an external envelope inline, or hand plain
// text to the reply generator. Every path ends in a terminal Result;
// nothing the router produces is ever fed back into itself.
package router
