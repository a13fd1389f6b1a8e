// ABOUTME: Package reply abstracts the text-completion collaborator.
// ABOUTME: Echo default for deterministic tests, HTTP completion client for production.

// Package reply defines the Generator capability the router uses to
// produce conversational responses. The generator is a black box: text
// in, text out, may fail. The router owns the fallback policy; generators
// just return errors.
package reply
