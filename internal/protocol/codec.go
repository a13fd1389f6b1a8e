// ABOUTME: Codec mapping raw message text to envelopes and back.
// ABOUTME: Handles @mentions, /commands, marker blocks, and the FROM/TO/CONTENT triple.

package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Marker tokens for the structured external message block. The format is
// line-oriented: one header per line, then the message body between the
// start and end markers.
const (
	markerExternal = "__EXTERNAL_MESSAGE__"
	markerFrom     = "__FROM_AGENT__"
	markerTo       = "__TO_AGENT__"
	markerIntent   = "__MESSAGE_TYPE__"
	markerDepth    = "__DEPTH__"
	markerMaxDepth = "__MAX_DEPTH__"
	markerStart    = "__MESSAGE_START__"
	markerEnd      = "__MESSAGE_END__"
)

// Prefixes of the explicit triple form: "FROM: a TO: b CONTENT: text".
const (
	triplePrefix  = "FROM:"
	tripleTo      = "TO:"
	tripleContent = "CONTENT:"
)

// Classify maps raw text to exactly one envelope. It never fails: inputs
// that look structured but are missing required fields degrade to a plain
// message carrying the raw text, with Degraded set for event logging.
//
// Precedence is fixed: leading '@' first, then leading '/', then the
// external envelope marker, then the FROM/TO/CONTENT triple, and anything
// else is a plain message.
func Classify(raw string) *Envelope {
	text := strings.TrimSpace(raw)

	switch {
	case strings.HasPrefix(text, "@"):
		return classifyMention(text)
	case strings.HasPrefix(text, "/"):
		return classifyCommand(text)
	case strings.HasPrefix(text, markerExternal):
		return classifyExternal(text)
	case strings.HasPrefix(text, triplePrefix):
		return classifyTriple(text)
	default:
		return plain(text, false)
	}
}

// Encode renders an envelope back into its textual form. For every
// supported form, Classify(Encode(e)) yields an envelope semantically
// equal to e.
func Encode(e *Envelope) string {
	switch e.Type {
	case TypeAgentMention:
		return fmt.Sprintf("@%s %s", e.ToAgent, e.Content)
	case TypeSlashCommand:
		if e.Args == "" {
			return "/" + e.Command
		}
		return fmt.Sprintf("/%s %s", e.Command, e.Args)
	case TypeExternalEnvelope:
		return encodeExternal(e)
	default:
		return e.Content
	}
}

func classifyMention(text string) *Envelope {
	target, content, _ := strings.Cut(text[1:], " ")
	return &Envelope{
		Type:     TypeAgentMention,
		ToAgent:  target,
		Content:  strings.TrimSpace(content),
		Depth:    DefaultDepth,
		MaxDepth: DefaultMaxDepth,
		Intent:   IntentQuery,
	}
}

func classifyCommand(text string) *Envelope {
	command, args, _ := strings.Cut(text[1:], " ")
	return &Envelope{
		Type:     TypeSlashCommand,
		Command:  command,
		Args:     strings.TrimSpace(args),
		Depth:    DefaultDepth,
		MaxDepth: DefaultMaxDepth,
		Intent:   IntentQuery,
	}
}

// classifyExternal parses the marker block form. Missing from/to or an
// empty body degrades to a plain message; unparseable depth values fall
// back to the defaults rather than failing.
func classifyExternal(text string) *Envelope {
	env := &Envelope{
		Type:     TypeExternalEnvelope,
		Depth:    DefaultDepth,
		MaxDepth: DefaultMaxDepth,
		Intent:   IntentQuery,
	}

	var body []string
	inBody := false

parse:
	for _, line := range strings.Split(text, "\n")[1:] {
		switch {
		case inBody && line == markerEnd:
			break parse
		case inBody:
			body = append(body, line)
		case strings.HasPrefix(line, markerFrom):
			env.FromAgent = strings.TrimPrefix(line, markerFrom)
		case strings.HasPrefix(line, markerTo):
			env.ToAgent = strings.TrimPrefix(line, markerTo)
		case strings.HasPrefix(line, markerIntent):
			if intent := Intent(strings.TrimPrefix(line, markerIntent)); intent == IntentResponse {
				env.Intent = IntentResponse
			}
		case strings.HasPrefix(line, markerDepth):
			env.Depth = parseIntField(strings.TrimPrefix(line, markerDepth), DefaultDepth)
		case strings.HasPrefix(line, markerMaxDepth):
			env.MaxDepth = parseIntField(strings.TrimPrefix(line, markerMaxDepth), DefaultMaxDepth)
		case line == markerStart:
			inBody = true
		}
	}

	env.Content = strings.Join(body, "\n")
	if env.FromAgent == "" || env.ToAgent == "" || env.Content == "" {
		return plain(text, true)
	}
	return env
}

// classifyTriple parses the legacy "FROM: a TO: b CONTENT: text" shorthand.
func classifyTriple(text string) *Envelope {
	rest := strings.TrimSpace(strings.TrimPrefix(text, triplePrefix))

	from, rest, ok := cutField(rest, tripleTo)
	if !ok {
		return plain(text, true)
	}
	to, content, ok := cutField(rest, tripleContent)
	if !ok || from == "" || to == "" {
		return plain(text, true)
	}

	return &Envelope{
		Type:      TypeExternalEnvelope,
		FromAgent: from,
		ToAgent:   to,
		Content:   content,
		Depth:     DefaultDepth,
		MaxDepth:  DefaultMaxDepth,
		Intent:    IntentQuery,
	}
}

func encodeExternal(e *Envelope) string {
	var b strings.Builder
	b.WriteString(markerExternal + "\n")
	b.WriteString(markerFrom + e.FromAgent + "\n")
	b.WriteString(markerTo + e.ToAgent + "\n")
	b.WriteString(markerIntent + string(e.Intent) + "\n")
	fmt.Fprintf(&b, "%s%d\n", markerDepth, e.Depth)
	fmt.Fprintf(&b, "%s%d\n", markerMaxDepth, e.MaxDepth)
	b.WriteString(markerStart + "\n")
	b.WriteString(e.Content + "\n")
	b.WriteString(markerEnd)
	return b.String()
}

func plain(text string, degraded bool) *Envelope {
	return &Envelope{
		Type:     TypePlainMessage,
		Content:  text,
		Depth:    DefaultDepth,
		MaxDepth: DefaultMaxDepth,
		Intent:   IntentQuery,
		Degraded: degraded,
	}
}

// cutField splits "value NEXT_LABEL rest" around the given label, trimming
// whitespace on both sides. Reports false if the label is absent.
func cutField(s, label string) (value, rest string, ok bool) {
	idx := strings.Index(s, label)
	if idx < 0 {
		return "", "", false
	}
	value = strings.TrimSpace(s[:idx])
	rest = strings.TrimSpace(s[idx+len(label):])
	return value, rest, true
}

func parseIntField(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
