// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package broker

import (
	"strings"
)

const (
	DefaultCommandPrefix = "wa.cmd"
	DefaultEventPrefix   = "wa.evt"

	generalWord = "general"
)

// Routing builds and matches topic routing keys.
//
// Events go to <EventPrefix>.<tenantId>.<sessionId>.<type>. Commands arrive on
// <CommandPrefix>.general or <CommandPrefix>.<tenantId>.<sessionId>.<type>.
type Routing struct {
	CommandPrefix string
	EventPrefix   string
}

// DefaultRouting returns the routing used when no prefixes are configured.
func DefaultRouting() Routing {
	return Routing{CommandPrefix: DefaultCommandPrefix, EventPrefix: DefaultEventPrefix}
}

// EventKey returns the routing key for an outbound event.
func (r Routing) EventKey(tenantID, sessionID, eventType string) string {
	return join(r.EventPrefix, SanitizeWord(tenantID), SanitizeWord(sessionID), eventType)
}

// CommandKey returns the session-scoped routing key for a command.
func (r Routing) CommandKey(tenantID, sessionID, commandType string) string {
	return join(r.CommandPrefix, SanitizeWord(tenantID), SanitizeWord(sessionID), commandType)
}

// GeneralCommandKey is the fixed key for commands not scoped to a session.
func (r Routing) GeneralCommandKey() string {
	return join(r.CommandPrefix, generalWord)
}

// CommandBindings returns the two topic patterns the command queue binds.
func (r Routing) CommandBindings() []string {
	return []string{r.GeneralCommandKey(), join(r.CommandPrefix, "*", "*", "#")}
}

// MatchesCommand reports whether key is covered by CommandBindings.
func (r Routing) MatchesCommand(key string) bool {
	for _, p := range r.CommandBindings() {
		if MatchTopic(p, key) {
			return true
		}
	}
	return false
}

func join(parts ...string) string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ".")
}

// SanitizeWord makes s safe to use as a single routing-key word.
func SanitizeWord(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '#', ' ':
			return '_'
		}
		return r
	}, s)
}

// MatchTopic implements AMQP topic matching: "*" matches exactly one word and
// "#" matches zero or more words.
func MatchTopic(pattern, key string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchWords(p, k []string) bool {
	for len(p) > 0 {
		switch p[0] {
		case "#":
			if len(p) == 1 {
				return true
			}
			for i := 0; i <= len(k); i++ {
				if matchWords(p[1:], k[i:]) {
					return true
				}
			}
			return false
		case "*":
			if len(k) == 0 {
				return false
			}
		default:
			if len(k) == 0 || p[0] != k[0] {
				return false
			}
		}
		p, k = p[1:], k[1:]
	}
	return len(k) == 0
}

// GlobPattern converts a topic pattern into a Redis PSUBSCRIBE glob. The glob
// is wider than the topic pattern, so receivers filter with MatchTopic.
func GlobPattern(pattern string) string {
	words := strings.Split(pattern, ".")
	for i, w := range words {
		if w == "#" {
			// "a.#" must also match "a"; the trailing dot is dropped and
			// MatchTopic rejects false positives.
			return strings.Join(words[:i], ".") + "*"
		}
		words[i] = globEscape(w)
	}
	return strings.Join(words, ".")
}

func globEscape(w string) string {
	if w == "*" {
		return w
	}
	r := strings.NewReplacer("?", `\?`, "[", `\[`, "]", `\]`, "*", `\*`)
	return r.Replace(w)
}
