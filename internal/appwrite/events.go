package appwrite

import (
	"encoding/json"
	"strings"
)

// DocumentWildcard matches any document create, update or delete in any
// collection.
const DocumentWildcard = "databases.*.collections.*.documents.*"

// Event is one change notification. The payload is the changed document;
// the client does not apply it.
type Event struct {
	Events    []string        `json:"events"`
	Channels  []string        `json:"channels"`
	Timestamp string          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Matches reports whether any of the event names matches pattern.
func (e Event) Matches(pattern string) bool {
	for _, name := range e.Events {
		if MatchEvent(pattern, name) {
			return true
		}
	}
	return false
}

// MatchEvent compares dot-separated segments; "*" in pattern matches any
// single segment. name may carry one extra trailing segment (the action,
// e.g. "update") beyond the pattern.
func MatchEvent(pattern, name string) bool {
	if pattern == "" || name == "" {
		return false
	}
	ps := strings.Split(pattern, ".")
	ns := strings.Split(name, ".")
	if len(ns) < len(ps) || len(ns) > len(ps)+1 {
		return false
	}
	for i, p := range ps {
		if p != "*" && p != ns[i] {
			return false
		}
	}
	return true
}
