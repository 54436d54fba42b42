package appwrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchEvent(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		event   string
		want    bool
	}{
		{"literal wildcard form", DocumentWildcard, "databases.*.collections.*.documents.*", true},
		{"concrete document", DocumentWildcard, "databases.db.collections.todos.documents.t1", true},
		{"concrete with action", DocumentWildcard, "databases.db.collections.todos.documents.t1.update", true},
		{"wildcard with action", DocumentWildcard, "databases.*.collections.*.documents.*.delete", true},
		{"collection event", DocumentWildcard, "databases.db.collections.todos", false},
		{"too deep", DocumentWildcard, "databases.db.collections.todos.documents.t1.update.extra", false},
		{"other resource", DocumentWildcard, "users.u1.sessions.s1.create", false},
		{"buckets", DocumentWildcard, "buckets.b.files.f.create", false},
		{"empty", DocumentWildcard, "", false},
		{"exact pattern", "users.*", "users.u1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchEvent(tt.pattern, tt.event))
		})
	}
}

func TestEventMatches(t *testing.T) {
	ev := Event{Events: []string{"users.u1.update", "databases.db.collections.steps.documents.s1.delete"}}
	assert.True(t, ev.Matches(DocumentWildcard))
	assert.False(t, Event{}.Matches(DocumentWildcard))
}
