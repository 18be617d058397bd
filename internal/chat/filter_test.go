package chat

import (
	"testing"
	"unicode/utf8"
)

func TestFilter_RoomAllowed(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		room   string
		want   bool
	}{
		{
			name:   "empty filter allows everything",
			filter: Filter{},
			room:   "lobby",
			want:   true,
		},
		{
			name:   "blocklist match",
			filter: Filter{BlockedRooms: []string{"admin-*"}},
			room:   "admin-backstage",
			want:   false,
		},
		{
			name:   "blocklist no match",
			filter: Filter{BlockedRooms: []string{"admin-*"}},
			room:   "lobby",
			want:   true,
		},
		{
			name:   "exact pattern",
			filter: Filter{BlockedRooms: []string{"lobby"}},
			room:   "lobby",
			want:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.RoomAllowed(tt.room); got != tt.want {
				t.Errorf("RoomAllowed(%q) = %v, want %v", tt.room, got, tt.want)
			}
		})
	}
}

func TestFilter_Apply(t *testing.T) {
	tests := []struct {
		name     string
		filter   Filter
		post     ChatPosted
		wantBody string
	}{
		{
			name:     "no-op filter leaves body alone",
			filter:   Filter{},
			post:     ChatPosted{Body: "hello there"},
			wantBody: "hello there",
		},
		{
			name:     "blocked word masked",
			filter:   Filter{BlockedWords: []string{"secret"}},
			post:     ChatPosted{Body: "the secret plan"},
			wantBody: "the ****** plan",
		},
		{
			name:     "masking is case-insensitive",
			filter:   Filter{BlockedWords: []string{"secret"}},
			post:     ChatPosted{Body: "SECRET secret SeCrEt"},
			wantBody: "****** ****** ******",
		},
		{
			name:     "multiple words",
			filter:   Filter{BlockedWords: []string{"foo", "bar"}},
			post:     ChatPosted{Body: "foo and bar and baz"},
			wantBody: "*** and *** and baz",
		},
		{
			name:     "multibyte neighbors stay intact",
			filter:   Filter{BlockedWords: []string{"a"}},
			post:     ChatPosted{Body: "İa"},
			wantBody: "İ*",
		},
		{
			name:     "match at end of body",
			filter:   Filter{BlockedWords: []string{"secret"}},
			post:     ChatPosted{Body: "İ the secret"},
			wantBody: "İ the ******",
		},
		{
			name:     "multibyte blocked word",
			filter:   Filter{BlockedWords: []string{"señor"}},
			post:     ChatPosted{Body: "hola SEÑOR bond"},
			wantBody: "hola ***** bond",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.filter.Apply(tt.post)
			if got.Body != tt.wantBody {
				t.Errorf("body = %q, want %q", got.Body, tt.wantBody)
			}
			if !utf8.ValidString(got.Body) {
				t.Errorf("body %q is not valid UTF-8", got.Body)
			}
		})
	}
}

func TestFilter_ApplyMasksAuthor(t *testing.T) {
	f := Filter{MaskAuthors: true}
	post := ChatPosted{AuthorID: "u1", AuthorName: "Alice", Body: "hi"}

	got := f.Apply(post)
	if got.AuthorID == "u1" || got.AuthorID == "" {
		t.Errorf("author id = %q, want a stable hash", got.AuthorID)
	}
	if again := f.Apply(post); again.AuthorID != got.AuthorID {
		t.Error("hash must be stable across applications")
	}
	// The original is untouched.
	if post.AuthorID != "u1" {
		t.Errorf("original mutated: %q", post.AuthorID)
	}
}

func TestFilter_IsNoop(t *testing.T) {
	if !(&Filter{}).IsNoop() {
		t.Error("zero filter must be a no-op")
	}
	if (&Filter{BlockedWords: []string{"x"}}).IsNoop() {
		t.Error("filter with blocked words is not a no-op")
	}
}
