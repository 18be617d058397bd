package chat

import (
	"crypto/sha256"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
)

// Filter applies moderation and masking to chat traffic before it is
// broadcast. The zero value is a no-op filter.
type Filter struct {
	// MaskAuthors replaces author ids with a short stable hash, so clients
	// can still group messages by author without learning the real id.
	MaskAuthors bool
	// BlockedWords are masked out of message bodies, case-insensitively.
	BlockedWords []string
	// BlockedRooms are glob patterns; matching rooms reject joins and posts
	// even when the catalogue lists them.
	BlockedRooms []string
}

// RoomAllowed reports whether a room passes the block patterns.
func (f *Filter) RoomAllowed(room string) bool {
	for _, pattern := range f.BlockedRooms {
		if matched, _ := filepath.Match(pattern, room); matched {
			return false
		}
	}
	return true
}

// Apply returns a copy of the post with masking applied. The original is
// never modified.
func (f *Filter) Apply(post ChatPosted) ChatPosted {
	for _, word := range f.BlockedWords {
		post.Body = maskWord(post.Body, word)
	}
	if f.MaskAuthors && post.AuthorID != "" {
		post.AuthorID = shortHash(post.AuthorID)
	}
	return post
}

// IsNoop reports whether the filter does nothing.
func (f *Filter) IsNoop() bool {
	return !f.MaskAuthors && len(f.BlockedWords) == 0 && len(f.BlockedRooms) == 0
}

// maskWord replaces every case-insensitive occurrence of word in body with
// one asterisk per rune. Matching is done rune by rune: lowering a string
// can change its byte length (U+0130 and friends), so byte offsets into a
// lowered copy cannot be applied to the original.
func maskWord(body, word string) string {
	if word == "" {
		return body
	}
	bodyRunes := []rune(body)
	wordRunes := []rune(strings.ToLower(word))
	mask := strings.Repeat("*", len(wordRunes))

	var b strings.Builder
	for i := 0; i < len(bodyRunes); {
		if matchesFold(bodyRunes[i:], wordRunes) {
			b.WriteString(mask)
			i += len(wordRunes)
			continue
		}
		b.WriteRune(bodyRunes[i])
		i++
	}
	return b.String()
}

func matchesFold(body, word []rune) bool {
	if len(body) < len(word) {
		return false
	}
	for i, w := range word {
		if unicode.ToLower(body[i]) != w {
			return false
		}
	}
	return true
}

// shortHash returns a truncated SHA-256 hex digest for an opaque identifier.
func shortHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:6])
}
