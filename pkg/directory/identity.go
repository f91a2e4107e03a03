package directory

import (
	"fmt"
	"strings"
)

// Identity is how a batch row names the user it wants to change. It must
// resolve to exactly one UserRecord before any mutation is attempted.
type Identity interface {
	// Summary is a short human-readable form used in outcome reports.
	Summary() string
}

// EmailIdentity matches exactly one user by case-insensitive email. Never
// fuzzy.
type EmailIdentity struct {
	Email string
}

func (i EmailIdentity) Summary() string {
	return strings.ToLower(strings.TrimSpace(i.Email))
}

// NameIdentity matches users by first/last name similarity. Both supplied
// parts must individually clear the resolver threshold (AND semantics).
type NameIdentity struct {
	First string
	Last  string
}

func (i NameIdentity) Summary() string {
	first := strings.TrimSpace(i.First)
	last := strings.TrimSpace(i.Last)
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return fmt.Sprintf("%s %s", first, last)
	}
}
