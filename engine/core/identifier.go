package core

import (
	"strings"

	"github.com/google/uuid"
)

// NewResourceID returns a fresh identifier for an imported resource.
func NewResourceID() string {
	return uuid.New().String()
}

// IsResourceID reports whether s looks like an identifier produced by
// NewResourceID. Braced identifiers written by older tools are accepted.
func IsResourceID(s string) bool {
	s = strings.TrimSuffix(strings.TrimPrefix(s, "{"), "}")
	_, err := uuid.Parse(s)
	return err == nil
}
