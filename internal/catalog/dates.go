package catalog

import (
	"strings"
	"time"
)

// ParseDate reads a catalog date ("2006-01-02", optionally with a time part)
// as midnight UTC. Empty or malformed values give nil, which the reconcilers
// treat as unreleased.
func ParseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if len(value) < len("2006-01-02") {
		return nil
	}
	parsed, err := time.Parse(time.DateOnly, value[:len("2006-01-02")])
	if err != nil {
		return nil
	}
	return &parsed
}
