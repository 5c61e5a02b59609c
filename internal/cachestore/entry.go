package cachestore

import (
	"strings"
	"time"
)

// Entry is one cached catalog lookup. Payload is opaque: backends store and
// return it byte for byte.
type Entry struct {
	Key         string    `json:"key"`
	Payload     []byte    `json:"payload"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	TTLSeconds  int64     `json:"ttl_seconds"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// State describes how an entry looks to a reader at a point in time.
type State int

const (
	StateMissing State = iota
	StateFresh
	StateStaleTTL
	StateStaleFingerprint
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateStaleTTL:
		return "stale_ttl"
	case StateStaleFingerprint:
		return "stale_fingerprint"
	default:
		return "missing"
	}
}

// StateAt classifies the entry. A fingerprint mismatch wins over a TTL that
// has not yet elapsed; an empty fingerprint argument skips the comparison.
func (e Entry) StateAt(now time.Time, fingerprint string) State {
	if e.Key == "" {
		return StateMissing
	}
	if fingerprint != "" && e.Fingerprint != "" && e.Fingerprint != fingerprint {
		return StateStaleFingerprint
	}
	if !now.Before(e.ExpiresAt) {
		return StateStaleTTL
	}
	return StateFresh
}

// Expired reports whether the TTL has elapsed.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// FingerprintRecord is the last inventory fingerprint recorded for a library.
type FingerprintRecord struct {
	Value      string    `json:"value"`
	ItemCount  int       `json:"item_count"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Key joins a namespace and identifier into a cache key.
func Key(namespace, id string) string {
	return namespace + ":" + id
}

// Namespace returns everything before the last ':' of key.
func Namespace(key string) string {
	if idx := strings.LastIndex(key, ":"); idx > 0 {
		return key[:idx]
	}
	return key
}
