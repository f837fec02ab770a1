// Package identity handles user identities for outbound gating. An identity
// is either a full phone number (usable for database lookups) or only its
// irreversible hash (usable for session-level checks only).
package identity

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// Identity carries a user's phone number and/or its hash. The hash is always
// populated; the phone may be empty when the caller only holds a hash.
type Identity struct {
	Phone string
	Hash  string
}

// FromPhone builds an identity from a full phone number.
func FromPhone(phone string) Identity {
	return Identity{Phone: normalize(phone), Hash: HashPhone(phone)}
}

// FromHash builds a hash-only identity. Database-backed checks are skipped
// for these because the hash cannot be used to query external stores.
func FromHash(hash string) Identity {
	return Identity{Hash: strings.ToLower(strings.TrimSpace(hash))}
}

// HasPhone reports whether database lookups are possible for this identity.
func (id Identity) HasPhone() bool { return id.Phone != "" }

// HashPhone computes the MD5 hash of a normalized phone number. Phone
// numbers are stripped of spaces and dashes and lowercased before hashing so
// the same user always maps to the same hash.
func HashPhone(phone string) string {
	sum := md5.Sum([]byte(normalize(phone)))
	return hex.EncodeToString(sum[:])
}

func normalize(phone string) string {
	phone = strings.ToLower(strings.TrimSpace(phone))
	phone = strings.ReplaceAll(phone, " ", "")
	phone = strings.ReplaceAll(phone, "-", "")
	return phone
}
