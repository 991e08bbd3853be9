package cosmopolite

import (
	"encoding/json"

	"golang.org/x/crypto/blake2b"
)

// Subject identifies a named channel with optional read/write ACL strings.
// Identity is structural: two Subjects naming the same (name,
// readable_only_by, writeable_only_by) tuple are the same subscription as
// far as the server is concerned.
type Subject struct {
	Name            string `json:"name"`
	ReadableOnlyBy  string `json:"readable_only_by,omitempty"`
	WriteableOnlyBy string `json:"writeable_only_by,omitempty"`
}

// Equal reports whether s and other name the same subject.
func (s Subject) Equal(other Subject) bool {
	return s.Name == other.Name &&
		s.ReadableOnlyBy == other.ReadableOnlyBy &&
		s.WriteableOnlyBy == other.WriteableOnlyBy
}

// key returns a content hash of s suitable for use as a registry map key.
// Subject's JSON field order is fixed by struct declaration order, so
// json.Marshal is already a canonical encoding; BLAKE2b-256 over it turns
// registry lookups into O(1) map operations instead of the O(n) linear
// structural-equality scan spec.md describes. Callers still run Equal on a
// hash hit before trusting it, so a hash collision can never silently
// merge two distinct subjects.
func (s Subject) key() string {
	data, _ := json.Marshal(s) // Subject always marshals; no user-controlled error path.
	sum := blake2b.Sum256(data)
	return string(sum[:])
}
