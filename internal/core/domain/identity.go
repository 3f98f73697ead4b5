package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// IdentityAttributes holds the raw identity of a patient as supplied by
// hospital-side intake. These values must never cross into the processing
// domain; only the derived key hash and the opaque token do.
type IdentityAttributes map[string]string

// IdentityMapping links a derived key hash to an opaque token. It lives
// only in the identity-bearing store. Mappings are append-only: they are
// deactivated on discharge or retention expiry, never deleted.
type IdentityMapping struct {
	// KeyHash is the deterministic hash of the stable identity attributes.
	// The raw attributes themselves are never stored in this field.
	KeyHash string

	// Token is the opaque identifier issued for this identity.
	Token Token

	// IdentityBlob is the encrypted identity payload.
	IdentityBlob []byte

	// CreatedAt is when the mapping was first issued.
	CreatedAt time.Time

	// Active is false once the mapping has been deactivated.
	Active bool
}

// DeriveKeyHash computes the deterministic patient key hash over the
// configured key attributes. Identical attributes always produce the same
// hash, which is what makes Tokenize idempotent.
//
// Canonical form: for each key attribute in sorted order, a line
// "name=value" with the value lowercased and whitespace-trimmed, joined
// with newlines and SHA-256 hashed.
func DeriveKeyHash(attrs IdentityAttributes, keyAttrs []string) (string, error) {
	if len(keyAttrs) == 0 {
		return "", fmt.Errorf("%w: no key attributes configured", ErrInvalidInput)
	}

	names := make([]string, len(keyAttrs))
	copy(names, keyAttrs)
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		value, ok := attrs[name]
		if !ok || strings.TrimSpace(value) == "" {
			return "", fmt.Errorf("%w: missing key attribute %q", ErrInvalidInput, name)
		}
		canonical := strings.ToLower(strings.TrimSpace(value))
		lines = append(lines, name+"="+canonical)
	}

	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:]), nil
}
