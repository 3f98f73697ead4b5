package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
)

// Token is the opaque identifier standing in for a real patient identity
// throughout the processing domain. It is never reversible outside the
// tokenization service.
//
// Format: a lowercase codename, an underscore, and eight hex characters,
// e.g. "batman_ab12cd34". The codename carries no relation to the identity;
// it exists so tokens are easy to read aloud during audits.
type Token string

// tokenPattern is the fixed opaque token format. Anything outside it
// (spaces, uppercase, digits-only strings that could be a national ID)
// is rejected at every write boundary.
var tokenPattern = regexp.MustCompile(`^[a-z][a-z0-9]{2,31}_[0-9a-f]{8}$`)

// codenames is the pool of neutral aliases used for token generation.
// The alias is decorative; unguessability comes from the random suffix
// and from the pool assignment itself being random.
var codenames = []string{
	"falcon", "harbor", "juniper", "cobalt", "meridian", "quartz",
	"lantern", "drift", "summit", "willow", "ember", "atlas",
	"batman", "orchid", "vector", "granite", "sparrow", "tundra",
	"cedar", "onyx", "prairie", "beacon", "marlin", "aspen",
}

// NewToken generates a fresh opaque token using crypto/rand for both the
// codename choice and the hex suffix.
func NewToken() (Token, error) {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	name := codenames[int(buf[0])%len(codenames)]
	return Token(name + "_" + hex.EncodeToString(buf[1:])), nil
}

// Valid reports whether the token matches the opaque token format.
func (t Token) Valid() bool {
	return tokenPattern.MatchString(string(t))
}

// ParseToken validates a raw string as an opaque token.
func ParseToken(s string) (Token, error) {
	t := Token(s)
	if !t.Valid() {
		return "", ErrInvalidToken
	}
	return t, nil
}

func (t Token) String() string {
	return string(t)
}
