package types

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// IDLength is the width of every identifier on the ring, in hex characters.
// Lexicographic order only matches ring order when all ids share this width.
const IDLength = 64

// ValidID tells whether id is a lowercase hex identifier of the ring width.
func ValidID(id string) bool {
	if len(id) != IDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// HashID places the concatenation of parts on the ring.
func HashID(parts ...string) string {
	return hex.EncodeToString(crypto.Keccak256([]byte(strings.Join(parts, ""))))
}

// Between tells whether b is met when walking clockwise from a to c.
//
// a is excluded unless a == c, in which case the whole ring but a matches.
func Between(a, b, c string) bool {
	if a < c {
		return a < b && b < c
	}
	return a < b || b < c
}

// BetweenRightInclusive is Between with c itself accepted.
func BetweenRightInclusive(a, b, c string) bool {
	return Between(a, b, c) || b == c
}
