package object

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// HashObject computes the SHA-256 of the envelope "type len\0content",
// mirroring Git's object hashing but with SHA-256.
func HashObject(objType ObjectType, data []byte) Hash {
	header := fmt.Sprintf("%s %d\x00", objType, len(data))
	h := sha256.New()
	h.Write([]byte(header))
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// EmptyTreeHash is the hash of the tree with no entries.
func EmptyTreeHash() Hash {
	return HashObject(TypeTree, nil)
}

// ValidateHash checks that h is a 64-character lowercase hex string.
func ValidateHash(h Hash) error {
	s := string(h)
	if len(s) != 64 {
		return fmt.Errorf("hash length %d, expected 64", len(s))
	}
	if strings.ToLower(s) != s {
		return fmt.Errorf("hash %q is not lowercase", s)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return fmt.Errorf("hash contains non-hex characters: %w", err)
	}
	return nil
}

// NewChangeID returns a fresh random change id.
func NewChangeID() (ChangeID, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate change id: %w", err)
	}
	return ChangeID(hex.EncodeToString(buf[:])), nil
}

// Short returns the first n characters of h, or all of it when shorter.
func (h Hash) Short(n int) string {
	if len(h) <= n {
		return string(h)
	}
	return string(h[:n])
}

// Short returns the first n characters of id, or all of it when shorter.
func (id ChangeID) Short(n int) string {
	if len(id) <= n {
		return string(id)
	}
	return string(id[:n])
}
