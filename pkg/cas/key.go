package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Key identifies a blob or DAG node by the SHA-256 hash of its content.
//
// The wire format is "sha256:" followed by 64 lowercase hexadecimal
// characters. Keys are self-verifying: given the content, anyone can
// recompute the key and detect tampering or corruption. Identical content
// always produces the same key, which is what gives the store its
// deduplication and structural-sharing properties.
type Key string

// KeyPrefix is the algorithm prefix carried by every valid key.
const KeyPrefix = "sha256:"

// hexDigestLen is the length of a lowercase hex SHA-256 digest.
const hexDigestLen = 64

// ComputeKey returns the content-addressed key for the given bytes.
func ComputeKey(content []byte) Key {
	digest := sha256.Sum256(content)
	return Key(KeyPrefix + hex.EncodeToString(digest[:]))
}

// Valid reports whether the key is well-formed: the "sha256:" prefix
// followed by exactly 64 lowercase hex characters.
func (k Key) Valid() bool {
	s := string(k)
	if !strings.HasPrefix(s, KeyPrefix) {
		return false
	}
	digest := s[len(KeyPrefix):]
	if len(digest) != hexDigestLen {
		return false
	}
	for i := 0; i < len(digest); i++ {
		c := digest[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Digest returns the hex digest portion of the key (without the prefix).
// Returns an empty string for malformed keys.
func (k Key) Digest() string {
	if !k.Valid() {
		return ""
	}
	return string(k)[len(KeyPrefix):]
}

func (k Key) String() string {
	return string(k)
}

// VerifyKey checks that expected matches the key computed from content.
//
// A mismatch is reported as a *StoreError with ErrHashMismatch carrying
// both the expected and actual keys. This is a normal result, not a fault:
// callers such as a ticket-authenticated upload handler must relay the
// mismatch to the remote party without tearing down the request pipeline.
// A malformed expected key is reported as ErrInvalidArgument.
func VerifyKey(expected Key, content []byte) error {
	if !expected.Valid() {
		return &StoreError{
			Code:    ErrInvalidArgument,
			Message: "malformed content key",
			Key:     expected,
		}
	}

	actual := ComputeKey(content)
	if actual != expected {
		return &StoreError{
			Code:     ErrHashMismatch,
			Message:  "content hash does not match declared key",
			Key:      expected,
			Expected: expected,
			Actual:   actual,
		}
	}

	return nil
}
