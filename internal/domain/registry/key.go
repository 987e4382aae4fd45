package registry

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Key identifies a device record. It is the 0x-prefixed hex Keccak-256
// digest of "{lowercase did}/{context}", so the store never sees the
// plaintext DID and every key has the same length. The same digest names
// the context keys in Verida DID documents.
type Key string

// KeyLength is the length of every derived key in characters.
const KeyLength = 66

// DeriveKey derives the storage key for a (did, context) pair. The DID is
// lowercased first; the context is used verbatim.
func DeriveKey(did, context string) Key {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(strings.ToLower(did) + "/" + context))
	return Key("0x" + hex.EncodeToString(h.Sum(nil)))
}

// String returns the key as stored.
func (k Key) String() string {
	return string(k)
}
