// Package wireproto implements the xhub wire protocol: the length-prefixed
// packet framing and the fixed-layout payloads carried inside it.
package wireproto

import (
	"encoding/hex"

	"github.com/atcsecure/xhub/pkg/helpers"
	"golang.org/x/crypto/blake2b"
)

// NetworkIdSize is the length in bytes of a peer's overlay identity/address.
const NetworkIdSize = 20

// TxIdSize is the length in bytes of a transaction or order id.
const TxIdSize = 32

// NetworkId is a 20-byte opaque overlay identifier, used both as peer
// identity and as packet destination address.
type NetworkId [NetworkIdSize]byte

// IsZero reports whether the id is all-zero, i.e. unset.
func (n NetworkId) IsZero() bool {
	return helpers.IsZeroBytes(n[:])
}

// Equal reports whether two ids are byte-identical.
func (n NetworkId) Equal(other NetworkId) bool {
	return helpers.BytesEqual(n[:], other[:])
}

// String renders the id as hex for logging.
func (n NetworkId) String() string {
	return hex.EncodeToString(n[:])
}

// NetworkIdFromBytes copies exactly NetworkIdSize bytes from b into a NetworkId.
func NetworkIdFromBytes(b []byte) (NetworkId, bool) {
	var n NetworkId
	if len(b) != NetworkIdSize {
		return n, false
	}
	copy(n[:], b)
	return n, true
}

// TxId is a 32-byte identifier for transactions and orders.
type TxId [TxIdSize]byte

// Equal reports whether two ids are byte-identical.
func (t TxId) Equal(other TxId) bool {
	return helpers.BytesEqual(t[:], other[:])
}

// String renders the id as hex for logging.
func (t TxId) String() string {
	return hex.EncodeToString(t[:])
}

// TxIdFromBytes copies exactly TxIdSize bytes from b into a TxId.
func TxIdFromBytes(b []byte) (TxId, bool) {
	var t TxId
	if len(b) != TxIdSize {
		return t, false
	}
	copy(t[:], b)
	return t, true
}

// Hash256 computes the 256-bit hash used throughout the protocol: price
// fingerprints (hash1/hash2), joined transaction ids, and the overlay
// dedup cache key. Concatenate the fields to hash and pass the result here.
func Hash256(parts ...[]byte) TxId {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		h.Write(p)
	}
	var out TxId
	copy(out[:], h.Sum(nil))
	return out
}
