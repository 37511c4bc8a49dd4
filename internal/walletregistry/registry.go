// Package walletregistry maps enabled wallet names to their title and
// 20-byte exchange-controlled address, loaded once from configuration.
package walletregistry

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/atcsecure/xhub/internal/hubconfig"
	"github.com/atcsecure/xhub/internal/wireproto"
	"github.com/atcsecure/xhub/pkg/logging"
	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/ripemd160" //lint:ignore SA1019 retained for address derivation compatibility
)

// Entry is one enabled wallet: its display title and the 20-byte address
// under the exchange's control for that currency.
type Entry struct {
	Name    string
	Title   string
	Address wireproto.NetworkId
}

// Registry is the immutable, load-once mapping from wallet name to Entry.
// Safe for lock-free concurrent reads once Load returns.
type Registry struct {
	byName map[string]Entry
	order  []string
}

// Load validates each raw wallet config and builds a Registry. An entry is
// rejected (logged and omitted) if, after resolving Address/PubKey, the
// resulting address is not exactly 20 bytes.
func Load(raw []hubconfig.RawWalletConfig, log *logging.Logger) *Registry {
	if log == nil {
		log = logging.GetDefault()
	}

	r := &Registry{byName: make(map[string]Entry, len(raw))}
	for _, w := range raw {
		addr, err := resolveAddress(w)
		if err != nil {
			log.Warn("rejecting wallet entry", "name", w.Name, "reason", err)
			continue
		}
		r.byName[w.Name] = Entry{Name: w.Name, Title: w.Title, Address: addr}
		r.order = append(r.order, w.Name)
	}
	return r
}

// resolveAddress prefers an explicit base64 Address; if absent, it derives
// one from a configured secp256k1 PubKey as RIPEMD160(SHA256(pubkey)),
// the teacher's P2PKH-style address derivation applied to exchange
// wallets. A wallet configured with neither, or whose resolved address is
// not exactly 20 bytes, is rejected.
func resolveAddress(w hubconfig.RawWalletConfig) (wireproto.NetworkId, error) {
	if w.Address != "" {
		decoded, err := base64.StdEncoding.DecodeString(w.Address)
		if err != nil {
			return wireproto.NetworkId{}, fmt.Errorf("invalid base64 address: %w", err)
		}
		id, ok := wireproto.NetworkIdFromBytes(decoded)
		if !ok {
			return wireproto.NetworkId{}, fmt.Errorf("address length %d, want %d", len(decoded), wireproto.NetworkIdSize)
		}
		return id, nil
	}

	if w.PubKey != "" {
		return deriveAddressFromPubKey(w.PubKey)
	}

	return wireproto.NetworkId{}, fmt.Errorf("no Address or PubKey configured")
}

// deriveAddressFromPubKey decodes a hex-encoded compressed secp256k1
// public key and derives a 20-byte address as RIPEMD160(SHA256(pubkey)).
func deriveAddressFromPubKey(hexPubKey string) (wireproto.NetworkId, error) {
	raw, err := hex.DecodeString(hexPubKey)
	if err != nil {
		return wireproto.NetworkId{}, fmt.Errorf("invalid hex pubkey: %w", err)
	}
	pub, err := btcec.ParsePubKey(raw)
	if err != nil {
		return wireproto.NetworkId{}, fmt.Errorf("invalid secp256k1 pubkey: %w", err)
	}

	shaSum := sha256.Sum256(pub.SerializeCompressed())
	ripe := ripemd160.New()
	ripe.Write(shaSum[:])
	digest := ripe.Sum(nil)

	id, ok := wireproto.NetworkIdFromBytes(digest)
	if !ok {
		return wireproto.NetworkId{}, fmt.Errorf("derived address length %d, want %d", len(digest), wireproto.NetworkIdSize)
	}
	return id, nil
}

// IsEnabled reports whether this node has at least one registered wallet,
// i.e. whether it acts as a matcher.
func (r *Registry) IsEnabled() bool {
	return len(r.byName) > 0
}

// HasWallet reports whether name is a registered wallet.
func (r *Registry) HasWallet(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Address returns the exchange address for name. ok is false if name is
// not registered.
func (r *Registry) Address(name string) (wireproto.NetworkId, bool) {
	e, ok := r.byName[name]
	return e.Address, ok
}

// List returns every registered (name, title) pair in load order.
func (r *Registry) List() []Entry {
	out := make([]Entry, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}
