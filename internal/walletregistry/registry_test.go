package walletregistry

import (
	"encoding/base64"
	"testing"

	"github.com/atcsecure/xhub/internal/hubconfig"
)

func b64of20(fill byte) string {
	b := make([]byte, 20)
	for i := range b {
		b[i] = fill
	}
	return base64.StdEncoding.EncodeToString(b)
}

func TestLoadAcceptsValidAddress(t *testing.T) {
	raw := []hubconfig.RawWalletConfig{
		{Name: "BTC", Title: "Bitcoin", Address: b64of20(0x01)},
	}
	reg := Load(raw, nil)

	if !reg.IsEnabled() {
		t.Fatal("expected registry to be enabled")
	}
	if !reg.HasWallet("BTC") {
		t.Fatal("expected BTC to be registered")
	}
	addr, ok := reg.Address("BTC")
	if !ok {
		t.Fatal("expected address for BTC")
	}
	if addr.IsZero() {
		t.Fatal("expected non-zero address")
	}
}

func TestLoadRejectsWrongLengthAddress(t *testing.T) {
	raw := []hubconfig.RawWalletConfig{
		{Name: "BTC", Title: "Bitcoin", Address: base64.StdEncoding.EncodeToString([]byte("too-short"))},
	}
	reg := Load(raw, nil)

	if reg.HasWallet("BTC") {
		t.Fatal("expected BTC to be rejected for wrong address length")
	}
	if reg.IsEnabled() {
		t.Fatal("expected registry to be disabled with no valid wallets")
	}
}

func TestLoadRejectsInvalidBase64(t *testing.T) {
	raw := []hubconfig.RawWalletConfig{
		{Name: "BTC", Title: "Bitcoin", Address: "not-valid-base64!!"},
	}
	reg := Load(raw, nil)
	if reg.HasWallet("BTC") {
		t.Fatal("expected BTC to be rejected for invalid base64")
	}
}

func TestLoadRejectsEmptyConfig(t *testing.T) {
	raw := []hubconfig.RawWalletConfig{
		{Name: "BTC", Title: "Bitcoin"},
	}
	reg := Load(raw, nil)
	if reg.HasWallet("BTC") {
		t.Fatal("expected BTC with no address or pubkey to be rejected")
	}
}

func TestListPreservesOrderAndSkipsRejected(t *testing.T) {
	raw := []hubconfig.RawWalletConfig{
		{Name: "BTC", Title: "Bitcoin", Address: b64of20(0x01)},
		{Name: "BAD", Title: "Bad"},
		{Name: "LTC", Title: "Litecoin", Address: b64of20(0x02)},
	}
	reg := Load(raw, nil)

	list := reg.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(list), list)
	}
	if list[0].Name != "BTC" || list[1].Name != "LTC" {
		t.Fatalf("unexpected order: %+v", list)
	}
}

func TestAddressMissingWallet(t *testing.T) {
	reg := Load(nil, nil)
	if _, ok := reg.Address("XYZ"); ok {
		t.Fatal("expected ok=false for unregistered wallet")
	}
}
