package wireproto

import "testing"

func mkNetworkId(b byte) NetworkId {
	var n NetworkId
	for i := range n {
		n[i] = b
	}
	return n
}

func mkTxId(b byte) TxId {
	var t TxId
	for i := range t {
		t[i] = b
	}
	return t
}

func TestTransactionPayloadRoundTrip(t *testing.T) {
	want := TransactionPayload{
		Id:        mkTxId(0xAA),
		SrcAddr:   mkNetworkId(0x01),
		SrcCcy:    NewCurrencyCode("BTC"),
		SrcAmount: 100,
		DstAddr:   mkNetworkId(0x02),
		DstCcy:    NewCurrencyCode("LTC"),
		DstAmount: 500,
	}

	body := EncodeTransaction(want)
	if len(body) != TransactionPayloadSize {
		t.Fatalf("encoded length = %d, want %d", len(body), TransactionPayloadSize)
	}

	got, err := DecodeTransaction(body)
	if err != nil {
		t.Fatalf("DecodeTransaction: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", got, want)
	}
}

func TestTransactionPayloadRejectsWrongSize(t *testing.T) {
	if _, err := DecodeTransaction(make([]byte, TransactionPayloadSize-1)); err == nil {
		t.Fatal("expected error for short body")
	}
	if _, err := DecodeTransaction(make([]byte, TransactionPayloadSize+1)); err == nil {
		t.Fatal("expected error for long body")
	}
}

func TestCurrencyCodePadsAndTrims(t *testing.T) {
	c := NewCurrencyCode("BTC")
	if c.String() != "BTC" {
		t.Fatalf("String() = %q, want %q", c.String(), "BTC")
	}
	for i := 3; i < 8; i++ {
		if c[i] != 0 {
			t.Fatalf("byte %d not NUL-padded: %x", i, c[i])
		}
	}
}

func TestCurrencyCodeTruncatesOverlong(t *testing.T) {
	c := NewCurrencyCode("ABCDEFGHIJ")
	if len(c.String()) != 8 {
		t.Fatalf("String() length = %d, want 8", len(c.String()))
	}
}

func TestHoldApplyPayloadRoundTrip(t *testing.T) {
	want := TransactionHoldApplyPayload{DstId: mkNetworkId(0x09), TxId: mkTxId(0x10)}
	body := EncodeTransactionHoldApply(want)
	if len(body) != TransactionHoldApplyPayloadSize {
		t.Fatalf("size = %d, want %d", len(body), TransactionHoldApplyPayloadSize)
	}
	got, err := DecodeTransactionHoldApply(body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != want {
		t.Fatalf("mismatch: got %+v want %+v", got, want)
	}
}

func TestPayApplyPayloadRoundTrip(t *testing.T) {
	want := TransactionPayApplyPayload{
		DstId:     mkNetworkId(0x03),
		TxId:      mkTxId(0x04),
		PaymentId: mkTxId(0x05),
	}
	body := EncodeTransactionPayApply(want)
	if len(body) != TransactionPayApplyPayloadSize {
		t.Fatalf("size = %d, want %d", len(body), TransactionPayApplyPayloadSize)
	}
	got, err := DecodeTransactionPayApply(body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != want {
		t.Fatalf("mismatch: got %+v want %+v", got, want)
	}
}

func TestCommitPayloadRoundTrip(t *testing.T) {
	want := TransactionCommitPayload{
		WalletId:  mkNetworkId(0x06),
		MatcherId: mkNetworkId(0x07),
		TxId:      mkTxId(0x08),
		DestAddr:  mkNetworkId(0x09),
		Amount:    123456789,
	}
	body := EncodeTransactionCommit(want)
	got, err := DecodeTransactionCommit(body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != want {
		t.Fatalf("mismatch: got %+v want %+v", got, want)
	}
}

func TestCancelPayloadIgnoresPadding(t *testing.T) {
	want := TransactionCancelPayload{TxId: mkTxId(0x0A)}
	body := EncodeTransactionCancel(want)
	if len(body) != TransactionCancelPayloadSize {
		t.Fatalf("size = %d, want %d", len(body), TransactionCancelPayloadSize)
	}
	// padding bytes carry garbage in the wild; decode must ignore them.
	body[0] = 0xFF
	body[5] = 0xEE
	got, err := DecodeTransactionCancel(body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.TxId != want.TxId {
		t.Fatalf("TxId mismatch: got %x want %x", got.TxId, want.TxId)
	}
}

func TestWalletListRoundTrip(t *testing.T) {
	entries := []WalletListEntry{
		{Name: NewCurrencyCode("BTC"), Title: WalletTitle("Bitcoin")},
		{Name: NewCurrencyCode("LTC"), Title: WalletTitle("Litecoin")},
	}
	body := EncodeWalletList(entries)

	got, err := DecodeWalletList(body)
	if err != nil {
		t.Fatalf("DecodeWalletList: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("count = %d, want %d", len(got), len(entries))
	}
	for i := range entries {
		if got[i].Name != entries[i].Name {
			t.Errorf("entry %d name = %q, want %q", i, got[i].Name.String(), entries[i].Name.String())
		}
		if TitleString(got[i].Title) != TitleString(entries[i].Title) {
			t.Errorf("entry %d title = %q, want %q", i, TitleString(got[i].Title), TitleString(entries[i].Title))
		}
	}
}

func TestWalletListEmpty(t *testing.T) {
	got, err := DecodeWalletList(nil)
	if err != nil {
		t.Fatalf("DecodeWalletList(nil): %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected 0 entries, got %d", len(got))
	}
}

func TestWalletListRejectsMisalignedBody(t *testing.T) {
	if _, err := DecodeWalletList(make([]byte, walletListEntrySize+1)); err == nil {
		t.Fatal("expected error for misaligned WalletList body")
	}
}
