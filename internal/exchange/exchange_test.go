package exchange

import (
	"testing"

	"github.com/atcsecure/xhub/internal/wireproto"
)

func newExchange() *Exchange {
	return New(nil, nil)
}

// S1 — happy path swap: two mirrored orders join, then the four-phase
// handshake drives the transaction to Finished.
func TestHappyPathSwap(t *testing.T) {
	e := newExchange()

	okA, idA := e.CreateTransaction(txid(0xAA), addr(0x01), "BTC", 100, addr(0x11), "LTC", 500)
	if !okA {
		t.Fatal("order A rejected")
	}
	if idA != txid(0xAA) {
		t.Fatalf("unjoined id = %x, want order's own id", idA)
	}
	if len(e.PendingTransactions()) != 1 {
		t.Fatalf("expected 1 pending after order A")
	}

	okB, idB := e.CreateTransaction(txid(0xBB), addr(0x02), "LTC", 500, addr(0x22), "BTC", 100)
	if !okB {
		t.Fatal("order B rejected")
	}
	wantJoined := wireproto.Hash256(txid(0xAA)[:], txid(0xBB)[:])
	if idB != wantJoined {
		t.Fatalf("joined id = %x, want %x", idB, wantJoined)
	}
	if len(e.PendingTransactions()) != 0 {
		t.Fatalf("expected 0 pending after join, got %d", len(e.PendingTransactions()))
	}
	if len(e.ActiveTransactions()) != 1 {
		t.Fatalf("expected 1 active after join")
	}

	tx, ok := e.Transaction(wantJoined)
	if !ok {
		t.Fatal("joined transaction not found in active")
	}
	if tx.State() != StateJoined {
		t.Fatalf("state = %v, want Joined", tx.State())
	}

	if e.UpdateTransactionWhenHoldApplyReceived(wantJoined) {
		t.Fatal("expected first hold apply to not yet promote")
	}
	if tx.State() != StateJoined {
		t.Fatalf("state after 1 hold apply = %v, want still Joined", tx.State())
	}
	if !e.UpdateTransactionWhenHoldApplyReceived(wantJoined) {
		t.Fatal("expected second hold apply to promote to Hold")
	}
	if tx.State() != StateHold {
		t.Fatalf("state = %v, want Hold", tx.State())
	}

	e.UpdateTransactionWhenPayApplyReceived(wantJoined)
	if !e.UpdateTransactionWhenPayApplyReceived(wantJoined) {
		t.Fatal("expected second pay apply to promote to Paid")
	}
	if tx.State() != StatePaid {
		t.Fatalf("state = %v, want Paid", tx.State())
	}

	e.UpdateTransactionWhenCommitApplyReceived(wantJoined)
	if !e.UpdateTransactionWhenCommitApplyReceived(wantJoined) {
		t.Fatal("expected second commit apply to promote to Finished")
	}
	if tx.State() != StateFinished {
		t.Fatalf("state = %v, want Finished", tx.State())
	}
}

// S2 — mismatched amounts do not join.
func TestMismatchedAmountsDoNotJoin(t *testing.T) {
	e := newExchange()
	e.CreateTransaction(txid(0xAA), addr(0x01), "BTC", 100, addr(0x11), "LTC", 500)
	e.CreateTransaction(txid(0xBB), addr(0x02), "LTC", 500, addr(0x22), "BTC", 101)

	if len(e.PendingTransactions()) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(e.PendingTransactions()))
	}
	if len(e.ActiveTransactions()) != 0 {
		t.Fatalf("expected 0 active, got %d", len(e.ActiveTransactions()))
	}
}

// S3 — same-direction duplicates do not join.
func TestSameDirectionDuplicatesDoNotJoin(t *testing.T) {
	e := newExchange()
	e.CreateTransaction(txid(0xAA), addr(0x01), "BTC", 100, addr(0x11), "LTC", 500)
	e.CreateTransaction(txid(0xBB), addr(0x02), "BTC", 100, addr(0x22), "LTC", 500)

	if len(e.PendingTransactions()) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(e.PendingTransactions()))
	}
}

// S4 — re-entry of the same Apply after reaching Hold causes no further
// promotion and no regression.
func TestReentryOfApplyAfterHoldIsNoop(t *testing.T) {
	e := newExchange()
	e.CreateTransaction(txid(0xAA), addr(0x01), "BTC", 100, addr(0x11), "LTC", 500)
	_, joinedID := e.CreateTransaction(txid(0xBB), addr(0x02), "LTC", 500, addr(0x22), "BTC", 100)

	e.UpdateTransactionWhenHoldApplyReceived(joinedID)
	e.UpdateTransactionWhenHoldApplyReceived(joinedID) // -> Hold

	tx, _ := e.Transaction(joinedID)
	if tx.State() != StateHold {
		t.Fatalf("precondition failed: state = %v, want Hold", tx.State())
	}

	if e.UpdateTransactionWhenHoldApplyReceived(joinedID) {
		t.Fatal("re-entrant hold apply should not promote again")
	}
	if tx.State() != StateHold {
		t.Fatalf("state regressed or advanced unexpectedly: %v", tx.State())
	}
}

// S6 — cancel moves an active transaction to Dropped and further applies
// are no-ops against it.
func TestCancelTransaction(t *testing.T) {
	e := newExchange()
	e.CreateTransaction(txid(0xAA), addr(0x01), "BTC", 100, addr(0x11), "LTC", 500)
	_, joinedID := e.CreateTransaction(txid(0xBB), addr(0x02), "LTC", 500, addr(0x22), "BTC", 100)

	e.CancelTransaction(joinedID)

	tx, ok := e.Transaction(joinedID)
	if !ok {
		t.Fatal("expected dropped transaction to remain in active for lookup")
	}
	if tx.State() != StateDropped {
		t.Fatalf("state = %v, want Dropped", tx.State())
	}

	if e.UpdateTransactionWhenHoldApplyReceived(joinedID) {
		t.Fatal("apply against a dropped transaction must not promote")
	}
}

func TestCreateTransactionRejectsInvalidOrder(t *testing.T) {
	e := newExchange()
	var zero wireproto.NetworkId
	ok, _ := e.CreateTransaction(txid(0xAA), zero, "BTC", 100, addr(0x11), "LTC", 500)
	if ok {
		t.Fatal("expected invalid order to be rejected")
	}
}

func TestUpdateTransactionRecordsWalletConfirmation(t *testing.T) {
	e := newExchange()
	hash := txid(0x77)
	if e.HasSeenWalletTx(hash) {
		t.Fatal("should not have seen hash yet")
	}
	e.UpdateTransaction(hash)
	if !e.HasSeenWalletTx(hash) {
		t.Fatal("expected hash to be recorded")
	}
}

func TestIsEnabledReflectsRegistry(t *testing.T) {
	e := New(nil, nil)
	if e.IsEnabled() {
		t.Fatal("expected exchange with nil registry to be disabled")
	}
}
