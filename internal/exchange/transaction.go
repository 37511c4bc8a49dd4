// Package exchange implements the swap state machine (Transaction) and
// the global order matcher (Exchange).
package exchange

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/atcsecure/xhub/internal/wireproto"
)

// State is a point in the swap lifecycle.
type State int

const (
	StateInvalid State = iota
	StateNew
	StateJoined
	StateHold
	StatePaid
	StateFinished
	StateDropped
)

func (s State) String() string {
	switch s {
	case StateInvalid:
		return "Invalid"
	case StateNew:
		return "New"
	case StateJoined:
		return "Joined"
	case StateHold:
		return "Hold"
	case StatePaid:
		return "Paid"
	case StateFinished:
		return "Finished"
	case StateDropped:
		return "Dropped"
	default:
		return "Unknown"
	}
}

// pendingExpiry is the reference policy for a pending New transaction:
// 30 seconds from creation (spec §4.3, fixing the source's unimplemented
// is_expired()).
const pendingExpiry = 30 * time.Second

// OrderMember is one side of a pending or joined order.
type OrderMember struct {
	Id     wireproto.TxId
	Source wireproto.NetworkId
	Dest   wireproto.NetworkId
}

// IsComplete reports whether both source and dest are set.
func (m OrderMember) IsComplete() bool {
	return !m.Source.IsZero() && !m.Dest.IsZero()
}

// Transaction is a matched or pending swap. Its id, state, and
// state_counter mutate under its own mutex; everything else is set once
// at construction (New) or once at join (Joined) and read thereafter.
type Transaction struct {
	mu sync.Mutex

	id           wireproto.TxId
	state        State
	stateCounter int

	srcCurrency string
	dstCurrency string
	srcAmount   uint64
	dstAmount   uint64

	first  OrderMember
	second OrderMember

	createdAt time.Time
}

// NewTransaction constructs a pending order from an inbound Transaction
// packet. If the order is structurally invalid (empty currency, zero
// amount, or an unset address), the returned Transaction has
// state == StateInvalid and must not be filed.
func NewTransaction(orderId wireproto.TxId, srcAddr wireproto.NetworkId, srcCcy string, srcAmt uint64, dstAddr wireproto.NetworkId, dstCcy string, dstAmt uint64) *Transaction {
	t := &Transaction{
		id:          orderId,
		srcCurrency: srcCcy,
		dstCurrency: dstCcy,
		srcAmount:   srcAmt,
		dstAmount:   dstAmt,
		first: OrderMember{
			Id:     orderId,
			Source: srcAddr,
			Dest:   dstAddr,
		},
		createdAt: time.Now(),
	}

	if !isValidOrder(srcAddr, srcCcy, srcAmt, dstAddr, dstCcy, dstAmt) {
		t.state = StateInvalid
		return t
	}
	t.state = StateNew
	return t
}

func isValidOrder(srcAddr wireproto.NetworkId, srcCcy string, srcAmt uint64, dstAddr wireproto.NetworkId, dstCcy string, dstAmt uint64) bool {
	if srcAddr.IsZero() || dstAddr.IsZero() {
		return false
	}
	if srcCcy == "" || dstCcy == "" {
		return false
	}
	if srcAmt == 0 || dstAmt == 0 {
		return false
	}
	return true
}

// ID returns the transaction's current id: the first member's order id
// until a join, then the joined id thereafter.
func (t *Transaction) ID() wireproto.TxId {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.id
}

// State returns the current state.
func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// StateCounter returns the current per-state acknowledgement counter.
func (t *Transaction) StateCounter() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateCounter
}

// SourceCurrency, DestCurrency, SourceAmount, DestAmount are immutable
// after construction and need no locking.
func (t *Transaction) SourceCurrency() string { return t.srcCurrency }
func (t *Transaction) DestCurrency() string   { return t.dstCurrency }
func (t *Transaction) SourceAmount() uint64   { return t.srcAmount }
func (t *Transaction) DestAmount() uint64     { return t.dstAmount }

// First and Second return snapshots of the two order members.
func (t *Transaction) First() OrderMember {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.first
}

func (t *Transaction) Second() OrderMember {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.second
}

// fingerprintBytes builds the deterministic byte sequence hashed for a
// price fingerprint: ccy1(8) ∥ amt1:u64 ∥ ccy2(8) ∥ amt2:u64.
func fingerprintBytes(ccy1 string, amt1 uint64, ccy2 string, amt2 uint64) []byte {
	buf := make([]byte, 8+8+8+8)
	copy(buf[0:8], []byte(ccy1))
	binary.LittleEndian.PutUint64(buf[8:16], amt1)
	copy(buf[16:24], []byte(ccy2))
	binary.LittleEndian.PutUint64(buf[24:32], amt2)
	return buf
}

// Hash1 is the price fingerprint under which this order files itself.
func (t *Transaction) Hash1() wireproto.TxId {
	return wireproto.Hash256(fingerprintBytes(t.srcCurrency, t.srcAmount, t.dstCurrency, t.dstAmount))
}

// Hash2 is the reverse fingerprint: the probe key for a joinable
// counter-order.
func (t *Transaction) Hash2() wireproto.TxId {
	return wireproto.Hash256(fingerprintBytes(t.dstCurrency, t.dstAmount, t.srcCurrency, t.srcAmount))
}

// mirrors reports whether other is the exact currency/amount mirror of t:
// t's source matches other's dest and vice versa.
func (t *Transaction) mirrors(other *Transaction) bool {
	return t.srcCurrency == other.dstCurrency &&
		t.srcAmount == other.dstAmount &&
		t.dstCurrency == other.srcCurrency &&
		t.dstAmount == other.srcAmount
}

// promotionTarget returns the state that expected promotes to on a
// second acknowledgement, and whether expected is a valid promotion
// source at all. Any expected outside {Joined, Hold, Paid} is rejected.
func promotionTarget(expected State) (State, bool) {
	switch expected {
	case StateJoined:
		return StateHold, true
	case StateHold:
		return StatePaid, true
	case StatePaid:
		return StateFinished, true
	}
	return StateInvalid, false
}

// IncreaseStateCounter atomically bumps the per-state acknowledgement
// counter and promotes state once two acknowledgements have arrived.
// Returns StateInvalid (no mutation) if expected isn't a valid promotion
// source or doesn't match the current state.
func (t *Transaction) IncreaseStateCounter(expected State) State {
	target, known := promotionTarget(expected)
	if !known {
		return StateInvalid
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != expected {
		return StateInvalid
	}

	t.stateCounter++
	if t.stateCounter >= 2 {
		t.state = target
		t.stateCounter = 0
	}
	return t.state
}

// TryJoin attempts to pair t (the earlier-filed order, "first") with
// other (the incoming order, "other"). On success t becomes the joined
// transaction in place: its id becomes hash(t.id ∥ other.id), its second
// member is set from other's first, and its state becomes Joined.
func (t *Transaction) TryJoin(other *Transaction) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateNew || other.State() != StateNew {
		return false
	}
	if !t.mirrors(other) {
		return false
	}

	otherFirst := other.First()
	joinedID := wireproto.Hash256(t.id[:], otherFirst.Id[:])

	t.second = otherFirst
	t.id = joinedID
	t.state = StateJoined
	t.stateCounter = 0
	return true
}

// IsExpired reports whether a pending New transaction has outlived the
// 30-second window. Post-join phases never expire in the core; an
// external reaper may call Drop directly.
func (t *Transaction) IsExpired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == StateNew && time.Since(t.createdAt) > pendingExpiry
}

// Drop moves the transaction to the terminal Dropped state.
func (t *Transaction) Drop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateDropped
}
