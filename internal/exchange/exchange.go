package exchange

import (
	"sync"
	"time"

	"github.com/atcsecure/xhub/internal/walletregistry"
	"github.com/atcsecure/xhub/internal/wireproto"
	"github.com/atcsecure/xhub/pkg/logging"
)

// Exchange is the process-wide matcher: pending orders keyed by price
// fingerprint, active (joined) transactions keyed by joined id, and a set
// of third-party wallet confirmations. pendingLock and activeLock are
// independent; a join-then-publish operation releases pendingLock before
// acquiring activeLock, then reacquires pendingLock only to remove the
// original filing key.
type Exchange struct {
	registry *walletregistry.Registry
	log      *logging.Logger

	pendingLock sync.Mutex
	pending     map[wireproto.TxId]*Transaction

	activeLock sync.Mutex
	active     map[wireproto.TxId]*Transaction

	seenLock sync.Mutex
	seen     map[wireproto.TxId]struct{}
}

// New constructs an Exchange bound to the given wallet registry.
func New(registry *walletregistry.Registry, log *logging.Logger) *Exchange {
	if log == nil {
		log = logging.GetDefault()
	}
	return &Exchange{
		registry: registry,
		log:      log,
		pending:  make(map[wireproto.TxId]*Transaction),
		active:   make(map[wireproto.TxId]*Transaction),
		seen:     make(map[wireproto.TxId]struct{}),
	}
}

// IsEnabled reports whether this node is an active matcher, i.e. has at
// least one registered exchange wallet.
func (e *Exchange) IsEnabled() bool {
	return e.registry != nil && e.registry.IsEnabled()
}

// CreateTransaction files an inbound order, joining it with a pending
// counter-order if one is found under the reverse fingerprint. ok is
// false only if the order itself is structurally invalid; a non-joining
// file is still ok with outId equal to the order's own id.
func (e *Exchange) CreateTransaction(orderId wireproto.TxId, srcAddr wireproto.NetworkId, srcCcy string, srcAmt uint64, dstAddr wireproto.NetworkId, dstCcy string, dstAmt uint64) (ok bool, outId wireproto.TxId) {
	t := NewTransaction(orderId, srcAddr, srcCcy, srcAmt, dstAddr, dstCcy, dstAmt)
	if t.State() == StateInvalid {
		return false, wireproto.TxId{}
	}

	probeKey := t.Hash2()

	e.pendingLock.Lock()
	existing, found := e.pending[probeKey]
	if !found {
		e.pending[t.Hash1()] = t
		e.pendingLock.Unlock()
		return true, t.ID()
	}
	if existing.IsExpired() {
		delete(e.pending, probeKey)
		e.pending[t.Hash1()] = t
		e.pendingLock.Unlock()
		return true, t.ID()
	}
	if !existing.TryJoin(t) {
		e.pending[t.Hash1()] = t
		e.pendingLock.Unlock()
		return true, t.ID()
	}
	// existing is now Joined under its new (joined) id; probeKey is still
	// its original filing key (existing.hash1() before the join), which
	// is how it was found under probeKey == t.hash2().
	e.pendingLock.Unlock()

	joinedID := existing.ID()
	e.activeLock.Lock()
	e.active[joinedID] = existing
	e.activeLock.Unlock()

	e.pendingLock.Lock()
	delete(e.pending, probeKey)
	e.pendingLock.Unlock()

	return true, joinedID
}

func (e *Exchange) updateWhenApplyReceived(id wireproto.TxId, expected State) bool {
	e.activeLock.Lock()
	tx, ok := e.active[id]
	e.activeLock.Unlock()
	if !ok {
		e.log.Warn("update on unknown transaction id", "id", id, "expected", expected)
		return false
	}

	target, _ := promotionTarget(expected)
	newState := tx.IncreaseStateCounter(expected)
	return newState == target
}

// UpdateTransactionWhenHoldApplyReceived records a HoldApply acknowledgement.
// Returns true iff it promoted the transaction to Hold.
func (e *Exchange) UpdateTransactionWhenHoldApplyReceived(id wireproto.TxId) bool {
	return e.updateWhenApplyReceived(id, StateJoined)
}

// UpdateTransactionWhenPayApplyReceived records a PayApply acknowledgement.
// Returns true iff it promoted the transaction to Paid.
func (e *Exchange) UpdateTransactionWhenPayApplyReceived(id wireproto.TxId) bool {
	return e.updateWhenApplyReceived(id, StateHold)
}

// UpdateTransactionWhenCommitApplyReceived records a CommitApply
// acknowledgement. Returns true iff it promoted the transaction to Finished.
func (e *Exchange) UpdateTransactionWhenCommitApplyReceived(id wireproto.TxId) bool {
	return e.updateWhenApplyReceived(id, StatePaid)
}

// CancelTransaction moves an active transaction to Dropped. A missing id
// is logged and ignored.
func (e *Exchange) CancelTransaction(id wireproto.TxId) {
	e.activeLock.Lock()
	tx, ok := e.active[id]
	e.activeLock.Unlock()
	if !ok {
		e.log.Warn("cancel of unknown transaction id", "id", id)
		return
	}
	tx.Drop()
}

// UpdateTransaction records a third-party wallet confirmation hash. This
// is advisory only; it does not drive the state machine.
func (e *Exchange) UpdateTransaction(walletTxHash wireproto.TxId) {
	e.seenLock.Lock()
	defer e.seenLock.Unlock()
	e.seen[walletTxHash] = struct{}{}
}

// HasSeenWalletTx reports whether a given wallet confirmation hash has
// already been recorded.
func (e *Exchange) HasSeenWalletTx(hash wireproto.TxId) bool {
	e.seenLock.Lock()
	defer e.seenLock.Unlock()
	_, ok := e.seen[hash]
	return ok
}

// Transaction looks up an active (joined or further along) transaction by id.
func (e *Exchange) Transaction(id wireproto.TxId) (*Transaction, bool) {
	e.activeLock.Lock()
	defer e.activeLock.Unlock()
	tx, ok := e.active[id]
	return tx, ok
}

// ActiveTransactions returns a snapshot of every active transaction, for
// admin dump/search use.
func (e *Exchange) ActiveTransactions() []*Transaction {
	e.activeLock.Lock()
	defer e.activeLock.Unlock()
	out := make([]*Transaction, 0, len(e.active))
	for _, tx := range e.active {
		out = append(out, tx)
	}
	return out
}

// PendingTransactions returns a snapshot of every pending (unmatched)
// transaction, for admin dump/search use.
func (e *Exchange) PendingTransactions() []*Transaction {
	e.pendingLock.Lock()
	defer e.pendingLock.Unlock()
	out := make([]*Transaction, 0, len(e.pending))
	for _, tx := range e.pending {
		out = append(out, tx)
	}
	return out
}

// reapExpiredPending evicts pending orders whose 30-second window has
// elapsed.
func (e *Exchange) reapExpiredPending() {
	e.pendingLock.Lock()
	defer e.pendingLock.Unlock()
	for key, tx := range e.pending {
		if tx.IsExpired() {
			delete(e.pending, key)
			e.log.Debug("expired pending transaction reaped", "id", tx.ID())
		}
	}
}

// StartReaper launches a background goroutine that periodically evicts
// expired pending transactions. The returned func stops it.
func (e *Exchange) StartReaper(interval time.Duration) (stop func()) {
	stopCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.reapExpiredPending()
			case <-stopCh:
				return
			}
		}
	}()
	return func() { close(stopCh) }
}
