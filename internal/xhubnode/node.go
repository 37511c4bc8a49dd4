// Package xhubnode implements the process-wide overlay node: address
// routing over attached sessions, broadcast dedup, the wallet-list
// heartbeat, and the thin admin/UI operations (generate id, dump state,
// search, send).
package xhubnode

import (
	"context"
	"sync"

	"github.com/atcsecure/xhub/internal/exchange"
	"github.com/atcsecure/xhub/internal/session"
	"github.com/atcsecure/xhub/internal/walletregistry"
	"github.com/atcsecure/xhub/internal/wireproto"
	"github.com/atcsecure/xhub/pkg/helpers"
	"github.com/atcsecure/xhub/pkg/logging"
)

// dedupCacheSize bounds the bounded-FIFO broadcast dedup cache (spec §4.6).
const dedupCacheSize = 65536

// EventSink receives admin/UI lifecycle events published by Notify. A Node
// has no sink by default; SetEventSink wires one in (internal/adminapi's
// EventHub, in practice) without this package importing adminapi.
type EventSink interface {
	Publish(eventType string, data map[string]any)
}

// Transport is the overlay send/receive seam (SPEC_FULL §5). In this
// implementation the overlay IS the set of attached TCP sessions, but the
// interface lets a real peer-discovery transport be substituted later
// without touching Node's routing or dedup logic.
type Transport interface {
	Send(dst wireproto.NetworkId, data []byte) error
	Broadcast(data []byte) error
}

// SessionTransport is the default Transport: strictly routes through
// Node's own table of attached sessions.
type SessionTransport struct {
	node *Node
}

func (t *SessionTransport) Send(dst wireproto.NetworkId, data []byte) error {
	t.node.sessionsLock.RLock()
	ref, ok := t.node.sessions[dst]
	t.node.sessionsLock.RUnlock()
	if !ok {
		t.node.log.Debug("no session for destination, dropping", "dst", dst)
		return nil
	}
	return ref.Send(data)
}

func (t *SessionTransport) Broadcast(data []byte) error {
	t.node.sessionsLock.RLock()
	refs := make([]session.SessionRef, 0, len(t.node.sessions))
	for _, ref := range t.node.sessions {
		refs = append(refs, ref)
	}
	t.node.sessionsLock.RUnlock()

	for _, ref := range refs {
		if err := ref.Send(data); err != nil {
			t.node.log.Warn("broadcast send failed", "err", err)
		}
	}
	return nil
}

// Node ties together overlay routing, the matcher, and the wallet
// registry. There is exactly one Node per process.
type Node struct {
	id  wireproto.NetworkId
	log *logging.Logger

	ex  *exchange.Exchange
	reg *walletregistry.Registry

	transport Transport

	sessionsLock sync.RWMutex
	sessions     map[wireproto.NetworkId]session.SessionRef

	dedupLock sync.Mutex
	dedup     map[wireproto.TxId]struct{}
	dedupFIFO []wireproto.TxId

	dispatcher *session.Dispatcher

	eventSink EventSink
}

// New constructs a Node with its own identity, matcher, and wallet
// registry. id should be stable across restarts (loaded from disk by the
// caller); a fresh one can be minted with GenerateID.
func New(id wireproto.NetworkId, ex *exchange.Exchange, reg *walletregistry.Registry, log *logging.Logger) *Node {
	if log == nil {
		log = logging.GetDefault()
	}
	n := &Node{
		id:       id,
		log:      log,
		ex:       ex,
		reg:      reg,
		sessions: make(map[wireproto.NetworkId]session.SessionRef),
		dedup:    make(map[wireproto.TxId]struct{}),
	}
	n.transport = &SessionTransport{node: n}
	n.dispatcher = session.NewDispatcher(n)
	return n
}

// MyID, Exchange, WalletRegistry, and Log satisfy session.NodeAPI.
func (n *Node) MyID() wireproto.NetworkId                { return n.id }
func (n *Node) Exchange() *exchange.Exchange             { return n.ex }
func (n *Node) WalletRegistry() *walletregistry.Registry { return n.reg }
func (n *Node) Log() *logging.Logger                     { return n.log }

// SetEventSink attaches the admin/UI event sink. Safe to call at most once,
// before the node starts accepting sessions.
func (n *Node) SetEventSink(sink EventSink) {
	n.eventSink = sink
}

// Notify forwards a lifecycle event to the attached sink, or does nothing
// if none is set. Satisfies session.NodeAPI.
func (n *Node) Notify(eventType string, data map[string]any) {
	if n.eventSink != nil {
		n.eventSink.Publish(eventType, data)
	}
}

// Send routes data to dst: a zero dst broadcasts, dst == my_id is a local
// loopback dispatch (no socket round trip), anything else is a unicast
// through the transport.
func (n *Node) Send(dst wireproto.NetworkId, data []byte) error {
	if dst.IsZero() {
		return n.Broadcast(data)
	}
	if dst.Equal(n.id) {
		return n.dispatcher.DispatchBytes(context.Background(), nil, data)
	}
	return n.transport.Send(dst, data)
}

// Broadcast fans data out to every overlay peer reachable from this node.
func (n *Node) Broadcast(data []byte) error {
	return n.transport.Broadcast(data)
}

// StorageStore registers addr as reachable through ref (called by a
// Session's AnnounceAddresses handler).
func (n *Node) StorageStore(ref session.SessionRef, addr wireproto.NetworkId) {
	n.sessionsLock.Lock()
	n.sessions[addr] = ref
	n.sessionsLock.Unlock()
	n.Notify("peer_connected", map[string]any{"peer": addr.String()})
}

// StorageClean removes every address mapping pointing at ref (called when
// a Session closes, successfully or not).
func (n *Node) StorageClean(ref session.SessionRef) {
	n.sessionsLock.Lock()
	var removed []wireproto.NetworkId
	for k, v := range n.sessions {
		if v == ref {
			delete(n.sessions, k)
			removed = append(removed, k)
		}
	}
	n.sessionsLock.Unlock()

	for _, addr := range removed {
		n.Notify("peer_disconnected", map[string]any{"peer": addr.String()})
	}
}

// OnMessageReceived handles a unicast delivered by the overlay transport
// (as opposed to a locally attached session, which dispatches directly).
// It dedupes by hash of the full wire frame before dispatching.
func (n *Node) OnMessageReceived(raw []byte) error {
	if n.seen(raw) {
		return nil
	}
	return n.dispatcher.DispatchBytes(context.Background(), nil, raw)
}

// OnBroadcastReceived applies the same dedup-then-dispatch treatment as
// OnMessageReceived to an inbound broadcast.
func (n *Node) OnBroadcastReceived(raw []byte) error {
	return n.OnMessageReceived(raw)
}

func (n *Node) seen(raw []byte) bool {
	key := wireproto.Hash256(raw)

	n.dedupLock.Lock()
	defer n.dedupLock.Unlock()

	if _, ok := n.dedup[key]; ok {
		return true
	}
	n.dedup[key] = struct{}{}
	n.dedupFIFO = append(n.dedupFIFO, key)
	if len(n.dedupFIFO) > dedupCacheSize {
		oldest := n.dedupFIFO[0]
		n.dedupFIFO = n.dedupFIFO[1:]
		delete(n.dedup, oldest)
	}
	return false
}

// BroadcastWalletList is the wallet-list heartbeat body (spec §4.7): an
// enabled matcher broadcasts its tradable currencies so peers can route
// orders to it. The 5-second ticker driving this lives in xhubserver.
func (n *Node) BroadcastWalletList() {
	if n.reg == nil || !n.reg.IsEnabled() {
		return
	}
	list := n.reg.List()
	entries := make([]wireproto.WalletListEntry, 0, len(list))
	for _, w := range list {
		entries = append(entries, wireproto.WalletListEntry{
			Name:  wireproto.NewCurrencyCode(w.Name),
			Title: wireproto.WalletTitle(w.Title),
		})
	}
	pkt := wireproto.NewPacket(wireproto.CmdWalletList)
	pkt.Append(wireproto.EncodeWalletList(entries))
	if err := n.Broadcast(pkt.Bytes()); err != nil {
		n.log.Warn("wallet list broadcast failed", "err", err)
	}
}

// AttachSession runs a newly accepted connection's read loop to
// completion. The Session's own cleanup removes its address mappings on
// exit via StorageClean.
func (n *Node) AttachSession(ctx context.Context, s *session.Session) {
	s.Run(ctx)
}

// GenerateID mints a fresh random 20-byte overlay identity for admin
// tooling (e.g. provisioning a new node's identity on first run). It does
// not affect any live Node's own id. Panics if the system CSPRNG fails,
// since a silently predictable overlay identity is worse than a crash.
func GenerateID() wireproto.NetworkId {
	raw, err := helpers.GenerateSecureRandom(wireproto.NetworkIdSize)
	if err != nil {
		panic("xhubnode: failed to generate random id: " + err.Error())
	}
	id, _ := wireproto.NetworkIdFromBytes(raw)
	return id
}

// DumpState is an admin snapshot of live routing and matcher state,
// consumed by adminapi's GET /state.
type DumpState struct {
	MyID    wireproto.NetworkId
	Peers   []wireproto.NetworkId
	Pending []*exchange.Transaction
	Active  []*exchange.Transaction
}

// DumpState returns a point-in-time snapshot; each field is copied or
// independently locked by its source, so no further locking is needed
// after it returns.
func (n *Node) DumpState() DumpState {
	n.sessionsLock.RLock()
	peers := make([]wireproto.NetworkId, 0, len(n.sessions))
	for addr := range n.sessions {
		peers = append(peers, addr)
	}
	n.sessionsLock.RUnlock()

	return DumpState{
		MyID:    n.id,
		Peers:   peers,
		Pending: n.ex.PendingTransactions(),
		Active:  n.ex.ActiveTransactions(),
	}
}

// Search looks up a transaction by id across both the pending and active
// sets, for adminapi's GET /search/{id}.
func (n *Node) Search(id wireproto.TxId) (*exchange.Transaction, bool) {
	if tx, ok := n.ex.Transaction(id); ok {
		return tx, true
	}
	for _, tx := range n.ex.PendingTransactions() {
		if tx.ID() == id {
			return tx, true
		}
	}
	return nil, false
}

// SendRaw is the admin escape hatch behind adminapi's POST /send: it routes
// an arbitrary wire frame through Send, so it is dispatched locally only
// when dst is this node's own id.
func (n *Node) SendRaw(dst wireproto.NetworkId, data []byte) error {
	return n.Send(dst, data)
}
