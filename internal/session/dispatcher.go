// Package session implements per-connection packet dispatch: reading
// wireproto.Packet frames, routing them through a fixed command table, and
// driving the exchange matcher and wallet registry on behalf of a Node.
package session

import (
	"context"
	"fmt"

	"github.com/atcsecure/xhub/internal/exchange"
	"github.com/atcsecure/xhub/internal/walletregistry"
	"github.com/atcsecure/xhub/internal/wireproto"
	"github.com/atcsecure/xhub/pkg/logging"
)

// SessionRef is the narrow identity a Session exposes to its owning Node:
// enough to address it (Send) and to recognize it later (for StorageClean's
// map-value comparison). Node never needs more than this.
type SessionRef interface {
	Send(data []byte) error
}

// NodeAPI is everything a handler needs from the owning Node: routing
// (unicast/broadcast), the address book, and access to the matcher and
// wallet registry. xhubnode.Node implements this interface; this package
// never imports xhubnode, avoiding an import cycle.
type NodeAPI interface {
	MyID() wireproto.NetworkId
	Send(dst wireproto.NetworkId, data []byte) error
	Broadcast(data []byte) error
	StorageStore(ref SessionRef, addr wireproto.NetworkId)
	StorageClean(ref SessionRef)
	Exchange() *exchange.Exchange
	WalletRegistry() *walletregistry.Registry
	Log() *logging.Logger
	// Notify reports a transaction lifecycle event to whatever admin/UI
	// event sink the Node has attached, or does nothing if none is set.
	Notify(eventType string, data map[string]any)
}

// Dispatcher routes parsed packets to the fixed per-command handler table
// described in spec §9: command numbers are known at compile time, so the
// table is a static map, never a runtime registration.
type Dispatcher struct {
	node NodeAPI
}

// NewDispatcher binds a Dispatcher to its owning Node.
func NewDispatcher(node NodeAPI) *Dispatcher {
	return &Dispatcher{node: node}
}

type handlerFunc func(d *Dispatcher, ctx context.Context, ref SessionRef, pkt *wireproto.Packet) error

var handlerTable = map[wireproto.Command]handlerFunc{
	wireproto.CmdInvalid:                handleInvalid,
	wireproto.CmdAnnounceAddresses:      handleAnnounce,
	wireproto.CmdXChatMessage:           handleXChat,
	wireproto.CmdTransaction:            handleTransaction,
	wireproto.CmdTransactionHoldApply:   handleHoldApply,
	wireproto.CmdTransactionPayApply:    handlePayApply,
	wireproto.CmdTransactionCommitApply: handleCommitApply,
	wireproto.CmdTransactionCancel:      handleCancel,
	wireproto.CmdReceivedTransaction:    handleChainConfirm,
}

// Dispatch looks up pkt's command in the fixed table and runs its handler.
// ref identifies the live Session this packet arrived on, or nil when
// Dispatch is driven by a loopback or overlay delivery with no underlying
// socket. An unknown command is treated as a malformed packet; the caller
// must close the session on error.
func (d *Dispatcher) Dispatch(ctx context.Context, ref SessionRef, pkt *wireproto.Packet) error {
	h, ok := handlerTable[pkt.Command()]
	if !ok {
		return fmt.Errorf("unknown command %d", uint32(pkt.Command()))
	}
	return h(d, ctx, ref, pkt)
}

// DispatchBytes parses a complete wire frame and dispatches it. Used for
// loopback delivery (Node.Send to its own id) and inbound overlay delivery,
// where only raw bytes are available.
func (d *Dispatcher) DispatchBytes(ctx context.Context, ref SessionRef, raw []byte) error {
	pkt, err := wireproto.ParseWire(raw)
	if err != nil {
		return fmt.Errorf("parse wire frame: %w", err)
	}
	return d.Dispatch(ctx, ref, pkt)
}

func handleInvalid(d *Dispatcher, _ context.Context, _ SessionRef, pkt *wireproto.Packet) error {
	d.node.Log().Warn("received Invalid command", "size", pkt.Size())
	return nil
}

func handleAnnounce(d *Dispatcher, _ context.Context, ref SessionRef, pkt *wireproto.Packet) error {
	p, err := wireproto.DecodeAnnounceAddresses(pkt.Data())
	if err != nil {
		return err
	}
	if ref == nil {
		d.node.Log().Debug("announce with no live session to register", "peer", p.AnnouncerId)
		return nil
	}
	d.node.StorageStore(ref, p.AnnouncerId)
	return nil
}

// handleXChat always forwards the whole packet to its addressed
// destination; the matcher never consumes XChat payloads itself.
func handleXChat(d *Dispatcher, _ context.Context, _ SessionRef, pkt *wireproto.Packet) error {
	if pkt.Size() <= wireproto.NetworkIdSize {
		return fmt.Errorf("XChatMessage: body too short (%d bytes)", pkt.Size())
	}
	dst, _ := wireproto.NetworkIdFromBytes(pkt.Data()[:wireproto.NetworkIdSize])
	return d.node.Send(dst, pkt.Bytes())
}

func handleTransaction(d *Dispatcher, _ context.Context, _ SessionRef, pkt *wireproto.Packet) error {
	p, err := wireproto.DecodeTransaction(pkt.Data())
	if err != nil {
		return err
	}

	ex := d.node.Exchange()
	reg := d.node.WalletRegistry()
	if ex.IsEnabled() && reg.HasWallet(p.SrcCcy.String()) && reg.HasWallet(p.DstCcy.String()) {
		ok, outID := ex.CreateTransaction(p.Id, p.SrcAddr, p.SrcCcy.String(), p.SrcAmount, p.DstAddr, p.DstCcy.String(), p.DstAmount)
		if ok {
			if tx, found := ex.Transaction(outID); found && tx.State() == exchange.StateJoined {
				d.node.Notify("transaction_joined", map[string]any{"id": tx.ID().String()})
				emitHoldPackets(d, tx)
			}
		} else {
			d.node.Log().Warn("rejected structurally invalid order", "id", p.Id)
		}
	} else {
		d.node.Log().Debug("transaction currency not locally tradable, rebroadcasting only", "src", p.SrcCcy.String(), "dst", p.DstCcy.String())
	}

	return d.node.Broadcast(pkt.Bytes())
}

func emitHoldPackets(d *Dispatcher, tx *exchange.Transaction) {
	first := tx.First()
	second := tx.Second()
	myID := d.node.MyID()

	send := func(member exchange.OrderMember) {
		pkt := wireproto.NewPacket(wireproto.CmdTransactionHold)
		pkt.Append(wireproto.EncodeTransactionHold(wireproto.TransactionHoldPayload{
			DstId:     member.Source,
			MatcherId: myID,
			OrderId:   member.Id,
			TxId:      tx.ID(),
		}))
		if err := d.node.Send(member.Source, pkt.Bytes()); err != nil {
			d.node.Log().Warn("send TransactionHold failed", "dst", member.Source, "err", err)
		}
	}
	send(first)
	send(second)
}

func handleHoldApply(d *Dispatcher, _ context.Context, _ SessionRef, pkt *wireproto.Packet) error {
	p, err := wireproto.DecodeTransactionHoldApply(pkt.Data())
	if err != nil {
		return err
	}
	if !p.DstId.Equal(d.node.MyID()) {
		return d.node.Send(p.DstId, pkt.Bytes())
	}
	if d.node.Exchange().UpdateTransactionWhenHoldApplyReceived(p.TxId) {
		if tx, ok := d.node.Exchange().Transaction(p.TxId); ok {
			d.node.Notify("transaction_hold", map[string]any{"id": tx.ID().String()})
			emitPayPackets(d, tx)
		}
	}
	return nil
}

func emitPayPackets(d *Dispatcher, tx *exchange.Transaction) {
	first := tx.First()
	second := tx.Second()
	myID := d.node.MyID()
	reg := d.node.WalletRegistry()

	srcWallet, _ := reg.Address(tx.SourceCurrency())
	dstWallet, _ := reg.Address(tx.DestCurrency())

	send := func(member exchange.OrderMember, walletAddr wireproto.NetworkId) {
		pkt := wireproto.NewPacket(wireproto.CmdTransactionPay)
		pkt.Append(wireproto.EncodeTransactionPay(wireproto.TransactionPayPayload{
			DstId:      member.Source,
			MatcherId:  myID,
			TxId:       tx.ID(),
			WalletAddr: walletAddr,
		}))
		if err := d.node.Send(member.Source, pkt.Bytes()); err != nil {
			d.node.Log().Warn("send TransactionPay failed", "dst", member.Source, "err", err)
		}
	}
	send(first, srcWallet)
	send(second, dstWallet)
}

func handlePayApply(d *Dispatcher, _ context.Context, _ SessionRef, pkt *wireproto.Packet) error {
	p, err := wireproto.DecodeTransactionPayApply(pkt.Data())
	if err != nil {
		return err
	}
	if !p.DstId.Equal(d.node.MyID()) {
		return d.node.Send(p.DstId, pkt.Bytes())
	}
	if d.node.Exchange().UpdateTransactionWhenPayApplyReceived(p.TxId) {
		if tx, ok := d.node.Exchange().Transaction(p.TxId); ok {
			d.node.Notify("transaction_paid", map[string]any{"id": tx.ID().String()})
			emitCommitPackets(d, tx)
		}
	}
	return nil
}

func emitCommitPackets(d *Dispatcher, tx *exchange.Transaction) {
	first := tx.First()
	second := tx.Second()
	myID := d.node.MyID()
	reg := d.node.WalletRegistry()

	srcWallet, _ := reg.Address(tx.SourceCurrency())
	dstWallet, _ := reg.Address(tx.DestCurrency())

	send := func(walletAddr, destAddr wireproto.NetworkId, amount uint64) {
		pkt := wireproto.NewPacket(wireproto.CmdTransactionCommit)
		pkt.Append(wireproto.EncodeTransactionCommit(wireproto.TransactionCommitPayload{
			WalletId:  walletAddr,
			MatcherId: myID,
			TxId:      tx.ID(),
			DestAddr:  destAddr,
			Amount:    amount,
		}))
		if err := d.node.Send(walletAddr, pkt.Bytes()); err != nil {
			d.node.Log().Warn("send TransactionCommit failed", "wallet", walletAddr, "err", err)
		}
	}
	// The wallet that received first's src-currency payment pays out to
	// second's destination, and vice versa.
	send(srcWallet, second.Dest, tx.SourceAmount())
	send(dstWallet, first.Dest, tx.DestAmount())
}

func handleCommitApply(d *Dispatcher, _ context.Context, _ SessionRef, pkt *wireproto.Packet) error {
	p, err := wireproto.DecodeTransactionCommitApply(pkt.Data())
	if err != nil {
		return err
	}
	if !p.DstId.Equal(d.node.MyID()) {
		return d.node.Send(p.DstId, pkt.Bytes())
	}
	if d.node.Exchange().UpdateTransactionWhenCommitApplyReceived(p.TxId) {
		if tx, ok := d.node.Exchange().Transaction(p.TxId); ok {
			d.node.Notify("transaction_finished", map[string]any{"id": tx.ID().String()})
			emitFinishedPackets(d, tx)
		}
	}
	return nil
}

func emitFinishedPackets(d *Dispatcher, tx *exchange.Transaction) {
	first := tx.First()
	second := tx.Second()

	send := func(member exchange.OrderMember) {
		pkt := wireproto.NewPacket(wireproto.CmdTransactionFinished)
		pkt.Append(wireproto.EncodeTransactionFinished(wireproto.TransactionFinishedPayload{
			DstId: member.Source,
			TxId:  tx.ID(),
		}))
		if err := d.node.Send(member.Source, pkt.Bytes()); err != nil {
			d.node.Log().Warn("send TransactionFinished failed", "dst", member.Source, "err", err)
		}
	}
	send(first)
	send(second)
}

func handleCancel(d *Dispatcher, _ context.Context, _ SessionRef, pkt *wireproto.Packet) error {
	p, err := wireproto.DecodeTransactionCancel(pkt.Data())
	if err != nil {
		return err
	}
	d.node.Exchange().CancelTransaction(p.TxId)
	return nil
}

func handleChainConfirm(d *Dispatcher, _ context.Context, _ SessionRef, pkt *wireproto.Packet) error {
	p, err := wireproto.DecodeReceivedTransaction(pkt.Data())
	if err != nil {
		return err
	}
	d.node.Exchange().UpdateTransaction(p.TxHash)
	return nil
}
