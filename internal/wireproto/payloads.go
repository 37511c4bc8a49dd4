package wireproto

import (
	"encoding/binary"
	"fmt"
)

// CurrencyCode is a NUL-padded, fixed-width 8-byte currency symbol (e.g.
// "BTC"). Fixed width avoids the unaligned read that an unpadded string
// field would force on a raw struct cast.
type CurrencyCode [8]byte

// NewCurrencyCode builds a CurrencyCode from a string, truncating anything
// past 8 bytes and NUL-padding the remainder.
func NewCurrencyCode(s string) CurrencyCode {
	var c CurrencyCode
	n := copy(c[:], s)
	_ = n
	return c
}

// String trims trailing NUL bytes for display/comparison.
func (c CurrencyCode) String() string {
	i := 0
	for i < len(c) && c[i] != 0 {
		i++
	}
	return string(c[:i])
}

const (
	// sizes for fixed-width payload fields, named for clarity at call sites.
	sizeNetworkId    = NetworkIdSize
	sizeTxId         = TxIdSize
	sizeCurrencyCode = 8
	sizeU64          = 8
)

func putNetworkId(dst []byte, id NetworkId) {
	copy(dst, id[:])
}

func getNetworkId(src []byte) NetworkId {
	var id NetworkId
	copy(id[:], src[:sizeNetworkId])
	return id
}

func putTxId(dst []byte, id TxId) {
	copy(dst, id[:])
}

func getTxId(src []byte) TxId {
	var id TxId
	copy(id[:], src[:sizeTxId])
	return id
}

// AnnounceAddressesPayload is the body of an AnnounceAddresses packet (20 B).
type AnnounceAddressesPayload struct {
	AnnouncerId NetworkId
}

func EncodeAnnounceAddresses(p AnnounceAddressesPayload) []byte {
	buf := make([]byte, sizeNetworkId)
	putNetworkId(buf, p.AnnouncerId)
	return buf
}

func DecodeAnnounceAddresses(body []byte) (AnnounceAddressesPayload, error) {
	if len(body) != sizeNetworkId {
		return AnnounceAddressesPayload{}, fmt.Errorf("AnnounceAddresses: want %d bytes, got %d", sizeNetworkId, len(body))
	}
	return AnnounceAddressesPayload{AnnouncerId: getNetworkId(body)}, nil
}

// TransactionPayload is the body of a Transaction (order) packet (104 B).
type TransactionPayload struct {
	Id         TxId
	SrcAddr    NetworkId
	SrcCcy     CurrencyCode
	SrcAmount  uint64
	DstAddr    NetworkId
	DstCcy     CurrencyCode
	DstAmount  uint64
}

const TransactionPayloadSize = sizeTxId + sizeNetworkId + sizeCurrencyCode + sizeU64 + sizeNetworkId + sizeCurrencyCode + sizeU64

func EncodeTransaction(p TransactionPayload) []byte {
	buf := make([]byte, TransactionPayloadSize)
	off := 0
	putTxId(buf[off:], p.Id)
	off += sizeTxId
	putNetworkId(buf[off:], p.SrcAddr)
	off += sizeNetworkId
	copy(buf[off:], p.SrcCcy[:])
	off += sizeCurrencyCode
	binary.LittleEndian.PutUint64(buf[off:], p.SrcAmount)
	off += sizeU64
	putNetworkId(buf[off:], p.DstAddr)
	off += sizeNetworkId
	copy(buf[off:], p.DstCcy[:])
	off += sizeCurrencyCode
	binary.LittleEndian.PutUint64(buf[off:], p.DstAmount)
	off += sizeU64
	return buf
}

func DecodeTransaction(body []byte) (TransactionPayload, error) {
	if len(body) != TransactionPayloadSize {
		return TransactionPayload{}, fmt.Errorf("Transaction: want %d bytes, got %d", TransactionPayloadSize, len(body))
	}
	var p TransactionPayload
	off := 0
	p.Id = getTxId(body[off:])
	off += sizeTxId
	p.SrcAddr = getNetworkId(body[off:])
	off += sizeNetworkId
	copy(p.SrcCcy[:], body[off:off+sizeCurrencyCode])
	off += sizeCurrencyCode
	p.SrcAmount = binary.LittleEndian.Uint64(body[off:])
	off += sizeU64
	p.DstAddr = getNetworkId(body[off:])
	off += sizeNetworkId
	copy(p.DstCcy[:], body[off:off+sizeCurrencyCode])
	off += sizeCurrencyCode
	p.DstAmount = binary.LittleEndian.Uint64(body[off:])
	off += sizeU64
	return p, nil
}

// TransactionHoldPayload instructs both counterparties to begin the Hold
// phase for a joined transaction.
type TransactionHoldPayload struct {
	DstId     NetworkId
	MatcherId NetworkId
	OrderId   TxId
	TxId      TxId
}

const TransactionHoldPayloadSize = sizeNetworkId + sizeNetworkId + sizeTxId + sizeTxId

func EncodeTransactionHold(p TransactionHoldPayload) []byte {
	buf := make([]byte, TransactionHoldPayloadSize)
	off := 0
	putNetworkId(buf[off:], p.DstId)
	off += sizeNetworkId
	putNetworkId(buf[off:], p.MatcherId)
	off += sizeNetworkId
	putTxId(buf[off:], p.OrderId)
	off += sizeTxId
	putTxId(buf[off:], p.TxId)
	return buf
}

func DecodeTransactionHold(body []byte) (TransactionHoldPayload, error) {
	if len(body) != TransactionHoldPayloadSize {
		return TransactionHoldPayload{}, fmt.Errorf("TransactionHold: want %d bytes, got %d", TransactionHoldPayloadSize, len(body))
	}
	var p TransactionHoldPayload
	off := 0
	p.DstId = getNetworkId(body[off:])
	off += sizeNetworkId
	p.MatcherId = getNetworkId(body[off:])
	off += sizeNetworkId
	p.OrderId = getTxId(body[off:])
	off += sizeTxId
	p.TxId = getTxId(body[off:])
	return p, nil
}

// TransactionHoldApplyPayload is a counterparty's acknowledgement of Hold (52 B).
type TransactionHoldApplyPayload struct {
	DstId NetworkId
	TxId  TxId
}

const TransactionHoldApplyPayloadSize = sizeNetworkId + sizeTxId

func EncodeTransactionHoldApply(p TransactionHoldApplyPayload) []byte {
	buf := make([]byte, TransactionHoldApplyPayloadSize)
	putNetworkId(buf[0:], p.DstId)
	putTxId(buf[sizeNetworkId:], p.TxId)
	return buf
}

func DecodeTransactionHoldApply(body []byte) (TransactionHoldApplyPayload, error) {
	if len(body) != TransactionHoldApplyPayloadSize {
		return TransactionHoldApplyPayload{}, fmt.Errorf("TransactionHoldApply: want %d bytes, got %d", TransactionHoldApplyPayloadSize, len(body))
	}
	return TransactionHoldApplyPayload{
		DstId: getNetworkId(body[0:]),
		TxId:  getTxId(body[sizeNetworkId:]),
	}, nil
}

// TransactionPayPayload instructs a counterparty's exchange wallet where to pay.
type TransactionPayPayload struct {
	DstId      NetworkId
	MatcherId  NetworkId
	TxId       TxId
	WalletAddr NetworkId
}

const TransactionPayPayloadSize = sizeNetworkId + sizeNetworkId + sizeTxId + sizeNetworkId

func EncodeTransactionPay(p TransactionPayPayload) []byte {
	buf := make([]byte, TransactionPayPayloadSize)
	off := 0
	putNetworkId(buf[off:], p.DstId)
	off += sizeNetworkId
	putNetworkId(buf[off:], p.MatcherId)
	off += sizeNetworkId
	putTxId(buf[off:], p.TxId)
	off += sizeTxId
	putNetworkId(buf[off:], p.WalletAddr)
	return buf
}

func DecodeTransactionPay(body []byte) (TransactionPayPayload, error) {
	if len(body) != TransactionPayPayloadSize {
		return TransactionPayPayload{}, fmt.Errorf("TransactionPay: want %d bytes, got %d", TransactionPayPayloadSize, len(body))
	}
	var p TransactionPayPayload
	off := 0
	p.DstId = getNetworkId(body[off:])
	off += sizeNetworkId
	p.MatcherId = getNetworkId(body[off:])
	off += sizeNetworkId
	p.TxId = getTxId(body[off:])
	off += sizeTxId
	p.WalletAddr = getNetworkId(body[off:])
	return p, nil
}

// TransactionPayApplyPayload is a counterparty's acknowledgement of payment (84 B).
type TransactionPayApplyPayload struct {
	DstId     NetworkId
	TxId      TxId
	PaymentId TxId
}

const TransactionPayApplyPayloadSize = sizeNetworkId + sizeTxId + sizeTxId

func EncodeTransactionPayApply(p TransactionPayApplyPayload) []byte {
	buf := make([]byte, TransactionPayApplyPayloadSize)
	off := 0
	putNetworkId(buf[off:], p.DstId)
	off += sizeNetworkId
	putTxId(buf[off:], p.TxId)
	off += sizeTxId
	putTxId(buf[off:], p.PaymentId)
	return buf
}

func DecodeTransactionPayApply(body []byte) (TransactionPayApplyPayload, error) {
	if len(body) != TransactionPayApplyPayloadSize {
		return TransactionPayApplyPayload{}, fmt.Errorf("TransactionPayApply: want %d bytes, got %d", TransactionPayApplyPayloadSize, len(body))
	}
	var p TransactionPayApplyPayload
	off := 0
	p.DstId = getNetworkId(body[off:])
	off += sizeNetworkId
	p.TxId = getTxId(body[off:])
	off += sizeTxId
	p.PaymentId = getTxId(body[off:])
	return p, nil
}

// TransactionCommitPayload instructs an exchange wallet to settle the swap.
type TransactionCommitPayload struct {
	WalletId  NetworkId
	MatcherId NetworkId
	TxId      TxId
	DestAddr  NetworkId
	Amount    uint64
}

const TransactionCommitPayloadSize = sizeNetworkId + sizeNetworkId + sizeTxId + sizeNetworkId + sizeU64

func EncodeTransactionCommit(p TransactionCommitPayload) []byte {
	buf := make([]byte, TransactionCommitPayloadSize)
	off := 0
	putNetworkId(buf[off:], p.WalletId)
	off += sizeNetworkId
	putNetworkId(buf[off:], p.MatcherId)
	off += sizeNetworkId
	putTxId(buf[off:], p.TxId)
	off += sizeTxId
	putNetworkId(buf[off:], p.DestAddr)
	off += sizeNetworkId
	binary.LittleEndian.PutUint64(buf[off:], p.Amount)
	return buf
}

func DecodeTransactionCommit(body []byte) (TransactionCommitPayload, error) {
	if len(body) != TransactionCommitPayloadSize {
		return TransactionCommitPayload{}, fmt.Errorf("TransactionCommit: want %d bytes, got %d", TransactionCommitPayloadSize, len(body))
	}
	var p TransactionCommitPayload
	off := 0
	p.WalletId = getNetworkId(body[off:])
	off += sizeNetworkId
	p.MatcherId = getNetworkId(body[off:])
	off += sizeNetworkId
	p.TxId = getTxId(body[off:])
	off += sizeTxId
	p.DestAddr = getNetworkId(body[off:])
	off += sizeNetworkId
	p.Amount = binary.LittleEndian.Uint64(body[off:])
	return p, nil
}

// TransactionCommitApplyPayload is a wallet's acknowledgement of settlement (52 B).
type TransactionCommitApplyPayload struct {
	DstId NetworkId
	TxId  TxId
}

const TransactionCommitApplyPayloadSize = sizeNetworkId + sizeTxId

func EncodeTransactionCommitApply(p TransactionCommitApplyPayload) []byte {
	buf := make([]byte, TransactionCommitApplyPayloadSize)
	putNetworkId(buf[0:], p.DstId)
	putTxId(buf[sizeNetworkId:], p.TxId)
	return buf
}

func DecodeTransactionCommitApply(body []byte) (TransactionCommitApplyPayload, error) {
	if len(body) != TransactionCommitApplyPayloadSize {
		return TransactionCommitApplyPayload{}, fmt.Errorf("TransactionCommitApply: want %d bytes, got %d", TransactionCommitApplyPayloadSize, len(body))
	}
	return TransactionCommitApplyPayload{
		DstId: getNetworkId(body[0:]),
		TxId:  getTxId(body[sizeNetworkId:]),
	}, nil
}

// TransactionFinishedPayload notifies a counterparty the swap completed.
type TransactionFinishedPayload struct {
	DstId NetworkId
	TxId  TxId
}

const TransactionFinishedPayloadSize = sizeNetworkId + sizeTxId

func EncodeTransactionFinished(p TransactionFinishedPayload) []byte {
	buf := make([]byte, TransactionFinishedPayloadSize)
	putNetworkId(buf[0:], p.DstId)
	putTxId(buf[sizeNetworkId:], p.TxId)
	return buf
}

func DecodeTransactionFinished(body []byte) (TransactionFinishedPayload, error) {
	if len(body) != TransactionFinishedPayloadSize {
		return TransactionFinishedPayload{}, fmt.Errorf("TransactionFinished: want %d bytes, got %d", TransactionFinishedPayloadSize, len(body))
	}
	return TransactionFinishedPayload{
		DstId: getNetworkId(body[0:]),
		TxId:  getTxId(body[sizeNetworkId:]),
	}, nil
}

// TransactionCancelPayload requests an active transaction be dropped (52 B,
// leading 20 bytes unused padding per the wire layout).
type TransactionCancelPayload struct {
	TxId TxId
}

const TransactionCancelPayloadSize = sizeNetworkId + sizeTxId

func EncodeTransactionCancel(p TransactionCancelPayload) []byte {
	buf := make([]byte, TransactionCancelPayloadSize)
	putTxId(buf[sizeNetworkId:], p.TxId)
	return buf
}

func DecodeTransactionCancel(body []byte) (TransactionCancelPayload, error) {
	if len(body) != TransactionCancelPayloadSize {
		return TransactionCancelPayload{}, fmt.Errorf("TransactionCancel: want %d bytes, got %d", TransactionCancelPayloadSize, len(body))
	}
	return TransactionCancelPayload{TxId: getTxId(body[sizeNetworkId:])}, nil
}

// ReceivedTransactionPayload reports a chain confirmation hash (32 B).
type ReceivedTransactionPayload struct {
	TxHash TxId
}

const ReceivedTransactionPayloadSize = sizeTxId

func EncodeReceivedTransaction(p ReceivedTransactionPayload) []byte {
	buf := make([]byte, ReceivedTransactionPayloadSize)
	putTxId(buf, p.TxHash)
	return buf
}

func DecodeReceivedTransaction(body []byte) (ReceivedTransactionPayload, error) {
	if len(body) != ReceivedTransactionPayloadSize {
		return ReceivedTransactionPayload{}, fmt.Errorf("ReceivedTransaction: want %d bytes, got %d", ReceivedTransactionPayloadSize, len(body))
	}
	return ReceivedTransactionPayload{TxHash: getTxId(body)}, nil
}

// WalletListEntry is one (name, title) pair in a WalletList broadcast.
type WalletListEntry struct {
	Name  CurrencyCode
	Title [32]byte
}

const walletListEntrySize = sizeCurrencyCode + 32

func EncodeWalletList(entries []WalletListEntry) []byte {
	buf := make([]byte, 0, len(entries)*walletListEntrySize)
	for _, e := range entries {
		buf = append(buf, e.Name[:]...)
		buf = append(buf, e.Title[:]...)
	}
	return buf
}

func DecodeWalletList(body []byte) ([]WalletListEntry, error) {
	if len(body)%walletListEntrySize != 0 {
		return nil, fmt.Errorf("WalletList: body length %d not a multiple of %d", len(body), walletListEntrySize)
	}
	n := len(body) / walletListEntrySize
	out := make([]WalletListEntry, n)
	for i := 0; i < n; i++ {
		off := i * walletListEntrySize
		var e WalletListEntry
		copy(e.Name[:], body[off:off+sizeCurrencyCode])
		copy(e.Title[:], body[off+sizeCurrencyCode:off+walletListEntrySize])
		out[i] = e
	}
	return out, nil
}

// WalletTitle builds a fixed 32-byte, NUL-padded title field.
func WalletTitle(s string) [32]byte {
	var t [32]byte
	copy(t[:], s)
	return t
}

// TitleString trims trailing NUL bytes from a wallet title field.
func TitleString(t [32]byte) string {
	i := 0
	for i < len(t) && t[i] != 0 {
		i++
	}
	return string(t[:i])
}
