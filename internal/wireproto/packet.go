package wireproto

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Command identifies the kind of packet carried on the wire.
type Command uint32

// Fixed command assignment (§6).
const (
	CmdInvalid                Command = 0
	CmdAnnounceAddresses      Command = 1
	CmdXChatMessage           Command = 2
	CmdTransaction            Command = 3
	CmdTransactionHold        Command = 4
	CmdTransactionHoldApply   Command = 5
	CmdTransactionPay         Command = 6
	CmdTransactionPayApply    Command = 7
	CmdTransactionCommit      Command = 8
	CmdTransactionCommitApply Command = 9
	CmdTransactionFinished    Command = 10
	CmdTransactionCancel      Command = 11
	CmdReceivedTransaction    Command = 12
	CmdWalletList             Command = 13
)

func (c Command) String() string {
	switch c {
	case CmdInvalid:
		return "Invalid"
	case CmdAnnounceAddresses:
		return "AnnounceAddresses"
	case CmdXChatMessage:
		return "XChatMessage"
	case CmdTransaction:
		return "Transaction"
	case CmdTransactionHold:
		return "TransactionHold"
	case CmdTransactionHoldApply:
		return "TransactionHoldApply"
	case CmdTransactionPay:
		return "TransactionPay"
	case CmdTransactionPayApply:
		return "TransactionPayApply"
	case CmdTransactionCommit:
		return "TransactionCommit"
	case CmdTransactionCommitApply:
		return "TransactionCommitApply"
	case CmdTransactionFinished:
		return "TransactionFinished"
	case CmdTransactionCancel:
		return "TransactionCancel"
	case CmdReceivedTransaction:
		return "ReceivedTransaction"
	case CmdWalletList:
		return "WalletList"
	default:
		return fmt.Sprintf("Command(%d)", uint32(c))
	}
}

// HeaderSize is the fixed 8-byte frame header: u32 command + u32 body length.
const HeaderSize = 8

// maxBodyLength is a sanity cap on body_length, guarding against a
// corrupted or hostile header turning into an unbounded allocation.
const maxBodyLength = 1 << 24

// Packet is the length-prefixed binary frame used on TCP sessions:
//
//	offset 0: u32 command     (little-endian)
//	offset 4: u32 body_length (little-endian)
//	offset 8: body_length bytes
type Packet struct {
	command Command
	body    []byte
}

// NewPacket creates an empty-bodied packet with the given command.
func NewPacket(cmd Command) *Packet {
	return &Packet{command: cmd}
}

// Append concatenates bytes onto the packet body.
func (p *Packet) Append(data []byte) {
	p.body = append(p.body, data...)
}

// AppendUint64 appends a little-endian u64 onto the packet body.
func (p *Packet) AppendUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	p.Append(b[:])
}

// Command returns the packet's command.
func (p *Packet) Command() Command {
	return p.command
}

// Size returns the body length in bytes.
func (p *Packet) Size() uint32 {
	return uint32(len(p.body))
}

// AllSize returns the total wire size: header plus body.
func (p *Packet) AllSize() uint32 {
	return HeaderSize + p.Size()
}

// Data returns the packet body.
func (p *Packet) Data() []byte {
	return p.body
}

// Header returns the 8-byte wire header for the packet's current state.
func (p *Packet) Header() []byte {
	var h [HeaderSize]byte
	binary.LittleEndian.PutUint32(h[0:4], uint32(p.command))
	binary.LittleEndian.PutUint32(h[4:8], p.Size())
	return h[:]
}

// Bytes serializes the full wire frame: header followed by body.
func (p *Packet) Bytes() []byte {
	out := make([]byte, 0, p.AllSize())
	out = append(out, p.Header()...)
	out = append(out, p.body...)
	return out
}

// ReadPacket reads one full frame from r: the 8-byte header, then exactly
// body_length bytes. Partial reads are handled by io.ReadFull. A
// body_length above the sanity cap aborts with an error; callers must
// treat that as a malformed-packet session close.
func ReadPacket(r io.Reader) (*Packet, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cmd := Command(binary.LittleEndian.Uint32(hdr[0:4]))
	bodyLen := binary.LittleEndian.Uint32(hdr[4:8])
	if bodyLen > maxBodyLength {
		return nil, fmt.Errorf("body length %d exceeds sanity cap %d", bodyLen, maxBodyLength)
	}

	body := make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
	}

	return &Packet{command: cmd, body: body}, nil
}

// ParseWire parses a complete wire frame (as previously produced by Bytes)
// back into a Packet. Used when forwarding raw bytes that must be
// re-inspected (e.g. reading the destination field) without re-reading
// from a socket.
func ParseWire(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("wire frame too short: %d bytes", len(data))
	}
	cmd := Command(binary.LittleEndian.Uint32(data[0:4]))
	bodyLen := binary.LittleEndian.Uint32(data[4:8])
	if bodyLen > maxBodyLength {
		return nil, fmt.Errorf("body length %d exceeds sanity cap %d", bodyLen, maxBodyLength)
	}
	if uint32(len(data)-HeaderSize) != bodyLen {
		return nil, fmt.Errorf("wire frame body length mismatch: header says %d, have %d", bodyLen, len(data)-HeaderSize)
	}
	body := make([]byte, bodyLen)
	copy(body, data[HeaderSize:])
	return &Packet{command: cmd, body: body}, nil
}

// WritePacket writes the full wire frame for p to w.
func WritePacket(w io.Writer, p *Packet) error {
	_, err := w.Write(p.Bytes())
	return err
}

// Cipher is the packet encryption hook described in spec §4.1/§9. Both
// directions must preserve the command field and transform only the body;
// forwarding nodes rely on being able to read the command without
// decrypting. NopCipher is the default identity implementation.
type Cipher interface {
	Encrypt(cmd Command, body []byte) ([]byte, error)
	Decrypt(cmd Command, body []byte) ([]byte, error)
}

// NopCipher is the identity Cipher: encrypt/decrypt are no-ops, matching
// the stub behavior of the original encryptPacket/decryptPacket hooks.
type NopCipher struct{}

func (NopCipher) Encrypt(_ Command, body []byte) ([]byte, error) { return body, nil }
func (NopCipher) Decrypt(_ Command, body []byte) ([]byte, error) { return body, nil }

// Encrypt runs the packet body through cipher.Encrypt, replacing the body
// in place. The command field is never touched.
func (p *Packet) Encrypt(cipher Cipher) error {
	out, err := cipher.Encrypt(p.command, p.body)
	if err != nil {
		return err
	}
	p.body = out
	return nil
}

// Decrypt runs the packet body through cipher.Decrypt, replacing the body
// in place.
func (p *Packet) Decrypt(cipher Cipher) error {
	out, err := cipher.Decrypt(p.command, p.body)
	if err != nil {
		return err
	}
	p.body = out
	return nil
}
