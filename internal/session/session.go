package session

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/atcsecure/xhub/internal/wireproto"
	"github.com/atcsecure/xhub/pkg/logging"
)

// readTimeout bounds how long a Session waits for the next frame before
// giving up; it is refreshed after every successfully dispatched packet.
const readTimeout = 5 * time.Minute

// Session owns one accepted TCP connection and drives its read-dispatch
// loop. It holds the socket; Node holds only a weak reference to it via
// the address map it populates through StorageStore/StorageClean.
type Session struct {
	conn       net.Conn
	dispatcher *Dispatcher
	log        *logging.Logger
	cipher     wireproto.Cipher

	remoteLabel string
}

// New wraps an accepted connection in a Session bound to node.
func New(conn net.Conn, node NodeAPI, log *logging.Logger) *Session {
	if log == nil {
		log = node.Log()
	}
	return &Session{
		conn:        conn,
		dispatcher:  NewDispatcher(node),
		log:         log,
		cipher:      wireproto.NopCipher{},
		remoteLabel: conn.RemoteAddr().String(),
	}
}

// Send writes a complete wire frame (as produced by Packet.Bytes) to the
// underlying socket. It implements SessionRef.
func (s *Session) Send(data []byte) error {
	_, err := s.conn.Write(data)
	return err
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Run reads and dispatches packets until the connection closes, a frame
// is malformed, or a handler errors. On exit it always asks the owning
// Node to forget this session's address mappings (spec §7: a closed or
// erroring session never leaves stale routing entries behind).
func (s *Session) Run(ctx context.Context) {
	defer func() {
		s.dispatcher.node.StorageClean(s)
		s.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			s.log.Debug("set read deadline failed", "peer", s.remoteLabel, "err", err)
			return
		}

		pkt, err := wireproto.ReadPacket(s.conn)
		if err != nil {
			s.log.Debug("session closed on read", "peer", s.remoteLabel, "err", err)
			return
		}

		if err := pkt.Decrypt(s.cipher); err != nil {
			s.log.Warn("packet decrypt failed, closing session", "peer", s.remoteLabel, "err", err)
			return
		}

		if err := s.dispatcher.Dispatch(ctx, s, pkt); err != nil {
			s.log.Warn("dispatch failed, closing session", "peer", s.remoteLabel, "command", pkt.Command(), "err", err)
			return
		}
	}
}

func (s *Session) String() string {
	return fmt.Sprintf("session(%s)", s.remoteLabel)
}
