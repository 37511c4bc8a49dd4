// Package xhubserver implements the TCP front door: it accepts
// connections, hands them to a small worker pool through one shared
// channel, and drives the wallet-list heartbeat.
package xhubserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/atcsecure/xhub/internal/session"
	"github.com/atcsecure/xhub/internal/xhubnode"
	"github.com/atcsecure/xhub/pkg/logging"
)

// workerCount matches the source's THREAD_COUNT = 2.
const workerCount = 2

// walletListInterval is the wallet-list broadcast heartbeat period (spec §4.7).
const walletListInterval = 5 * time.Second

// acceptQueueSize bounds how many accepted connections may be waiting for a
// free worker before Accept backpressures.
const acceptQueueSize = 64

// Server owns the listening socket, the worker pool, and the heartbeat
// ticker. It has no state of its own beyond that: routing and matching
// live entirely in the Node it wraps.
type Server struct {
	node   *xhubnode.Node
	log    *logging.Logger
	listen string

	listener net.Listener
	accepted chan net.Conn

	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a Server bound to node, listening on listen (host:port).
func New(node *xhubnode.Node, listen string, log *logging.Logger) *Server {
	if log == nil {
		log = logging.GetDefault()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		node:     node,
		log:      log.Component("xhubserver"),
		listen:   listen,
		accepted: make(chan net.Conn, acceptQueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start opens the listening socket and launches the accept loop, the
// worker pool, and the wallet-list heartbeat. It returns once the socket
// is bound; serving happens in background goroutines.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.listen, err)
	}
	s.listener = ln

	for i := 0; i < workerCount; i++ {
		go s.worker(i)
	}
	go s.acceptLoop()
	go s.heartbeat()

	s.log.Info("xhubserver listening", "addr", s.listen, "workers", workerCount)
	return nil
}

// Stop closes the listener and stops all background goroutines. In-flight
// sessions are closed as their connections are torn down.
func (s *Server) Stop() {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.log.Info("xhubserver stopped")
}

// acceptLoop accepts connections and hands them to the worker pool. A
// transient accept error is logged and retried after a short pause; Stop's
// listener Close (or any other close of the listener) causes Accept to
// return an error that ends the loop.
func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				s.log.Warn("listener closed, accept loop ending", "err", err)
				return
			}
			s.log.Warn("accept failed, retrying", "err", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}

		select {
		case s.accepted <- conn:
		case <-s.ctx.Done():
			conn.Close()
			return
		}
	}
}

// worker is one of workerCount goroutines draining the shared accepted
// channel. Whichever worker is free takes the next connection and serves
// that session until it ends; connections are not assigned in strict
// rotation.
func (s *Server) worker(id int) {
	log := s.log.WithPrefix(fmt.Sprintf("worker-%d", id))
	for {
		select {
		case conn, ok := <-s.accepted:
			if !ok {
				return
			}
			s.serve(conn, log)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Server) serve(conn net.Conn, log *logging.Logger) {
	sess := session.New(conn, s.node, log)
	s.node.AttachSession(s.ctx, sess)
}

// heartbeat broadcasts the wallet list on a fixed interval, per spec §4.7.
func (s *Server) heartbeat() {
	ticker := time.NewTicker(walletListInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.node.BroadcastWalletList()
		case <-s.ctx.Done():
			return
		}
	}
}

// Addr returns the bound listener address, or nil if Start has not run.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
