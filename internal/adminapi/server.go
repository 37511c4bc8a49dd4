// Package adminapi implements the thin admin/UI event surface: GET /state,
// GET /search/{id}, POST /send, GET /events, and a GET /ws event stream.
// This is diagnostic tooling, not a trading client. POST /send is its one
// write path: it hands a raw wire frame to the node's Send, so a frame
// addressed to the node's own id is dispatched locally like a peer's packet.
package adminapi

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/atcsecure/xhub/internal/adminstore"
	"github.com/atcsecure/xhub/internal/exchange"
	"github.com/atcsecure/xhub/internal/wireproto"
	"github.com/atcsecure/xhub/internal/xhubnode"
	"github.com/atcsecure/xhub/pkg/logging"
)

// Node is the subset of *xhubnode.Node this surface depends on.
type Node interface {
	DumpState() xhubnode.DumpState
	Search(id wireproto.TxId) (*exchange.Transaction, bool)
	SendRaw(dst wireproto.NetworkId, data []byte) error
}

// Server is the admin HTTP+WebSocket surface.
type Server struct {
	node  Node
	store *adminstore.Store
	log   *logging.Logger
	hub   *EventHub

	server   *http.Server
	listener net.Listener
}

// New constructs a Server. store may be nil: audit rows are then simply
// not recorded.
func New(node Node, store *adminstore.Store, log *logging.Logger) *Server {
	if log == nil {
		log = logging.GetDefault()
	}
	return &Server{
		node:  node,
		store: store,
		log:   log.Component("adminapi"),
		hub:   NewEventHub(log, store),
	}
}

// Hub exposes the event hub so callers can publish lifecycle events to it
// directly; the node itself publishes through EventSink instead.
func (s *Server) Hub() *EventHub {
	return s.hub
}

// EventSink adapts the hub to xhubnode.EventSink, letting a *xhubnode.Node
// publish lifecycle events without importing this package.
type EventSink struct {
	hub *EventHub
}

// EventSink returns the xhubnode.EventSink for s.Hub(), for wiring via
// (*xhubnode.Node).SetEventSink.
func (s *Server) EventSink() *EventSink {
	return &EventSink{hub: s.hub}
}

// Publish satisfies xhubnode.EventSink.
func (e *EventSink) Publish(eventType string, data map[string]any) {
	e.hub.Publish(EventType(eventType), data)
}

// Start binds listen and begins serving. It returns once the socket is
// bound; requests are served in a background goroutine.
func (s *Server) Start(listen string) error {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listen, err)
	}
	s.listener = ln

	go s.hub.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("GET /search/{id}", s.handleSearch)
	mux.HandleFunc("POST /send", s.handleSend)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /ws", s.handleWS)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("adminapi server error", "err", err)
		}
	}()

	s.log.Info("adminapi listening", "addr", listen)
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Addr returns the bound listener address, or nil if Start has not run.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// stateView is the JSON shape returned by GET /state.
type stateView struct {
	MyID    string   `json:"my_id"`
	Peers   []string `json:"peers"`
	Pending []txView `json:"pending"`
	Active  []txView `json:"active"`
}

type txView struct {
	ID           string `json:"id"`
	State        string `json:"state"`
	SourceAddr   string `json:"source_addr"`
	DestAddr     string `json:"dest_addr"`
	SourceCcy    string `json:"source_currency"`
	DestCcy      string `json:"dest_currency"`
	SourceAmount uint64 `json:"source_amount"`
	DestAmount   uint64 `json:"dest_amount"`
}

func toTxView(tx *exchange.Transaction) txView {
	first := tx.First()
	return txView{
		ID:           tx.ID().String(),
		State:        tx.State().String(),
		SourceAddr:   first.Source.String(),
		DestAddr:     first.Dest.String(),
		SourceCcy:    tx.SourceCurrency(),
		DestCcy:      tx.DestCurrency(),
		SourceAmount: tx.SourceAmount(),
		DestAmount:   tx.DestAmount(),
	}
}

// handleState is the admin analogue of on_dump_state.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	dump := s.node.DumpState()

	view := stateView{
		MyID:    dump.MyID.String(),
		Peers:   make([]string, 0, len(dump.Peers)),
		Pending: make([]txView, 0, len(dump.Pending)),
		Active:  make([]txView, 0, len(dump.Active)),
	}
	for _, p := range dump.Peers {
		view.Peers = append(view.Peers, p.String())
	}
	for _, tx := range dump.Pending {
		view.Pending = append(view.Pending, toTxView(tx))
	}
	for _, tx := range dump.Active {
		view.Active = append(view.Active, toTxView(tx))
	}

	writeJSON(w, http.StatusOK, view)
}

// handleSearch is the admin analogue of on_search(id).
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	raw, err := hex.DecodeString(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "id must be hex")
		return
	}
	id, ok := wireproto.TxIdFromBytes(raw)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("id must be %d bytes", wireproto.TxIdSize))
		return
	}

	tx, ok := s.node.Search(id)
	if !ok {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}
	writeJSON(w, http.StatusOK, toTxView(tx))
}

// sendRequest is the POST /send body: an arbitrary wire frame routed to
// dst exactly as Node.Send routes it (local dispatch when dst is the node's
// own id, broadcast when dst is zero, unicast otherwise).
type sendRequest struct {
	Dst  string `json:"dst"`
	Data string `json:"data"` // hex-encoded raw wire frame
}

// handleSend is the admin analogue of on_send(dst, bytes). When a store is
// attached, every request that reaches SendRaw is audited via adminstore,
// success or failure; requests rejected as malformed are not recorded.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	dstRaw, err := hex.DecodeString(req.Dst)
	if err != nil {
		writeError(w, http.StatusBadRequest, "dst must be hex")
		return
	}
	dst, ok := wireproto.NetworkIdFromBytes(dstRaw)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("dst must be %d bytes", wireproto.NetworkIdSize))
		return
	}

	data, err := hex.DecodeString(req.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "data must be hex")
		return
	}

	sendErr := s.node.SendRaw(dst, data)
	if s.store != nil {
		if err := s.store.RecordSend(req.Dst, len(data), sendErr); err != nil {
			s.log.Warn("failed to audit send", "err", err)
		}
	}
	if sendErr != nil {
		writeError(w, http.StatusInternalServerError, sendErr.Error())
		return
	}

	s.hub.Publish(EventSendInjected, map[string]any{"dst": req.Dst, "bytes": len(data)})
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// handleEvents returns recent audit rows from the events table (newest
// first), honoring an optional ?limit= query parameter. If no store is
// attached the endpoint reports an empty history rather than failing.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, []adminstore.Event{})
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := s.store.RecentEvents(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
