package adminapi

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atcsecure/xhub/internal/adminstore"
	"github.com/atcsecure/xhub/internal/exchange"
	"github.com/atcsecure/xhub/internal/wireproto"
	"github.com/atcsecure/xhub/internal/xhubnode"
)

type fakeNode struct {
	dump     xhubnode.DumpState
	found    *exchange.Transaction
	sendErr  error
	lastDst  wireproto.NetworkId
	lastData []byte
}

func (n *fakeNode) DumpState() xhubnode.DumpState { return n.dump }

func (n *fakeNode) Search(id wireproto.TxId) (*exchange.Transaction, bool) {
	if n.found == nil {
		return nil, false
	}
	return n.found, true
}

func (n *fakeNode) SendRaw(dst wireproto.NetworkId, data []byte) error {
	n.lastDst = dst
	n.lastData = data
	return n.sendErr
}

func addr(b byte) wireproto.NetworkId {
	var a wireproto.NetworkId
	for i := range a {
		a[i] = b
	}
	return a
}

func txid(b byte) wireproto.TxId {
	var t wireproto.TxId
	for i := range t {
		t[i] = b
	}
	return t
}

func newTestServer(node Node) *Server {
	return New(node, nil, nil)
}

func TestHandleStateReturnsNodeSnapshot(t *testing.T) {
	tx := exchange.NewTransaction(txid(0x01), addr(0x01), "BTC", 100, addr(0x02), "LTC", 500)

	fn := &fakeNode{dump: xhubnode.DumpState{
		MyID:    addr(0xEE),
		Peers:   []wireproto.NetworkId{addr(0x01)},
		Pending: []*exchange.Transaction{tx},
	}}
	s := newTestServer(fn)

	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	rec := httptest.NewRecorder()
	s.handleState(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var view stateView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if view.MyID != addr(0xEE).String() {
		t.Errorf("expected my_id %s, got %s", addr(0xEE).String(), view.MyID)
	}
	if len(view.Peers) != 1 || len(view.Pending) != 1 {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestHandleSearchFound(t *testing.T) {
	tx := exchange.NewTransaction(txid(0x01), addr(0x01), "BTC", 100, addr(0x02), "LTC", 500)
	fn := &fakeNode{found: tx}
	s := newTestServer(fn)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /search/{id}", s.handleSearch)

	req := httptest.NewRequest(http.MethodGet, "/search/"+tx.ID().String(), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleSearchNotFound(t *testing.T) {
	fn := &fakeNode{}
	s := newTestServer(fn)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /search/{id}", s.handleSearch)

	req := httptest.NewRequest(http.MethodGet, "/search/"+txid(0xFF).String(), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleSearchRejectsMalformedID(t *testing.T) {
	fn := &fakeNode{}
	s := newTestServer(fn)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /search/{id}", s.handleSearch)

	req := httptest.NewRequest(http.MethodGet, "/search/notHex!!", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleSendInjectsRawFrame(t *testing.T) {
	fn := &fakeNode{}
	s := newTestServer(fn)

	body := sendRequest{
		Dst:  addr(0x01).String(),
		Data: hex.EncodeToString([]byte("hello")),
	}
	buf, _ := json.Marshal(body)

	req := httptest.NewRequest(http.MethodPost, "/send", bytes.NewReader(buf))
	rec := httptest.NewRecorder()
	s.handleSend(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if fn.lastDst != addr(0x01) {
		t.Errorf("expected dst to be forwarded to node, got %v", fn.lastDst)
	}
	if string(fn.lastData) != "hello" {
		t.Errorf("expected decoded payload, got %q", fn.lastData)
	}
}

func newTestStore(t *testing.T) *adminstore.Store {
	t.Helper()
	store, err := adminstore.New(&adminstore.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPublishRecordsAuditRowWhenStoreAttached(t *testing.T) {
	store := newTestStore(t)
	hub := NewEventHub(nil, store)

	hub.Publish(EventTransactionJoined, map[string]any{"id": txid(0xAA).String()})

	events, err := store.RecentEvents(10)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(events))
	}
	if events[0].EventType != string(EventTransactionJoined) {
		t.Errorf("expected event_type %q, got %q", EventTransactionJoined, events[0].EventType)
	}
	if events[0].TxID != txid(0xAA).String() {
		t.Errorf("expected tx_id %q, got %q", txid(0xAA).String(), events[0].TxID)
	}
}

func TestHandleEventsReturnsAuditHistory(t *testing.T) {
	store := newTestStore(t)
	fn := &fakeNode{}
	s := New(fn, store, nil)

	s.hub.Publish(EventPeerConnected, map[string]any{"peer": addr(0x01).String()})

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()
	s.handleEvents(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var events []adminstore.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(events) != 1 || events[0].PeerID != addr(0x01).String() {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestHandleEventsWithNoStoreReturnsEmptyHistory(t *testing.T) {
	fn := &fakeNode{}
	s := newTestServer(fn)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()
	s.handleEvents(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var events []adminstore.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %+v", events)
	}
}

func TestHandleSendRejectsBadHex(t *testing.T) {
	fn := &fakeNode{}
	s := newTestServer(fn)

	body := sendRequest{Dst: "not-hex", Data: "00"}
	buf, _ := json.Marshal(body)

	req := httptest.NewRequest(http.MethodPost, "/send", bytes.NewReader(buf))
	rec := httptest.NewRecorder()
	s.handleSend(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
