package xhubserver

import (
	"net"
	"testing"
	"time"

	"github.com/atcsecure/xhub/internal/exchange"
	"github.com/atcsecure/xhub/internal/walletregistry"
	"github.com/atcsecure/xhub/internal/wireproto"
	"github.com/atcsecure/xhub/internal/xhubnode"
)

func addr(b byte) wireproto.NetworkId {
	var n wireproto.NetworkId
	for i := range n {
		n[i] = b
	}
	return n
}

func newTestServer(t *testing.T) (*Server, *xhubnode.Node) {
	t.Helper()
	reg := walletregistry.Load(nil, nil)
	node := xhubnode.New(addr(0xEE), exchange.New(reg, nil), reg, nil)
	srv := New(node, "127.0.0.1:0", nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv, node
}

func TestServerAcceptsAndRegistersAnnouncedPeer(t *testing.T) {
	srv, node := newTestServer(t)

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	pkt := wireproto.NewPacket(wireproto.CmdAnnounceAddresses)
	pkt.Append(wireproto.EncodeAnnounceAddresses(wireproto.AnnounceAddressesPayload{AnnouncerId: addr(0x01)}))
	if _, err := conn.Write(pkt.Bytes()); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		dump := node.DumpState()
		if len(dump.Peers) == 1 && dump.Peers[0] == addr(0x01) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected announced peer to be registered within the deadline")
}

func TestServerClosesSessionOnMalformedPacket(t *testing.T) {
	srv, _ := newTestServer(t)

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	// Unknown command, empty body: the dispatcher rejects it and the
	// session closes the connection.
	pkt := wireproto.NewPacket(wireproto.Command(250))
	if _, err := conn.Write(pkt.Bytes()); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	if err == nil {
		t.Fatal("expected connection to be closed by the server")
	}
}
