package listener

import (
	"context"
	"net"
	"testing"
	"time"

	"incastgen/internal/bufpool"
	"incastgen/internal/plan"
	"incastgen/internal/pool"
	"incastgen/internal/timing"
	"incastgen/internal/wire"
)

func newTestPool(t *testing.T) (*pool.Pool, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	dial := func(ctx context.Context, ep pool.Endpoint) (net.Conn, error) { return client, nil }
	p := pool.New(pool.Endpoint{Addr: "h", Port: 1})
	if _, err := p.Insert(context.Background(), 1, dial); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return p, server
}

func TestRun_OrdinaryFlowStampsAndReleases(t *testing.T) {
	bufpool.Initialize(bufpool.DefaultSize)
	p, server := newTestPool(t)
	defer server.Close()
	nodes := p.Nodes()

	tt := timing.New(1, 1)
	fi := plan.NewFlowIndex(1)
	fi.Set(1, 0)

	done := make(chan struct{})
	go func() {
		Run(nodes[0], tt, fi, bufpool.TPool)
		close(done)
	}()

	hdr := wire.Header{FlowID: 1, FlowSize: 4, FlowTOS: 0, FlowRate: 0}
	if err := hdr.Write(server); err != nil {
		t.Fatalf("Write header: %v", err)
	}
	if _, err := server.Write([]byte("body")); err != nil {
		t.Fatalf("Write body: %v", err)
	}

	// Give the listener a moment to process, then send a terminator to end it.
	time.Sleep(20 * time.Millisecond)
	if tt.LoadFlowStop(1) == 0 {
		t.Fatal("flow stop time not stamped after payload delivered")
	}
	if tt.LoadReqStop(0) == 0 {
		t.Fatal("req stop time not stamped after payload delivered")
	}
	if p.AvailableLen() != 1 {
		t.Fatalf("AvailableLen = %d, want 1 after Release", p.AvailableLen())
	}

	term := wire.Header{FlowID: wire.Terminator}
	if err := term.Write(server); err != nil {
		t.Fatalf("Write terminator: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener did not exit after terminator")
	}
	if nodes[0].Connected() {
		t.Fatal("connection still connected after terminator")
	}
}

func TestRun_SocketErrorRetires(t *testing.T) {
	bufpool.Initialize(bufpool.DefaultSize)
	p, server := newTestPool(t)
	nodes := p.Nodes()
	tt := timing.New(1, 1)
	fi := plan.NewFlowIndex(1)

	done := make(chan struct{})
	go func() {
		Run(nodes[0], tt, fi, bufpool.TPool)
		close(done)
	}()

	server.Close() // abrupt close before any header arrives

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener did not exit after peer close")
	}
	if nodes[0].Connected() {
		t.Fatal("connection still connected after socket error")
	}
}
