package uipush

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"
	"testing"
	"time"

	"github.com/cutline/orchestrator/internal/domain"
)

type fakeGateway struct {
	mu  sync.Mutex
	got []SendRequest
}

func (g *fakeGateway) PushEvent(req *SendRequest, resp *SendResponse) error {
	g.mu.Lock()
	g.got = append(g.got, *req)
	g.mu.Unlock()
	resp.OK = true
	resp.Delivered = true
	return nil
}

func (g *fakeGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.got)
}

func startFakeGateway(t *testing.T) (*fakeGateway, string) {
	t.Helper()

	gw := &fakeGateway{}
	srv := rpc.NewServer()
	if err := srv.RegisterName("Gateway", gw); err != nil {
		t.Fatalf("failed to register gateway: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.ServeCodec(jsonrpc.NewServerCodec(conn))
		}
	}()
	return gw, ln.Addr().String()
}

func TestPushEventDeliversInBackground(t *testing.T) {
	gw, addr := startFakeGateway(t)

	c := NewClient(addr)
	defer c.Close()

	evt := domain.AgentEvent{
		EventID:   "evt_1",
		RequestID: "req_1",
		Ts:        time.Now().UnixMilli(),
		Type:      domain.EventTypeRequestStarted,
	}
	if err := c.PushEvent("sess-1", evt); err != nil {
		t.Fatalf("PushEvent failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for gw.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("event never reached the gateway")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPushEventWithoutGatewayIsNoop(t *testing.T) {
	c := NewClient("")
	if err := c.PushEvent("sess-1", domain.AgentEvent{EventID: "evt_1"}); err != nil {
		t.Fatalf("expected a no-op, got %v", err)
	}
	c.Close()
}

func TestPushEventDoesNotBlockOnUnreachableGateway(t *testing.T) {
	// Nothing listens on this port.
	c := NewClient("127.0.0.1:1")
	defer c.Close()

	start := time.Now()
	for i := 0; i < 10; i++ {
		_ = c.PushEvent("sess-1", domain.AgentEvent{EventID: "evt_x"})
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("PushEvent blocked for %v", elapsed)
	}
}
