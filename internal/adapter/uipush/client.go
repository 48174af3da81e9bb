// Package uipush delivers agent execution events to the editor UI gateway
// over JSON-RPC. Delivery is best effort: the event log in the store is the
// source of truth, the push is only a latency optimization for the UI.
package uipush

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/rpc/jsonrpc"
	"net/url"
	"strings"
	"time"

	"github.com/cutline/orchestrator/internal/domain"
)

// queueSize bounds the number of undelivered events held for the gateway.
const queueSize = 256

type Client struct {
	addr        string
	dialTimeout time.Duration
	callTimeout time.Duration

	queue chan SendRequest
	done  chan struct{}
}

// NewClient creates a push client for the UI gateway and starts its delivery
// worker. An empty baseURL disables pushing entirely.
func NewClient(baseURL string) *Client {
	c := &Client{
		addr:        resolveRPCAddr(baseURL),
		dialTimeout: 5 * time.Second,
		callTimeout: 5 * time.Second,
	}
	if c.addr != "" {
		c.queue = make(chan SendRequest, queueSize)
		c.done = make(chan struct{})
		go c.deliver()
	}
	return c
}

// SendRequest is the request body for event delivery to the gateway.
type SendRequest struct {
	SessionID string            `json:"session_id"`
	Event     domain.AgentEvent `json:"event"`
}

// SendResponse is the gateway's delivery acknowledgement.
type SendResponse struct {
	OK        bool `json:"ok"`
	Delivered bool `json:"delivered"`
}

// PushEvent queues one event for asynchronous delivery and never blocks on
// the gateway. With no gateway configured it is a no-op; when the queue is
// full the event is dropped.
func (c *Client) PushEvent(sessionID string, event domain.AgentEvent) error {
	if c.queue == nil {
		return nil
	}
	select {
	case c.queue <- SendRequest{SessionID: sessionID, Event: event}:
		return nil
	default:
		log.Printf("WARN: ui gateway push queue is full, dropping event %s", event.EventID)
		return fmt.Errorf("push queue is full")
	}
}

// Close drains queued events and stops the delivery worker.
func (c *Client) Close() {
	if c.queue == nil {
		return
	}
	close(c.queue)
	<-c.done
}

func (c *Client) deliver() {
	defer close(c.done)
	for req := range c.queue {
		if err := c.send(&req); err != nil {
			log.Printf("WARN: failed to push event %s to ui gateway: %v", req.Event.EventID, err)
		}
	}
}

func (c *Client) send(req *SendRequest) error {
	var resp SendResponse
	ctx, cancel := context.WithTimeout(context.Background(), c.callTimeout)
	defer cancel()

	if err := c.call(ctx, "Gateway.PushEvent", req, &resp); err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("ui gateway rpc returned ok=false (delivered=%v)", resp.Delivered)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method string, args, reply interface{}) error {
	conn, err := net.DialTimeout("tcp", c.addr, c.dialTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else if c.callTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.callTimeout))
	}

	client := jsonrpc.NewClient(conn)
	call := client.Go(method, args, reply, nil)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-call.Done:
		return call.Error
	}
}

func resolveRPCAddr(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "://") {
		parsed, err := url.Parse(raw)
		if err == nil && parsed.Host != "" {
			return parsed.Host
		}
	}
	return raw
}
