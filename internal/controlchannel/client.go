// Package controlchannel is the agent's connection to the remote cloud
// controller: a full-duplex framed message stream,
// one JSON object per frame, read by internal/dispatch. Mutual-TLS
// termination and keepalive belong to an external collaborator; this
// package dials a plain stream transport and expects a reverse proxy or
// sidecar to have already terminated TLS. Bounded retry-with-sleep dial
// loop, a single encoder/decoder pair guarded by a write mutex, and a
// periodic heartbeat decoupled from the read loop.
package controlchannel

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/edgefleet/orchestrator-agent/internal/dispatch"
	"github.com/edgefleet/orchestrator-agent/internal/minilog"
)

// Retries/RetryInterval bound the dial loop, matching miniccc's dial.go
// (480 retries at 15s each there; this repo's control channel is expected
// to sit behind a local proxy, so the interval is much shorter).
const (
	Retries       = 40
	RetryInterval = 5 * time.Second
)

// Config names the transport to dial. Family is "tcp" or "unix", matching
// cmd/miniccc's -family flag; Addr is "host:port" for tcp or a socket
// path for unix.
type Config struct {
	Family string
	Addr   string
}

// Client owns the control-channel connection and the encode/decode pair
// built on top of it. The dispatcher routes every decoded frame.
type Client struct {
	cfg        Config
	dispatcher *dispatch.Dispatcher

	writeMu sync.Mutex
	conn    net.Conn
	enc     *json.Encoder
}

func New(cfg Config, dispatcher *dispatch.Dispatcher) *Client {
	return &Client{cfg: cfg, dispatcher: dispatcher}
}

// Run dials, reads frames, and dispatches them until stop is closed,
// reconnecting every RetryInterval on loss.
func (c *Client) Run(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		conn, err := c.dial(stop)
		if err != nil {
			minilog.Error("controlchannel: giving up dialing %s: %v", c.cfg.Addr, err)
			return
		}
		if conn == nil {
			return // stop was closed mid-dial
		}

		c.serve(ctx, conn, stop)

		select {
		case <-stop:
			return
		case <-time.After(RetryInterval):
		}
	}
}

func (c *Client) dial(stop <-chan struct{}) (net.Conn, error) {
	var err error
	for i := Retries; i > 0; i-- {
		select {
		case <-stop:
			return nil, nil
		default:
		}

		var conn net.Conn
		conn, err = net.Dial(c.cfg.Family, c.cfg.Addr)
		if err != nil {
			minilog.Warn("controlchannel: dial %s failed, retries=%d: %v", c.cfg.Addr, i-1, err)
			time.Sleep(RetryInterval)
			continue
		}
		return conn, nil
	}
	return nil, fmt.Errorf("exhausted retries dialing %s: %w", c.cfg.Addr, err)
}

func (c *Client) serve(ctx context.Context, conn net.Conn, stop <-chan struct{}) {
	minilog.Info("controlchannel: connected to %s", c.cfg.Addr)

	c.writeMu.Lock()
	c.conn = conn
	c.enc = json.NewEncoder(conn)
	c.writeMu.Unlock()

	defer func() {
		conn.Close()
		c.writeMu.Lock()
		c.conn = nil
		c.enc = nil
		c.writeMu.Unlock()
		minilog.Warn("controlchannel: disconnected from %s", c.cfg.Addr)
	}()

	go func() {
		<-stop
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		select {
		case <-stop:
			return
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		c.handleFrame(ctx, line)
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		minilog.Warn("controlchannel: read error: %v", err)
	}
}

func (c *Client) handleFrame(ctx context.Context, line []byte) {
	var frame struct {
		Topic   string                 `json:"topic"`
		Payload map[string]interface{} `json:"payload"`
	}
	if err := json.Unmarshal(line, &frame); err != nil {
		minilog.Warn("controlchannel: could not decode frame: %v", err)
		return
	}
	if frame.Topic == "" {
		minilog.Warn("controlchannel: frame carries no topic field, dropping")
		return
	}
	if frame.Payload == nil {
		frame.Payload = map[string]interface{}{}
	}

	result, ok := c.dispatcher.Dispatch(ctx, frame.Topic, frame.Payload)
	if !ok {
		return
	}
	if err := c.Send(result); err != nil {
		minilog.Error("controlchannel: failed to send reply for %s: %v", frame.Topic, err)
	}
}

// Send writes one JSON frame, one object per frame. Safe to call
// concurrently with Run's own reads.
func (c *Client) Send(v map[string]interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.enc == nil {
		return fmt.Errorf("controlchannel: not connected")
	}
	return c.enc.Encode(v)
}

// SendTopic adapts Send to dispatch.Heartbeat's Send signature: it stamps
// action onto payload before writing the frame, mirroring how the
// dispatcher stamps action onto every reply.
func (c *Client) SendTopic(topic string, payload map[string]interface{}) error {
	out := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	out["action"] = topic
	return c.Send(out)
}

// Connected reports whether a live connection is currently held.
func (c *Client) Connected() bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn != nil
}
