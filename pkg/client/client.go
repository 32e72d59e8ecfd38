// Package client implements a websocket client for the agentdeck protocol:
// correlated command/response calls, a broadcast event stream, and optional
// automatic dialog replies.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/agentdeck/agentdeck/pkg/protocol"
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("client closed")

// DialogHandler answers an extension_ui_request. Returning cancelled=true
// declines the dialog; the server falls back to the kind's safe default.
type DialogHandler func(req protocol.UIRequest) (value string, confirmed bool, cancelled bool)

// Config holds client configuration.
type Config struct {
	// URL is the websocket endpoint, e.g. ws://127.0.0.1:8080/ws.
	URL string

	// Token is sent as a Bearer Authorization header when set.
	Token string

	// CallTimeout bounds a single Call. Zero means 30 seconds.
	CallTimeout time.Duration

	// EventBuffer sizes the Events channel. Zero means 256. Events are
	// dropped when the consumer falls behind.
	EventBuffer int

	// MaxDialElapsed bounds the initial dial's retry window. Zero means
	// 30 seconds.
	MaxDialElapsed time.Duration
}

// Client is one connection to an agentdeck server.
type Client struct {
	cfg Config

	ws     *websocket.Conn
	writeM sync.Mutex

	mu      sync.Mutex
	pending map[string]chan protocol.Response
	closed  bool

	events chan protocol.Event
	dialog DialogHandler

	done chan struct{}
}

// Dial connects to the server, retrying with exponential backoff until the
// context is cancelled or the retry window elapses.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}
	if cfg.MaxDialElapsed <= 0 {
		cfg.MaxDialElapsed = 30 * time.Second
	}

	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}

	var ws *websocket.Conn
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = cfg.MaxDialElapsed
	err := backoff.Retry(func() error {
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, header)
		if err != nil {
			// Auth and origin rejections will not heal on retry.
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				return backoff.Permanent(fmt.Errorf("dial %s: %s", cfg.URL, resp.Status))
			}
			return err
		}
		ws = conn
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:     cfg,
		ws:      ws,
		pending: make(map[string]chan protocol.Response),
		events:  make(chan protocol.Event, cfg.EventBuffer),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// OnDialog registers a handler that answers extension_ui_request events
// automatically. Must be set before the first request arrives.
func (c *Client) OnDialog(fn DialogHandler) {
	c.mu.Lock()
	c.dialog = fn
	c.mu.Unlock()
}

// Events returns the broadcast event stream. The channel closes when the
// connection dies.
func (c *Client) Events() <-chan protocol.Event {
	return c.events
}

// Call sends cmd and waits for its correlated Response. A missing id is
// filled in so the response can be routed back.
func (c *Client) Call(ctx context.Context, cmd protocol.Command) (protocol.Response, error) {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	ch := make(chan protocol.Response, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return protocol.Response{}, ErrClosed
	}
	c.pending[cmd.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, cmd.ID)
		c.mu.Unlock()
	}()

	if err := c.writeJSON(cmd); err != nil {
		return protocol.Response{}, err
	}

	timer := time.NewTimer(c.cfg.CallTimeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		return protocol.Response{}, fmt.Errorf("call %s: timed out", cmd.Type)
	case <-ctx.Done():
		return protocol.Response{}, ctx.Err()
	case <-c.done:
		return protocol.Response{}, ErrClosed
	}
}

// Send writes cmd without waiting for a Response.
func (c *Client) Send(cmd protocol.Command) error {
	return c.writeJSON(cmd)
}

// Close tears the connection down. Pending calls fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.ws.Close()
	<-c.done
	return err
}

func (c *Client) writeJSON(v any) error {
	c.writeM.Lock()
	defer c.writeM.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteJSON(v)
}

// readLoop routes inbound frames: responses to their pending call, events to
// the event channel, dialog requests to the handler.
func (c *Client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
		close(c.events)
		c.ws.Close()
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &probe); err != nil {
			continue
		}

		if probe.Type == "response" {
			var resp protocol.Response
			if err := json.Unmarshal(data, &resp); err != nil {
				continue
			}
			c.mu.Lock()
			ch := c.pending[resp.ID]
			c.mu.Unlock()
			if ch != nil {
				ch <- resp
			}
			continue
		}

		var ev protocol.Event
		if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
			continue
		}

		if ev.Type == protocol.EventExtensionUIRequest && ev.UIRequest != nil && ev.UIRequest.ID != "" {
			c.mu.Lock()
			handler := c.dialog
			c.mu.Unlock()
			if handler != nil {
				go c.answerDialog(handler, *ev.UIRequest)
			}
		}

		select {
		case c.events <- ev:
		default:
			// Consumer fell behind; dropping is better than stalling reads.
		}
	}
}

func (c *Client) answerDialog(handler DialogHandler, req protocol.UIRequest) {
	value, confirmed, cancelled := handler(req)
	reply := protocol.Command{
		Type:      protocol.CommandExtensionUIResponse,
		RequestID: req.ID,
		Cancelled: cancelled,
	}
	if !cancelled {
		reply.Confirmed = &confirmed
		if value != "" {
			raw, _ := json.Marshal(value)
			reply.Value = raw
		}
	}
	c.Send(reply)
}
