// Package session is the participant-side runtime: one websocket to the
// signaling server, a mesh of peer links toward every roommate and a playback
// controller kept in step with the room's shared record.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrClientClosed = errors.New("signal client closed")

// FrameHandler receives every frame that no pending request claimed.
type FrameHandler func(frameType string, data json.RawMessage)

type inbound struct {
	Type string
	Data json.RawMessage
}

type waiter struct {
	ch    chan inbound
	types []string
}

// Client is a thin request/reply layer over the signaling websocket. Replies
// carry no correlation ids, so requests are matched by reply frame type, in
// FIFO order per type.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string][]*waiter
	closed  bool

	onFrame FrameHandler
	done    chan struct{}
}

// Dial connects to the signaling endpoint. Run must be called to start the
// read loop before any request is issued.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signal endpoint: %w", err)
	}
	return &Client{
		conn:    conn,
		pending: make(map[string][]*waiter),
		done:    make(chan struct{}),
	}, nil
}

// OnFrame installs the handler for unsolicited frames. Set before Run.
func (c *Client) OnFrame(fn FrameHandler) { c.onFrame = fn }

// Run reads frames until the connection or ctx dies.
func (c *Client) Run(ctx context.Context) {
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("module", "session").Msg("read loop done")
			return
		}
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Err(err).Str("module", "session").Msg("bad frame")
			continue
		}
		c.route(env.Type, data)
	}
}

func (c *Client) route(frameType string, data json.RawMessage) {
	c.mu.Lock()
	if ws := c.pending[frameType]; len(ws) > 0 {
		w := ws[0]
		c.removeWaiterLocked(w)
		c.mu.Unlock()
		w.ch <- inbound{Type: frameType, Data: data}
		return
	}
	c.mu.Unlock()

	if c.onFrame != nil {
		c.onFrame(frameType, data)
	}
}

func (c *Client) removeWaiterLocked(w *waiter) {
	for _, t := range w.types {
		ws := c.pending[t]
		for i, cand := range ws {
			if cand == w {
				c.pending[t] = append(ws[:i], ws[i+1:]...)
				break
			}
		}
	}
}

// Send marshals and writes one frame.
func (c *Client) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Request sends v and waits for the first frame whose type is replyType, or
// an error frame, whichever the server emits first.
func (c *Client) Request(ctx context.Context, v any, replyType string) (json.RawMessage, error) {
	w := &waiter{
		ch:    make(chan inbound, 1),
		types: []string{replyType, "error"},
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	for _, t := range w.types {
		c.pending[t] = append(c.pending[t], w)
	}
	c.mu.Unlock()

	if err := c.Send(v); err != nil {
		c.mu.Lock()
		c.removeWaiterLocked(w)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		c.removeWaiterLocked(w)
		c.mu.Unlock()
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClientClosed
	case in := <-w.ch:
		if in.Type == "error" {
			var e struct {
				Error string `json:"error"`
			}
			_ = json.Unmarshal(in.Data, &e)
			return nil, fmt.Errorf("server rejected request: %s", e.Error)
		}
		return in.Data, nil
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()
	_ = c.conn.Close()
}
