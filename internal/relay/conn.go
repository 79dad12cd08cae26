package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	backoffBase  = 1 * time.Second
	backoffMax   = 30 * time.Second
)

// relayConn maintains one WebSocket connection to a single relay, redialing
// with exponential backoff for as long as the node is running.
type relayConn struct {
	url  string
	node *Node

	mu sync.Mutex // guards ws; gorilla allows only one concurrent writer
	ws *websocket.Conn
	up atomic.Bool
}

func newRelayConn(url string, node *Node) *relayConn {
	return &relayConn{url: url, node: node}
}

// maintain runs the dial/subscribe/read loop until the node halts.
func (c *relayConn) maintain() {
	failures := 0
	for {
		select {
		case <-c.node.HaltCh():
			return
		default:
		}
		err := c.runOnce()
		wasUp := c.up.Load()
		c.up.Store(false)
		if wasUp {
			failures = 1
		} else {
			failures++
		}
		if err != nil {
			c.node.emit(Closed{Relay: c.url, Err: err})
		}
		if !c.backoff(failures) {
			return
		}
	}
}

func (c *relayConn) runOnce() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.node.cfg.ConnectTimeout)
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	cancel()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()

	// watch for halt so a blocked read unsticks promptly
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-c.node.HaltCh():
			_ = ws.Close()
		case <-done:
		}
	}()

	if err := c.writeFrame(frame{Type: frameSubscribe, Key: c.node.cfg.SelfPubkey}); err != nil {
		_ = ws.Close()
		return err
	}
	c.up.Store(true)
	c.node.signalReady()
	c.node.emit(Ready{Relay: c.url})

	for {
		var f frame
		if err := ws.ReadJSON(&f); err != nil {
			c.mu.Lock()
			c.ws = nil
			c.mu.Unlock()
			_ = ws.Close()
			return err
		}
		c.node.handleFrame(c, f)
	}
}

func (c *relayConn) writeFrame(f frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return ErrNoRelay
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(f)
}

func (c *relayConn) close() {
	c.up.Store(false)
	c.mu.Lock()
	if c.ws != nil {
		_ = c.ws.Close()
		c.ws = nil
	}
	c.mu.Unlock()
}

func (c *relayConn) backoff(failures int) bool {
	d := backoffBase
	if failures > 1 {
		d = d * time.Duration(1<<uint(failures-1))
	}
	if d > backoffMax || d <= 0 {
		d = backoffMax
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.node.HaltCh():
		return false
	case <-t.C:
		return true
	}
}
