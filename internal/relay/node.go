package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	golog "gopkg.in/op/go-logging.v1"

	"shardsign/internal/logging"
	"shardsign/internal/worker"
)

const (
	defaultConnectTimeout = 15 * time.Second
	defaultRequestTimeout = 30 * time.Second
	defaultPingTimeout    = 10 * time.Second

	eventBuf = 128
)

// Config carries the parameters for a relay node.
type Config struct {
	// Relays is the list of ws:// or wss:// relay URLs to maintain
	// connections to. At least one is required.
	Relays []string

	// SelfPubkey is the key all relays are asked to deliver frames for.
	SelfPubkey string

	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	PingTimeout    time.Duration
}

func (c *Config) applyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = defaultPingTimeout
	}
}

// Node multiplexes a set of relay connections behind one event stream.
// Construction, listener attachment and dialing are separate steps: New
// never touches the network, so callers can range over Events before
// Connect fires the first dial. Events delivered before a consumer is
// attached would otherwise be lost.
type Node struct {
	worker.Worker

	cfg    Config
	log    *golog.Logger
	events chan Event

	conns []*relayConn

	readyOnce sync.Once
	readyCh   chan struct{}

	inboxMu sync.Mutex
	inboxes map[string]chan *Envelope

	closeOnce sync.Once
}

// New builds a node for cfg without dialing anything.
func New(cfg Config, backend *logging.Backend) (*Node, error) {
	if len(cfg.Relays) == 0 {
		return nil, ErrNoRelay
	}
	if cfg.SelfPubkey == "" {
		return nil, errors.New("relay: missing self pubkey")
	}
	cfg.applyDefaults()
	n := &Node{
		cfg:     cfg,
		log:     backend.GetLogger("relay"),
		events:  make(chan Event, eventBuf),
		readyCh: make(chan struct{}),
		inboxes: make(map[string]chan *Envelope),
	}
	for _, url := range cfg.Relays {
		n.conns = append(n.conns, newRelayConn(url, n))
	}
	return n, nil
}

// Events returns the stream of transport events. It is valid, and expected,
// to start consuming before Connect is called.
func (n *Node) Events() <-chan Event {
	return n.events
}

// Connect dials all configured relays concurrently and returns once at least
// one subscription is live, or with an error when the context expires first.
// Remaining relays keep dialing in the background either way.
func (n *Node) Connect(ctx context.Context) error {
	for _, c := range n.conns {
		c := c
		n.Go(c.maintain)
	}
	select {
	case <-n.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-n.HaltCh():
		return ErrHalted
	}
}

// Publish fans the envelope out to recipient via every live relay. It
// succeeds when at least one relay accepted the frame; the joined per-relay
// errors are returned only when all of them failed.
func (n *Node) Publish(env Envelope, recipient string) error {
	f := frame{
		Type:     framePublish,
		To:       recipient,
		From:     n.cfg.SelfPubkey,
		Envelope: &env,
	}
	return n.fanOut(f)
}

// Reply answers an inbound request on its inbox. Unlike Publish the reply is
// routed to a single inbox and never fans out to other holders of the key.
func (n *Node) Reply(inbox, recipient string, env Envelope) error {
	f := frame{
		Type:     frameReply,
		To:       recipient,
		Inbox:    inbox,
		Envelope: &env,
	}
	return n.fanOut(f)
}

// Request sends env to recipient and waits for the single routed reply.
func (n *Node) Request(ctx context.Context, env Envelope, recipient string) (*Envelope, error) {
	inbox := newID()
	ch := n.registerInbox(inbox)
	defer n.unregisterInbox(inbox)

	f := frame{
		Type:     frameRequest,
		To:       recipient,
		From:     n.cfg.SelfPubkey,
		Inbox:    inbox,
		Envelope: &env,
	}
	if err := n.fanOut(f); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.RequestTimeout)
	defer cancel()
	select {
	case reply := <-ch:
		if reply == nil {
			return nil, ErrEmptyReply
		}
		return reply, nil
	case <-ctx.Done():
		return nil, ErrRequestTimeout
	case <-n.HaltCh():
		return nil, ErrHalted
	}
}

// PingResult is the outcome of a transport-level liveness probe.
type PingResult struct {
	Pubkey  string
	Success bool
	Latency time.Duration
	Err     error
}

// PingPeer probes a single peer and reports whether any of its devices
// answered within the ping timeout.
func (n *Node) PingPeer(ctx context.Context, pubkey string) PingResult {
	inbox := newID()
	ch := n.registerInbox(inbox)
	defer n.unregisterInbox(inbox)

	start := time.Now()
	f := frame{
		Type:  framePing,
		To:    pubkey,
		From:  n.cfg.SelfPubkey,
		Inbox: inbox,
	}
	if err := n.fanOut(f); err != nil {
		return PingResult{Pubkey: pubkey, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.PingTimeout)
	defer cancel()
	select {
	case <-ch:
		return PingResult{Pubkey: pubkey, Success: true, Latency: time.Since(start)}
	case <-ctx.Done():
		return PingResult{Pubkey: pubkey, Err: ErrRequestTimeout}
	case <-n.HaltCh():
		return PingResult{Pubkey: pubkey, Err: ErrHalted}
	}
}

// PingMany probes all given peers concurrently.
func (n *Node) PingMany(ctx context.Context, pubkeys []string) []PingResult {
	results := make([]PingResult, len(pubkeys))
	var wg sync.WaitGroup
	for i, pk := range pubkeys {
		wg.Add(1)
		go func(i int, pk string) {
			defer wg.Done()
			results[i] = n.PingPeer(ctx, pk)
		}(i, pk)
	}
	wg.Wait()
	return results
}

// Shutdown tears down every relay connection and waits for the workers to
// exit. It is idempotent.
func (n *Node) Shutdown() {
	n.closeOnce.Do(func() {
		n.Halt()
		for _, c := range n.conns {
			c.close()
		}
		n.Wait()
		close(n.events)
	})
}

func (n *Node) fanOut(f frame) error {
	var errs []error
	sent := 0
	for _, c := range n.conns {
		if !c.up.Load() {
			continue
		}
		if err := c.writeFrame(f); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}
	if sent > 0 {
		return nil
	}
	if len(errs) == 0 {
		return ErrNoRelay
	}
	return errors.Join(errs...)
}

func (n *Node) handleFrame(c *relayConn, f frame) {
	switch f.Type {
	case frameMessage:
		if f.Envelope == nil {
			n.log.Debugf("dropping message frame without envelope from %s", c.url)
			return
		}
		n.emit(Message{From: f.From, Envelope: *f.Envelope})
	case frameRequest:
		if f.Envelope == nil || f.Inbox == "" {
			n.log.Debugf("dropping malformed request frame from %s", c.url)
			return
		}
		n.emit(Request{From: f.From, Inbox: f.Inbox, Envelope: *f.Envelope})
	case frameInbox:
		// a pong carries no envelope, an inbox reply must
		if f.Envelope == nil {
			n.log.Debugf("dropping inbox frame without envelope from %s", c.url)
			return
		}
		n.routeInbox(f.Inbox, f.Envelope)
	case framePong:
		n.routeInbox(f.Inbox, nil)
	case framePing:
		// answered at the transport level; liveness says nothing about
		// session state above us
		pong := frame{Type: framePong, To: f.From, Inbox: f.Inbox}
		if err := c.writeFrame(pong); err != nil {
			n.log.Debugf("pong to %s failed: %v", f.From, err)
		}
	default:
		n.log.Debugf("unknown frame type %q from %s", f.Type, c.url)
	}
}

func (n *Node) routeInbox(inbox string, env *Envelope) {
	if inbox == "" {
		return
	}
	n.inboxMu.Lock()
	ch, ok := n.inboxes[inbox]
	n.inboxMu.Unlock()
	if !ok {
		n.log.Debugf("dropping reply for unknown inbox %s", inbox)
		return
	}
	select {
	case ch <- env:
	default:
	}
}

func (n *Node) registerInbox(inbox string) chan *Envelope {
	ch := make(chan *Envelope, 1)
	n.inboxMu.Lock()
	n.inboxes[inbox] = ch
	n.inboxMu.Unlock()
	return ch
}

func (n *Node) unregisterInbox(inbox string) {
	n.inboxMu.Lock()
	delete(n.inboxes, inbox)
	n.inboxMu.Unlock()
}

func (n *Node) signalReady() {
	n.readyOnce.Do(func() { close(n.readyCh) })
}

func (n *Node) emit(e Event) {
	select {
	case n.events <- e:
	case <-n.HaltCh():
	}
}
