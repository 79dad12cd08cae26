// Package signer implements the session controller. A controller owns at
// most one relay session at a time and walks it through a strict lifecycle:
// build the transport, attach the event consumer, then dial. Attaching before
// dialing means no inbound frame can slip past the dispatcher during startup.
package signer

import (
	"context"
	"errors"
	"sync"
	"time"

	golog "gopkg.in/op/go-logging.v1"

	"shardsign/internal/codec"
	"shardsign/internal/config"
	"shardsign/internal/logging"
	"shardsign/internal/metrics"
	"shardsign/internal/peers"
	"shardsign/internal/relay"
	"shardsign/internal/vault"
)

// State is the lifecycle phase of the controller's session.
type State string

const (
	StateStopped    State = "stopped"
	StateConnecting State = "connecting"
	StateRunning    State = "running"
)

var (
	ErrAlreadyStarted = errors.New("signer: session already started")
	ErrNotRunning     = errors.New("signer: no session running")
)

// transport is the slice of relay.Node the controller needs. Tests substitute
// their own.
type transport interface {
	Events() <-chan relay.Event
	Connect(ctx context.Context) error
	Publish(env relay.Envelope, recipient string) error
	Reply(inbox, recipient string, env relay.Envelope) error
	PingPeer(ctx context.Context, pubkey string) relay.PingResult
	PingMany(ctx context.Context, pubkeys []string) []relay.PingResult
	Shutdown()
}

// Controller drives the signer session lifecycle and serves peer operations.
type Controller struct {
	cfg        *config.Config
	logBackend *logging.Backend
	log        *golog.Logger
	metrics    *metrics.Metrics
	policies   *peers.Store
	tracker    *peers.Tracker

	newTransport func(relay.Config, *logging.Backend) (transport, error)

	mu      sync.Mutex
	state   State
	session *session
}

// New builds a stopped controller. policies may be nil when no policy file is
// configured.
func New(cfg *config.Config, backend *logging.Backend, policies *peers.Store, m *metrics.Metrics) *Controller {
	return &Controller{
		cfg:        cfg,
		logBackend: backend,
		log:        backend.GetLogger("signer"),
		metrics:    m,
		policies:   policies,
		tracker:    peers.NewTracker(),
		newTransport: func(rc relay.Config, b *logging.Backend) (transport, error) {
			return relay.New(rc, b)
		},
		state: StateStopped,
	}
}

// Start decodes the bundle's credentials, brings up the relay transport and
// runs the presence echo. The bundle's relay list is used when it has at
// least one valid URL; otherwise the configured defaults take over. Start
// fails if a session already exists.
func (c *Controller) Start(ctx context.Context, bundle *vault.Bundle) error {
	group, err := codec.DecodeGroup(bundle.GroupCredential)
	if err != nil {
		return err
	}
	share, err := codec.DecodeShare(bundle.ShareCredential)
	if err != nil {
		return err
	}
	self, err := codec.SelfPubkey(group, share)
	if err != nil {
		return err
	}

	relays, relayErrs := codec.ValidateRelayList(bundle.Relays)
	for _, e := range relayErrs {
		c.log.Warningf("ignoring relay: %s", e)
	}
	if len(relays) == 0 {
		relays = c.cfg.Relays
		c.log.Noticef("bundle has no usable relay, falling back to configured defaults")
	}

	c.mu.Lock()
	if c.state != StateStopped {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	node, err := c.newTransport(relay.Config{
		Relays:         relays,
		SelfPubkey:     self,
		ConnectTimeout: time.Duration(c.cfg.Timeouts.Connect) * time.Second,
		RequestTimeout: time.Duration(c.cfg.Timeouts.Request) * time.Second,
		PingTimeout:    time.Duration(c.cfg.Timeouts.Ping) * time.Second,
	}, c.logBackend)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	s := newSession(c, node, group, self)
	c.session = s
	c.state = StateConnecting
	c.mu.Unlock()

	// consumer attaches before the first dial fires
	s.Go(s.eventLoop)

	connectCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.Timeouts.Connect)*time.Second)
	defer cancel()
	if err := node.Connect(connectCtx); err != nil {
		node.Shutdown()
		s.Halt()
		c.mu.Lock()
		if c.session == s {
			c.session = nil
			c.state = StateStopped
		}
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	if c.session != s {
		// Stop won the race while we were dialing; the session is
		// already torn down and this call must not resurrect it.
		c.mu.Unlock()
		return ErrNotRunning
	}
	c.state = StateRunning
	c.mu.Unlock()

	c.log.Noticef("session running as %s, threshold %d of %d", self, group.Threshold, len(group.Commits))
	s.sendEcho()
	return nil
}

// Stop tears the session down. It is a no-op on a stopped controller and is
// safe to call from any state, including mid-Start.
func (c *Controller) Stop() {
	c.mu.Lock()
	s := c.session
	c.session = nil
	c.state = StateStopped
	c.mu.Unlock()
	if s == nil {
		return
	}
	s.node.Shutdown()
	s.Halt()
	c.log.Noticef("session stopped")
}

// State reports the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ListPeers returns the roster for the running session, with persisted policy
// merged in and last observed liveness overlaid.
func (c *Controller) ListPeers() ([]peers.Peer, error) {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return nil, ErrNotRunning
	}
	roster := peers.Derive(s.group, s.self, c.policies)
	c.tracker.Apply(roster)
	return roster, nil
}

// Ping probes one peer and records the outcome in the liveness tracker. A
// timeout or transport failure marks the peer offline.
func (c *Controller) Ping(ctx context.Context, pubkey string) (relay.PingResult, error) {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return relay.PingResult{}, ErrNotRunning
	}
	res := s.node.PingPeer(ctx, codec.NormalizePubkey(pubkey))
	if res.Success {
		c.metrics.IncPingOK()
	} else {
		c.metrics.IncPingFailed()
	}
	c.tracker.Mark(pubkey, res.Success)
	return res, nil
}

// RefreshAll probes every roster peer concurrently and returns the updated
// roster.
func (c *Controller) RefreshAll(ctx context.Context) ([]peers.Peer, error) {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return nil, ErrNotRunning
	}
	roster := peers.Derive(s.group, s.self, c.policies)
	pubkeys := make([]string, len(roster))
	for i, p := range roster {
		pubkeys[i] = p.Pubkey
	}
	for _, res := range s.node.PingMany(ctx, pubkeys) {
		if res.Success {
			c.metrics.IncPingOK()
		} else {
			c.metrics.IncPingFailed()
		}
		c.tracker.Mark(res.Pubkey, res.Success)
	}
	c.tracker.Apply(roster)
	return roster, nil
}

// SetPolicy flips one policy field for a peer and persists it. The change is
// effective for the next dispatched message; no restart is needed.
func (c *Controller) SetPolicy(pubkey, field string, value bool) error {
	if c.policies == nil {
		return errors.New("signer: no policy store configured")
	}
	return c.policies.SetPolicy(pubkey, field, value)
}

// Logs snapshots the bounded in-memory log ring.
func (c *Controller) Logs() []logging.Entry {
	return c.logBackend.Ring().Snapshot()
}

// SubscribeLogs streams log records as they are produced. Callers must drain
// the channel and call UnsubscribeLogs when done.
func (c *Controller) SubscribeLogs() chan logging.Entry {
	return c.logBackend.Ring().Subscribe()
}

func (c *Controller) UnsubscribeLogs(ch chan logging.Entry) {
	c.logBackend.Ring().Unsubscribe(ch)
}
