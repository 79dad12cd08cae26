package signer

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	golog "gopkg.in/op/go-logging.v1"

	"shardsign/internal/codec"
	"shardsign/internal/peers"
	"shardsign/internal/relay"
	"shardsign/internal/store"
	"shardsign/internal/worker"
)

// Message tags. Control tags match exactly; protocol traffic is dispatched by
// prefix.
const (
	tagEchoReq  = "/echo/req"
	tagEchoResp = "/echo/res"
	tagPingReq  = "/ping/req"
	tagPingResp = "/ping/resp"

	prefixSign = "/sign/"
	prefixECDH = "/ecdh/"
	prefixPing = "/ping/"
)

// policyPayload is the echo response body: the responder's current policy
// toward the asking peer.
type policyPayload struct {
	SendAllowed    bool `json:"sendAllowed"`
	ReceiveAllowed bool `json:"receiveAllowed"`
}

// journalRecord is one accepted protocol frame, appended to the session
// journal for later inspection.
type journalRecord struct {
	Time time.Time `json:"time"`
	From string    `json:"from"`
	Tag  string    `json:"tag"`
	ID   string    `json:"id"`
}

// session is one live run of the controller: a transport, the decoded group
// it serves, and the event loop draining the transport.
//
// The presence echo is deliberately a fan-out publish to our own pubkey, not
// a request. Every device provisioned with the same share subscribes under
// the same key, and only publish reaches all of them; a request would be
// routed to a single inbox and prove nothing about the fan-out path the
// session actually depends on.
type session struct {
	worker.Worker

	c     *Controller
	node  transport
	group *codec.Group
	self  string
	log   *golog.Logger

	// echoToken ties the answered echo back to this session; a sibling
	// device's echo carries a different token.
	echoToken string

	members     map[string]string // normalized pubkey -> alias
	journalPath string
}

func newSession(c *Controller, node transport, group *codec.Group, self string) *session {
	s := &session{
		c:         c,
		node:      node,
		group:     group,
		self:      self,
		log:       c.logBackend.GetLogger("session"),
		echoToken: newToken(),
		members:   make(map[string]string),
	}
	for _, p := range peers.Derive(group, self, c.policies) {
		s.members[p.Pubkey] = p.Alias
	}
	if c.cfg.DataDir != "" {
		s.journalPath = filepath.Join(c.cfg.DataDir, "journal.jsonl")
	}
	return s
}

func newToken() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// isConfirmationPayload accepts any even-length hex string as a presence
// confirmation token.
func isConfirmationPayload(data string) bool {
	if data == "" || len(data)%2 != 0 {
		return false
	}
	_, err := hex.DecodeString(data)
	return err == nil
}

// eventLoop drains the transport until it shuts down.
func (s *session) eventLoop() {
	for {
		select {
		case <-s.HaltCh():
			return
		case ev, ok := <-s.node.Events():
			if !ok {
				return
			}
			switch ev := ev.(type) {
			case relay.Ready:
				s.log.Noticef("relay up: %s", ev.Relay)
			case relay.Closed:
				if relay.IsBenignClose(ev.Err) {
					s.log.Debugf("relay %s closed: %v", ev.Relay, ev.Err)
				} else {
					s.log.Warningf("relay %s lost: %v", ev.Relay, ev.Err)
				}
			case relay.Message:
				s.dispatch(ev.From, ev.Envelope)
			case relay.Request:
				s.handleRequest(ev)
			}
		}
	}
}

// sendEcho publishes the presence echo to our own pubkey and reports whether
// the handshake went out. A relay that drops the socket during or right after
// the send has still accepted the frame, so that outcome counts as success;
// it is logged at a level of its own so the two cases stay distinguishable in
// the ring.
func (s *session) sendEcho() bool {
	s.c.metrics.IncEchoSent()
	env := relay.NewEnvelope(tagEchoReq, s.echoToken)
	err := s.node.Publish(env, s.self)
	switch {
	case err == nil:
		s.log.Infof("presence echo published")
	case relay.IsBenignClose(err):
		s.log.Noticef("presence echo published, relay closed the connection after send: %v", err)
	default:
		s.c.metrics.IncEchoFailed()
		s.log.Errorf("presence echo failed: %v", err)
		return false
	}
	return true
}

// dispatch routes one inbound envelope. A panicking handler is contained
// here; one poisoned frame must not take the session down.
func (s *session) dispatch(from string, env relay.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("handler panic on tag %s: %v", env.Tag, r)
		}
	}()
	from = codec.NormalizePubkey(from)
	switch {
	case env.Tag == tagEchoReq:
		s.c.metrics.IncDispatchControl()
		s.handleEchoReq(from, env)
	case env.Tag == tagEchoResp:
		s.c.metrics.IncDispatchControl()
		s.handleEchoResp(from, env)
	case strings.HasPrefix(env.Tag, prefixSign):
		s.c.metrics.IncDispatchSign()
		s.handleProtocol(from, env)
	case strings.HasPrefix(env.Tag, prefixECDH):
		s.c.metrics.IncDispatchECDH()
		s.handleProtocol(from, env)
	case strings.HasPrefix(env.Tag, prefixPing):
		s.c.metrics.IncDispatchPing()
		s.handlePing(from, env)
	default:
		s.c.metrics.IncDispatchUnhandled()
		s.log.Debugf("unhandled tag %s from %s", env.Tag, from)
	}
}

func (s *session) handleEchoReq(from string, env relay.Envelope) {
	if from == s.self {
		switch {
		case env.Data == s.echoToken:
			s.c.metrics.IncEchoAnswered()
			s.log.Noticef("relay round trip confirmed")
		case isConfirmationPayload(env.Data):
			// a sibling device holding the same share announced itself
			s.log.Infof("sibling device reported presence")
		default:
			s.log.Debugf("echo to self with malformed payload ignored")
		}
		return
	}
	alias, ok := s.members[from]
	if !ok {
		s.c.metrics.IncDropUnknownPeer()
		s.log.Infof("dropping echo from unknown key %s", from)
		return
	}
	s.c.tracker.Mark(from, true)

	payload := policyPayload{SendAllowed: true, ReceiveAllowed: true}
	if s.c.policies != nil {
		if pol, found := s.c.policies.Policy(from); found {
			payload.SendAllowed = pol.Send
			payload.ReceiveAllowed = pol.Receive
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		s.log.Errorf("echo response marshal: %v", err)
		return
	}
	// the response reuses the request's correlation id so the asker can
	// match it
	resp := relay.Envelope{ID: env.ID, Tag: tagEchoResp, Data: string(body)}
	if err := s.node.Publish(resp, from); err != nil {
		if relay.IsBenignClose(err) {
			s.log.Noticef("echo response to %s published, relay closed after send: %v", alias, err)
		} else {
			s.log.Warningf("echo response to %s failed: %v", alias, err)
		}
		return
	}
	s.log.Infof("answered echo from %s", alias)
}

func (s *session) handleEchoResp(from string, env relay.Envelope) {
	if from == s.self {
		return
	}
	if _, ok := s.members[from]; !ok {
		s.c.metrics.IncDropUnknownPeer()
		return
	}
	s.c.tracker.Mark(from, true)
	var payload policyPayload
	if err := json.Unmarshal([]byte(env.Data), &payload); err != nil {
		s.log.Debugf("malformed echo response from %s", from)
		return
	}
	s.log.Infof("peer %s answered echo, send=%v receive=%v", s.members[from], payload.SendAllowed, payload.ReceiveAllowed)
}

// handleProtocol accepts signing and key agreement traffic from roster peers
// whose receive policy allows it, and journals the frame.
func (s *session) handleProtocol(from string, env relay.Envelope) {
	alias, ok := s.members[from]
	if !ok {
		s.c.metrics.IncDropUnknownPeer()
		s.log.Infof("dropping %s from unknown key %s", env.Tag, from)
		return
	}
	if s.c.policies != nil {
		if pol, found := s.c.policies.Policy(from); found && !pol.Receive {
			s.c.metrics.IncDropBlockedPeer()
			s.log.Infof("dropping %s from blocked peer %s", env.Tag, alias)
			return
		}
	}
	s.c.tracker.Mark(from, true)
	if s.journalPath != "" {
		rec := journalRecord{Time: time.Now().UTC(), From: from, Tag: env.Tag, ID: env.ID}
		if err := store.AppendJSONL(s.journalPath, rec); err != nil {
			s.log.Warningf("journal append failed: %v", err)
		}
	}
	s.log.Infof("accepted %s from %s", env.Tag, alias)
}

func (s *session) handlePing(from string, env relay.Envelope) {
	if from == s.self {
		return
	}
	if _, ok := s.members[from]; !ok {
		s.c.metrics.IncDropUnknownPeer()
		return
	}
	s.c.tracker.Mark(from, true)
	if env.Tag != tagPingReq {
		return
	}
	resp := relay.Envelope{ID: env.ID, Tag: tagPingResp}
	if err := s.node.Publish(resp, from); err != nil && !relay.IsBenignClose(err) {
		s.log.Debugf("ping response to %s failed: %v", from, err)
	}
}

// handleRequest serves point-to-point probes. Only the echo tag is answered;
// everything else is counted and dropped.
func (s *session) handleRequest(ev relay.Request) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("request handler panic on tag %s: %v", ev.Envelope.Tag, r)
		}
	}()
	from := codec.NormalizePubkey(ev.From)
	if ev.Envelope.Tag != tagEchoReq {
		s.c.metrics.IncDispatchUnhandled()
		s.log.Debugf("unhandled request tag %s from %s", ev.Envelope.Tag, from)
		return
	}
	s.c.metrics.IncDispatchControl()
	if _, ok := s.members[from]; !ok && from != s.self {
		s.c.metrics.IncDropUnknownPeer()
		s.log.Infof("dropping direct echo from unknown key %s", from)
		return
	}
	s.c.tracker.Mark(from, true)
	payload := policyPayload{SendAllowed: true, ReceiveAllowed: true}
	if s.c.policies != nil {
		if pol, found := s.c.policies.Policy(from); found {
			payload.SendAllowed = pol.Send
			payload.ReceiveAllowed = pol.Receive
		}
	}
	body, _ := json.Marshal(payload)
	resp := relay.Envelope{ID: ev.Envelope.ID, Tag: tagEchoResp, Data: string(body)}
	if err := s.node.Reply(ev.Inbox, from, resp); err != nil && !relay.IsBenignClose(err) {
		s.log.Warningf("direct echo reply failed: %v", err)
	}
}
