package peers

import (
	"encoding/json"
	"fmt"
	"sync"

	"shardsign/internal/codec"
	"shardsign/internal/store"
)

// Policy field names accepted by SetPolicy.
const (
	FieldSend    = "send"
	FieldReceive = "receive"
)

// Policy is one persisted per-peer override record.
type Policy struct {
	Pubkey  string `json:"pubkey"`
	Send    bool   `json:"send"`
	Receive bool   `json:"receive"`
}

// Store holds the plaintext policy overrides, backed by an append-only JSONL
// file; on load the last record per pubkey wins.
type Store struct {
	mu       sync.Mutex
	path     string
	policies map[string]Policy
}

func NewStore(path string) (*Store, error) {
	s := &Store{
		path:     path,
		policies: make(map[string]Policy),
	}
	err := store.ScanJSONL(path, func(line []byte) error {
		var p Policy
		if err := json.Unmarshal(line, &p); err != nil {
			return nil
		}
		p.Pubkey = codec.NormalizePubkey(p.Pubkey)
		if p.Pubkey == "" {
			return nil
		}
		s.policies[p.Pubkey] = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Policy returns the override for pk, if one was ever set.
func (s *Store) Policy(pk string) (Policy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[codec.NormalizePubkey(pk)]
	return p, ok
}

// SetPolicy mutates one field and immediately appends the full record, so a
// crash between calls loses at most the in-flight change.
func (s *Store) SetPolicy(pk, field string, value bool) error {
	pk = codec.NormalizePubkey(pk)
	if pk == "" {
		return fmt.Errorf("peers: missing pubkey")
	}
	s.mu.Lock()
	p, ok := s.policies[pk]
	if !ok {
		p = Policy{Pubkey: pk, Send: true, Receive: true}
	}
	switch field {
	case FieldSend:
		p.Send = value
	case FieldReceive:
		p.Receive = value
	default:
		s.mu.Unlock()
		return fmt.Errorf("peers: unknown policy field %q", field)
	}
	s.policies[pk] = p
	s.mu.Unlock()
	return store.AppendJSONL(s.path, p)
}

// All returns a copy of every override.
func (s *Store) All() []Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Policy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, p)
	}
	return out
}
