package peers

import (
	"sync"

	"shardsign/internal/codec"
)

// Tracker records the last observed liveness per peer. A probe result that
// cannot be matched back to a known pubkey leaves the prior state untouched.
type Tracker struct {
	mu sync.Mutex
	m  map[string]Liveness
}

func NewTracker() *Tracker {
	return &Tracker{m: make(map[string]Liveness)}
}

func (t *Tracker) Mark(pk string, online bool) {
	pk = codec.NormalizePubkey(pk)
	if pk == "" {
		return
	}
	v := Offline
	if online {
		v = Online
	}
	t.mu.Lock()
	t.m[pk] = v
	t.mu.Unlock()
}

// Get returns the recorded liveness, defaulting to Offline.
func (t *Tracker) Get(pk string) Liveness {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.m[codec.NormalizePubkey(pk)]; ok {
		return v
	}
	return Offline
}

// Apply overlays recorded liveness onto a derived roster.
func (t *Tracker) Apply(roster []Peer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range roster {
		if v, ok := t.m[roster[i].Pubkey]; ok {
			roster[i].Liveness = v
		}
	}
}
