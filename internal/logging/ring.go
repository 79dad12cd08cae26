package logging

import (
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"
)

// DefaultRingCap bounds the number of records the ring retains.
const DefaultRingCap = 200

// Entry is one captured log record.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
}

// Ring is a bounded log sink with oldest-first eviction. It implements
// logging.Backend so it can sit behind a MultiLogger, and fans captured
// entries out to subscribers without ever blocking the logging call site.
type Ring struct {
	mu      sync.Mutex
	cap     int
	entries []Entry
	subs    map[chan Entry]struct{}
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingCap
	}
	return &Ring{
		cap:  capacity,
		subs: make(map[chan Entry]struct{}),
	}
}

// Log implements logging.Backend.
func (r *Ring) Log(level logging.Level, calldepth int, rec *logging.Record) error {
	e := Entry{
		Time:    rec.Time,
		Level:   level.String(),
		Message: rec.Message(),
		Detail:  rec.Module,
	}
	r.mu.Lock()
	if len(r.entries) >= r.cap {
		copy(r.entries, r.entries[1:])
		r.entries[len(r.entries)-1] = e
	} else {
		r.entries = append(r.entries, e)
	}
	for ch := range r.subs {
		select {
		case ch <- e:
		default:
		}
	}
	r.mu.Unlock()
	return nil
}

// Snapshot returns the retained entries, oldest first.
func (r *Ring) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Subscribe registers a live entry feed. Slow subscribers miss entries rather
// than stall the logger.
func (r *Ring) Subscribe() chan Entry {
	ch := make(chan Entry, 64)
	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()
	return ch
}

func (r *Ring) Unsubscribe(ch chan Entry) {
	r.mu.Lock()
	if _, ok := r.subs[ch]; ok {
		delete(r.subs, ch)
		close(ch)
	}
	r.mu.Unlock()
}

// Len reports the number of retained entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
