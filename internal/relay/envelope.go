package relay

import (
	"crypto/rand"
	"encoding/hex"
)

// Envelope is the tagged, identified message unit exchanged between
// participants. It is immutable once built.
type Envelope struct {
	ID   string `json:"id"`
	Tag  string `json:"tag"`
	Data string `json:"data"`
}

// NewEnvelope builds an envelope with a fresh random correlation id.
func NewEnvelope(tag, data string) Envelope {
	return Envelope{ID: newID(), Tag: tag, Data: data}
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}
