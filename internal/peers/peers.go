// Package peers derives the peer roster from a group credential and tracks
// per-peer send/receive policy and liveness. Policy is plaintext and outlives
// any session; liveness is in-memory only.
package peers

import (
	"fmt"

	"shardsign/internal/codec"
)

type Liveness string

const (
	Online  Liveness = "online"
	Offline Liveness = "offline"
)

// Peer is one fellow participant as shown to the caller.
type Peer struct {
	Pubkey         string   `json:"pubkey"`
	Alias          string   `json:"alias"`
	SendAllowed    bool     `json:"sendAllowed"`
	ReceiveAllowed bool     `json:"receiveAllowed"`
	Liveness       Liveness `json:"liveness"`
}

// Derive lists the group's participants minus self: pubkeys are normalized,
// deduplicated, and merged with any persisted policy overrides. Credentials
// without commitments fall back to the plain members list.
func Derive(g *codec.Group, selfPubkey string, policies *Store) []Peer {
	self := codec.NormalizePubkey(selfPubkey)
	seen := make(map[string]bool)
	var out []Peer

	add := func(pk, alias string) {
		pk = codec.NormalizePubkey(pk)
		if pk == "" || pk == self || seen[pk] {
			return
		}
		seen[pk] = true
		p := Peer{
			Pubkey:         pk,
			Alias:          alias,
			SendAllowed:    true,
			ReceiveAllowed: true,
			Liveness:       Offline,
		}
		if policies != nil {
			if pol, ok := policies.Policy(pk); ok {
				p.SendAllowed = pol.Send
				p.ReceiveAllowed = pol.Receive
			}
		}
		out = append(out, p)
	}

	if len(g.Commits) > 0 {
		for _, c := range g.Commits {
			add(c.Pubkey, fmt.Sprintf("signer-%d", c.Idx))
		}
		return out
	}
	for i, pk := range g.Members {
		add(pk, fmt.Sprintf("member-%d", i+1))
	}
	return out
}
