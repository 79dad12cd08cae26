package peers

import (
	"path/filepath"
	"strings"
	"testing"

	"shardsign/internal/codec"
)

func testGroup() *codec.Group {
	return &codec.Group{
		Version:   codec.CredentialVersion,
		Threshold: 2,
		Commits: []codec.Commitment{
			{Idx: 1, Pubkey: "02" + strings.Repeat("aa", 32)},
			{Idx: 2, Pubkey: strings.Repeat("bb", 32)},
			// same participant as idx 2, different key form
			{Idx: 3, Pubkey: "03" + strings.Repeat("bb", 32)},
		},
	}
}

func TestDeriveExcludesSelfAndDedupes(t *testing.T) {
	self := strings.Repeat("aa", 32)
	roster := Derive(testGroup(), self, nil)
	if len(roster) != 1 {
		t.Fatalf("expected 1 peer, got %d", len(roster))
	}
	p := roster[0]
	if p.Pubkey != strings.Repeat("bb", 32) {
		t.Fatalf("unexpected pubkey %s", p.Pubkey)
	}
	if !p.SendAllowed || !p.ReceiveAllowed {
		t.Fatalf("expected default allow policy")
	}
	if p.Liveness != Offline {
		t.Fatalf("expected offline default, got %s", p.Liveness)
	}
}

func TestDeriveMembersFallback(t *testing.T) {
	g := &codec.Group{
		Version:   codec.CredentialVersion,
		Threshold: 1,
		Members:   []string{strings.Repeat("aa", 32), strings.Repeat("bb", 32)},
	}
	roster := Derive(g, strings.Repeat("aa", 32), nil)
	if len(roster) != 1 {
		t.Fatalf("expected 1 peer from members fallback, got %d", len(roster))
	}
}

func TestPolicyRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.jsonl")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("new store failed: %v", err)
	}
	pk := strings.Repeat("bb", 32)
	if err := s.SetPolicy(pk, FieldSend, false); err != nil {
		t.Fatalf("set policy failed: %v", err)
	}

	// reload from disk
	s2, err := NewStore(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	p, ok := s2.Policy(pk)
	if !ok {
		t.Fatalf("expected persisted policy")
	}
	if p.Send || !p.Receive {
		t.Fatalf("expected send=false receive=true, got %+v", p)
	}

	// other peers keep defaults
	roster := Derive(testGroup(), strings.Repeat("aa", 32), s2)
	for _, peer := range roster {
		if peer.Pubkey == pk && peer.SendAllowed {
			t.Fatalf("expected override to win over derived default")
		}
	}
}

func TestPolicyLastRecordWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.jsonl")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("new store failed: %v", err)
	}
	pk := strings.Repeat("cc", 32)
	if err := s.SetPolicy(pk, FieldReceive, false); err != nil {
		t.Fatalf("set policy failed: %v", err)
	}
	if err := s.SetPolicy(pk, FieldReceive, true); err != nil {
		t.Fatalf("set policy failed: %v", err)
	}
	s2, err := NewStore(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	p, _ := s2.Policy(pk)
	if !p.Receive {
		t.Fatalf("expected newest record to win")
	}
}

func TestSetPolicyRejectsUnknownField(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "policy.jsonl"))
	if err != nil {
		t.Fatalf("new store failed: %v", err)
	}
	if err := s.SetPolicy(strings.Repeat("aa", 32), "bogus", true); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestTrackerUnknownPeerStaysPrior(t *testing.T) {
	tr := NewTracker()
	pk := strings.Repeat("bb", 32)
	tr.Mark(pk, true)

	roster := Derive(testGroup(), strings.Repeat("aa", 32), nil)
	tr.Apply(roster)
	if roster[0].Liveness != Online {
		t.Fatalf("expected online after mark")
	}

	// marking an unrelated pubkey must not flip known peers
	tr.Mark(strings.Repeat("dd", 32), false)
	tr.Apply(roster)
	if roster[0].Liveness != Online {
		t.Fatalf("unrelated probe changed peer liveness")
	}
}
