package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestSnapshotReflectsCounters(t *testing.T) {
	m := New()
	m.IncDispatchSign()
	m.IncDispatchSign()
	m.IncEchoSent()
	m.IncEchoAnswered()
	m.IncPingFailed()
	m.IncDropBlockedPeer()

	s := m.Snapshot()
	if s.Dispatch.Sign != 2 {
		t.Fatalf("sign = %d, want 2", s.Dispatch.Sign)
	}
	if s.Echo.Sent != 1 || s.Echo.Answered != 1 || s.Echo.Failed != 0 {
		t.Fatalf("echo = %+v", s.Echo)
	}
	if s.Ping.Failed != 1 {
		t.Fatalf("ping failed = %d, want 1", s.Ping.Failed)
	}
	if s.Dispatch.DropBlocked != 1 {
		t.Fatalf("drop blocked = %d, want 1", s.Dispatch.DropBlocked)
	}
	if s.GeneratedAt.IsZero() {
		t.Fatal("snapshot missing timestamp")
	}
}

func TestWriteSnapshot(t *testing.T) {
	m := New()
	m.IncDispatchControl()

	path := filepath.Join(t.TempDir(), "metrics.json")
	if err := m.WriteSnapshot(path); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if s.Dispatch.Control != 1 {
		t.Fatalf("control = %d, want 1", s.Dispatch.Control)
	}
}

func TestWriteSnapshotNoPathIsNoop(t *testing.T) {
	if err := New().WriteSnapshot(""); err != nil {
		t.Fatalf("empty path should be a no-op, got %v", err)
	}
}
