package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

type rec struct {
	Key string `json:"key"`
	Seq int    `json:"seq"`
}

func TestAppendAndScan(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.jsonl")

	for i := 0; i < 5; i++ {
		if err := AppendJSONL(path, rec{Key: "a", Seq: i}); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	var got []rec
	err := ScanJSONL(path, func(line []byte) error {
		var r rec
		if err := json.Unmarshal(line, &r); err == nil {
			got = append(got, r)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 records, got %d", len(got))
	}
	if got[4].Seq != 4 {
		t.Fatalf("expected newest record last, got seq %d", got[4].Seq)
	}
}

func TestRotationKeepsOldRecords(t *testing.T) {
	savedLines := MaxLinesPerFile
	savedBytes := MaxBytesPerFile
	savedRot := MaxRotations
	MaxLinesPerFile = 2
	MaxBytesPerFile = 1 << 20
	MaxRotations = 2
	t.Cleanup(func() {
		MaxLinesPerFile = savedLines
		MaxBytesPerFile = savedBytes
		MaxRotations = savedRot
	})

	dir := t.TempDir()
	path := filepath.Join(dir, "records.jsonl")
	for i := 0; i < 3; i++ {
		if err := AppendJSONL(path, rec{Key: "a", Seq: i}); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Fatalf("expected rotation file, got %v", err)
	}

	count := 0
	last := -1
	err := ScanJSONL(path, func(line []byte) error {
		var r rec
		if err := json.Unmarshal(line, &r); err == nil {
			count++
			last = r.Seq
		}
		return nil
	})
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 records across rotations, got %d", count)
	}
	if last != 2 {
		t.Fatalf("expected newest record last, got seq %d", last)
	}
}

func TestScanSkipsGarbageLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.jsonl")
	if err := AppendJSONL(path, rec{Key: "a", Seq: 1}); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if _, err := f.WriteString("not json\n"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	_ = f.Close()
	if err := AppendJSONL(path, rec{Key: "a", Seq: 2}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	count := 0
	err = ScanJSONL(path, func(line []byte) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 valid records, got %d", count)
	}
}
