// Package store implements append-only JSONL record files with size-based
// rotation and fsync'd writes. Records are line-delimited JSON; readers scan
// rotated files oldest first so that the last record for a key wins.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Rotation knobs. Package-level so tests can shrink them.
var (
	MaxLinesPerFile = 4096
	MaxBytesPerFile = 1 << 20
	MaxRotations    = 3
)

const maxScanSize = 2 << 20

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxScanSize)
	return sc
}

func syncDir(path string) {
	dir, err := os.Open(filepath.Dir(path))
	if err != nil {
		return
	}
	defer dir.Close()
	_ = dir.Sync()
}

// AppendJSONL appends v as one JSON line to path, rotating first if the file
// is over the line or byte limit.
func AppendJSONL(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	if err := rotateIfNeeded(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(v); err != nil {
		return err
	}
	return f.Sync()
}

// ScanJSONL calls fn with each JSON line across the rotation chain, oldest
// file and oldest line first. Lines that are not valid JSON are skipped.
func ScanJSONL(path string, fn func(line []byte) error) error {
	paths := scanPaths(path)
	for i := len(paths) - 1; i >= 0; i-- {
		f, err := os.Open(paths[i])
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		sc := newScanner(f)
		for sc.Scan() {
			if !json.Valid(sc.Bytes()) {
				continue
			}
			if err := fn(sc.Bytes()); err != nil {
				_ = f.Close()
				return err
			}
		}
		if err := sc.Err(); err != nil {
			_ = f.Close()
			return err
		}
		_ = f.Close()
	}
	return nil
}

func scanPaths(path string) []string {
	out := make([]string, 0, MaxRotations+1)
	out = append(out, path)
	for i := 1; i <= MaxRotations; i++ {
		out = append(out, fmt.Sprintf("%s.%d", path, i))
	}
	return out
}

func rotateIfNeeded(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	over := MaxBytesPerFile > 0 && info.Size() >= int64(MaxBytesPerFile)
	if !over && MaxLinesPerFile > 0 {
		n, err := countLines(path)
		if err != nil {
			return err
		}
		over = n >= MaxLinesPerFile
	}
	if !over {
		return nil
	}
	for i := MaxRotations; i >= 2; i-- {
		from := fmt.Sprintf("%s.%d", path, i-1)
		to := fmt.Sprintf("%s.%d", path, i)
		if err := os.Rename(from, to); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	if err := os.Rename(path, path+".1"); err != nil && !os.IsNotExist(err) {
		return err
	}
	syncDir(path)
	return nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n := 0
	sc := newScanner(f)
	for sc.Scan() {
		n++
	}
	return n, sc.Err()
}
