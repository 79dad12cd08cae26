package logging

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingEvictsOldestFirst(t *testing.T) {
	backend, err := New("", "DEBUG", true)
	require.NoError(t, err)
	defer backend.Close()

	log := backend.GetLogger("test")
	for i := 0; i < DefaultRingCap+25; i++ {
		log.Infof("record %d", i)
	}

	entries := backend.Ring().Snapshot()
	require.Len(t, entries, DefaultRingCap)
	require.Equal(t, "record 25", entries[0].Message)
	require.Equal(t, fmt.Sprintf("record %d", DefaultRingCap+24), entries[len(entries)-1].Message)
}

func TestRingCapturesWhenOutputDisabled(t *testing.T) {
	backend, err := New("", "NOTICE", true)
	require.NoError(t, err)
	defer backend.Close()

	backend.GetLogger("test").Noticef("still captured")
	entries := backend.Ring().Snapshot()
	require.Len(t, entries, 1)
	require.Equal(t, "still captured", entries[0].Message)
	require.Equal(t, "test", entries[0].Detail)
}

func TestRingLevelFiltering(t *testing.T) {
	backend, err := New("", "NOTICE", true)
	require.NoError(t, err)
	defer backend.Close()

	log := backend.GetLogger("test")
	log.Debugf("filtered out")
	log.Warningf("kept")

	entries := backend.Ring().Snapshot()
	require.Len(t, entries, 1)
	require.Equal(t, "kept", entries[0].Message)
}

func TestRingSubscribe(t *testing.T) {
	backend, err := New("", "DEBUG", true)
	require.NoError(t, err)
	defer backend.Close()

	ch := backend.Ring().Subscribe()
	backend.GetLogger("test").Infof("live entry")

	select {
	case e := <-ch:
		require.Equal(t, "live entry", e.Message)
	default:
		t.Fatal("subscriber got nothing")
	}
	backend.Ring().Unsubscribe(ch)
	_, open := <-ch
	require.False(t, open)
}

func TestRejectsUnknownLevel(t *testing.T) {
	_, err := New("", "LOUD", true)
	require.Error(t, err)
}
