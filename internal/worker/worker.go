// Package worker provides a goroutine lifecycle helper: spawned routines are
// tracked, signaled to stop through a shared halt channel, and joined on Halt.
package worker

import "sync"

type Worker struct {
	sync.WaitGroup

	initOnce sync.Once
	haltOnce sync.Once
	haltCh   chan struct{}
}

func (w *Worker) init() {
	w.haltCh = make(chan struct{})
}

// Go runs fn in a tracked goroutine. fn is expected to return promptly once
// HaltCh is closed.
func (w *Worker) Go(fn func()) {
	w.initOnce.Do(w.init)
	w.Add(1)
	go func() {
		defer w.Done()
		fn()
	}()
}

// Halt signals all tracked goroutines to stop and blocks until they have
// returned. Safe to call more than once.
func (w *Worker) Halt() {
	w.initOnce.Do(w.init)
	w.haltOnce.Do(func() { close(w.haltCh) })
	w.Wait()
}

// HaltCh returns the channel closed by Halt.
func (w *Worker) HaltCh() <-chan struct{} {
	w.initOnce.Do(w.init)
	return w.haltCh
}
