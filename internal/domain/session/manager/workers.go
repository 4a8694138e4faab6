// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"context"
	"fmt"
	"sync"
)

// workerGroup tracks orchestrator-owned goroutines (event loops, pairing
// requests, reconnects) and provides a bounded join on shutdown.
type workerGroup struct {
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

func (w *workerGroup) enter() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closing {
		return false
	}
	w.wg.Add(1)
	return true
}

// Go runs fn in a new goroutine. It returns false once shutdown has begun.
func (w *workerGroup) Go(fn func()) bool {
	if !w.enter() {
		return false
	}
	go func() {
		defer w.wg.Done()
		fn()
	}()
	return true
}

// Run calls fn on the current goroutine while counting it as a worker.
// Timer callbacks use it so shutdown waits for them too.
func (w *workerGroup) Run(fn func()) bool {
	if !w.enter() {
		return false
	}
	defer w.wg.Done()
	fn()
	return true
}

func (w *workerGroup) Closing() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closing
}

func (w *workerGroup) CloseAndWait(ctx context.Context) error {
	w.mu.Lock()
	w.closing = true
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session worker drain timeout: %w", ctx.Err())
	}
}
