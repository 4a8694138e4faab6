// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package command

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xlog "github.com/ManuGH/wabridge/internal/log"
)

var ErrExecutorClosed = errors.New("command executor closed")

// Job is one unit of work on a lane.
type Job func(ctx context.Context)

type lane struct {
	queue []Job
}

// Executor runs jobs in submission order per key and concurrently across
// keys, with at most `limit` jobs running at once.
type Executor struct {
	ctx    context.Context
	cancel context.CancelFunc
	sem    chan struct{}
	logger zerolog.Logger

	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool
	wg     sync.WaitGroup
}

func NewExecutor(limit int) *Executor {
	if limit <= 0 {
		limit = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		ctx:    ctx,
		cancel: cancel,
		sem:    make(chan struct{}, limit),
		logger: xlog.WithComponent("command.executor"),
		lanes:  make(map[string]*lane),
	}
}

// Submit queues job on the lane for key.
func (e *Executor) Submit(key string, job Job) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrExecutorClosed
	}
	if l, ok := e.lanes[key]; ok {
		l.queue = append(l.queue, job)
		return nil
	}
	l := &lane{queue: []Job{job}}
	e.lanes[key] = l
	e.wg.Add(1)
	go e.run(key, l)
	return nil
}

func (e *Executor) run(key string, l *lane) {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		if len(l.queue) == 0 {
			delete(e.lanes, key)
			e.mu.Unlock()
			return
		}
		job := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		e.mu.Unlock()

		select {
		case e.sem <- struct{}{}:
		case <-e.ctx.Done():
			e.drop(key, l)
			return
		}
		e.runJob(key, job)
		<-e.sem
	}
}

func (e *Executor) drop(key string, l *lane) {
	e.mu.Lock()
	n := len(l.queue) + 1
	delete(e.lanes, key)
	e.mu.Unlock()
	e.logger.Warn().Str("lane", key).Int("dropped", n).Msg("executor stopped with queued commands")
}

func (e *Executor) runJob(key string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().
				Str("lane", key).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Str(xlog.FieldEvent, "command.panic").
				Msg("recovered panic in command lane")
		}
	}()
	job(e.ctx)
}

// Pending returns the number of lanes with queued or running work.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.lanes)
}

// Close stops accepting work and waits up to timeout for queued jobs. Jobs
// still running afterwards see their context cancelled.
func (e *Executor) Close(timeout time.Duration) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		e.cancel()
		return nil
	case <-timer.C:
		e.cancel()
		<-done
		return context.DeadlineExceeded
	}
}
