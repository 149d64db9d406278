package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jmcleod/platedash/storage"
)

// mutation derives the next record from the current one. It may modify cur
// in place and return it. cur is nil only for requests that allow a missing
// record. Returning errNoWrite leaves the store untouched.
type mutation func(cur *storage.Record) (*storage.Record, error)

type writeRequest struct {
	ctx          context.Context
	mutate       mutation
	allowMissing bool
	done         chan writeResult
}

type writeResult struct {
	record *storage.Record
	err    error
}

// writer is the single goroutine allowed to save the credential record.
// Requests are handed over on an unbuffered channel; blocked senders are
// served in arrival order, so each write runs after every write queued
// before it. A failed write is reported to its own caller only.
type writer struct {
	svc    *Service
	queue  chan *writeRequest
	stop   chan struct{}
	exited chan struct{}
	once   sync.Once
}

func newWriter(svc *Service) *writer {
	w := &writer{
		svc:    svc,
		queue:  make(chan *writeRequest),
		stop:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *writer) run() {
	defer close(w.exited)
	for {
		select {
		case <-w.stop:
			return
		case req := <-w.queue:
			rec, err := w.apply(req)
			req.done <- writeResult{record: rec, err: err}
		}
	}
}

// close stops accepting writes and waits for the one in flight to finish.
func (w *writer) close() {
	w.once.Do(func() {
		close(w.stop)
		<-w.exited
	})
}

// submit queues fn and blocks until it has been applied. ctx only bounds the
// wait for a slot in the queue; once dequeued, a write runs to completion.
func (w *writer) submit(ctx context.Context, allowMissing bool, fn mutation) (*storage.Record, error) {
	select {
	case <-w.stop:
		return nil, ErrClosed
	default:
	}

	req := &writeRequest{
		ctx:          ctx,
		mutate:       fn,
		allowMissing: allowMissing,
		done:         make(chan writeResult, 1),
	}
	select {
	case w.queue <- req:
	case <-w.stop:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	res := <-req.done
	return res.record, res.err
}

func (w *writer) apply(req *writeRequest) (*storage.Record, error) {
	ctx := context.WithoutCancel(req.ctx)
	s := w.svc

	cur, err := s.repo.Load(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound) && req.allowMissing:
		cur = nil
	case err != nil:
		return nil, fmt.Errorf("loading credential record: %w", err)
	}

	var work *storage.Record
	if cur != nil {
		work = cur.Clone()
	}
	next, err := req.mutate(work)
	if errors.Is(err, errNoWrite) {
		if cur == nil {
			return nil, nil
		}
		// The load was fresh; refresh the cache with it while we are here.
		if snap, err := newSnapshot(cur, s.clock.Now()); err == nil {
			s.cache.install(snap)
		}
		return cur, nil
	}
	if err != nil {
		return nil, err
	}

	snap, err := newSnapshot(next, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("saving credential record: %w", err)
	}
	s.cache.install(snap)
	s.recorder.SessionCount(len(next.Sessions))
	return next, nil
}
