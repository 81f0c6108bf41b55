// Package spool serializes background work onto a single consumer, so
// database-heavy update tasks never overlap.
package spool

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/okrent/feedspool/event"
)

type task struct {
	name string
	fn   func() error
}

// Spooler runs enqueued tasks one at a time, in arrival order. A failed
// task is logged and the spooler advances to the next one. Busy/idle
// transitions are published on the event bus.
type Spooler struct {
	mu       sync.Mutex
	queue    []task
	staged   []task
	batching bool
	busy     bool
	idleCh   chan struct{} // closed while idle, replaced when work starts

	wake chan struct{}
	quit chan struct{}
	done chan struct{}

	bus *event.Bus
}

// New creates a Spooler and starts its consumer. bus may be nil.
func New(bus *event.Bus) *Spooler {
	s := &Spooler{
		idleCh: make(chan struct{}),
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		bus:    bus,
	}
	close(s.idleCh)
	go s.run()
	return s
}

// Close stops the consumer after it finishes the tasks already queued.
func (s *Spooler) Close() {
	close(s.quit)
	<-s.done
}

// Enqueue appends a task to the spool. Inside an open batch the task is
// staged instead and becomes runnable at EndBatch.
func (s *Spooler) Enqueue(name string, fn func() error) {
	s.mu.Lock()
	if s.batching {
		s.staged = append(s.staged, task{name, fn})
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, task{name, fn})
	becameBusy := s.setBusyLocked()
	s.mu.Unlock()

	if becameBusy {
		s.bus.Publish(event.UpdateStateChanged{Busy: true})
	}
	s.kick()
}

// BeginBatch starts staging enqueued tasks so a multi-task operation
// becomes visible to the consumer all at once. Batches do not nest.
func (s *Spooler) BeginBatch() {
	s.mu.Lock()
	s.batching = true
	s.mu.Unlock()
}

// EndBatch releases the staged tasks to the consumer in enqueue order.
func (s *Spooler) EndBatch() {
	s.mu.Lock()
	s.batching = false
	var becameBusy bool
	if len(s.staged) > 0 {
		s.queue = append(s.queue, s.staged...)
		s.staged = nil
		becameBusy = s.setBusyLocked()
	}
	s.mu.Unlock()

	if becameBusy {
		s.bus.Publish(event.UpdateStateChanged{Busy: true})
	}
	s.kick()
}

// HasWork reports whether any task is running, queued or staged.
func (s *Spooler) HasWork() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy || len(s.queue) > 0 || len(s.staged) > 0
}

// Wait blocks until the spool drains or the context is done. Staged
// tasks of an open batch do not count as pending work.
func (s *Spooler) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		ch := s.idleCh
		busy := s.busy
		s.mu.Unlock()

		if !busy {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// setBusyLocked flips the spooler busy and reports whether it was idle.
func (s *Spooler) setBusyLocked() bool {
	if s.busy {
		return false
	}
	s.busy = true
	s.idleCh = make(chan struct{})
	return true
}

func (s *Spooler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Spooler) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) > 0 {
			t := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			log.WithField("task", t.name).Debug("Running spooled task")
			if err := t.fn(); err != nil {
				log.WithFields(log.Fields{
					"task":  t.name,
					"error": err,
				}).Error("Spooled task failed")
			}

			s.mu.Lock()
		}
		var becameIdle bool
		if s.busy {
			s.busy = false
			close(s.idleCh)
			becameIdle = true
		}
		s.mu.Unlock()

		if becameIdle {
			s.bus.Publish(event.UpdateStateChanged{Busy: false})
		}

		select {
		case <-s.wake:
		case <-s.quit:
			return
		}
	}
}
