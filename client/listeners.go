package client

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// listenerSet holds registered callbacks of one event type. The set is
// copied before dispatch so listeners can unsubscribe (or subscribe)
// from inside a callback, and each callback is isolated so one failure
// cannot stop delivery to the rest.
type listenerSet[T any] struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]T
}

// add registers a callback and returns its unsubscribe handle.
func (s *listenerSet[T]) add(fn T) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]T)
	}
	id := s.nextID
	s.nextID++
	s.fns[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.fns, id)
	}
}

// snapshot copies the current callbacks for dispatch.
func (s *listenerSet[T]) snapshot() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, 0, len(s.fns))
	for _, fn := range s.fns {
		out = append(out, fn)
	}
	return out
}

// notify runs every callback in the snapshot through invoke.
func notify[T any](s *listenerSet[T], invoke func(T)) {
	for _, fn := range s.snapshot() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logrus.WithField("panic", r).Warn("client listener panicked")
				}
			}()
			invoke(fn)
		}()
	}
}
