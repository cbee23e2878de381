package state

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Store holds the single process-wide State and publishes every change.
type Store struct {
	mu      sync.Mutex
	current State
	subs    map[int]chan State
	nextSub int
}

// NewStore creates a store holding the initial state.
func NewStore() *Store {
	return &Store{
		current: Initial(),
		subs:    make(map[int]chan State),
	}
}

// Dispatch applies ev and notifies subscribers. Slow subscribers miss
// intermediate states rather than blocking the dispatcher.
func (s *Store) Dispatch(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = Reduce(s.current, ev)
	logrus.WithField("event", ev).Trace("state event")

	for id, ch := range s.subs {
		select {
		case ch <- s.current:
		default:
			logrus.WithField("subscriber", id).Debug("subscriber lagging, state dropped")
		}
	}
}

// State returns the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Subscribe returns a channel receiving each new State and a cancel func
// that closes it.
func (s *Store) Subscribe(buffer int) (<-chan State, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan State, buffer)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}
