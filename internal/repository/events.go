package repository

import (
	"sync"

	"svnscm/internal/operation"
)

// State is the lifecycle state of a Controller.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisposed State = "disposed"
)

// EventKind names a controller notification.
type EventKind string

const (
	EventRunStarted           EventKind = "runStarted"
	EventRunEnded             EventKind = "runEnded"
	EventStatusChanged        EventKind = "statusChanged"
	EventRemoteChangesChanged EventKind = "remoteChangesChanged"
	EventStateChanged         EventKind = "stateChanged"
	EventRepositoryChanged    EventKind = "repositoryChanged"
	EventGroupsRecreated      EventKind = "groupsRecreated"
)

// Event is delivered to subscribers synchronously, in emission order.
type Event struct {
	Kind EventKind
	// Root is the working copy root of the emitting controller.
	Root string
	// RunID correlates RunStarted/RunEnded of one Run call.
	RunID     string
	Operation operation.Kind
	State     State
	// Count is the aggregate count (StatusChanged) or the remote changed
	// file count (RemoteChangesChanged).
	Count int
	// Err is the outcome of a run (RunEnded only).
	Err error
}

type subscribers struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func(Event)
	order  []int
}

func (s *subscribers) add(fn func(Event)) func() {
	s.mu.Lock()
	if s.fns == nil {
		s.fns = make(map[int]func(Event))
	}
	id := s.nextID
	s.nextID++
	s.fns[id] = fn
	s.order = append(s.order, id)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.fns, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (s *subscribers) emit(ev Event) {
	s.mu.Lock()
	fns := make([]func(Event), 0, len(s.order))
	for _, id := range s.order {
		fns = append(fns, s.fns[id])
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
