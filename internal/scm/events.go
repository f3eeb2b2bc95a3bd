package scm

import (
	"slices"
	"sync"

	"svnscm/internal/repository"
)

// EventKind names a manager notification.
type EventKind string

const (
	EventRepositoryOpened EventKind = "repositoryOpened"
	EventRepositoryClosed EventKind = "repositoryClosed"
	// EventRepository forwards a controller event.
	EventRepository EventKind = "repository"
)

// Event is a manager notification. Repository is set for EventRepository.
type Event struct {
	Kind       EventKind
	Root       string
	Repository repository.Event
}

type subscription struct {
	id int
	fn func(Event)
}

type subscribers struct {
	mu     sync.Mutex
	nextID int
	list   []subscription
}

func (s *subscribers) add(fn func(Event)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.list = append(s.list, subscription{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.list = slices.DeleteFunc(s.list, func(sub subscription) bool { return sub.id == id })
			s.mu.Unlock()
		})
	}
}

func (s *subscribers) emit(ev Event) {
	s.mu.Lock()
	list := slices.Clone(s.list)
	s.mu.Unlock()
	for _, sub := range list {
		sub.fn(ev)
	}
}
