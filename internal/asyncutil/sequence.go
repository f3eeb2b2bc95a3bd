package asyncutil

import (
	"context"
	"sync"
)

// Sequence runs functions one at a time in call order.
// The zero value is ready to use.
type Sequence struct {
	mu   sync.Mutex
	tail chan struct{}
}

// Do waits for every earlier Do to finish, then runs fn.
// If ctx is done while waiting, fn is skipped and the queue order is kept.
func (s *Sequence) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	prev := s.tail
	mine := make(chan struct{})
	s.tail = mine
	s.mu.Unlock()

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			go func() {
				<-prev
				close(mine)
			}()
			return ctx.Err()
		}
	}
	defer close(mine)
	return fn(ctx)
}
