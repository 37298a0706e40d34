package memory

import (
	"context"
	"sync"
)

// RunLock is an in-process implementation of app.RunLock.
type RunLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewRunLock() *RunLock {
	return &RunLock{held: make(map[string]struct{})}
}

func (l *RunLock) Acquire(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return false, nil
	}
	l.held[key] = struct{}{}
	return true, nil
}

func (l *RunLock) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

// Held reports whether key is currently locked.
func (l *RunLock) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}
