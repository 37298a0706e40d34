package app

import (
	"sync"

	"risehigh-xp-service/internal/domain"
)

const feedBuffer = 32

// Feed fans recorded XP events out to live subscribers, keyed by student.
type Feed struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.XpEvent]struct{}
}

func NewFeed() *Feed {
	return &Feed{subscribers: make(map[string]map[chan domain.XpEvent]struct{})}
}

// Subscribe returns a channel receiving the student's XP events.
// The caller must invoke the returned cancel function to avoid leaks.
func (f *Feed) Subscribe(studentID string) (<-chan domain.XpEvent, func()) {
	ch := make(chan domain.XpEvent, feedBuffer)

	f.mu.Lock()
	subs, ok := f.subscribers[studentID]
	if !ok {
		subs = make(map[chan domain.XpEvent]struct{})
		f.subscribers[studentID] = subs
	}
	subs[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		subs := f.subscribers[studentID]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(f.subscribers, studentID)
		}
	}
	return ch, cancel
}

// Publish delivers events to their students' subscribers. A full subscriber
// loses its oldest pending event instead of blocking the pipeline.
func (f *Feed) Publish(events []domain.XpEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, evt := range events {
		for ch := range f.subscribers[evt.StudentID] {
			select {
			case ch <- evt:
			default:
				select {
				case <-ch:
				default:
				}
				ch <- evt
			}
		}
	}
}

// Subscribers reports how many live subscriptions a student has.
func (f *Feed) Subscribers(studentID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers[studentID])
}
