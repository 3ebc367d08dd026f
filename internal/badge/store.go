package badge

import (
	"context"
	"log"
	"sync"
	"time"
)

// Badge sources.
const (
	SourceSupport       = "support"
	SourceNotifications = "notifications"
)

const publishTimeout = 3 * time.Second

// Mirror shares badge counts with other console processes of the same admin.
type Mirror interface {
	Load(ctx context.Context) (map[string]int, error)
	Publish(ctx context.Context, counts map[string]int) error
	Watch(ctx context.Context, fn func(map[string]int)) error
}

// Store is the console-wide unread badge: one count per source.
type Store struct {
	mirror Mirror

	mu        sync.Mutex
	counts    map[string]int
	listeners map[int]func(int)
	nextID    int
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewStore constructs a Store. mirror may be nil.
func NewStore(mirror Mirror) *Store {
	return &Store{
		mirror:    mirror,
		counts:    make(map[string]int),
		listeners: make(map[int]func(int)),
	}
}

// Start loads the mirrored counts and follows remote updates until Close.
func (s *Store) Start(ctx context.Context) error {
	if s.mirror == nil {
		return nil
	}
	remote, err := s.mirror.Load(ctx)
	if err != nil {
		return err
	}
	s.merge(remote)

	watchCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		if err := s.mirror.Watch(watchCtx, s.merge); err != nil && watchCtx.Err() == nil {
			log.Printf("badge mirror watch stopped: %v", err)
		}
	}()
	return nil
}

// Close stops following the mirror.
func (s *Store) Close() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Set updates one source and publishes the counts when they changed.
func (s *Store) Set(source string, count int) {
	if count < 0 {
		count = 0
	}
	s.mu.Lock()
	if prev, ok := s.counts[source]; ok && prev == count {
		s.mu.Unlock()
		return
	}
	s.counts[source] = count
	snapshot := s.copyLocked()
	s.mu.Unlock()

	s.notify()
	if s.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.mirror.Publish(ctx, snapshot); err != nil {
			log.Printf("badge mirror publish failed: %v", err)
		}
	}
}

// merge applies counts from another process without publishing them back.
func (s *Store) merge(remote map[string]int) {
	changed := false
	s.mu.Lock()
	for source, n := range remote {
		if s.counts[source] != n {
			s.counts[source] = n
			changed = true
		}
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// Total is the number shown on the badge.
func (s *Store) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.counts {
		total += n
	}
	return total
}

// Counts returns a copy of the per-source counts.
func (s *Store) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// Subscribe registers a listener for the total and returns its cancel func.
func (s *Store) Subscribe(fn func(total int)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify() {
	total := s.Total()
	s.mu.Lock()
	fns := make([]func(int), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(total)
	}
}

func (s *Store) copyLocked() map[string]int {
	out := make(map[string]int, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}
