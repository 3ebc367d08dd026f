package badge

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMirror struct {
	mu        sync.Mutex
	initial   map[string]int
	published []map[string]int
	remote    chan map[string]int
}

func newFakeMirror(initial map[string]int) *fakeMirror {
	return &fakeMirror{initial: initial, remote: make(chan map[string]int)}
}

func (m *fakeMirror) Load(ctx context.Context) (map[string]int, error) {
	return m.initial, nil
}

func (m *fakeMirror) Publish(ctx context.Context, counts map[string]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, counts)
	return nil
}

func (m *fakeMirror) Watch(ctx context.Context, fn func(map[string]int)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case counts := <-m.remote:
			fn(counts)
		}
	}
}

func (m *fakeMirror) publishedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}

func TestStoreTotalsSources(t *testing.T) {
	s := NewStore(nil)
	var totals []int
	s.Subscribe(func(total int) { totals = append(totals, total) })

	s.Set(SourceSupport, 3)
	s.Set(SourceNotifications, 2)
	s.Set(SourceSupport, 3)
	s.Set(SourceSupport, -1)

	assert.Equal(t, 2, s.Total())
	assert.Equal(t, []int{3, 5, 2}, totals)
	assert.Equal(t, map[string]int{SourceSupport: 0, SourceNotifications: 2}, s.Counts())
}

func TestStoreMirrorsCounts(t *testing.T) {
	mirror := newFakeMirror(map[string]int{SourceNotifications: 4})
	s := NewStore(mirror)
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	assert.Equal(t, 4, s.Total())
	assert.Equal(t, 0, mirror.publishedCount())

	s.Set(SourceSupport, 1)
	assert.Equal(t, 1, mirror.publishedCount())

	mirror.remote <- map[string]int{SourceSupport: 6}
	require.Eventually(t, func() bool { return s.Total() == 10 }, time.Second, 5*time.Millisecond)
	// Remote updates are not echoed back.
	assert.Equal(t, 1, mirror.publishedCount())
}

func TestStoreCloseStopsWatch(t *testing.T) {
	mirror := newFakeMirror(nil)
	s := NewStore(mirror)
	require.NoError(t, s.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("close did not stop the watcher")
	}
	s.Close()
}

func TestRedisMirrorDecodeSkipsOwnUpdates(t *testing.T) {
	m := &RedisMirror{origin: "self"}

	own, _ := json.Marshal(update{Origin: "self", Counts: map[string]int{SourceSupport: 1}})
	_, ok := m.decode(string(own))
	assert.False(t, ok)

	other, _ := json.Marshal(update{Origin: "other", Counts: map[string]int{SourceSupport: 2}})
	counts, ok := m.decode(string(other))
	require.True(t, ok)
	assert.Equal(t, 2, counts[SourceSupport])

	_, ok = m.decode("not json")
	assert.False(t, ok)
}

func TestParseCountsSkipsGarbage(t *testing.T) {
	counts := parseCounts(map[string]string{SourceSupport: "3", SourceNotifications: "x"})
	assert.Equal(t, map[string]int{SourceSupport: 3}, counts)
}
