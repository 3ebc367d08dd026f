package notifications

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"support-console/internal/models"
	"support-console/internal/ws"
)

// MaxNotifications is how many notifications the inbox keeps.
const MaxNotifications = 100

var ErrUnknownNotification = errors.New("notification not found")

// Socket is the notification namespace connection.
type Socket interface {
	Emit(event string, payload interface{}) error
	Connected() bool
}

type idPayload struct {
	ID string `json:"id"`
}

type countPayload struct {
	Count       *int `json:"count"`
	UnreadCount *int `json:"unreadCount"`
}

// Inbox holds the newest notifications and the server-authoritative unread count.
type Inbox struct {
	socket Socket

	mu        sync.Mutex
	items     []models.Notification
	unread    int
	listeners map[int]func()
	nextID    int
}

func NewInbox(socket Socket) *Inbox {
	return &Inbox{socket: socket, listeners: make(map[int]func())}
}

// Subscribe registers a change listener and returns its cancel func.
func (i *Inbox) Subscribe(fn func()) func() {
	i.mu.Lock()
	id := i.nextID
	i.nextID++
	i.listeners[id] = fn
	i.mu.Unlock()
	return func() {
		i.mu.Lock()
		delete(i.listeners, id)
		i.mu.Unlock()
	}
}

func (i *Inbox) notify() {
	i.mu.Lock()
	fns := make([]func(), 0, len(i.listeners))
	for _, fn := range i.listeners {
		fns = append(fns, fn)
	}
	i.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// HandleFrame applies one inbound notification frame.
func (i *Inbox) HandleFrame(frame ws.Frame) {
	switch frame.Event {
	case ws.EventNotification:
		var n models.Notification
		if err := frame.Decode(&n); err != nil {
			log.Printf("inbox decode %s: %v", frame.Event, err)
			return
		}
		i.Add(n)
	case ws.EventUnreadCount:
		var payload countPayload
		if err := frame.Decode(&payload); err != nil {
			log.Printf("inbox decode %s: %v", frame.Event, err)
			return
		}
		switch {
		case payload.Count != nil:
			i.SetUnread(*payload.Count)
		case payload.UnreadCount != nil:
			i.SetUnread(*payload.UnreadCount)
		}
	default:
		log.Printf("inbox ignoring event=%s", frame.Event)
	}
}

// Add stores a pushed notification. Duplicates are dropped and only the newest
// MaxNotifications are kept; a notification older than all of them is not stored
// or counted.
func (i *Inbox) Add(n models.Notification) bool {
	if n.ID == "" {
		return false
	}
	i.mu.Lock()
	for _, existing := range i.items {
		if existing.ID == n.ID {
			i.mu.Unlock()
			return false
		}
	}
	i.items = append(i.items, n)
	sort.SliceStable(i.items, func(a, b int) bool {
		return i.items[a].CreatedAt.After(i.items[b].CreatedAt)
	})
	kept := true
	if len(i.items) > MaxNotifications {
		kept = false
		for _, survivor := range i.items[:MaxNotifications] {
			if survivor.ID == n.ID {
				kept = true
				break
			}
		}
		i.items = i.items[:MaxNotifications]
	}
	if kept && !n.IsRead {
		i.unread++
	}
	i.mu.Unlock()

	if kept {
		i.notify()
	}
	return kept
}

// SetUnread stores the server count.
func (i *Inbox) SetUnread(count int) {
	if count < 0 {
		count = 0
	}
	i.mu.Lock()
	i.unread = count
	i.mu.Unlock()
	i.notify()
}

func (i *Inbox) Unread() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.unread
}

// List returns the notifications newest first.
func (i *Inbox) List() []models.Notification {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]models.Notification, len(i.items))
	copy(out, i.items)
	return out
}

// MarkRead acknowledges one notification. The local count only drops once the
// socket accepted the request.
func (i *Inbox) MarkRead(id string) error {
	i.mu.Lock()
	idx := -1
	for k := range i.items {
		if i.items[k].ID == id {
			idx = k
			break
		}
	}
	i.mu.Unlock()
	if idx < 0 {
		return ErrUnknownNotification
	}

	if err := i.socket.Emit(ws.EventMarkRead, idPayload{ID: id}); err != nil {
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}

	i.mu.Lock()
	changed := false
	for k := range i.items {
		if i.items[k].ID == id && !i.items[k].IsRead {
			i.items[k].IsRead = true
			if i.unread > 0 {
				i.unread--
			}
			changed = true
		}
	}
	i.mu.Unlock()
	if changed {
		i.notify()
	}
	return nil
}

// MarkAllRead acknowledges every notification.
func (i *Inbox) MarkAllRead() error {
	if err := i.socket.Emit(ws.EventMarkAllRead, nil); err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	i.mu.Lock()
	for k := range i.items {
		i.items[k].IsRead = true
	}
	i.unread = 0
	i.mu.Unlock()
	i.notify()
	return nil
}

// RequestUnreadCount asks the server for its count; the answer arrives as unread_count.
func (i *Inbox) RequestUnreadCount() error {
	return i.socket.Emit(ws.EventGetUnreadCount, nil)
}

// Resync runs after every (re)connect of the notification socket.
func (i *Inbox) Resync(ctx context.Context) {
	if err := i.RequestUnreadCount(); err != nil {
		log.Printf("inbox resync: %v", err)
	}
}
