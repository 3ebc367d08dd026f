package conversation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"support-console/internal/models"
	"support-console/internal/observability"
)

var (
	ErrNoActiveConversation = errors.New("no active conversation")
	ErrConversationClosed   = errors.New("conversation is not open")
	ErrNotActive            = errors.New("conversation is not active")
	// ErrSuperseded is returned when the active conversation changed while a page was in flight.
	ErrSuperseded = errors.New("conversation switched during load")
)

const (
	DefaultRecencyWindow  = 60 * time.Second
	DefaultReadFlushDelay = 300 * time.Millisecond
	DefaultTypingTimeout  = 5 * time.Second

	// maxCountedIDs bounds the ids remembered for unread de-duplication.
	maxCountedIDs = 5000
)

// Outcome describes what ApplyIncoming did with a server message.
type Outcome string

const (
	OutcomeAppended   Outcome = "appended"
	OutcomeReplaced   Outcome = "replaced"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeBackground Outcome = "background"
	OutcomeIgnored    Outcome = "ignored"
)

// ChangeKind tells listeners which part of the store moved.
type ChangeKind string

const (
	ChangeActive        ChangeKind = "active"
	ChangeMessages      ChangeKind = "messages"
	ChangeUnread        ChangeKind = "unread"
	ChangeTyping        ChangeKind = "typing"
	ChangeConversations ChangeKind = "conversations"
)

// Change is delivered to listeners after every mutating operation.
type Change struct {
	Kind           ChangeKind `json:"kind"`
	ConversationID string     `json:"conversationId,omitempty"`
}

// HistoryFetcher loads conversation history pages.
type HistoryFetcher interface {
	GetMessages(ctx context.Context, conversationID string, page int) (models.MessagePage, error)
}

// ReadAcknowledger forwards read receipts to the platform. It must not block on the server reply.
type ReadAcknowledger interface {
	AcknowledgeRead(conversationID string, messageIDs []string) error
}

// Options tunes a Store. Zero values select the defaults.
type Options struct {
	RecencyWindow  time.Duration
	ReadFlushDelay time.Duration
	TypingTimeout  time.Duration
	Now            func() time.Time
}

// Store holds the message list of the active conversation and the unread counts of
// every visible conversation. Each exported method is one atomic turn.
type Store struct {
	fetcher HistoryFetcher
	ack     ReadAcknowledger
	opts    Options

	mu            sync.Mutex
	active        string
	epoch         uint64
	messages      []models.Message
	ids           map[string]struct{}
	conversations map[string]models.Conversation
	unread        map[string]int
	counted       map[string]string
	countedOrder  []string
	pages         map[int]struct{}
	hasMore       bool
	typing        bool
	typingTimer   *time.Timer
	readTimer     *time.Timer
	pendingReads  []string

	listeners map[int]func(Change)
	nextID    int
}

// NewStore constructs a Store.
func NewStore(fetcher HistoryFetcher, ack ReadAcknowledger, opts Options) *Store {
	if opts.RecencyWindow <= 0 {
		opts.RecencyWindow = DefaultRecencyWindow
	}
	if opts.ReadFlushDelay <= 0 {
		opts.ReadFlushDelay = DefaultReadFlushDelay
	}
	if opts.TypingTimeout <= 0 {
		opts.TypingTimeout = DefaultTypingTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		fetcher:       fetcher,
		ack:           ack,
		opts:          opts,
		ids:           make(map[string]struct{}),
		conversations: make(map[string]models.Conversation),
		unread:        make(map[string]int),
		counted:       make(map[string]string),
		pages:         make(map[int]struct{}),
		listeners:     make(map[int]func(Change)),
	}
}

// Subscribe registers a change listener and returns its cancel func.
func (s *Store) Subscribe(fn func(Change)) func() {
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

func (s *Store) notify(changes ...Change) {
	if len(changes) == 0 {
		return
	}
	s.mu.Lock()
	fns := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, c := range changes {
		for _, fn := range fns {
			fn(c)
		}
	}
}

// SetConversations replaces the conversation list with a server snapshot. Server
// unread counts supersede local adjustments, except for the open conversation
// whose count follows local reads.
func (s *Store) SetConversations(list []models.Conversation) {
	s.mu.Lock()
	activeConv, hadActive := s.conversations[s.active]
	s.conversations = make(map[string]models.Conversation, len(list))
	for _, c := range list {
		s.conversations[c.ID] = c
		if _, local := s.unread[c.ID]; c.ID == s.active && local {
			continue
		}
		s.unread[c.ID] = c.UnreadCount
	}
	if _, listed := s.conversations[s.active]; hadActive && !listed {
		// The open conversation stays usable even when the list omits it.
		s.conversations[s.active] = activeConv
	}
	s.pruneCountedLocked()
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeConversations}, Change{Kind: ChangeUnread})
}

// UpsertConversation records one conversation without touching its unread count.
func (s *Store) UpsertConversation(conv models.Conversation) {
	s.mu.Lock()
	if _, ok := s.unread[conv.ID]; !ok {
		s.unread[conv.ID] = conv.UnreadCount
	}
	s.conversations[conv.ID] = conv
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeConversations, ConversationID: conv.ID})
}

// SetStatus updates a conversation status after an explicit close.
func (s *Store) SetStatus(conversationID string, status models.ConversationStatus) {
	s.mu.Lock()
	conv, ok := s.conversations[conversationID]
	if ok {
		conv.Status = status
		s.conversations[conversationID] = conv
	}
	s.mu.Unlock()
	if ok {
		s.notify(Change{Kind: ChangeConversations, ConversationID: conversationID})
	}
}

// ApplyServerUnread stores a pushed server count unless the conversation is open.
// It reports whether the count was taken.
func (s *Store) ApplyServerUnread(conversationID string, count int) bool {
	if count < 0 {
		count = 0
	}
	s.mu.Lock()
	if conversationID == "" || conversationID == s.active {
		s.mu.Unlock()
		return false
	}
	s.unread[conversationID] = count
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeUnread, ConversationID: conversationID})
	return true
}

// SetUnread stores the authoritative server count.
func (s *Store) SetUnread(conversationID string, count int) {
	if count < 0 {
		count = 0
	}
	s.mu.Lock()
	s.unread[conversationID] = count
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeUnread, ConversationID: conversationID})
}

// Unread returns the local unread count of a conversation.
func (s *Store) Unread(conversationID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[conversationID]
}

// TotalUnread sums the unread counts of all conversations.
func (s *Store) TotalUnread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.unread {
		total += n
	}
	return total
}

// SetActive switches the active conversation. The previous list is discarded,
// pending read flushes are cancelled and typing indicators are cleared. It
// returns the new epoch.
func (s *Store) SetActive(conv models.Conversation) uint64 {
	s.mu.Lock()
	s.epoch++
	s.active = conv.ID
	if conv.ID != "" {
		if _, ok := s.unread[conv.ID]; !ok {
			s.unread[conv.ID] = conv.UnreadCount
		}
		s.conversations[conv.ID] = conv
	}
	s.messages = nil
	s.ids = make(map[string]struct{})
	s.pages = make(map[int]struct{})
	s.hasMore = false
	s.stopTimersLocked()
	epoch := s.epoch
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeActive, ConversationID: conv.ID}, Change{Kind: ChangeMessages, ConversationID: conv.ID})
	return epoch
}

// Conversation returns one known conversation with its local unread count.
func (s *Store) Conversation(conversationID string) (models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	conv.UnreadCount = s.unread[conversationID]
	return conv, ok
}

// Conversations returns the known conversations with their local unread counts,
// most recent activity first.
func (s *Store) Conversations() []models.Conversation {
	s.mu.Lock()
	out := make([]models.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		c.UnreadCount = s.unread[c.ID]
		out = append(out, c)
	}
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out
}

// Active returns the active conversation id, empty when none is open.
func (s *Store) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ActiveConversation returns the active conversation record.
func (s *Store) ActiveConversation() (models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == "" {
		return models.Conversation{}, false
	}
	conv, ok := s.conversations[s.active]
	return conv, ok
}

// Messages returns a copy of the active message list in display order.
func (s *Store) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// NextPage returns the next history page to load and whether one exists.
func (s *Store) NextPage() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	highest := 0
	for p := range s.pages {
		if p > highest {
			highest = p
		}
	}
	if highest == 0 {
		return 1, true
	}
	return highest + 1, s.hasMore
}

// LoadPage fetches a page of history for the active conversation and merges it.
// Loading the same page twice leaves the list unchanged.
func (s *Store) LoadPage(ctx context.Context, conversationID string, page int) error {
	s.mu.Lock()
	if conversationID == "" || conversationID != s.active {
		s.mu.Unlock()
		return ErrNotActive
	}
	epoch := s.epoch
	s.mu.Unlock()

	result, err := s.fetcher.GetMessages(ctx, conversationID, page)
	if err != nil {
		return fmt.Errorf("load page %d of %s: %w", page, conversationID, err)
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return ErrSuperseded
	}
	changed := false
	for _, m := range result.Messages {
		if m.ConversationID == "" {
			m.ConversationID = conversationID
		}
		if m.ConversationID != conversationID {
			continue
		}
		if m.SenderType != models.SenderAdmin && !m.IsRead {
			// Already part of the server's unread count.
			s.rememberCountedLocked(m.ID, conversationID)
		}
		if outcome := s.mergeLocked(m); outcome != OutcomeDuplicate {
			changed = true
		}
	}
	s.pages[page] = struct{}{}
	if page >= s.highestPageLocked() {
		s.hasMore = result.HasMore || (result.TotalPages > page)
	}
	s.mu.Unlock()

	if changed {
		s.notify(Change{Kind: ChangeMessages, ConversationID: conversationID})
	}
	return nil
}

func (s *Store) highestPageLocked() int {
	highest := 0
	for p := range s.pages {
		if p > highest {
			highest = p
		}
	}
	return highest
}

// ApplyIncoming applies a server-pushed message. Messages for other conversations
// only affect unread bookkeeping.
func (s *Store) ApplyIncoming(msg models.Message) Outcome {
	if msg.ID == "" || msg.ConversationID == "" {
		return OutcomeIgnored
	}

	s.mu.Lock()
	var outcome Outcome
	unreadChanged := false
	if msg.ConversationID != s.active {
		outcome = OutcomeBackground
		unreadChanged = s.countUnreadLocked(msg)
		s.touchConversationLocked(msg)
	} else {
		outcome = s.mergeLocked(msg)
		if outcome != OutcomeDuplicate {
			unreadChanged = s.countUnreadLocked(msg)
			s.touchConversationLocked(msg)
		}
	}
	s.mu.Unlock()

	observability.IncReconcile(string(outcome))
	var changes []Change
	if outcome == OutcomeAppended || outcome == OutcomeReplaced {
		changes = append(changes, Change{Kind: ChangeMessages, ConversationID: msg.ConversationID})
	}
	if outcome != OutcomeDuplicate {
		changes = append(changes, Change{Kind: ChangeConversations, ConversationID: msg.ConversationID})
	}
	if unreadChanged {
		changes = append(changes, Change{Kind: ChangeUnread, ConversationID: msg.ConversationID})
	}
	s.notify(changes...)
	return outcome
}

// countUnreadLocked increments unread once per message id for messages from the other side.
func (s *Store) countUnreadLocked(msg models.Message) bool {
	if msg.SenderType == models.SenderAdmin || msg.IsRead {
		return false
	}
	if _, seen := s.counted[msg.ID]; seen {
		return false
	}
	s.rememberCountedLocked(msg.ID, msg.ConversationID)
	s.unread[msg.ConversationID]++
	return true
}

func (s *Store) rememberCountedLocked(id, conversationID string) {
	if _, ok := s.counted[id]; ok {
		return
	}
	s.counted[id] = conversationID
	s.countedOrder = append(s.countedOrder, id)
	if over := len(s.countedOrder) - maxCountedIDs; over > 0 {
		for _, old := range s.countedOrder[:over] {
			delete(s.counted, old)
		}
		s.countedOrder = append([]string(nil), s.countedOrder[over:]...)
	}
}

// pruneCountedLocked forgets ids of conversations the server no longer lists.
func (s *Store) pruneCountedLocked() {
	kept := s.countedOrder[:0]
	for _, id := range s.countedOrder {
		conversationID := s.counted[id]
		if _, listed := s.conversations[conversationID]; !listed {
			delete(s.counted, id)
			continue
		}
		kept = append(kept, id)
	}
	s.countedOrder = kept
}

func (s *Store) touchConversationLocked(msg models.Message) {
	conv, ok := s.conversations[msg.ConversationID]
	if !ok {
		return
	}
	if msg.CreatedAt.After(conv.LastMessageAt) {
		conv.LastMessageAt = msg.CreatedAt
		conv.LastMessage = msg.Message
		s.conversations[msg.ConversationID] = conv
	}
}

// mergeLocked inserts msg into the active list, replacing a matching pending entry.
func (s *Store) mergeLocked(msg models.Message) Outcome {
	if _, exists := s.ids[msg.ID]; exists {
		return OutcomeDuplicate
	}
	msg.Pending = false

	if idx := s.matchPendingLocked(msg); idx >= 0 {
		delete(s.ids, s.messages[idx].ID)
		s.messages[idx] = msg
		s.ids[msg.ID] = struct{}{}
		s.sortLocked()
		return OutcomeReplaced
	}

	s.ids[msg.ID] = struct{}{}
	pos := sort.Search(len(s.messages), func(i int) bool {
		return s.messages[i].CreatedAt.After(msg.CreatedAt)
	})
	s.messages = append(s.messages, models.Message{})
	copy(s.messages[pos+1:], s.messages[pos:])
	s.messages[pos] = msg
	return OutcomeAppended
}

// matchPendingLocked finds the oldest pending message the server message confirms.
// An echoed client id is decisive; otherwise content, sender and the local recency
// window must agree. Server timestamps are never compared with local ones.
func (s *Store) matchPendingLocked(msg models.Message) int {
	now := s.opts.Now()
	for i, m := range s.messages {
		if !m.Pending {
			continue
		}
		if msg.ClientMessageID != "" {
			if m.ClientMessageID == msg.ClientMessageID {
				return i
			}
			continue
		}
		if m.ConversationID != msg.ConversationID || m.SenderType != msg.SenderType || m.MessageType != msg.MessageType {
			continue
		}
		if m.Text() != msg.Text() {
			continue
		}
		if m.MessageType == models.MessageFile && m.FileURL != msg.FileURL {
			continue
		}
		age := now.Sub(m.LocalCreatedAt)
		if age < 0 || age > s.opts.RecencyWindow {
			continue
		}
		return i
	}
	return -1
}

func (s *Store) sortLocked() {
	sort.SliceStable(s.messages, func(i, j int) bool {
		return s.messages[i].CreatedAt.Before(s.messages[j].CreatedAt)
	})
}

// AddPending appends an optimistic message to the active conversation.
func (s *Store) AddPending(msg models.Message) (models.Message, error) {
	s.mu.Lock()
	if s.active == "" {
		s.mu.Unlock()
		return models.Message{}, ErrNoActiveConversation
	}
	conv, ok := s.conversations[s.active]
	if !ok || !conv.IsOpen() {
		s.mu.Unlock()
		return models.Message{}, ErrConversationClosed
	}
	now := s.opts.Now()
	msg.ConversationID = s.active
	msg.Pending = true
	msg.CreatedAt = now.UTC()
	msg.LocalCreatedAt = now
	s.ids[msg.ID] = struct{}{}
	// A local clock behind the server would sort the pending entry above
	// confirmed ones; keep it last.
	if n := len(s.messages); n > 0 && s.messages[n-1].CreatedAt.After(msg.CreatedAt) {
		msg.CreatedAt = s.messages[n-1].CreatedAt
	}
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeMessages, ConversationID: msg.ConversationID})
	return msg, nil
}

// RemovePending drops a pending message. Confirmed messages are never removed.
func (s *Store) RemovePending(id string) bool {
	s.mu.Lock()
	removed := false
	conversationID := s.active
	for i, m := range s.messages {
		if m.ID == id && m.Pending {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			delete(s.ids, id)
			removed = true
			break
		}
	}
	s.mu.Unlock()

	if removed {
		s.notify(Change{Kind: ChangeMessages, ConversationID: conversationID})
	}
	return removed
}

// MarkRead flips isRead locally and schedules a batched acknowledgement.
// It returns the number of messages that changed state.
func (s *Store) MarkRead(messageIDs []string) int {
	want := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		want[id] = struct{}{}
	}
	return s.markRead(func(id string) bool {
		_, ok := want[id]
		return ok
	}, false)
}

// MarkAllVisibleRead marks every visible message read and clears the open
// conversation's unread count in the same turn, so a message arriving right
// after is still counted.
func (s *Store) MarkAllVisibleRead() int {
	return s.markRead(func(string) bool { return true }, true)
}

func (s *Store) markRead(match func(id string) bool, reset bool) int {
	s.mu.Lock()
	if s.active == "" {
		s.mu.Unlock()
		return 0
	}
	conversationID := s.active
	before := s.unread[conversationID]
	flipped, changed := 0, 0
	for i := range s.messages {
		m := &s.messages[i]
		if m.IsRead || m.Pending || !match(m.ID) {
			continue
		}
		m.IsRead = true
		changed++
		s.pendingReads = append(s.pendingReads, m.ID)
		if m.SenderType != models.SenderAdmin {
			flipped++
		}
	}
	if reset {
		s.unread[conversationID] = 0
	} else if flipped > 0 {
		s.unread[conversationID] -= flipped
		if s.unread[conversationID] < 0 {
			s.unread[conversationID] = 0
		}
	}
	unreadChanged := s.unread[conversationID] != before
	if len(s.pendingReads) > 0 && s.readTimer == nil {
		epoch := s.epoch
		s.readTimer = time.AfterFunc(s.opts.ReadFlushDelay, func() { s.flushReads(epoch) })
	}
	s.mu.Unlock()

	var changes []Change
	if changed > 0 {
		changes = append(changes, Change{Kind: ChangeMessages, ConversationID: conversationID})
	}
	if unreadChanged {
		changes = append(changes, Change{Kind: ChangeUnread, ConversationID: conversationID})
	}
	s.notify(changes...)
	return flipped
}

// UnreadMessageIDs lists the unread messages from the other side in the active list.
func (s *Store) UnreadMessageIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, m := range s.messages {
		if !m.IsRead && !m.Pending && m.SenderType != models.SenderAdmin {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

func (s *Store) flushReads(epoch uint64) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	s.readTimer = nil
	ids := s.pendingReads
	s.pendingReads = nil
	conversationID := s.active
	s.mu.Unlock()

	if len(ids) == 0 || s.ack == nil {
		return
	}
	if err := s.ack.AcknowledgeRead(conversationID, ids); err != nil {
		log.Printf("read acknowledgement failed conversation=%s count=%d: %v", conversationID, len(ids), err)
	}
}

// SetTyping records typing activity of the other side in a conversation.
// Indicators expire after the typing timeout.
func (s *Store) SetTyping(conversationID string, on bool) {
	s.mu.Lock()
	if conversationID != s.active {
		s.mu.Unlock()
		return
	}
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	changed := s.typing != on
	s.typing = on
	if on {
		epoch := s.epoch
		s.typingTimer = time.AfterFunc(s.opts.TypingTimeout, func() { s.expireTyping(epoch) })
	}
	s.mu.Unlock()

	if changed {
		s.notify(Change{Kind: ChangeTyping, ConversationID: conversationID})
	}
}

func (s *Store) expireTyping(epoch uint64) {
	s.mu.Lock()
	if epoch != s.epoch || !s.typing {
		s.mu.Unlock()
		return
	}
	s.typing = false
	s.typingTimer = nil
	conversationID := s.active
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeTyping, ConversationID: conversationID})
}

// Typing reports whether the other side is typing in the active conversation.
func (s *Store) Typing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing
}

func (s *Store) stopTimersLocked() {
	if s.readTimer != nil {
		s.readTimer.Stop()
		s.readTimer = nil
	}
	s.pendingReads = nil
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	s.typing = false
}

// Close stops timers. The store must not be used afterwards.
func (s *Store) Close() {
	s.mu.Lock()
	s.epoch++
	s.stopTimersLocked()
	s.mu.Unlock()
}
