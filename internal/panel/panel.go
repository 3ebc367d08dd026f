package panel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"support-console/internal/conversation"
	"support-console/internal/models"
	"support-console/internal/telemetry"
	"support-console/internal/ws"
)

const (
	EventToast = "toast"

	defaultTypingInterval = 2 * time.Second
	ackFallbackTimeout    = 10 * time.Second
)

var ErrNoMoreHistory = errors.New("no older messages")

// ConversationAPI is the slice of the REST client the panel needs.
type ConversationAPI interface {
	ListConversations(ctx context.Context, status models.ConversationStatus) ([]models.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (models.Conversation, error)
	GetMessages(ctx context.Context, conversationID string, page int) (models.MessagePage, error)
	CloseConversation(ctx context.Context, conversationID string) error
	MarkConversationRead(ctx context.Context, conversationID string) error
}

// Socket is the chat namespace connection.
type Socket interface {
	Emit(event string, payload interface{}) error
	Connected() bool
}

// Recorder journals admin decisions.
type Recorder interface {
	Record(ctx context.Context, action, targetType, targetID, detail string)
}

// Toast is a transient message for the admin.
type Toast struct {
	Level          string `json:"level"`
	ConversationID string `json:"conversationId,omitempty"`
	Message        string `json:"message"`
}

type Options struct {
	Store          conversation.Options
	TypingInterval time.Duration
}

type roomPayload struct {
	ConversationID string `json:"conversationId"`
}

type sendPayload struct {
	ConversationID  string             `json:"conversationId"`
	Message         string             `json:"message"`
	MessageType     models.MessageType `json:"messageType"`
	FileURL         string             `json:"fileUrl,omitempty"`
	FileName        string             `json:"fileName,omitempty"`
	ClientMessageID string             `json:"clientMessageId"`
}

type readPayload struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// Panel controls the support chat panel: it owns conversation switching and
// routes socket events into the conversation store.
type Panel struct {
	api        ConversationAPI
	socket     Socket
	journal    Recorder
	store      *conversation.Store
	reconciler *conversation.Reconciler
	typing     *rate.Limiter

	mu      sync.Mutex
	toasts  []func(Toast)
	lookups map[string]struct{}
}

func New(api ConversationAPI, socket Socket, journal Recorder, opts Options) *Panel {
	if opts.TypingInterval <= 0 {
		opts.TypingInterval = defaultTypingInterval
	}
	p := &Panel{
		api:     api,
		socket:  socket,
		journal: journal,
		typing:  rate.NewLimiter(rate.Every(opts.TypingInterval), 1),
		lookups: make(map[string]struct{}),
	}
	p.store = conversation.NewStore(api, p, opts.Store)
	p.reconciler = conversation.NewReconciler(p.store, p, p)
	return p
}

// Store exposes the underlying conversation store.
func (p *Panel) Store() *conversation.Store {
	return p.store
}

// OnToast registers a toast listener.
func (p *Panel) OnToast(fn func(Toast)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toasts = append(p.toasts, fn)
}

// Subscribe forwards store changes to fn.
func (p *Panel) Subscribe(fn func(conversation.Change)) func() {
	return p.store.Subscribe(fn)
}

// Refresh reloads the conversation list with server unread counts.
func (p *Panel) Refresh(ctx context.Context) error {
	list, err := p.api.ListConversations(ctx, "")
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}
	p.store.SetConversations(list)
	return nil
}

// Open makes a conversation active, joins its room and loads the newest page.
func (p *Panel) Open(ctx context.Context, conversationID string) error {
	conv, err := p.api.GetConversation(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("open conversation %s: %w", conversationID, err)
	}

	if prev := p.store.Active(); prev != "" && prev != conv.ID {
		p.emitQuiet(ws.EventLeaveConversation, roomPayload{ConversationID: prev})
	}
	p.store.SetActive(conv)
	p.emitQuiet(ws.EventJoinConversation, roomPayload{ConversationID: conv.ID})

	if err := p.store.LoadPage(ctx, conv.ID, 1); err != nil {
		if errors.Is(err, conversation.ErrSuperseded) {
			return nil
		}
		return err
	}
	p.store.MarkAllVisibleRead()
	return nil
}

// Leave closes the panel without closing the conversation.
func (p *Panel) Leave() {
	prev := p.store.Active()
	if prev == "" {
		return
	}
	p.emitQuiet(ws.EventLeaveConversation, roomPayload{ConversationID: prev})
	p.store.SetActive(models.Conversation{})
}

// LoadOlder loads the next history page of the active conversation.
func (p *Panel) LoadOlder(ctx context.Context) error {
	active := p.store.Active()
	if active == "" {
		return conversation.ErrNoActiveConversation
	}
	page, more := p.store.NextPage()
	if !more {
		return ErrNoMoreHistory
	}
	return p.store.LoadPage(ctx, active, page)
}

func (p *Panel) Send(ctx context.Context, text string) (models.Message, error) {
	return p.reconciler.Send(ctx, text)
}

func (p *Panel) SendFile(ctx context.Context, fileURL, fileName, caption string) (models.Message, error) {
	return p.reconciler.SendFile(ctx, fileURL, fileName, caption)
}

// MarkRead marks messages of the active conversation read. An empty list marks
// every visible unread message.
func (p *Panel) MarkRead(messageIDs []string) int {
	if len(messageIDs) == 0 {
		messageIDs = p.store.UnreadMessageIDs()
	}
	return p.store.MarkRead(messageIDs)
}

// Typing tells the other side the admin is typing. Start events are throttled.
func (p *Panel) Typing(on bool) error {
	active := p.store.Active()
	if active == "" {
		return conversation.ErrNoActiveConversation
	}
	if !on {
		return p.socket.Emit(ws.EventStopTyping, roomPayload{ConversationID: active})
	}
	if !p.typing.Allow() {
		return nil
	}
	return p.socket.Emit(ws.EventStartTyping, roomPayload{ConversationID: active})
}

// Close closes a conversation on the platform and journals the decision.
func (p *Panel) Close(ctx context.Context, conversationID string) error {
	if err := p.api.CloseConversation(ctx, conversationID); err != nil {
		return fmt.Errorf("close conversation %s: %w", conversationID, err)
	}
	p.store.SetStatus(conversationID, models.StatusClosed)
	p.journal.Record(ctx, telemetry.ActionConversationClosed, telemetry.TargetConversation, conversationID, "")
	return nil
}

// Resync runs after every (re)connect of the chat socket: the room is rejoined
// and the active conversation re-fetched so nothing missed while offline is lost.
func (p *Panel) Resync(ctx context.Context) {
	if err := p.Refresh(ctx); err != nil {
		log.Printf("panel resync: %v", err)
	}
	active := p.store.Active()
	if active == "" {
		return
	}
	p.emitQuiet(ws.EventJoinConversation, roomPayload{ConversationID: active})
	if err := p.store.LoadPage(ctx, active, 1); err != nil && !errors.Is(err, conversation.ErrSuperseded) && !errors.Is(err, conversation.ErrNotActive) {
		log.Printf("panel resync conversation=%s: %v", active, err)
	}
}

// HandleFrame dispatches one inbound chat frame.
func (p *Panel) HandleFrame(frame ws.Frame) {
	switch frame.Event {
	case ws.EventMessageReceived:
		var msg models.Message
		if err := frame.Decode(&msg); err != nil {
			log.Printf("panel decode %s: %v", frame.Event, err)
			return
		}
		p.applyIncoming(msg)
	case ws.EventConversationNewMessage:
		var notice models.ConversationNotice
		if err := frame.Decode(&notice); err != nil {
			log.Printf("panel decode %s: %v", frame.Event, err)
			return
		}
		msg := notice.Message
		if msg.ConversationID == "" {
			msg.ConversationID = notice.ConversationID
		}
		p.applyIncoming(msg)
		if notice.UnreadCount != nil {
			p.store.ApplyServerUnread(msg.ConversationID, *notice.UnreadCount)
		}
	case ws.EventTypingStart, ws.EventTypingStop:
		var update models.TypingUpdate
		if err := frame.Decode(&update); err != nil {
			log.Printf("panel decode %s: %v", frame.Event, err)
			return
		}
		if update.SenderType == models.SenderAdmin {
			return
		}
		p.store.SetTyping(update.ConversationID, frame.Event == ws.EventTypingStart)
	case ws.EventUnreadCountUpdated:
		var update models.UnreadUpdate
		if err := frame.Decode(&update); err != nil {
			log.Printf("panel decode %s: %v", frame.Event, err)
			return
		}
		// The open conversation's count follows local reads; the server may
		// not have seen their acknowledgement yet.
		p.store.ApplyServerUnread(update.ConversationID, update.UnreadCount)
	case ws.EventError:
		var payload errorPayload
		if err := frame.Decode(&payload); err != nil || payload.Message == "" {
			payload.Message = "chat server error"
		}
		p.toast(Toast{Level: "error", Message: payload.Message})
	default:
		log.Printf("panel ignoring event=%s", frame.Event)
	}
}

func (p *Panel) applyIncoming(msg models.Message) {
	_, known := p.store.Conversation(msg.ConversationID)
	p.store.ApplyIncoming(msg)
	if !known && msg.ConversationID != "" {
		p.lookup(msg.ConversationID)
	}
}

// lookup fetches the metadata of a conversation we have not listed yet. At most
// one fetch per conversation is in flight.
func (p *Panel) lookup(conversationID string) {
	p.mu.Lock()
	if _, busy := p.lookups[conversationID]; busy {
		p.mu.Unlock()
		return
	}
	p.lookups[conversationID] = struct{}{}
	p.mu.Unlock()

	go func() {
		defer func() {
			p.mu.Lock()
			delete(p.lookups, conversationID)
			p.mu.Unlock()
		}()
		ctx, cancel := context.WithTimeout(context.Background(), ackFallbackTimeout)
		defer cancel()
		conv, err := p.api.GetConversation(ctx, conversationID)
		if err != nil {
			log.Printf("panel lookup conversation=%s: %v", conversationID, err)
			return
		}
		p.store.UpsertConversation(conv)
	}()
}

// Snapshot returns the current panel state.
func (p *Panel) Snapshot() models.PanelSnapshot {
	snap := models.PanelSnapshot{
		Connected:            p.socket.Connected(),
		ActiveConversationID: p.store.Active(),
		Messages:             p.store.Messages(),
		Typing:               p.store.Typing(),
		Conversations:        p.store.Conversations(),
		TotalUnread:          p.store.TotalUnread(),
	}
	if conv, ok := p.store.ActiveConversation(); ok {
		snap.ActiveConversation = &conv
		_, snap.HasMore = p.store.NextPage()
	}
	if snap.Messages == nil {
		snap.Messages = []models.Message{}
	}
	return snap
}

// Shutdown stops store timers.
func (p *Panel) Shutdown() {
	p.store.Close()
}

// SendMessage implements conversation.Sender over the chat socket.
func (p *Panel) SendMessage(ctx context.Context, msg models.Message) error {
	return p.socket.Emit(ws.EventSendMessage, sendPayload{
		ConversationID:  msg.ConversationID,
		Message:         msg.Message,
		MessageType:     msg.MessageType,
		FileURL:         msg.FileURL,
		FileName:        msg.FileName,
		ClientMessageID: msg.ClientMessageID,
	})
}

// AcknowledgeRead implements conversation.ReadAcknowledger. While the socket is
// down the REST endpoint marks the whole conversation read instead.
func (p *Panel) AcknowledgeRead(conversationID string, messageIDs []string) error {
	err := p.socket.Emit(ws.EventMarkMessageRead, readPayload{ConversationID: conversationID, MessageIDs: messageIDs})
	if !errors.Is(err, ws.ErrNotConnected) {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), ackFallbackTimeout)
	defer cancel()
	return p.api.MarkConversationRead(ctx, conversationID)
}

// NotifyError implements conversation.Notifier.
func (p *Panel) NotifyError(conversationID string, err error) {
	msg := "message not sent"
	if errors.Is(err, ws.ErrNotConnected) {
		msg = "message not sent: chat is offline"
	}
	p.toast(Toast{Level: "error", ConversationID: conversationID, Message: msg})
}

func (p *Panel) toast(t Toast) {
	p.mu.Lock()
	fns := append([]func(Toast){}, p.toasts...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(t)
	}
}

func (p *Panel) emitQuiet(event string, payload interface{}) {
	if err := p.socket.Emit(event, payload); err != nil && !errors.Is(err, ws.ErrNotConnected) {
		log.Printf("panel emit %s: %v", event, err)
	}
}
