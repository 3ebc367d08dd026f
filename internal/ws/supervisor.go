package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"support-console/internal/observability"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 1 << 20
	defaultRetryDelay = 3 * time.Second
)

// State is the connectivity state of a supervised socket.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Config describes one platform socket namespace.
type Config struct {
	Name       string
	URL        string
	Header     http.Header
	RetryDelay time.Duration
	Dialer     *websocket.Dialer
}

// Supervisor owns a client socket: it dials, reads frames, and redials on a fixed
// delay after every drop until its context ends.
type Supervisor struct {
	cfg     Config
	handler func(Frame)

	mu        sync.Mutex
	state     State
	conn      *websocket.Conn
	hooks     []func(context.Context)
	listeners map[int]func(bool)
	nextID    int

	writeMu sync.Mutex
}

// NewSupervisor constructs a Supervisor. handler receives every inbound frame
// on the read goroutine.
func NewSupervisor(cfg Config, handler func(Frame)) *Supervisor {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Name == "" {
		cfg.Name = "socket"
	}
	return &Supervisor{
		cfg:       cfg,
		handler:   handler,
		state:     StateDisconnected,
		listeners: make(map[int]func(bool)),
	}
}

// OnConnected registers a hook that runs after every transition into connected.
func (s *Supervisor) OnConnected(fn func(context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Subscribe registers a connectivity listener and returns its cancel func.
func (s *Supervisor) Subscribe(fn func(connected bool)) func() {
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

func (s *Supervisor) Name() string {
	return s.cfg.Name
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether frames can currently be sent.
func (s *Supervisor) Connected() bool {
	return s.State() == StateConnected
}

// Emit writes one frame. It fails fast with ErrNotConnected while disconnected.
func (s *Supervisor) Emit(event string, payload interface{}) error {
	frame, err := NewFrame(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

// Run dials and supervises the socket until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	s.setState(StateConnecting)
	for {
		conn, err := s.dial(ctx)
		if err == nil {
			s.attach(ctx, conn)
			err = s.readLoop(ctx, conn)
			s.detach(conn)
		} else {
			s.setState(StateDisconnected)
		}
		if ctx.Err() != nil {
			return
		}
		log.Printf("socket %s dropped, retrying in %s: %v", s.cfg.Name, s.cfg.RetryDelay, err)

		s.setState(StateReconnecting)
		timer := time.NewTimer(s.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.setState(StateDisconnected)
			return
		case <-timer.C:
		}
		observability.IncSocketRetry(s.cfg.Name)
	}
}

func (s *Supervisor) dial(ctx context.Context) (*websocket.Conn, error) {
	ctx, span := otel.Tracer("support-console/ws").Start(ctx, "ws.dial")
	defer span.End()
	span.SetAttributes(attribute.String("ws.socket", s.cfg.Name))

	conn, resp, err := s.cfg.Dialer.DialContext(ctx, s.cfg.URL, s.cfg.Header)
	if err != nil {
		span.RecordError(err)
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", s.cfg.Name, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", s.cfg.Name, err)
	}
	return conn, nil
}

func (s *Supervisor) attach(ctx context.Context, conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	hooks := append([]func(context.Context){}, s.hooks...)
	s.mu.Unlock()

	s.setState(StateConnected)
	log.Printf("socket %s connected url=%s", s.cfg.Name, s.cfg.URL)

	go func() {
		for _, hook := range hooks {
			hook(ctx)
		}
	}()
}

func (s *Supervisor) detach(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	conn.Close()
	s.setState(StateDisconnected)
}

func (s *Supervisor) readLoop(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go s.keepAlive(ctx, conn, done)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		// Any inbound frame proves the link is alive.
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("socket %s skipping malformed frame: %v", s.cfg.Name, err)
			observability.IncWSEvent(s.cfg.Name, "malformed_frame")
			continue
		}
		if frame.Event == "" || s.handler == nil {
			continue
		}
		s.handler(frame)
	}
}

func (s *Supervisor) keepAlive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.writeMu.Unlock()
			if err != nil {
				conn.Close()
				return
			}
		}
	}
}

func (s *Supervisor) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	var listeners []func(bool)
	wasUp, isUp := prev == StateConnected, next == StateConnected
	if wasUp != isUp {
		for _, fn := range s.listeners {
			listeners = append(listeners, fn)
		}
	}
	s.mu.Unlock()

	if prev == next {
		return
	}
	observability.IncSocketTransition(s.cfg.Name, string(next))
	observability.SetSocketConnected(s.cfg.Name, isUp)
	for _, fn := range listeners {
		fn(isUp)
	}
}
