package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/gochat-rooms/internal/store"
)

// State is the lifecycle stage of a Session.
type State int

const (
	StateConnecting State = iota
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SessionConfig tunes the sessions a Service opens.
type SessionConfig struct {
	// HistoryLimit is the size of the initial batch and of load_more pages.
	HistoryLimit int
	// StoreTimeout bounds each store call. Writes are not tied to the
	// connection and finish even if the client disconnects.
	StoreTimeout time.Duration
}

// Service opens sessions against a shared registry and store.
type Service struct {
	registry *Registry
	store    store.Store
	cfg      SessionConfig
	log      *slog.Logger
}

// NewService wires a registry and a store together.
func NewService(registry *Registry, messages store.Store, cfg SessionConfig, log *slog.Logger) *Service {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 30
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	return &Service{registry: registry, store: messages, cfg: cfg, log: log}
}

// Registry returns the registry sessions join through.
func (svc *Service) Registry() *Registry {
	return svc.registry
}

// Connect opens a session for member and joins roomName. The returned
// session must be closed even when Connect fails after validation.
func (svc *Service) Connect(ctx context.Context, roomName, displayName string, member Member) (*Session, error) {
	session, err := svc.NewSession(roomName, displayName, member)
	if err != nil {
		return nil, err
	}
	if err := session.Join(ctx); err != nil {
		return session, err
	}
	return session, nil
}

// NewSession validates the identity handed over by the caller and returns a
// session in the connecting state.
func (svc *Service) NewSession(roomName, displayName string, member Member) (*Session, error) {
	if err := validateIdentity(roomName, displayName); err != nil {
		return nil, err
	}
	return &Session{
		svc:         svc,
		member:      member,
		roomName:    roomName,
		displayName: displayName,
		log:         svc.log.With("room", roomName, "member", member.ID()),
	}, nil
}

// Session drives one connection through connecting, joined and closed.
type Session struct {
	svc         *Service
	member      Member
	roomName    string
	displayName string
	log         *slog.Logger

	mu    sync.Mutex
	state State
	room  *Room
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Join registers the member in its room and sends the latest messages as
// the initial batch, one frame per message, oldest first.
//
// History is read after joining, so a message posted meanwhile can show up
// both in the batch and live; clients dedupe on id.
func (s *Session) Join(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		return fmt.Errorf("join from state %s: %w", s.state, ErrSessionClosed)
	}
	room := s.svc.registry.GetOrCreate(s.roomName)
	s.room = room
	s.state = StateJoined
	room.Join(s.member)
	s.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, s.svc.cfg.StoreTimeout)
	defer cancel()
	messages, err := s.svc.store.FetchLatest(fetchCtx, s.roomName, s.svc.cfg.HistoryLimit)
	if err != nil {
		s.log.Error("Failed to load room history", "error", err)
		return s.reportError("history is unavailable")
	}

	for _, msg := range messages {
		frame, err := EncodeLive(msg, room.Location())
		if err != nil {
			return fmt.Errorf("encode history: %w", err)
		}
		if err := s.deliver(frame); err != nil {
			return err
		}
	}
	s.log.Debug("Initial history sent", "messages", len(messages))
	return nil
}

// Handle processes one inbound frame. Invalid events and store failures are
// reported to this connection only and return nil; a non-nil error means the
// connection should be closed.
func (s *Session) Handle(ctx context.Context, raw []byte) error {
	s.mu.Lock()
	state, room := s.state, s.room
	s.mu.Unlock()
	if state != StateJoined {
		return fmt.Errorf("event in state %s: %w", state, ErrSessionClosed)
	}

	event, err := DecodeEvent(raw)
	if err != nil {
		s.log.Debug("Rejected event", "error", err)
		return s.reportError(err.Error())
	}

	switch e := event.(type) {
	case PostMessage:
		return s.post(ctx, room, e)
	case LoadMore:
		return s.loadMore(ctx, room, e)
	default:
		return s.reportError("unsupported event")
	}
}

func (s *Session) post(ctx context.Context, room *Room, e PostMessage) error {
	author := e.Username
	if author == "" {
		author = s.displayName
	}

	storeCtx, cancel := s.writeContext(ctx)
	defer cancel()
	msg, err := s.svc.store.Append(storeCtx, s.roomName, author, e.Content)
	if err != nil {
		if errors.Is(err, store.ErrEmptyContent) {
			return s.reportError("message is required")
		}
		s.log.Error("Failed to persist message", "error", err)
		return s.reportError("message could not be saved")
	}

	// The sender gets its own copy through the fan-out like everyone else.
	room.Broadcast(msg)
	return nil
}

func (s *Session) loadMore(ctx context.Context, room *Room, e LoadMore) error {
	fetchCtx, cancel := context.WithTimeout(ctx, s.svc.cfg.StoreTimeout)
	defer cancel()
	messages, err := s.svc.store.FetchBefore(fetchCtx, s.roomName, e.OldestID, s.svc.cfg.HistoryLimit)
	if err != nil {
		s.log.Error("Failed to load older messages", "oldest_id", e.OldestID, "error", err)
		return s.reportError("history is unavailable")
	}

	frame, err := EncodeHistory(messages, room.Location())
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return s.deliver(frame)
}

// Close leaves the room and releases it. Safe to call in any state and more
// than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	room := s.room
	s.state = StateClosed
	s.mu.Unlock()

	if room == nil {
		return
	}
	room.Leave(s.member)
	s.svc.registry.Release(room)
}

// writeContext detaches a write from connection cancellation; a started
// write completes or fails on its own within the store timeout.
func (s *Session) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.svc.cfg.StoreTimeout)
}

func (s *Session) deliver(frame []byte) error {
	if err := s.member.Deliver(frame); err != nil {
		if !errors.Is(err, ErrDelivery) {
			err = errors.Join(ErrDelivery, err)
		}
		return err
	}
	return nil
}

func (s *Session) reportError(message string) error {
	frame, err := EncodeError(message)
	if err != nil {
		return fmt.Errorf("encode error frame: %w", err)
	}
	return s.deliver(frame)
}
