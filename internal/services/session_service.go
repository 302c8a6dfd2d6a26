// Package services – SessionService
//
// This file implements the chat session lifecycle. A session moves through
// three states: uninitialized (no identity or no database), user-resolved
// (the user row exists) and conversation-open (an open conversation is bound
// to the session and turns can be recorded).
//
// Persistence failures never surface to the caller: they are logged, counted
// in cbobro_persistence_failures_total and the session simply stays in the
// last state it reached. Chat keeps working without a database.
package services

import (
	"context"
	"errors"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/cbo-bro-backend/internal/domain"
	"github.com/tbourn/cbo-bro-backend/internal/repo"
	"github.com/tbourn/cbo-bro-backend/internal/signals"
)

// SessionState is the lifecycle state of a chat session.
type SessionState int

const (
	SessionUninitialized SessionState = iota
	SessionUserResolved
	SessionConversationOpen
)

func (s SessionState) String() string {
	switch s {
	case SessionUserResolved:
		return "user_resolved"
	case SessionConversationOpen:
		return "conversation_open"
	default:
		return "uninitialized"
	}
}

// MarshalText renders the state by name in JSON.
func (s SessionState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Session is an immutable snapshot of one client session.
type Session struct {
	ID             string           `json:"session_id"`
	State          SessionState     `json:"state"`
	UserID         string           `json:"user_id,omitempty"`
	ConversationID string           `json:"conversation_id,omitempty"`
	Identity       *domain.Identity `json:"-"`
}

// HistoryKey keys the LLM context: the Telegram user when known, otherwise
// the session.
func (s *Session) HistoryKey() string {
	if s.Identity != nil {
		return s.Identity.Key()
	}
	return "session:" + s.ID
}

// FirstName returns the identity's first name, or "".
func (s *Session) FirstName() string {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.FirstName
}

// SessionRepo defines the repository contract required by SessionService.
type SessionRepo interface {
	// GetOrCreateUser resolves the user for a verified identity.
	GetOrCreateUser(ctx context.Context, db *gorm.DB, id domain.Identity) (*domain.User, error)

	// GetActiveConversation returns the open conversation of a session.
	GetActiveConversation(ctx context.Context, db *gorm.DB, sessionID string) (*domain.Conversation, error)

	// CreateConversation opens a conversation; repo.ErrDuplicate on a race.
	CreateConversation(ctx context.Context, db *gorm.DB, userID, sessionID string) (*domain.Conversation, error)

	// CreateMessage appends a message to a conversation.
	CreateMessage(ctx context.Context, db *gorm.DB, in repo.NewMessage) (*domain.Message, error)

	// UpdateConversation patches conversation metadata.
	UpdateConversation(ctx context.Context, db *gorm.DB, id string, patch repo.ConversationPatch) error
}

// SessionService resolves sessions and records chat turns.
type SessionService struct {
	// DB is the GORM handle. Nil disables persistence.
	DB   *gorm.DB
	Repo SessionRepo
	// Extractor derives keywords and flows stored with each message.
	Extractor *signals.Extractor

	sessions *cache.Cache
	locks    stripedLocks
}

// NewSessionService constructs a SessionService caching sessions for ttl.
func NewSessionService(db *gorm.DB, r SessionRepo, ex *signals.Extractor, ttl time.Duration) *SessionService {
	if ex == nil {
		ex = signals.Default()
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &SessionService{
		DB:        db,
		Repo:      r,
		Extractor: ex,
		sessions:  cache.New(ttl, 10*time.Minute),
	}
}

// PersistenceEnabled reports whether a database is configured.
func (s *SessionService) PersistenceEnabled() bool { return s.DB != nil && s.Repo != nil }

// Resolve returns the cached session for sessionID when it was initialized
// for the same identity, and initializes it otherwise.
func (s *SessionService) Resolve(ctx context.Context, sessionID string, id *domain.Identity) *Session {
	if v, ok := s.sessions.Get(sessionID); ok {
		cached := v.(*Session)
		if sameIdentity(cached.Identity, id) && (cached.State == SessionConversationOpen || id == nil || !s.PersistenceEnabled()) {
			return cached
		}
	}
	return s.InitializeSession(ctx, sessionID, id)
}

// Start resolves sessionID for an explicit session start. An identified
// caller is always initialized against the store, so the user's LastActiveAt
// moves even when the session is cached.
func (s *SessionService) Start(ctx context.Context, sessionID string, id *domain.Identity) *Session {
	if id == nil || !s.PersistenceEnabled() {
		return s.Resolve(ctx, sessionID, id)
	}
	return s.InitializeSession(ctx, sessionID, id)
}

// InitializeSession binds sessionID to the user of id and to the session's
// open conversation, creating both as needed. Concurrent calls for the same
// session share one conversation.
func (s *SessionService) InitializeSession(ctx context.Context, sessionID string, id *domain.Identity) *Session {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "InitializeSession",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	sess := &Session{ID: sessionID, Identity: id}
	defer func() { s.sessions.SetDefault(sessionID, sess) }()

	if id == nil {
		log.Debug().Str("session_id", sessionID).Msg("anonymous session; persistence skipped")
		return sess
	}
	if !s.PersistenceEnabled() {
		log.Debug().Str("session_id", sessionID).Msg("persistence disabled; session stays uninitialized")
		return sess
	}

	mu := s.locks.For(sessionID)
	mu.Lock()
	defer mu.Unlock()

	user, err := s.Repo.GetOrCreateUser(ctx, s.DB, *id)
	if err != nil {
		persistFailed("get_or_create_user", sessionID, err)
		return sess
	}
	sess = &Session{ID: sessionID, Identity: id, UserID: user.ID, State: SessionUserResolved}
	span.SetAttributes(attribute.String("user.id", user.ID))

	conv, err := s.openConversation(ctx, user.ID, sessionID)
	if err != nil {
		persistFailed("open_conversation", sessionID, err)
		return sess
	}
	if conv.UserID != user.ID {
		log.Warn().Str("session_id", sessionID).Str("user_id", user.ID).
			Msg("open conversation of this session belongs to another user")
		return sess
	}
	sess = &Session{ID: sessionID, Identity: id, UserID: user.ID, ConversationID: conv.ID, State: SessionConversationOpen}
	return sess
}

// openConversation adopts the session's open conversation or creates one.
// A losing concurrent insert re-reads the winner.
func (s *SessionService) openConversation(ctx context.Context, userID, sessionID string) (*domain.Conversation, error) {
	conv, err := s.Repo.GetActiveConversation(ctx, s.DB, sessionID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	conv, err = s.Repo.CreateConversation(ctx, s.DB, userID, sessionID)
	if errors.Is(err, repo.ErrDuplicate) {
		return s.Repo.GetActiveConversation(ctx, s.DB, sessionID)
	}
	return conv, err
}

// RecordTurn persists one message of the session's open conversation. It is
// a no-op unless the session is conversation-open. Assistant turns also
// refresh the conversation topic and primary flow.
func (s *SessionService) RecordTurn(ctx context.Context, sess *Session, role, content string) {
	if sess == nil || sess.State != SessionConversationOpen || !s.PersistenceEnabled() {
		return
	}
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "RecordTurn",
		trace.WithAttributes(
			attribute.String("conversation.id", sess.ConversationID),
			attribute.String("role", role),
		),
	)
	defer span.End()

	sig := s.Extractor.Extract(content)
	_, err := s.Repo.CreateMessage(ctx, s.DB, repo.NewMessage{
		ConversationID: sess.ConversationID,
		UserID:         sess.UserID,
		Role:           role,
		Content:        content,
		Keywords:       sig.Keywords,
		FlowMentions:   sig.FlowMentions,
	})
	if err != nil {
		persistFailed("add_message", sess.ID, err)
		return
	}

	if role != domain.RoleAssistant {
		return
	}
	topic, flow := sig.Topic, sig.PrimaryFlow
	if err := s.Repo.UpdateConversation(ctx, s.DB, sess.ConversationID, repo.ConversationPatch{
		Topic:       &topic,
		PrimaryFlow: &flow,
	}); err != nil {
		persistFailed("update_conversation", sess.ID, err)
	}
}

func persistFailed(op, sessionID string, err error) {
	persistenceFailures.WithLabelValues(op).Inc()
	log.Error().Err(err).Str("op", op).Str("session_id", sessionID).Msg("persistence failed")
}

func sameIdentity(a, b *domain.Identity) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.TelegramID == b.TelegramID
}
