// Package services – ChatService
//
// This file implements the chat orchestrator. One user turn is validated,
// recorded against the session's open conversation, answered by the LLM with
// the identity's bounded history as context, and recorded again as the
// assistant turn.
//
// LLM failures of any kind (network, non-2xx, empty content, missing key)
// become the fixed apology reply with IsError set; they are not retried,
// not persisted and leave the history untouched. Validation errors are the
// only errors Send returns.
package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/cbo-bro-backend/internal/domain"
	"github.com/tbourn/cbo-bro-backend/internal/llm"
	"github.com/tbourn/cbo-bro-backend/internal/telegram"
)

// Apology is the reply shown whenever the LLM call fails.
const Apology = "Yo, something went wrong. Let's try that again!"

// Haptic feedback hints for the Mini-App.
const (
	HapticLight   = "light"
	HapticSuccess = "success"
	HapticError   = "error"
)

// Completer produces the assistant reply for message given history.
type Completer interface {
	Complete(ctx context.Context, history []llm.Message, message string) (string, error)
}

// ChatReply is the outcome of one user turn.
type ChatReply struct {
	SessionID      string    `json:"session_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Text           string    `json:"text"`
	HTML           string    `json:"html"`
	IsError        bool      `json:"is_error"`
	Haptic         string    `json:"haptic"`
	CreatedAt      time.Time `json:"created_at"`
}

// ChatService sequences user turns.
type ChatService struct {
	Sessions *SessionService
	Recorder *RecorderService
	History  HistoryStore
	// LLM answers turns. Nil falls back to the canned responder.
	LLM Completer

	MaxPromptRunes int
	// TrackMetrics records metrics parsed from user turns.
	TrackMetrics bool
	// Render converts the reply to Telegram HTML. Defaults to telegram.RenderHTML.
	Render func(string) string
}

// NewChatService wires a ChatService with the in-memory history store.
func NewChatService(sessions *SessionService, recorder *RecorderService, history HistoryStore, c Completer) *ChatService {
	if history == nil {
		history = NewMemoryHistory(DefaultHistoryEntries, 24*time.Hour)
	}
	return &ChatService{
		Sessions:       sessions,
		Recorder:       recorder,
		History:        history,
		LLM:            c,
		MaxPromptRunes: 4000,
		TrackMetrics:   true,
		Render:         telegram.RenderHTML,
	}
}

// Send handles one user turn for sess.
func (s *ChatService) Send(ctx context.Context, sess *Session, text string) (*ChatReply, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("session.id", sess.ID),
			attribute.String("session.state", sess.State.String()),
		),
	)
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyPrompt
	}
	if s.MaxPromptRunes > 0 && utf8.RuneCountInString(text) > s.MaxPromptRunes {
		return nil, ErrTooLong
	}

	s.Sessions.RecordTurn(ctx, sess, domain.RoleUser, text)
	if s.TrackMetrics && s.Recorder != nil && sess.State == SessionConversationOpen {
		s.Recorder.ExtractAndRecordMetrics(ctx, sess.UserID, sess.ConversationID, text)
	}

	key := sess.HistoryKey()
	history, err := s.History.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID).Msg("history unavailable; answering without context")
		history = nil
	}

	completer := s.LLM
	outcome := "ok"
	if completer == nil {
		completer = llm.Canned{}
	}
	if _, ok := completer.(llm.Canned); ok {
		outcome = "canned"
	}

	start := time.Now()
	answer, err := completer.Complete(llm.WithFirstName(ctx, sess.FirstName()), history, text)
	llmLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		chatTurns.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "llm failed")
		log.Error().Err(err).Str("session_id", sess.ID).Msg("llm call failed")
		return s.reply(sess, Apology, true), nil
	}
	chatTurns.WithLabelValues(outcome).Inc()

	if err := s.History.Append(ctx, key,
		llm.Message{Role: llm.RoleUser, Content: text},
		llm.Message{Role: llm.RoleAssistant, Content: answer},
	); err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID).Msg("history append failed")
	}
	s.Sessions.RecordTurn(ctx, sess, domain.RoleAssistant, answer)

	return s.reply(sess, answer, false), nil
}

func (s *ChatService) reply(sess *Session, text string, isErr bool) *ChatReply {
	render := s.Render
	if render == nil {
		render = telegram.RenderHTML
	}
	haptic := HapticSuccess
	if isErr {
		haptic = HapticError
	}
	return &ChatReply{
		SessionID:      sess.ID,
		ConversationID: sess.ConversationID,
		Text:           text,
		HTML:           render(text),
		IsError:        isErr,
		Haptic:         haptic,
		CreatedAt:      time.Now().UTC(),
	}
}
