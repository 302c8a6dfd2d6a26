// Package services – RecorderService
//
// This file implements the analytics recorder: flow metrics with derived
// trends, challenges, insights and their status transitions, recurring
// business patterns, and the per-user summaries behind the dashboard
// endpoints. Every operation requires a database; without one they return
// ErrPersistenceDisabled.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/cbo-bro-backend/internal/domain"
	"github.com/tbourn/cbo-bro-backend/internal/repo"
	"github.com/tbourn/cbo-bro-backend/internal/signals"
)

// RecorderService persists and summarizes business analytics.
type RecorderService struct {
	DB        *gorm.DB
	Extractor *signals.Extractor

	// Now defaults to time.Now; tests pin it.
	Now func() time.Time
}

// NewRecorderService constructs a RecorderService.
func NewRecorderService(db *gorm.DB, ex *signals.Extractor) *RecorderService {
	if ex == nil {
		ex = signals.Default()
	}
	return &RecorderService{DB: db, Extractor: ex, Now: time.Now}
}

func (s *RecorderService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *RecorderService) ready() error {
	if s.DB == nil {
		return ErrPersistenceDisabled
	}
	return nil
}

func (s *RecorderService) span(ctx context.Context, name, userID string) (context.Context, trace.Span) {
	return otel.Tracer("services/RecorderService").Start(ctx, name,
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
}

var (
	validFlows       = []string{signals.FlowValue, signals.FlowInfo, signals.FlowCash, signals.FlowCulture}
	validInsightType = []string{"bottleneck", "opportunity", "pattern", "milestone"}
	validImpact      = []string{"high", "medium", "low"}
	validSeverity    = []string{"critical", "high", "medium", "low"}
	validInsightStat = []string{domain.InsightNew, domain.InsightInProgress, domain.InsightCompleted}
	validChallStat   = []string{domain.ChallengeIdentified, domain.ChallengeAnalyzing, domain.ChallengeSolving, domain.ChallengeResolved}
)

func oneOf(v string, set []string) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}

// ---------- metrics ----------

// RecordMetric stores a metric observation. Its trend compares value with
// the latest prior observation (by timestamp) of the same metric for the
// same user; the first observation is stable.
func (s *RecorderService) RecordMetric(ctx context.Context, userID, flowType, name string, value float64, unit string, conversationID *string) (*domain.FlowMetric, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ctx, span := s.span(ctx, "RecordMetric", userID)
	defer span.End()

	name = strings.TrimSpace(name)
	if userID == "" || name == "" || !oneOf(flowType, validFlows) {
		return nil, ErrInvalidInput
	}

	prior, err := repo.ListMetricsByName(ctx, s.DB, userID, name)
	if err != nil {
		return nil, err
	}

	m := &domain.FlowMetric{
		UserID:         userID,
		FlowType:       flowType,
		MetricName:     name,
		Value:          value,
		Unit:           unit,
		Timestamp:      s.now(),
		ConversationID: conversationID,
		Trend:          trendFrom(prior, value),
	}
	if err := repo.CreateFlowMetric(ctx, s.DB, m); err != nil {
		return nil, err
	}
	return m, nil
}

// trendFrom compares value with the most recent entry of prior. Ties on
// timestamp keep the later entry in prior.
func trendFrom(prior []domain.FlowMetric, value float64) string {
	if len(prior) == 0 {
		return domain.TrendStable
	}
	latest := prior[0]
	for _, p := range prior[1:] {
		if !p.Timestamp.Before(latest.Timestamp) {
			latest = p
		}
	}
	switch {
	case value > latest.Value:
		return domain.TrendUp
	case value < latest.Value:
		return domain.TrendDown
	default:
		return domain.TrendStable
	}
}

// MetricPoint is one entry of a flow summary.
type MetricPoint struct {
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Trend     string    `json:"trend"`
	Timestamp time.Time `json:"timestamp"`
}

// FlowSummary groups the metrics of one flow.
type FlowSummary struct {
	Metrics     []MetricPoint `json:"metrics"`
	LastUpdated time.Time     `json:"last_updated"`
}

// SummarizeMetrics groups every metric of the user by flow type. Within a
// group metrics keep their storage order.
func (s *RecorderService) SummarizeMetrics(ctx context.Context, userID string) (map[string]*FlowSummary, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ctx, span := s.span(ctx, "SummarizeMetrics", userID)
	defer span.End()

	all, err := repo.ListMetricsByUser(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*FlowSummary)
	for _, m := range all {
		g, ok := out[m.FlowType]
		if !ok {
			g = &FlowSummary{LastUpdated: m.Timestamp}
			out[m.FlowType] = g
		}
		g.Metrics = append(g.Metrics, MetricPoint{
			Name:      m.MetricName,
			Value:     m.Value,
			Unit:      m.Unit,
			Trend:     m.Trend,
			Timestamp: m.Timestamp,
		})
		if m.Timestamp.After(g.LastUpdated) {
			g.LastUpdated = m.Timestamp
		}
	}
	return out, nil
}

// ExtractAndRecordMetrics parses the metrics mentioned in text and records
// each one under its flow. Failures are logged and skipped; the recorded
// metrics are returned.
func (s *RecorderService) ExtractAndRecordMetrics(ctx context.Context, userID, conversationID, text string) []domain.FlowMetric {
	if s.DB == nil || userID == "" {
		return nil
	}
	var conv *string
	if conversationID != "" {
		conv = &conversationID
	}
	var out []domain.FlowMetric
	for _, m := range s.Extractor.Metrics(text) {
		flow := signals.FlowForMetric(m.Name)
		rec, err := s.RecordMetric(ctx, userID, flow, m.Name, m.Value, m.Unit, conv)
		if err != nil {
			persistenceFailures.WithLabelValues("track_flow_metric").Inc()
			log.Error().Err(err).Str("op", "track_flow_metric").Str("metric", m.Name).Msg("persistence failed")
			continue
		}
		metricsRecorded.WithLabelValues(flow).Inc()
		out = append(out, *rec)
	}
	return out
}

// ---------- challenges ----------

// NewChallenge is the input of RecordChallenge.
type NewChallenge struct {
	Title          string
	Description    string
	FlowType       string
	Severity       string
	ConversationID string
}

// RecordChallenge stores a challenge in status identified, linked to the
// conversation it came up in.
func (s *RecorderService) RecordChallenge(ctx context.Context, userID string, in NewChallenge) (*domain.Challenge, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ctx, span := s.span(ctx, "RecordChallenge", userID)
	defer span.End()

	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" || !oneOf(in.FlowType, validFlows) || !oneOf(in.Severity, validSeverity) {
		return nil, ErrInvalidInput
	}
	related := []string{}
	if in.ConversationID != "" {
		related = append(related, in.ConversationID)
	}
	ch := &domain.Challenge{
		UserID:               userID,
		Title:                in.Title,
		Description:          in.Description,
		FlowType:             in.FlowType,
		Severity:             in.Severity,
		Status:               domain.ChallengeIdentified,
		IdentifiedAt:         s.now(),
		RelatedConversations: related,
	}
	if err := repo.CreateChallenge(ctx, s.DB, ch); err != nil {
		return nil, err
	}
	return ch, nil
}

// ChallengesByStatus lists the user's challenges in status.
func (s *RecorderService) ChallengesByStatus(ctx context.Context, userID, status string) ([]domain.Challenge, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if !oneOf(status, validChallStat) {
		return nil, ErrInvalidStatus
	}
	ctx, span := s.span(ctx, "ChallengesByStatus", userID)
	defer span.End()
	return repo.ListChallengesByStatus(ctx, s.DB, userID, status)
}

// ---------- insights ----------

// NewInsight is the input of CreateInsight.
type NewInsight struct {
	ConversationID string
	InsightType    string
	Category       string
	Title          string
	Description    string
	Impact         string
	ActionItems    []string
}

// CreateInsight stores an insight in status new.
func (s *RecorderService) CreateInsight(ctx context.Context, userID string, in NewInsight) (*domain.BusinessInsight, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ctx, span := s.span(ctx, "CreateInsight", userID)
	defer span.End()

	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" || !oneOf(in.InsightType, validInsightType) || !oneOf(in.Impact, validImpact) || !oneOf(in.Category, validFlows) {
		return nil, ErrInvalidInput
	}
	ins := &domain.BusinessInsight{
		UserID:         userID,
		ConversationID: in.ConversationID,
		InsightType:    in.InsightType,
		Category:       in.Category,
		Title:          in.Title,
		Description:    in.Description,
		Impact:         in.Impact,
		ActionItems:    in.ActionItems,
		Status:         domain.InsightNew,
		CreatedAt:      s.now(),
	}
	if err := repo.CreateInsight(ctx, s.DB, ins); err != nil {
		return nil, err
	}
	return ins, nil
}

// ActiveInsights lists the user's insights in status new, newest first.
func (s *RecorderService) ActiveInsights(ctx context.Context, userID string) ([]domain.BusinessInsight, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ctx, span := s.span(ctx, "ActiveInsights", userID)
	defer span.End()
	return repo.ListActiveInsights(ctx, s.DB, userID)
}

// UpdateInsightStatus moves an insight of userID to status. Every move to
// completed stamps CompletedAt, including repeats.
func (s *RecorderService) UpdateInsightStatus(ctx context.Context, userID, insightID, status string) (*domain.BusinessInsight, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if !oneOf(status, validInsightStat) {
		return nil, ErrInvalidStatus
	}
	ctx, span := s.span(ctx, "UpdateInsightStatus", userID)
	defer span.End()

	cur, err := repo.GetInsight(ctx, s.DB, insightID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && cur.UserID != userID) {
		return nil, ErrInsightNotFound
	}
	if err != nil {
		return nil, err
	}

	var completedAt *time.Time
	if status == domain.InsightCompleted {
		t := s.now()
		completedAt = &t
	}
	if err := repo.UpdateInsightStatus(ctx, s.DB, insightID, status, completedAt); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInsightNotFound
		}
		return nil, err
	}
	return repo.GetInsight(ctx, s.DB, insightID)
}

// ---------- patterns ----------

// TrackPattern upserts the (user, patternType) counter. The first sighting
// creates it with frequency 1; later ones increment the frequency, append
// context and bump LastSeen. A non-empty recommendation replaces the stored
// one.
func (s *RecorderService) TrackPattern(ctx context.Context, userID, patternType, seenIn, recommendation string) (*domain.Pattern, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	patternType = strings.TrimSpace(patternType)
	if userID == "" || patternType == "" {
		return nil, ErrInvalidInput
	}
	ctx, span := s.span(ctx, "TrackPattern", userID)
	defer span.End()

	for attempt := 0; attempt < 2; attempt++ {
		now := s.now()
		p, err := repo.GetPattern(ctx, s.DB, userID, patternType)
		if errors.Is(err, repo.ErrNotFound) {
			p = &domain.Pattern{
				UserID:         userID,
				PatternType:    patternType,
				Frequency:      1,
				FirstSeen:      now,
				LastSeen:       now,
				Contexts:       appendContext(nil, seenIn),
				Recommendation: recommendation,
			}
			err = repo.CreatePattern(ctx, s.DB, p)
			if errors.Is(err, repo.ErrDuplicate) {
				continue
			}
			if err != nil {
				return nil, err
			}
			return p, nil
		}
		if err != nil {
			return nil, err
		}

		p.Frequency++
		p.LastSeen = now
		p.Contexts = appendContext(p.Contexts, seenIn)
		if recommendation != "" {
			p.Recommendation = recommendation
		}
		if err := repo.SavePattern(ctx, s.DB, p); err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, repo.ErrDuplicate
}

func appendContext(list []string, c string) []string {
	if list == nil {
		list = []string{}
	}
	if c = strings.TrimSpace(c); c != "" {
		list = append(list, c)
	}
	return list
}

// ---------- users & summaries ----------

// UserInsightsSummary returns the dashboard counters of the user.
func (s *RecorderService) UserInsightsSummary(ctx context.Context, userID string) (repo.InsightsSummary, error) {
	if err := s.ready(); err != nil {
		return repo.InsightsSummary{}, err
	}
	ctx, span := s.span(ctx, "UserInsightsSummary", userID)
	defer span.End()
	return repo.GetInsightsSummary(ctx, s.DB, userID)
}

// UserByIdentity looks up the user behind a Telegram identity without
// touching LastActiveAt. Users are created by session initialization only.
func (s *RecorderService) UserByIdentity(ctx context.Context, id domain.Identity) (*domain.User, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	u, err := repo.GetUserByTelegramID(ctx, s.DB, id.TelegramID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// UpdateUserProfile patches the business profile of the user.
func (s *RecorderService) UpdateUserProfile(ctx context.Context, userID string, patch repo.ProfilePatch) (*domain.User, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ctx, span := s.span(ctx, "UpdateUserProfile", userID)
	defer span.End()

	if err := repo.UpdateUserProfile(ctx, s.DB, userID, patch); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return repo.GetUser(ctx, s.DB, userID)
}

// UserConversations lists the user's conversations, most recent first.
func (s *RecorderService) UserConversations(ctx context.Context, userID string, limit int) ([]domain.Conversation, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ctx, span := s.span(ctx, "UserConversations", userID)
	defer span.End()
	return repo.ListUserConversations(ctx, s.DB, userID, limit)
}

// ConversationMessages returns a page of a conversation owned by userID,
// chronologically, along with the total message count.
func (s *RecorderService) ConversationMessages(ctx context.Context, userID, conversationID string, page, pageSize int) ([]domain.Message, int64, error) {
	if err := s.ready(); err != nil {
		return nil, 0, err
	}
	ctx, span := s.span(ctx, "ConversationMessages", userID)
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", conversationID), attribute.Int("page", page))

	if _, err := repo.GetConversation(ctx, s.DB, conversationID, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, 0, ErrConversationNotFound
		}
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountConversationMessages(ctx, s.DB, conversationID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListConversationMessages(ctx, s.DB, conversationID, (page-1)*pageSize, pageSize)
	return items, total, err
}

// MessagesStats returns the count and latest timestamp of a conversation's
// messages, for ETag generation.
func (s *RecorderService) MessagesStats(ctx context.Context, conversationID string) (int64, *time.Time, error) {
	if err := s.ready(); err != nil {
		return 0, nil, err
	}
	return repo.MessagesStats(ctx, s.DB, conversationID)
}
