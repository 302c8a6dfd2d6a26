package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/cbo-bro-backend/internal/domain"
)

func TestInsights_CreateListUpdate(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	older := &domain.BusinessInsight{UserID: "u1", InsightType: "bottleneck", Category: "cash", Title: "old", Impact: "high", Status: domain.InsightNew, CreatedAt: time.Now().UTC().Add(-time.Minute)}
	newer := &domain.BusinessInsight{UserID: "u1", InsightType: "opportunity", Category: "value", Title: "new", Impact: "low", Status: domain.InsightNew}
	done := &domain.BusinessInsight{UserID: "u1", InsightType: "pattern", Category: "info", Title: "done", Impact: "medium", Status: domain.InsightCompleted}
	for _, in := range []*domain.BusinessInsight{older, newer, done} {
		if err := CreateInsight(ctx, db, in); err != nil {
			t.Fatalf("CreateInsight: %v", err)
		}
	}
	if older.ID == "" || newer.CreatedAt.IsZero() || newer.ActionItems == nil {
		t.Fatalf("defaults not applied: %+v", newer)
	}

	active, err := ListActiveInsights(ctx, db, "u1")
	if err != nil || len(active) != 2 || active[0].Title != "new" {
		t.Fatalf("active = %+v, %v", active, err)
	}

	at := time.Now().UTC()
	if err := UpdateInsightStatus(ctx, db, older.ID, domain.InsightCompleted, &at); err != nil {
		t.Fatalf("UpdateInsightStatus: %v", err)
	}
	got, _ := GetInsight(ctx, db, older.ID)
	if got.Status != domain.InsightCompleted || got.CompletedAt == nil {
		t.Fatalf("status not updated: %+v", got)
	}
	if err := UpdateInsightStatus(ctx, db, "missing", domain.InsightInProgress, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestChallenges_CreateAndListByStatus(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	ch := &domain.Challenge{UserID: "u1", Title: "Churn", FlowType: "value", Severity: "high", Status: domain.ChallengeIdentified, RelatedConversations: []string{"c1"}}
	if err := CreateChallenge(ctx, db, ch); err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	if err := CreateChallenge(ctx, db, &domain.Challenge{UserID: "u1", Title: "Cash", FlowType: "cash", Severity: "low", Status: domain.ChallengeResolved}); err != nil {
		t.Fatalf("CreateChallenge resolved: %v", err)
	}

	got, err := ListChallengesByStatus(ctx, db, "u1", domain.ChallengeIdentified)
	if err != nil || len(got) != 1 || got[0].Title != "Churn" {
		t.Fatalf("identified = %+v, %v", got, err)
	}
	if len(got[0].RelatedConversations) != 1 || got[0].RelatedConversations[0] != "c1" || got[0].Solutions == nil {
		t.Fatalf("lists not stored: %+v", got[0])
	}

	if err := CreateChallenge(ctx, db, &domain.Challenge{UserID: "u1", Title: "x", FlowType: "cash", Severity: "extreme", Status: domain.ChallengeIdentified}); err == nil {
		t.Fatalf("expected severity check constraint violation")
	}
}

func TestMetrics_ListByNameAndUser(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	for _, m := range []*domain.FlowMetric{
		{UserID: "u1", FlowType: "cash", MetricName: "mrr", Value: 100, Unit: "$", Trend: domain.TrendStable},
		{UserID: "u1", FlowType: "value", MetricName: "customer_count", Value: 3, Unit: "count", Trend: domain.TrendStable},
		{UserID: "u1", FlowType: "cash", MetricName: "mrr", Value: 150, Unit: "$", Trend: domain.TrendUp},
		{UserID: "u2", FlowType: "cash", MetricName: "mrr", Value: 1, Unit: "$", Trend: domain.TrendStable},
	} {
		if err := CreateFlowMetric(ctx, db, m); err != nil {
			t.Fatalf("CreateFlowMetric: %v", err)
		}
	}

	mrr, err := ListMetricsByName(ctx, db, "u1", "mrr")
	if err != nil || len(mrr) != 2 || mrr[0].Value != 100 || mrr[1].Value != 150 {
		t.Fatalf("by name = %+v, %v", mrr, err)
	}
	all, err := ListMetricsByUser(ctx, db, "u1")
	if err != nil || len(all) != 3 || all[1].MetricName != "customer_count" {
		t.Fatalf("by user = %+v, %v", all, err)
	}
}

func TestPatterns_CreateGetSave(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p := &domain.Pattern{UserID: "u1", PatternType: "cash_crunch", Frequency: 1, FirstSeen: now, LastSeen: now, Contexts: []string{"runway"}}
	if err := CreatePattern(ctx, db, p); err != nil {
		t.Fatalf("CreatePattern: %v", err)
	}
	dup := &domain.Pattern{UserID: "u1", PatternType: "cash_crunch", Frequency: 1, FirstSeen: now, LastSeen: now}
	if err := CreatePattern(ctx, db, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	got, err := GetPattern(ctx, db, "u1", "cash_crunch")
	if err != nil {
		t.Fatalf("GetPattern: %v", err)
	}
	got.Frequency++
	got.Contexts = append(got.Contexts, "burning")
	if err := SavePattern(ctx, db, got); err != nil {
		t.Fatalf("SavePattern: %v", err)
	}
	again, _ := GetPattern(ctx, db, "u1", "cash_crunch")
	if again.Frequency != 2 || len(again.Contexts) != 2 {
		t.Fatalf("pattern not saved: %+v", again)
	}

	if _, err := GetPattern(ctx, db, "u1", "none"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
