package signals

import "testing"

func TestAnalyze_PatternsInRuleOrder(t *testing.T) {
	got := DefaultAnalyzer().Analyze("We are stuck and our team is burning out")
	want := []string{
		"Pattern Detected: Growth Plateau",
		"Pattern Detected: Cash Flow Crunch",
		"Pattern Detected: Team Scaling",
	}
	if len(got) != len(want) {
		t.Fatalf("Analyze returned %d insights; want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].Title != w || got[i].Type != InsightPattern || !got[i].Actionable {
			t.Fatalf("insight[%d] = %+v; want title %q", i, got[i], w)
		}
	}
	if got[1].Relevance != 0.95 {
		t.Fatalf("cash flow relevance = %v", got[1].Relevance)
	}
}

func TestAnalyze_SimilarChallengeAndMilestone(t *testing.T) {
	a := DefaultAnalyzer()

	got := a.Analyze("Revenue increased 20%")
	if len(got) != 2 {
		t.Fatalf("expected 2 insights, got %+v", got)
	}
	if got[0].Type != InsightSimilarChallenge || got[0].Relevance != 0.8 {
		t.Fatalf("first insight = %+v", got[0])
	}
	if got[1].Type != InsightMilestone || got[1].Actionable {
		t.Fatalf("second insight = %+v", got[1])
	}

	// milestone words are matched case-sensitively
	got = a.Analyze("Revenue INCREASED")
	if len(got) != 1 || got[0].Type != InsightSimilarChallenge {
		t.Fatalf("unexpected insights for upper-case milestone: %+v", got)
	}

	if got := a.Analyze("hello"); len(got) != 0 {
		t.Fatalf("expected no insights, got %+v", got)
	}
}

func TestRecommendations(t *testing.T) {
	got := DefaultAnalyzer().Recommendations()
	if len(got) != 2 || got[0].Title != "Weekly Business Health Check" || got[1].Title != "Focus on Info Flow" {
		t.Fatalf("recommendations = %+v", got)
	}
	for _, r := range got {
		if r.Type != InsightRecommendation {
			t.Fatalf("recommendation type = %q", r.Type)
		}
	}
}

func TestFollowUpQuestions(t *testing.T) {
	a := DefaultAnalyzer()

	cases := []struct{ topic, first string }{
		{"Team hiring plans", "How many team members do you currently have?"},
		{"customer growth", "What's your current churn rate?"},
		{"GROWTH", "What's your current growth rate?"},
		{"", "What's your current MRR/ARR?"},
		{"something else", "What's your current MRR/ARR?"},
	}
	for _, c := range cases {
		qs := a.FollowUpQuestions(c.topic)
		if len(qs) != 4 || qs[0] != c.first {
			t.Fatalf("FollowUpQuestions(%q) = %v; want first %q", c.topic, qs, c.first)
		}
	}

	// returned slices are copies
	qs := a.FollowUpQuestions("revenue")
	qs[0] = "mutated"
	if a.FollowUpQuestions("revenue")[0] == "mutated" {
		t.Fatalf("FollowUpQuestions must not expose internal slices")
	}
}
