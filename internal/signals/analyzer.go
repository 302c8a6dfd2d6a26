package signals

import "strings"

// Insight kinds returned by the Analyzer.
const (
	InsightPattern          = "pattern"
	InsightRecommendation   = "recommendation"
	InsightSimilarChallenge = "similar_challenge"
	InsightMilestone        = "milestone"
)

// Insight is a hint produced from a message. Insights are advisory and are
// not persisted.
type Insight struct {
	Type        string  `json:"type"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Relevance   float64 `json:"relevance"`
	Actionable  bool    `json:"actionable"`
}

// PatternRule fires when any of Terms occurs in the lower-cased message.
type PatternRule struct {
	Name        string
	Description string
	Relevance   float64
	Terms       []string
}

// Analyzer detects business patterns, similar challenges and milestones in a
// message using keyword rules.
type Analyzer struct {
	Rules []PatternRule
	// ChallengeTerms are matched against the lower-cased message.
	ChallengeTerms []string
	// MilestoneTerms are matched case-sensitively.
	MilestoneTerms []string
	FollowUps      []FollowUpSet
}

// FollowUpSet is a list of questions for a topic key.
type FollowUpSet struct {
	Key       string
	Questions []string
}

// DefaultAnalyzer returns the built-in rule set.
func DefaultAnalyzer() *Analyzer {
	return &Analyzer{
		Rules: []PatternRule{
			{
				Name:        "Growth Plateau",
				Description: "Your business might be experiencing a growth plateau. This often happens when current strategies have reached their limit. Time to explore new channels or pivot your approach.",
				Relevance:   0.9,
				Terms:       []string{"stuck", "plateau", "not growing"},
			},
			{
				Name:        "Cash Flow Crunch",
				Description: "Cash flow challenges detected. Focus on: 1) Accelerating receivables, 2) Negotiating payment terms, 3) Identifying quick revenue wins.",
				Relevance:   0.95,
				Terms:       []string{"cash flow", "runway", "burning"},
			},
			{
				Name:        "Team Scaling",
				Description: "Scaling team challenges identified. Consider: 1) Documenting processes first, 2) Hiring for culture fit, 3) Implementing proper onboarding.",
				Relevance:   0.85,
				Terms:       []string{"hiring", "team", "capacity"},
			},
			{
				Name:        "Customer Churn",
				Description: "High churn rate pattern detected. Immediate actions: 1) Exit interviews with churned customers, 2) Implement health scoring, 3) Create win-back campaigns.",
				Relevance:   0.92,
				Terms:       []string{"churn", "losing customers", "retention"},
			},
		},
		ChallengeTerms: []string{"revenue", "sales"},
		MilestoneTerms: []string{"increased", "improved", "achieved"},
		FollowUps: []FollowUpSet{
			{Key: "revenue", Questions: []string{
				"What's your current MRR/ARR?",
				"How has revenue trended over the last 3 months?",
				"What's your average deal size?",
				"Which revenue stream is most profitable?",
			}},
			{Key: "team", Questions: []string{
				"How many team members do you currently have?",
				"What's your current hiring plan?",
				"Are there any culture challenges?",
				"How do you measure team productivity?",
			}},
			{Key: "customer", Questions: []string{
				"What's your current churn rate?",
				"How do you measure customer satisfaction?",
				"What's your NPS score?",
				"How long is your sales cycle?",
			}},
			{Key: "growth", Questions: []string{
				"What's your current growth rate?",
				"Which channels drive most growth?",
				"What's your CAC vs LTV ratio?",
				"What's blocking faster growth?",
			}},
		},
	}
}

// Analyze returns pattern insights in rule order, then a similar-challenge
// hint, then a milestone hint.
func (a *Analyzer) Analyze(message string) []Insight {
	lower := strings.ToLower(message)
	out := []Insight{}

	for _, r := range a.Rules {
		if containsAny(lower, r.Terms) {
			out = append(out, Insight{
				Type:        InsightPattern,
				Title:       "Pattern Detected: " + r.Name,
				Description: r.Description,
				Relevance:   r.Relevance,
				Actionable:  true,
			})
		}
	}

	if containsAny(lower, a.ChallengeTerms) {
		out = append(out, Insight{
			Type:        InsightSimilarChallenge,
			Title:       "Similar Challenge Found",
			Description: "Other businesses in your stage have faced similar revenue challenges. Common solution: Focus on customer retention before acquisition.",
			Relevance:   0.8,
			Actionable:  true,
		})
	}

	if containsAny(message, a.MilestoneTerms) {
		out = append(out, Insight{
			Type:        InsightMilestone,
			Title:       "Potential Milestone Achieved! 🎉",
			Description: "This sounds like progress! Remember to track this win for future reference.",
			Relevance:   0.9,
			Actionable:  false,
		})
	}

	return out
}

// Recommendations returns the standing recommendations shown on the
// insights dashboard.
func (a *Analyzer) Recommendations() []Insight {
	return []Insight{
		{
			Type:        InsightRecommendation,
			Title:       "Weekly Business Health Check",
			Description: "Based on your conversation patterns, scheduling weekly reviews of your Four Flows metrics could help catch issues early.",
			Relevance:   0.85,
			Actionable:  true,
		},
		{
			Type:        InsightRecommendation,
			Title:       "Focus on Info Flow",
			Description: "You haven't discussed data or analytics recently. Strong Info Flow is crucial for making informed decisions.",
			Relevance:   0.75,
			Actionable:  true,
		},
	}
}

// FollowUpQuestions returns the questions of the first set whose key occurs
// in the lower-cased topic, falling back to the first set.
func (a *Analyzer) FollowUpQuestions(topic string) []string {
	if len(a.FollowUps) == 0 {
		return nil
	}
	lower := strings.ToLower(topic)
	for _, set := range a.FollowUps {
		if strings.Contains(lower, set.Key) {
			return append([]string(nil), set.Questions...)
		}
	}
	return append([]string(nil), a.FollowUps[0].Questions...)
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if t != "" && strings.Contains(s, t) {
			return true
		}
	}
	return false
}
