package signals

import (
	"reflect"
	"strings"
	"testing"
)

func TestKeywords_NoVocabulary_Empty(t *testing.T) {
	e := Default()
	for _, msg := range []string{"", "hello there friend", "how do I fix onboarding?"} {
		if got := e.Keywords(msg); len(got) != 0 {
			t.Fatalf("Keywords(%q) = %v; want empty", msg, got)
		}
	}
}

func TestKeywords_CaseInsensitive_VocabularyOrder(t *testing.T) {
	e := Default()
	got := e.Keywords("Our CAC and ltv are rising, revenue flat")
	want := []string{"revenue", "CAC", "LTV"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Keywords = %v; want %v", got, want)
	}
}

func TestKeywords_PunctuationStaysAttached(t *testing.T) {
	if got := Default().Keywords("revenue, sales."); len(got) != 0 {
		t.Fatalf("tokens with punctuation should not match, got %v", got)
	}
}

func TestKeywords_CustomVocabulary(t *testing.T) {
	e := NewExtractor(Vocabulary{Keywords: []string{"runway", "NPS"}})
	got := e.Keywords("our nps is fine but runway is short")
	if !reflect.DeepEqual(got, []string{"runway", "NPS"}) {
		t.Fatalf("custom vocabulary keywords = %v", got)
	}
}

func TestFlowMentions_OrderAndSalesRevenueMeanCash(t *testing.T) {
	e := Default()

	got := e.FlowMentions("Our team culture and cash runway, plus product value")
	if !reflect.DeepEqual(got, []string{FlowValue, FlowCash, FlowCulture}) {
		t.Fatalf("FlowMentions order = %v", got)
	}

	for _, msg := range []string{"sales are down", "Revenue is flat", "our SALES team"} {
		flows := e.FlowMentions(msg)
		found := false
		for _, f := range flows {
			if f == FlowCash {
				found = true
			}
		}
		if !found {
			t.Fatalf("FlowMentions(%q) = %v; want cash included", msg, flows)
		}
	}

	if got := e.FlowMentions("hello"); len(got) != 0 {
		t.Fatalf("no flow expected, got %v", got)
	}
}

func TestPrimaryFlow_DefaultsToValue(t *testing.T) {
	e := Default()
	if got := e.PrimaryFlow("nothing here"); got != FlowValue {
		t.Fatalf("PrimaryFlow default = %q; want %q", got, FlowValue)
	}
	if got := e.PrimaryFlow("our analytics team"); got != FlowInfo {
		t.Fatalf("PrimaryFlow = %q; want %q", got, FlowInfo)
	}
}

func TestTopic(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Q3 was rough. We lost customers.", "Q3 was rough"},
		{"Help me! Now", "Help me"},
		{"why? because", "why"},
		{"no terminator here", "no terminator here"},
		{".leading", ""},
	}
	for _, c := range cases {
		if got := Topic(c.in); got != c.want {
			t.Fatalf("Topic(%q) = %q; want %q", c.in, got, c.want)
		}
	}

	long := strings.Repeat("é", 150)
	if got := Topic(long); len([]rune(got)) != TopicMaxRunes {
		t.Fatalf("Topic should truncate to %d runes, got %d", TopicMaxRunes, len([]rune(got)))
	}
}

func TestMetrics_ChurnPercentage(t *testing.T) {
	got := Default().Metrics("churn was 12% last month")
	want := []Metric{{Name: MetricChurnRate, Value: 12, Unit: UnitPercent}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Metrics = %+v; want %+v", got, want)
	}
}

func TestMetrics_PercentTagging(t *testing.T) {
	e := Default()

	got := e.Metrics("growth 10% and 20.5 % next")
	if len(got) != 2 || got[0] != (Metric{MetricGrowthRate, 10, UnitPercent}) || got[1] != (Metric{MetricGrowthRate, 20.5, UnitPercent}) {
		t.Fatalf("growth metrics = %+v", got)
	}

	// churn takes precedence over conversion anywhere in the text
	got = e.Metrics("conversion up 3%, churn down")
	if len(got) != 1 || got[0].Name != MetricChurnRate {
		t.Fatalf("precedence metrics = %+v", got)
	}

	// context keywords are case-sensitive
	got = e.Metrics("Churn 5%")
	if len(got) != 1 || got[0].Name != MetricGeneric {
		t.Fatalf("case-sensitive tag metrics = %+v", got)
	}
}

func TestMetrics_Revenue(t *testing.T) {
	e := Default()

	got := e.Metrics("Got 1,200.50 revenue today")
	if len(got) != 1 || got[0] != (Metric{MetricRevenue, 1200.5, UnitCurrency}) {
		t.Fatalf("revenue metrics = %+v", got)
	}

	// Whole-text scaling: k from "50k" and M from "MRR" both apply.
	got = e.Metrics("We hit $50k MRR")
	if len(got) != 1 || got[0].Name != MetricMRR || got[0].Value != 50*1e3*1e6 {
		t.Fatalf("legacy scaled metrics = %+v", got)
	}

	got = e.Metrics("ARR is 2 ARR")
	if len(got) != 1 || got[0].Name != MetricARR {
		t.Fatalf("ARR name = %+v", got)
	}

	// lower-case mrr matches the pattern but is reported as revenue
	got = e.Metrics("at 900 mrr")
	if len(got) != 1 || got[0].Name != MetricRevenue || got[0].Value != 900*1e6 {
		t.Fatalf("lower-case mrr = %+v", got)
	}
}

func TestMetrics_StrictScale(t *testing.T) {
	e := NewExtractor(DefaultVocabulary(), WithStrictScale(true))

	got := e.Metrics("We hit $50k MRR")
	if len(got) != 1 || got[0].Value != 50000 {
		t.Fatalf("strict k scaling = %+v", got)
	}
	got = e.Metrics("Planning for 2M ARR, ok")
	if len(got) != 1 || got[0].Value != 2e6 || got[0].Name != MetricARR {
		t.Fatalf("strict m scaling = %+v", got)
	}
	got = e.Metrics("Got 300 revenue, keep going")
	if len(got) != 1 || got[0].Value != 300 {
		t.Fatalf("strict no suffix = %+v", got)
	}
}

func TestMetrics_CustomerCount(t *testing.T) {
	got := Default().Metrics("We now have 340 Customers and 12 users")
	want := []Metric{{Name: MetricCustomerCount, Value: 340, Unit: UnitCount}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Metrics = %+v; want %+v", got, want)
	}
}

func TestMetrics_NoneFound(t *testing.T) {
	if got := Default().Metrics("nothing numeric"); len(got) != 0 {
		t.Fatalf("expected no metrics, got %+v", got)
	}
}

func TestExtract_Bundle(t *testing.T) {
	s := Default().Extract("Our revenue dropped 5%. What now?")
	if !reflect.DeepEqual(s.Keywords, []string{"revenue"}) {
		t.Fatalf("keywords = %v", s.Keywords)
	}
	if !reflect.DeepEqual(s.FlowMentions, []string{FlowCash}) || s.PrimaryFlow != FlowCash {
		t.Fatalf("flows = %v primary = %q", s.FlowMentions, s.PrimaryFlow)
	}
	if s.Topic != "Our revenue dropped 5%" {
		t.Fatalf("topic = %q", s.Topic)
	}
	if len(s.Metrics) != 1 || s.Metrics[0].Name != MetricGeneric || s.Metrics[0].Value != 5 {
		t.Fatalf("metrics = %+v", s.Metrics)
	}
}

func TestFlowForMetric(t *testing.T) {
	cases := map[string]string{
		MetricMRR:            FlowCash,
		MetricARR:            FlowCash,
		MetricRevenue:        FlowCash,
		MetricGrowthRate:     FlowCash,
		MetricConversionRate: FlowCash,
		MetricChurnRate:      FlowValue,
		MetricCustomerCount:  FlowValue,
		MetricGeneric:        FlowInfo,
		"unknown":            FlowInfo,
	}
	for name, want := range cases {
		if got := FlowForMetric(name); got != want {
			t.Fatalf("FlowForMetric(%q) = %q; want %q", name, got, want)
		}
	}
}
