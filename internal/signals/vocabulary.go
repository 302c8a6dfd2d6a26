// Package signals turns raw chat text into structured business signals:
// business keywords, Four Flows mentions, a short topic, a primary flow and
// numeric metrics (revenue, percentages, customer counts). It also hosts the
// rule-based business pattern analyzer that backs the insights endpoints.
//
// Everything in this package is pure. Vocabularies are plain data and are
// injected into an Extractor, so tests and deployments can swap them without
// touching the extraction code.
package signals

// Four Flows of the BroVerse Biz Mental Model.
const (
	FlowValue   = "value"
	FlowInfo    = "info"
	FlowCash    = "cash"
	FlowCulture = "culture"
)

// FlowCluster maps a flow to the substrings that signal it.
type FlowCluster struct {
	Flow  string
	Terms []string
}

// Vocabulary is the data an Extractor classifies against.
//
// Keywords are matched as whole whitespace-separated tokens, ignoring case,
// and reported with the spelling used here. Flows are evaluated in slice
// order and each contributes at most once. DefaultFlow is the primary flow
// reported when no cluster matches.
type Vocabulary struct {
	Keywords    []string
	Flows       []FlowCluster
	DefaultFlow string
}

// DefaultVocabulary returns the built-in business vocabulary. A fresh copy is
// returned on each call so callers may extend it freely.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Keywords: []string{
			"revenue", "sales", "customer", "growth", "profit", "cost",
			"team", "product", "market", "strategy", "metric", "KPI",
			"conversion", "retention", "churn", "CAC", "LTV", "ROI",
		},
		Flows: []FlowCluster{
			{Flow: FlowValue, Terms: []string{"value", "customer", "product"}},
			{Flow: FlowInfo, Terms: []string{"info", "data", "analytics"}},
			{Flow: FlowCash, Terms: []string{"cash", "revenue", "sales", "cost"}},
			{Flow: FlowCulture, Terms: []string{"culture", "team", "communication"}},
		},
		DefaultFlow: FlowValue,
	}
}

// Metric names produced by the extractor.
const (
	MetricMRR            = "MRR"
	MetricARR            = "ARR"
	MetricRevenue        = "revenue"
	MetricChurnRate      = "churn_rate"
	MetricGrowthRate     = "growth_rate"
	MetricConversionRate = "conversion_rate"
	MetricGeneric        = "metric"
	MetricCustomerCount  = "customer_count"
)

// Metric units.
const (
	UnitCurrency = "$"
	UnitPercent  = "%"
	UnitCount    = "count"
)

// metricFlows assigns every extracted metric to the flow it is recorded under.
var metricFlows = map[string]string{
	MetricMRR:            FlowCash,
	MetricARR:            FlowCash,
	MetricRevenue:        FlowCash,
	MetricGrowthRate:     FlowCash,
	MetricConversionRate: FlowCash,
	MetricChurnRate:      FlowValue,
	MetricCustomerCount:  FlowValue,
	MetricGeneric:        FlowInfo,
}

// FlowForMetric returns the flow a metric name is recorded under. Unknown
// names fall into the info flow.
func FlowForMetric(name string) string {
	if f, ok := metricFlows[name]; ok {
		return f
	}
	return FlowInfo
}
