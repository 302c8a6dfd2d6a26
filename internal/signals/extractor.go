package signals

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// TopicMaxRunes caps the topic derived from a message.
const TopicMaxRunes = 100

var (
	revenueRE  = regexp.MustCompile(`(?i)\$?(\d+(?:,\d{3})*(?:\.\d+)?)([kKmM]?)\s*(?:MRR|ARR|revenue)`)
	percentRE  = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	customerRE = regexp.MustCompile(`(?i)(\d+)\s*(?:customers?|users?|clients?)`)
)

// Metric is a numeric observation parsed from free text.
type Metric struct {
	Name  string  `json:"metric"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Signals bundles everything extracted from one message.
type Signals struct {
	Keywords     []string `json:"keywords"`
	FlowMentions []string `json:"flow_mentions"`
	Topic        string   `json:"topic"`
	PrimaryFlow  string   `json:"primary_flow"`
	Metrics      []Metric `json:"metrics"`
}

// Extractor derives Signals from text using a Vocabulary.
// It is safe for concurrent use.
type Extractor struct {
	vocab       Vocabulary
	folded      []string
	strictScale bool
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithStrictScale makes k/m scaling of revenue figures look only at the
// suffix attached to the matched number. By default the whole message is
// scanned for the letters k/K and m/M, so "$50 MRR" is scaled by the M of
// "MRR" and any k elsewhere in the text scales an unrelated figure.
func WithStrictScale(strict bool) Option {
	return func(e *Extractor) { e.strictScale = strict }
}

// NewExtractor builds an Extractor over vocab.
func NewExtractor(vocab Vocabulary, opts ...Option) *Extractor {
	e := &Extractor{vocab: vocab}
	fold := cases.Fold()
	e.folded = make([]string, len(vocab.Keywords))
	for i, k := range vocab.Keywords {
		e.folded[i] = fold.String(k)
	}
	for _, o := range opts {
		o(e)
	}
	if e.vocab.DefaultFlow == "" {
		e.vocab.DefaultFlow = FlowValue
	}
	return e
}

// Default returns an Extractor over DefaultVocabulary with legacy scaling.
func Default() *Extractor { return NewExtractor(DefaultVocabulary()) }

// Extract runs every extraction over text.
func (e *Extractor) Extract(text string) Signals {
	flows := e.FlowMentions(text)
	primary := e.vocab.DefaultFlow
	if len(flows) > 0 {
		primary = flows[0]
	}
	return Signals{
		Keywords:     e.Keywords(text),
		FlowMentions: flows,
		Topic:        Topic(text),
		PrimaryFlow:  primary,
		Metrics:      e.Metrics(text),
	}
}

// Keywords returns the vocabulary keywords that occur as whitespace-separated
// tokens of text, in vocabulary order. Punctuation stays attached to tokens,
// so "revenue," does not match "revenue".
func (e *Extractor) Keywords(text string) []string {
	fold := cases.Fold()
	tokens := make(map[string]struct{})
	for _, w := range strings.Fields(text) {
		tokens[fold.String(w)] = struct{}{}
	}
	out := []string{}
	for i, k := range e.folded {
		if _, ok := tokens[k]; ok {
			out = append(out, e.vocab.Keywords[i])
		}
	}
	return out
}

// FlowMentions returns every flow whose terms occur as substrings of the
// lower-cased text, in vocabulary order.
func (e *Extractor) FlowMentions(text string) []string {
	lower := strings.ToLower(text)
	out := []string{}
	for _, fc := range e.vocab.Flows {
		for _, term := range fc.Terms {
			if strings.Contains(lower, term) {
				out = append(out, fc.Flow)
				break
			}
		}
	}
	return out
}

// PrimaryFlow returns the first flow mentioned in text or the vocabulary's
// default flow.
func (e *Extractor) PrimaryFlow(text string) string {
	if flows := e.FlowMentions(text); len(flows) > 0 {
		return flows[0]
	}
	return e.vocab.DefaultFlow
}

// Topic returns text up to the first '.', '!' or '?', truncated to
// TopicMaxRunes runes.
func Topic(text string) string {
	if i := strings.IndexAny(text, ".!?"); i >= 0 {
		text = text[:i]
	}
	if r := []rune(text); len(r) > TopicMaxRunes {
		return string(r[:TopicMaxRunes])
	}
	return text
}

// Metrics parses numeric business metrics from text: at most one revenue
// figure, every percentage literal and at most one customer count, in that
// order.
func (e *Extractor) Metrics(text string) []Metric {
	out := []Metric{}

	if m := revenueRE.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil {
			out = append(out, Metric{
				Name:  revenueName(text),
				Value: e.scale(v, m[2], text),
				Unit:  UnitCurrency,
			})
		}
	}

	if all := percentRE.FindAllStringSubmatch(text, -1); len(all) > 0 {
		name := percentName(text)
		for _, m := range all {
			v, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			out = append(out, Metric{Name: name, Value: v, Unit: UnitPercent})
		}
	}

	if m := customerRE.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			out = append(out, Metric{Name: MetricCustomerCount, Value: v, Unit: UnitCount})
		}
	}

	return out
}

func (e *Extractor) scale(v float64, suffix, text string) float64 {
	if e.strictScale {
		switch suffix {
		case "k", "K":
			return v * 1e3
		case "m", "M":
			return v * 1e6
		}
		return v
	}
	if strings.ContainsAny(text, "kK") {
		v *= 1e3
	}
	if strings.ContainsAny(text, "mM") {
		v *= 1e6
	}
	return v
}

// revenueName is case-sensitive: "mrr" is reported as plain revenue.
func revenueName(text string) string {
	switch {
	case strings.Contains(text, "MRR"):
		return MetricMRR
	case strings.Contains(text, "ARR"):
		return MetricARR
	default:
		return MetricRevenue
	}
}

func percentName(text string) string {
	switch {
	case strings.Contains(text, "churn"):
		return MetricChurnRate
	case strings.Contains(text, "growth"):
		return MetricGrowthRate
	case strings.Contains(text, "conversion"):
		return MetricConversionRate
	default:
		return MetricGeneric
	}
}
