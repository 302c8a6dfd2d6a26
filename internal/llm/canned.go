package llm

import (
	"context"
	"strings"
)

// CannedReply answers from a fixed keyword table. It is used when no API key
// is configured. firstName personalizes the help greeting; empty means "bro".
func CannedReply(message, firstName string) string {
	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "help") || strings.Contains(lower, "what can you do"):
		name := firstName
		if name == "" {
			name = "bro"
		}
		return "Yo " + name + "! I'm CBO Bro, your Chief Business Optimization wingman! 💪\n\n" + helpBody
	case strings.Contains(lower, "revenue") || strings.Contains(lower, "sales"):
		return revenueReply
	case strings.Contains(lower, "customer") || strings.Contains(lower, "client"):
		return customerReply
	case strings.Contains(lower, "team") || strings.Contains(lower, "employee"):
		return teamReply
	}
	return defaultReply
}

// Canned adapts CannedReply to the Complete signature. History is ignored.
type Canned struct{}

// Complete returns the canned reply for message. It never fails.
func (Canned) Complete(ctx context.Context, _ []Message, message string) (string, error) {
	return CannedReply(message, FirstNameFrom(ctx)), nil
}

type firstNameKey struct{}

// WithFirstName stores the caller's first name for Canned.
func WithFirstName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, firstNameKey{}, name)
}

// FirstNameFrom returns the name stored by WithFirstName, or "".
func FirstNameFrom(ctx context.Context) string {
	s, _ := ctx.Value(firstNameKey{}).(string)
	return s
}

const helpBody = `Here's what I can help you with:
• 📊 Business health diagnostics using the BroVerse Biz Mental Model™
• 🔍 Identify bottlenecks in your Four Flows (Value, Info, Cash, Culture)
• 💡 Strategic recommendations based on 64 Business Patterns
• 📈 Growth hacking strategies that actually work
• 🚀 Crisis response and turnaround planning

Just tell me what's going on with your business, and I'll hook you up with some serious insights!`

const revenueReply = `Alright, let's talk revenue optimization! 📈

Based on the BBMM framework, here are the key areas to check:

1. **Value Flow**: Is your value prop crystal clear? Are customers getting it?
2. **Info Flow**: How's your sales data pipeline? Real-time insights?
3. **Cash Flow**: What's your conversion rate looking like?
4. **Culture Flow**: Is your sales team aligned and motivated?

Want me to dive deeper into any of these? I can run a full diagnostic!`

const customerReply = `Customer optimization - now we're talking! 🎯

The BBMM framework identifies these customer-related patterns:
• Customer Acquisition Cost (CAC) optimization
• Lifetime Value (LTV) enhancement
• Churn reduction strategies
• NPS improvement tactics

Which area is giving you the most headaches right now?`

const teamReply = `Team optimization is crucial, bro! 👥

Culture Flow is one of the Four Flows that drives everything:
• Communication patterns
• Decision-making speed
• Innovation capacity
• Execution velocity

Tell me more about your team challenges, and I'll prescribe the right pattern!`

const defaultReply = `Interesting question! 🤔

To give you the most valuable insights, I need to understand your business context better. 

Could you tell me:
1. What specific challenge are you facing?
2. What's the impact on your business?
3. What have you tried so far?

The more details you share, the better I can apply the BBMM framework to help you crush it! 💪`
