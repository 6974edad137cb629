// Package classifier implements the pure, deterministic ticket
// classification function. It is stateless and independently testable;
// all matching is case-insensitive on the message text.
//
// Classify accepts the subject for interface symmetry with the upstream
// payload but does not read it: only the message body is inspected.
package classifier

import (
	"strings"

	"github.com/r3e-collective/ticketflow/internal/domain"
)

// keywordRule pairs a lowercase keyword with the label it contributes.
type keywordRule struct {
	keyword string
	urgency domain.Urgency
}

// urgencyRules is ordered from least to most severe so a later match can
// upgrade urgency but never downgrade it within one classification pass.
var urgencyRules = []keywordRule{
	{"refund", domain.UrgencyMedium},
	{"charged twice", domain.UrgencyMedium},
	{"cancel", domain.UrgencyMedium},
	{"lawsuit", domain.UrgencyHigh},
	{"legal action", domain.UrgencyHigh},
	{"data breach", domain.UrgencyHigh},
	{"security", domain.UrgencyHigh},
	{"down", domain.UrgencyHigh},
	{"outage", domain.UrgencyHigh},
	{"urgent", domain.UrgencyHigh},
	{"emergency", domain.UrgencyHigh},
}

var negativeKeywords = []string{
	"angry", "broken", "furious", "terrible", "worst", "disappointed", "frustrated", "unacceptable",
}

var positiveKeywords = []string{
	"thank you", "thanks", "great", "awesome", "love it", "appreciate",
}

// actionKeywords mark tickets that need a human response rather than
// routine triage.
var actionKeywords = []string{
	"please call", "please respond", "escalate", "need help", "asap",
}

// Classify derives urgency, sentiment and requires_action from the ticket
// text, matching keywords case-insensitively against the message body.
func Classify(subject, message string) domain.Classification {
	text := strings.ToLower(message)

	var matched []string
	urgency := domain.UrgencyLow
	for _, rule := range urgencyRules {
		if strings.Contains(text, rule.keyword) {
			matched = append(matched, rule.keyword)
			if severityRank(rule.urgency) > severityRank(urgency) {
				urgency = rule.urgency
			}
		}
	}

	sentiment := domain.SentimentNeutral
	if containsAny(text, negativeKeywords) {
		sentiment = domain.SentimentNegative
	} else if containsAny(text, positiveKeywords) {
		sentiment = domain.SentimentPositive
	}

	requiresAction := containsAny(text, actionKeywords) || urgency == domain.UrgencyHigh

	return domain.Classification{
		Urgency:         urgency,
		Sentiment:       sentiment,
		RequiresAction:  requiresAction,
		MatchedKeywords: matched,
	}
}

func severityRank(u domain.Urgency) int {
	switch u {
	case domain.UrgencyHigh:
		return 2
	case domain.UrgencyMedium:
		return 1
	default:
		return 0
	}
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
