// Package judge implements the answer-validation protocol for voiceform.
//
// A Judge decides whether a respondent's raw answer satisfies a question's
// expected format and, when it does, extracts the canonical value the rest
// of the system stores. Deterministic format rules decide most answers
// locally; an OpenAI-backed judge handles the phrasings only a language
// model can map ("yep", "around forty", "sam at gmail dot com"). Judge
// failures are never surfaced as faults: they become rejections that count
// against the question's attempt budget.
package judge

import (
	"context"

	"github.com/hutchutchutch/voiceform/internal/models"
)

// Verdict is the structured result of judging a raw answer.
type Verdict struct {
	Accepted       bool   `json:"accepted"`
	CanonicalValue string `json:"canonical_value,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// Rejection reason constants.
const (
	// ReasonJudgeUnavailable marks rejections caused by judge transport or
	// parse failures rather than by the answer itself.
	ReasonJudgeUnavailable = "judge_unavailable"
	// ReasonEmptyAnswer marks answers that are empty after trimming.
	ReasonEmptyAnswer = "empty_answer"
	// ReasonUnrecognized marks answers the deterministic rules could not map
	// and no external judge was available to interpret.
	ReasonUnrecognized = "unrecognized_answer"
	// ReasonOutOfRange marks numeric answers outside the question's bounds.
	ReasonOutOfRange = "out_of_range"
	// ReasonBadCanonical marks judge outputs that failed canonical re-validation.
	ReasonBadCanonical = "canonicalization_failed"
)

// Judge decides whether a raw answer is acceptable for a question.
//
// Implementations must never return a fault for transport-level failures;
// those are reported as Verdict{Accepted: false, Reason: ReasonJudgeUnavailable}.
type Judge interface {
	Judge(ctx context.Context, question models.Question, rawAnswer string) Verdict
}

// RuleJudge applies only the deterministic format rules, with no external
// model. It is the fallback when no OpenAI key is configured, and the whole
// story for formats like text that never need interpretation.
type RuleJudge struct{}

// NewRuleJudge creates a judge that relies solely on deterministic rules.
func NewRuleJudge() *RuleJudge {
	return &RuleJudge{}
}

// Judge applies the deterministic rules; answers the rules cannot map are
// rejected as unrecognized.
func (j *RuleJudge) Judge(_ context.Context, question models.Question, rawAnswer string) Verdict {
	verdict, decided := evaluate(question, rawAnswer)
	if decided {
		return verdict
	}
	return Verdict{Accepted: false, Reason: ReasonUnrecognized}
}
