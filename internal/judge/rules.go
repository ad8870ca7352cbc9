package judge

import (
	"fmt"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hutchutchutch/voiceform/internal/models"
)

// Word sets for yes/no interpretation. Kept small on purpose: anything
// outside these sets is left for the model judge to interpret.
var (
	yesWords = map[string]bool{
		"yes": true, "y": true, "yeah": true, "yep": true, "yup": true,
		"sure": true, "ok": true, "okay": true, "correct": true,
		"definitely": true, "absolutely": true, "true": true,
	}
	noWords = map[string]bool{
		"no": true, "n": true, "nope": true, "nah": true, "never": true,
		"negative": true, "false": true,
	}
)

var (
	phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
	numberStrip  = strings.NewReplacer("$", "", ",", "", "%", "")
)

// dateLayouts are tried in order when parsing date answers. Canonical
// output is always 2006-01-02.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 January 2006",
	"02-01-2006",
}

// evaluate applies the deterministic format rules for a question. It
// returns the verdict and whether the rules could decide at all; an
// undecided answer should be escalated to a model judge.
//
// The rules are conservative: they accept only unambiguous answers and
// reject only answers that are provably invalid (empty input, numbers
// outside declared bounds). Everything in between is undecided.
func evaluate(q models.Question, raw string) (Verdict, bool) {
	answer := strings.TrimSpace(raw)
	if answer == "" {
		return Verdict{Accepted: false, Reason: ReasonEmptyAnswer}, true
	}

	switch q.ExpectedFormat {
	case models.FormatText:
		// Any non-empty trimmed answer is a valid text response.
		return Verdict{Accepted: true, CanonicalValue: answer}, true

	case models.FormatYesNo:
		word := strings.ToLower(strings.Trim(answer, ".!,"))
		if yesWords[word] {
			return Verdict{Accepted: true, CanonicalValue: "yes"}, true
		}
		if noWords[word] {
			return Verdict{Accepted: true, CanonicalValue: "no"}, true
		}
		return Verdict{}, false

	case models.FormatNumber:
		cleaned := numberStrip.Replace(answer)
		value, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return Verdict{}, false
		}
		if q.Min != nil && value < *q.Min {
			return Verdict{Accepted: false, Reason: ReasonOutOfRange}, true
		}
		if q.Max != nil && value > *q.Max {
			return Verdict{Accepted: false, Reason: ReasonOutOfRange}, true
		}
		return Verdict{Accepted: true, CanonicalValue: strconv.FormatFloat(value, 'f', -1, 64)}, true

	case models.FormatEmail:
		candidate := strings.ToLower(answer)
		if addr, err := mail.ParseAddress(candidate); err == nil && addr.Address == candidate {
			return Verdict{Accepted: true, CanonicalValue: candidate}, true
		}
		return Verdict{}, false

	case models.FormatPhone:
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' || r == '+' {
				return r
			}
			if r == ' ' || r == '-' || r == '(' || r == ')' || r == '.' {
				return -1
			}
			return r
		}, answer)
		if phonePattern.MatchString(digits) {
			return Verdict{Accepted: true, CanonicalValue: digits}, true
		}
		return Verdict{}, false

	case models.FormatDate:
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, answer); err == nil {
				return Verdict{Accepted: true, CanonicalValue: parsed.Format("2006-01-02")}, true
			}
		}
		return Verdict{}, false

	case models.FormatMultipleChoice:
		lowered := strings.ToLower(strings.Trim(answer, ".!,"))
		for _, opt := range q.Options {
			if strings.ToLower(opt) == lowered {
				return Verdict{Accepted: true, CanonicalValue: opt}, true
			}
		}
		// A bare 1-based index selects the corresponding option.
		if idx, err := strconv.Atoi(lowered); err == nil {
			if idx >= 1 && idx <= len(q.Options) {
				return Verdict{Accepted: true, CanonicalValue: q.Options[idx-1]}, true
			}
			return Verdict{Accepted: false, Reason: fmt.Sprintf("option index %d out of range", idx)}, true
		}
		return Verdict{}, false
	}

	// Unknown format: treat like free text so a misconfigured form
	// degrades to collecting the raw answer instead of wedging.
	return Verdict{Accepted: true, CanonicalValue: answer}, true
}
