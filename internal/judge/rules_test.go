package judge

import (
	"context"
	"testing"

	"github.com/hutchutchutch/voiceform/internal/models"
)

func floatPtr(v float64) *float64 { return &v }

func TestEvaluateText(t *testing.T) {
	q := models.Question{ID: "q", ExpectedFormat: models.FormatText}

	verdict, decided := evaluate(q, "  I grew up in Omaha.  ")
	if !decided || !verdict.Accepted {
		t.Fatalf("expected accepted text verdict, got %+v decided=%v", verdict, decided)
	}
	if verdict.CanonicalValue != "I grew up in Omaha." {
		t.Errorf("expected trimmed canonical value, got %q", verdict.CanonicalValue)
	}

	verdict, decided = evaluate(q, "   ")
	if !decided || verdict.Accepted || verdict.Reason != ReasonEmptyAnswer {
		t.Errorf("expected empty-answer rejection, got %+v decided=%v", verdict, decided)
	}
}

func TestEvaluateYesNo(t *testing.T) {
	q := models.Question{ID: "q", ExpectedFormat: models.FormatYesNo}

	cases := []struct {
		raw       string
		decided   bool
		canonical string
	}{
		{"yes", true, "yes"},
		{"Yep!", true, "yes"},
		{"  OKAY ", true, "yes"},
		{"no", true, "no"},
		{"Nope.", true, "no"},
		{"maybe", false, ""},
		{"I think so", false, ""},
	}
	for _, tc := range cases {
		verdict, decided := evaluate(q, tc.raw)
		if decided != tc.decided {
			t.Errorf("evaluate(%q): decided=%v, want %v", tc.raw, decided, tc.decided)
			continue
		}
		if decided && verdict.CanonicalValue != tc.canonical {
			t.Errorf("evaluate(%q): canonical=%q, want %q", tc.raw, verdict.CanonicalValue, tc.canonical)
		}
	}
}

func TestEvaluateNumber(t *testing.T) {
	q := models.Question{ID: "q", ExpectedFormat: models.FormatNumber}

	verdict, decided := evaluate(q, "$1,250.50")
	if !decided || !verdict.Accepted || verdict.CanonicalValue != "1250.5" {
		t.Errorf("expected 1250.5, got %+v decided=%v", verdict, decided)
	}

	if _, decided := evaluate(q, "about forty"); decided {
		t.Error("worded number should be undecided for rules")
	}
}

func TestEvaluateNumberBounds(t *testing.T) {
	q := models.Question{
		ID:             "q",
		ExpectedFormat: models.FormatNumber,
		Min:            floatPtr(1),
		Max:            floatPtr(10),
	}

	verdict, decided := evaluate(q, "5")
	if !decided || !verdict.Accepted {
		t.Fatalf("expected in-range accept, got %+v", verdict)
	}

	verdict, decided = evaluate(q, "11")
	if !decided || verdict.Accepted || verdict.Reason != ReasonOutOfRange {
		t.Errorf("expected out-of-range rejection, got %+v", verdict)
	}
	verdict, _ = evaluate(q, "0")
	if verdict.Accepted || verdict.Reason != ReasonOutOfRange {
		t.Errorf("expected out-of-range rejection, got %+v", verdict)
	}
}

func TestEvaluateEmail(t *testing.T) {
	q := models.Question{ID: "q", ExpectedFormat: models.FormatEmail}

	verdict, decided := evaluate(q, "Sam@Example.COM")
	if !decided || !verdict.Accepted || verdict.CanonicalValue != "sam@example.com" {
		t.Errorf("expected lowercased email, got %+v decided=%v", verdict, decided)
	}

	if _, decided := evaluate(q, "sam at example dot com"); decided {
		t.Error("spoken email should be undecided for rules")
	}
}

func TestEvaluatePhone(t *testing.T) {
	q := models.Question{ID: "q", ExpectedFormat: models.FormatPhone}

	verdict, decided := evaluate(q, "+1 (555) 867-5309")
	if !decided || !verdict.Accepted || verdict.CanonicalValue != "+15558675309" {
		t.Errorf("expected normalized phone, got %+v decided=%v", verdict, decided)
	}

	if _, decided := evaluate(q, "five five five"); decided {
		t.Error("worded phone should be undecided for rules")
	}
	if _, decided := evaluate(q, "12345"); decided {
		t.Error("too-short digit string should be undecided for rules")
	}
}

func TestEvaluateDate(t *testing.T) {
	q := models.Question{ID: "q", ExpectedFormat: models.FormatDate}

	cases := map[string]string{
		"2024-03-09":    "2024-03-09",
		"03/09/2024":    "2024-03-09",
		"March 9, 2024": "2024-03-09",
		"9 March 2024":  "2024-03-09",
	}
	for raw, want := range cases {
		verdict, decided := evaluate(q, raw)
		if !decided || !verdict.Accepted || verdict.CanonicalValue != want {
			t.Errorf("evaluate(%q): got %+v decided=%v, want canonical %q", raw, verdict, decided, want)
		}
	}

	if _, decided := evaluate(q, "next Tuesday"); decided {
		t.Error("relative date should be undecided for rules")
	}
}

func TestEvaluateMultipleChoice(t *testing.T) {
	q := models.Question{
		ID:             "q",
		ExpectedFormat: models.FormatMultipleChoice,
		Options:        []string{"Small", "Medium", "Large"},
	}

	verdict, decided := evaluate(q, "medium")
	if !decided || !verdict.Accepted || verdict.CanonicalValue != "Medium" {
		t.Errorf("expected exact option text, got %+v decided=%v", verdict, decided)
	}

	// 1-based index selection.
	verdict, decided = evaluate(q, "3")
	if !decided || !verdict.Accepted || verdict.CanonicalValue != "Large" {
		t.Errorf("expected index selection of Large, got %+v decided=%v", verdict, decided)
	}

	verdict, decided = evaluate(q, "7")
	if !decided || verdict.Accepted {
		t.Errorf("expected out-of-range index rejection, got %+v decided=%v", verdict, decided)
	}

	if _, decided := evaluate(q, "the big one"); decided {
		t.Error("paraphrased option should be undecided for rules")
	}
}

func TestRuleJudgeRejectsUndecided(t *testing.T) {
	j := NewRuleJudge()
	q := models.Question{ID: "q", ExpectedFormat: models.FormatYesNo}

	verdict := j.Judge(context.Background(), q, "perhaps")
	if verdict.Accepted || verdict.Reason != ReasonUnrecognized {
		t.Errorf("expected unrecognized rejection, got %+v", verdict)
	}

	verdict = j.Judge(context.Background(), q, "yes")
	if !verdict.Accepted || verdict.CanonicalValue != "yes" {
		t.Errorf("expected accept, got %+v", verdict)
	}
}
