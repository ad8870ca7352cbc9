// Package models defines the core data structures for voiceform.
//
// It includes form definitions, questions, and the validation rules enforced
// when a form is loaded. Forms are pure data; all behavior lives in the flow
// and judge packages.
package models

import (
	"errors"
	"fmt"
	"sort"
)

// AnswerFormat defines the expected format of a respondent's answer.
type AnswerFormat string

const (
	// FormatText accepts any non-empty answer.
	FormatText AnswerFormat = "text"
	// FormatMultipleChoice requires the answer to match one of the question's options.
	FormatMultipleChoice AnswerFormat = "multiple_choice"
	// FormatYesNo requires an unambiguous yes or no.
	FormatYesNo AnswerFormat = "yes_no"
	// FormatNumber requires a numeric answer, optionally bounded.
	FormatNumber AnswerFormat = "number"
	// FormatDate requires a well-formed calendar date.
	FormatDate AnswerFormat = "date"
	// FormatEmail requires a well-formed email address.
	FormatEmail AnswerFormat = "email"
	// FormatPhone requires a well-formed phone number.
	FormatPhone AnswerFormat = "phone"
)

// Validation constants for form definitions.
const (
	// DefaultMaxAttempts is applied when a question does not set max_attempts.
	DefaultMaxAttempts = 3
	// MaxPromptLength defines the maximum allowed length for prompt text.
	MaxPromptLength = 4096
	// MaxOptionsCount defines the maximum number of multiple-choice options.
	MaxOptionsCount = 20
	// EmailQuestionID is the id of the built-in question appended when a form
	// sets collect_email.
	EmailQuestionID = "__email"
)

// Error variables for form definition validation. A form that trips any of
// these is rejected whole; no partial loading.
var (
	ErrEmptyFormID            = errors.New("form id cannot be empty")
	ErrEmptyQuestionID        = errors.New("question id cannot be empty")
	ErrDuplicateQuestionID    = errors.New("duplicate question id")
	ErrNonContiguousOrder     = errors.New("question order must be contiguous starting at 0")
	ErrEmptyPrompt            = errors.New("question prompt cannot be empty")
	ErrPromptTooLong          = errors.New("prompt exceeds maximum length")
	ErrInvalidAnswerFormat    = errors.New("invalid answer format")
	ErrMissingOptions         = errors.New("multiple choice questions require options")
	ErrUnexpectedOptions      = errors.New("options are only allowed on multiple choice questions")
	ErrTooManyOptions         = errors.New("too many options")
	ErrEmptyOption            = errors.New("option cannot be empty")
	ErrInvalidMaxAttempts     = errors.New("max attempts must be at least 1")
	ErrMissingReferenceName   = errors.New("reference name is required when create_dynamic_reference is set")
	ErrDuplicateReferenceName = errors.New("duplicate reference name")
	ErrInvalidNumericBounds   = errors.New("numeric min bound exceeds max bound")
)

// IsValidAnswerFormat checks if the given answer format is supported.
func IsValidAnswerFormat(f AnswerFormat) bool {
	switch f {
	case FormatText, FormatMultipleChoice, FormatYesNo, FormatNumber, FormatDate, FormatEmail, FormatPhone:
		return true
	default:
		return false
	}
}

// VoiceSettings carries speech-synthesis hints for the external voice layer.
// The core never interprets these; they are passed through verbatim.
type VoiceSettings struct {
	Voice string  `json:"voice,omitempty"`
	Speed float64 `json:"speed,omitempty"`
}

// OpeningActivity describes the greeting emitted when a session starts.
type OpeningActivity struct {
	Prompt         string         `json:"prompt"`
	BackgroundInfo string         `json:"background_info,omitempty"`
	VoiceSettings  *VoiceSettings `json:"voice_settings,omitempty"`
}

// ClosingActivity describes the sign-off emitted when a session completes.
type ClosingActivity struct {
	Prompt           string `json:"prompt"`
	BackgroundInfo   string `json:"background_info,omitempty"`
	CollectFeedback  bool   `json:"collect_feedback,omitempty"`
	FollowUpTemplate string `json:"follow_up_template,omitempty"`
}

// Question is a single step in a form's dialogue script.
type Question struct {
	ID             string       `json:"id"`
	Order          int          `json:"order"`
	Prompt         string       `json:"prompt"`
	ExpectedFormat AnswerFormat `json:"expected_format"`
	Options        []string     `json:"options,omitempty"`
	// Required defaults to true; a pointer keeps omitted and false distinguishable.
	Required       *bool  `json:"required,omitempty"`
	MaxAttempts    int    `json:"max_attempts,omitempty"`
	RephrasePrompt string `json:"rephrase_prompt,omitempty"`

	CreateDynamicReference bool   `json:"create_dynamic_reference,omitempty"`
	ReferenceName          string `json:"reference_name,omitempty"`

	// Min and Max bound numeric answers when expected_format is "number".
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// IsRequired reports whether the question must be answered before the form
// can complete without follow-up.
func (q *Question) IsRequired() bool {
	return q.Required == nil || *q.Required
}

// FormDefinition is the immutable dialogue script for one voice form.
type FormDefinition struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Opening      OpeningActivity `json:"opening_activity"`
	Questions    []Question      `json:"questions"`
	Closing      ClosingActivity `json:"closing_activity"`
	CollectEmail bool            `json:"collect_email,omitempty"`
}

// Validate performs comprehensive validation on a form definition. It fails
// closed: the first violation rejects the whole form.
func (f *FormDefinition) Validate() error {
	if f.ID == "" {
		return ErrEmptyFormID
	}

	seenIDs := make(map[string]bool, len(f.Questions))
	seenOrders := make(map[int]bool, len(f.Questions))
	seenRefs := make(map[string]bool)

	for i := range f.Questions {
		q := &f.Questions[i]
		if err := q.validate(); err != nil {
			return fmt.Errorf("question %q: %w", q.ID, err)
		}
		if seenIDs[q.ID] {
			return fmt.Errorf("question %q: %w", q.ID, ErrDuplicateQuestionID)
		}
		seenIDs[q.ID] = true
		if q.Order < 0 || q.Order >= len(f.Questions) || seenOrders[q.Order] {
			return fmt.Errorf("question %q: %w", q.ID, ErrNonContiguousOrder)
		}
		seenOrders[q.Order] = true
		if q.CreateDynamicReference {
			if seenRefs[q.ReferenceName] {
				return fmt.Errorf("question %q: %w", q.ID, ErrDuplicateReferenceName)
			}
			seenRefs[q.ReferenceName] = true
		}
	}

	return nil
}

// validate checks a single question's structural invariants.
func (q *Question) validate() error {
	if q.ID == "" {
		return ErrEmptyQuestionID
	}
	if q.Prompt == "" {
		return ErrEmptyPrompt
	}
	if len(q.Prompt) > MaxPromptLength {
		return ErrPromptTooLong
	}
	if !IsValidAnswerFormat(q.ExpectedFormat) {
		return ErrInvalidAnswerFormat
	}
	if q.MaxAttempts < 0 {
		return ErrInvalidMaxAttempts
	}
	if q.ExpectedFormat == FormatMultipleChoice {
		if len(q.Options) == 0 {
			return ErrMissingOptions
		}
		if len(q.Options) > MaxOptionsCount {
			return ErrTooManyOptions
		}
		for _, opt := range q.Options {
			if opt == "" {
				return ErrEmptyOption
			}
		}
	} else if len(q.Options) > 0 {
		return ErrUnexpectedOptions
	}
	if q.CreateDynamicReference && q.ReferenceName == "" {
		return ErrMissingReferenceName
	}
	if q.Min != nil && q.Max != nil && *q.Min > *q.Max {
		return ErrInvalidNumericBounds
	}
	return nil
}

// Normalize sorts questions into traversal order, applies defaults, and
// appends the built-in email question when collect_email is set. Call after
// Validate; the result is the form the state machine actually runs.
func (f *FormDefinition) Normalize() {
	sort.Slice(f.Questions, func(i, j int) bool {
		return f.Questions[i].Order < f.Questions[j].Order
	})

	for i := range f.Questions {
		if f.Questions[i].MaxAttempts == 0 {
			f.Questions[i].MaxAttempts = DefaultMaxAttempts
		}
	}

	if f.CollectEmail && !f.hasQuestion(EmailQuestionID) {
		f.Questions = append(f.Questions, Question{
			ID:             EmailQuestionID,
			Order:          len(f.Questions),
			Prompt:         "Before we wrap up, what email address can we reach you at?",
			ExpectedFormat: FormatEmail,
			MaxAttempts:    DefaultMaxAttempts,
		})
	}
}

func (f *FormDefinition) hasQuestion(id string) bool {
	for i := range f.Questions {
		if f.Questions[i].ID == id {
			return true
		}
	}
	return false
}
