package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hutchutchutch/voiceform/internal/models"
)

// DefaultJudgeTimeout bounds a single model call.
const DefaultJudgeTimeout = 20 * time.Second

// chatCompleter is the subset of the OpenAI chat completion API used by
// the judge. It allows tests to substitute a scripted implementation.
type chatCompleter interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIJudge validates answers with deterministic rules first and falls
// back to an OpenAI chat model for answers the rules cannot decide.
type OpenAIJudge struct {
	completions chatCompleter
	model       openai.ChatModel
	timeout     time.Duration
}

// Opts holds the options for creating an OpenAI judge.
type Opts struct {
	// APIKey is the OpenAI API key. Falls back to OPENAI_API_KEY when empty.
	APIKey string
	// Model overrides the default chat model.
	Model openai.ChatModel
	// Timeout bounds each model call.
	Timeout time.Duration
}

// Option configures an OpenAI judge.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat model used for validation.
func WithModel(model openai.ChatModel) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// NewOpenAIJudge creates an OpenAI-backed judge based on provided options.
func NewOpenAIJudge(opts ...Option) (*OpenAIJudge, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		slog.Error("OpenAIJudge.NewOpenAIJudge: API key not set")
		return nil, fmt.Errorf("OpenAI API key not set")
	}

	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultJudgeTimeout
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))
	slog.Debug("OpenAIJudge.NewOpenAIJudge: created judge", "model", model, "timeout", timeout)
	return &OpenAIJudge{
		completions: &client.Chat.Completions,
		model:       model,
		timeout:     timeout,
	}, nil
}

// judgeReply mirrors the JSON object the model is instructed to emit.
type judgeReply struct {
	Accepted       bool   `json:"accepted"`
	CanonicalValue string `json:"canonical_value"`
	Reason         string `json:"reason"`
}

// Judge validates a raw answer against a question. Deterministic rules run
// first; only undecided answers reach the model. Model failures are
// downgraded to rejections so a conversation can continue.
func (j *OpenAIJudge) Judge(ctx context.Context, question models.Question, rawAnswer string) Verdict {
	if verdict, decided := evaluate(question, rawAnswer); decided {
		return verdict
	}

	callCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	resp, err := j.completions.New(callCtx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(judgeSystemPrompt),
			openai.UserMessage(buildJudgeRequest(question, rawAnswer)),
		},
		Model: j.model,
	})
	if err != nil {
		slog.Warn("OpenAIJudge.Judge: model call failed", "error", err, "questionID", question.ID)
		return Verdict{Accepted: false, Reason: ReasonJudgeUnavailable}
	}
	if len(resp.Choices) == 0 {
		slog.Warn("OpenAIJudge.Judge: model returned no choices", "questionID", question.ID)
		return Verdict{Accepted: false, Reason: ReasonJudgeUnavailable}
	}

	var reply judgeReply
	content := stripJSONFences(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &reply); err != nil {
		slog.Warn("OpenAIJudge.Judge: failed to parse model reply", "error", err, "questionID", question.ID, "content", content)
		return Verdict{Accepted: false, Reason: ReasonJudgeUnavailable}
	}

	if !reply.Accepted {
		reason := reply.Reason
		if reason == "" {
			reason = ReasonUnrecognized
		}
		return Verdict{Accepted: false, Reason: reason}
	}

	// Re-run the deterministic rules on the model's canonical value so a
	// confused model cannot smuggle a malformed value into the responses.
	verdict, decided := evaluate(question, reply.CanonicalValue)
	if !decided || !verdict.Accepted {
		slog.Warn("OpenAIJudge.Judge: canonical value failed re-validation",
			"questionID", question.ID, "canonical", reply.CanonicalValue)
		return Verdict{Accepted: false, Reason: ReasonBadCanonical}
	}
	return verdict
}

const judgeSystemPrompt = `You validate answers collected during a spoken form-filling conversation. ` +
	`Given a question, its expected answer format, and the respondent's raw (possibly transcribed) answer, ` +
	`decide whether the answer satisfies the format and extract the canonical value. ` +
	`Respond with ONLY a JSON object: {"accepted": bool, "canonical_value": string, "reason": string}. ` +
	`Canonical forms: yes_no -> "yes" or "no"; number -> plain decimal digits; date -> YYYY-MM-DD; ` +
	`email -> lowercase address; phone -> digits with optional leading +; ` +
	`multiple_choice -> the exact text of the chosen option. ` +
	`Reject anything off-topic, ambiguous, or outside the allowed options, with a short reason.`

func buildJudgeRequest(q models.Question, rawAnswer string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", q.Prompt)
	fmt.Fprintf(&b, "Expected format: %s\n", q.ExpectedFormat)
	if len(q.Options) > 0 {
		fmt.Fprintf(&b, "Allowed options: %s\n", strings.Join(q.Options, "; "))
	}
	if q.Min != nil {
		fmt.Fprintf(&b, "Minimum value: %g\n", *q.Min)
	}
	if q.Max != nil {
		fmt.Fprintf(&b, "Maximum value: %g\n", *q.Max)
	}
	fmt.Fprintf(&b, "Raw answer: %s", rawAnswer)
	return b.String()
}

// stripJSONFences removes markdown code fences some models wrap around
// JSON replies.
func stripJSONFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}
	return trimmed
}
