package feedback

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/chippeddog/english.now-sub000/internal/session"
)

// Generator produces feedback text for a completed session.
type Generator interface {
	Generate(ctx context.Context, sess *session.Session) (string, error)
}

// GeneratorFunc adapts a function to the [Generator] interface.
type GeneratorFunc func(ctx context.Context, sess *session.Session) (string, error)

// Generate implements [Generator].
func (f GeneratorFunc) Generate(ctx context.Context, sess *session.Session) (string, error) {
	return f(ctx, sess)
}

const systemPrompt = `You are an encouraging English pronunciation coach.
You receive the scoring summary of a learner's practice session. Write a short
piece of feedback (at most 120 words) in plain prose: name what went well,
point out the words and sounds that need work, and suggest one concrete thing
to practise next. Do not repeat raw numbers back at the learner.`

// openAIGenerator implements [Generator] with an OpenAI chat completion.
type openAIGenerator struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the OpenAI generator.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for [NewOpenAI].
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// NewOpenAI constructs a [Generator] backed by the OpenAI API.
func NewOpenAI(apiKey, model string, opts ...Option) (Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("feedback: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("feedback: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &openAIGenerator{
		client: oai.NewClient(reqOpts...),
		model:  model,
	}, nil
}

// Generate implements [Generator].
func (g *openAIGenerator) Generate(ctx context.Context, sess *session.Session) (string, error) {
	if sess.Summary == nil {
		return "", fmt.Errorf("feedback: session %s has no summary", sess.ID)
	}

	resp, err := g.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(g.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(systemPrompt),
			oai.UserMessage(summaryPrompt(sess)),
		},
		MaxCompletionTokens: param.NewOpt(int64(400)),
	})
	if err != nil {
		return "", fmt.Errorf("feedback: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("feedback: empty choices in response")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("feedback: empty completion")
	}
	return text, nil
}

// summaryPrompt renders a session summary as the user message for the model.
func summaryPrompt(sess *session.Session) string {
	sum := sess.Summary

	var b strings.Builder
	fmt.Fprintf(&b, "The learner completed %d attempt(s).\n", sum.TotalAttempts)
	fmt.Fprintf(&b, "Overall pronunciation score: %d/100 (best %d, worst %d).\n",
		sum.AverageScore, sum.BestScore, sum.WorstScore)
	fmt.Fprintf(&b, "Accuracy %d, fluency %d, completeness %d, prosody %d.\n",
		sum.AverageAccuracy, sum.AverageFluency, sum.AverageCompleteness, sum.AverageProsody)

	if len(sess.Items) > 0 {
		b.WriteString("Practice texts:\n")
		for _, item := range sess.Items {
			fmt.Fprintf(&b, "- %q\n", item.Text)
		}
	}
	if len(sum.WeakWords) > 0 {
		fmt.Fprintf(&b, "Words that gave trouble: %s.\n", strings.Join(sum.WeakWords, ", "))
	}
	for _, wp := range sum.WeakPhonemes {
		fmt.Fprintf(&b, "Weak sound /%s/ (score %d over %d occurrence(s))", wp.Phoneme, wp.Score, wp.Occurrences)
		if len(wp.ExampleWords) > 0 {
			fmt.Fprintf(&b, ", e.g. in %s", strings.Join(wp.ExampleWords, ", "))
		}
		b.WriteString(".\n")
	}
	return b.String()
}
