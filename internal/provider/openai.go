package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/tbourn/review-orchestrator/internal/domain"
)

const defaultSystemPrompt = "You are a senior maintainer triaging GitHub issues and reviewing pull requests. " +
	"Answer with a single JSON object and nothing else."

// chatStreamer is the subset of *openai.Client used here.
type chatStreamer interface {
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
}

// OpenAIProvider runs validations and reviews against any OpenAI-compatible
// chat completion endpoint.
type OpenAIProvider struct {
	newClient func(Profile) chatStreamer
}

// NewOpenAIProvider returns a provider that builds one client per profile.
func NewOpenAIProvider() *OpenAIProvider {
	return &OpenAIProvider{newClient: func(p Profile) chatStreamer {
		cfg := openai.DefaultConfig(p.APIKey())
		if p.BaseURL != "" {
			cfg.BaseURL = p.BaseURL
		}
		return openai.NewClientWithConfig(cfg)
	}}
}

// Name implements Provider.
func (*OpenAIProvider) Name() string { return "openai" }

// Execute implements Provider.
func (o *OpenAIProvider) Execute(ctx context.Context, params Params, yield func(StepUpdate) error) (domain.Outcome, error) {
	kind := domain.OutcomeKindFor(params.Key.Kind)
	prof := params.Profile

	msg := fmt.Sprintf("Requesting %s of %s from %s", kind, params.Key, prof.Model)
	if params.Chained() {
		msg = fmt.Sprintf("Re-reviewing %s since %s", params.Key, shortSHA(params.PreviousHeadSHA))
	}
	if err := yield(StepUpdate{Message: msg, Kind: domain.StepStatus}); err != nil {
		return domain.Outcome{}, err
	}

	sys := prof.SystemPrompt
	if sys == "" {
		sys = defaultSystemPrompt
	}
	req := openai.ChatCompletionRequest{
		Model: prof.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: sys},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(params, kind)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		StreamOptions:  &openai.StreamOptions{IncludeUsage: true},
		Temperature:    prof.Temperature,
	}
	if prof.MaxTokens > 0 {
		req.MaxCompletionTokens = prof.MaxTokens
	}

	stream, err := o.newClient(prof).CreateChatCompletionStream(ctx, req)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("openai stream: %w", err)
	}
	defer stream.Close()

	every := prof.StepEveryChunks
	if every <= 0 {
		every = 32
	}
	var (
		buf    strings.Builder
		chunks int
		usage  *openai.Usage
	)
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.Outcome{}, fmt.Errorf("openai recv: %w", err)
		}
		if resp.Usage != nil {
			usage = resp.Usage
		}
		for _, ch := range resp.Choices {
			buf.WriteString(ch.Delta.Content)
		}
		chunks++
		if chunks%every == 0 {
			if err := yield(StepUpdate{Message: fmt.Sprintf("Received %d chunks", chunks), Kind: domain.StepOutput}); err != nil {
				return domain.Outcome{}, err
			}
		}
	}

	if err := yield(StepUpdate{Message: "Parsing response", Kind: domain.StepStatus}); err != nil {
		return domain.Outcome{}, err
	}
	out, err := decodeOutcome(kind, buf.String())
	if err != nil {
		return domain.Outcome{}, err
	}
	out.Provider = o.Name()
	out.Model = prof.Model
	out.HeadSHA = params.HeadSHA
	out.Metrics.Turns = 1
	if usage != nil {
		out.Metrics.InputTokens = usage.PromptTokens
		out.Metrics.OutputTokens = usage.CompletionTokens
	}
	return out, nil
}

func buildPrompt(p Params, kind domain.OutcomeKind) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\n", p.Key.Repository)
	if p.RepoPath != "" {
		fmt.Fprintf(&b, "Local checkout: %s\n", p.RepoPath)
	}
	switch kind {
	case domain.OutcomeReview:
		fmt.Fprintf(&b, "Review pull request #%d", p.Key.Number)
		if p.HeadSHA != "" {
			fmt.Fprintf(&b, " at %s", p.HeadSHA)
		}
		b.WriteString(".\n")
		if p.Chained() && p.Previous.Review != nil {
			fmt.Fprintf(&b, "A previous review at %s concluded %q: %s\n",
				shortSHA(p.PreviousHeadSHA), p.Previous.Review.Verdict, p.Previous.Review.Summary)
			if p.IncrementalDiff {
				b.WriteString("Focus on changes made since that revision and whether earlier findings were addressed.\n")
			}
		}
		b.WriteString(`Respond as {"verdict":"approve|request_changes|comment","score":0-100,"summary":"...",` +
			`"findings":[{"path":"...","line":1,"severity":"info|minor|major|critical","message":"..."}]}`)
	default:
		fmt.Fprintf(&b, "Validate issue #%d: decide whether the reported bug or feature request is real.\n", p.Key.Number)
		b.WriteString(`Respond as {"verdict":"confirmed|likely|unlikely|invalid|needs_info","confidence":0-100,` +
			`"summary":"...","reproduction_steps":["..."],"suggested_labels":["..."]}`)
	}
	return b.String()
}

// decodeOutcome parses the model's JSON answer, tolerating a fenced code block.
func decodeOutcome(kind domain.OutcomeKind, raw string) (domain.Outcome, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.Outcome{}, errors.New("provider returned an empty response")
	}

	out := domain.Outcome{Kind: kind}
	switch kind {
	case domain.OutcomeReview:
		var r domain.ReviewResult
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return domain.Outcome{}, fmt.Errorf("decode review: %w", err)
		}
		out.Review = &r
	default:
		var v domain.ValidationResult
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return domain.Outcome{}, fmt.Errorf("decode validation: %w", err)
		}
		out.Validation = &v
	}
	return out, nil
}

func shortSHA(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	if s == "" {
		return "an earlier revision"
	}
	return s
}
