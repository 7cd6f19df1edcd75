package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/review-orchestrator/internal/domain"
)

// sseServer streams content as OpenAI chat completion chunks, one rune group per chunk.
func sseServer(t *testing.T, content string, parts int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		size := (len(content) + parts - 1) / parts
		for i := 0; i < len(content); i += size {
			end := i + size
			if end > len(content) {
				end = len(content)
			}
			chunk := map[string]any{
				"id": "c1", "object": "chat.completion.chunk", "model": "m-1",
				"choices": []map[string]any{{"index": 0, "delta": map[string]string{"content": content[i:end]}}},
			}
			b, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", b)
		}
		usage := map[string]any{
			"id": "c1", "object": "chat.completion.chunk", "model": "m-1",
			"choices": []any{},
			"usage":   map[string]int{"prompt_tokens": 120, "completion_tokens": 40, "total_tokens": 160},
		}
		b, _ := json.Marshal(usage)
		fmt.Fprintf(w, "data: %s\n\n", b)
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestOpenAIProvider_Review(t *testing.T) {
	srv := sseServer(t, `{"verdict":"request_changes","score":62,"summary":"missing tests",`+
		`"findings":[{"path":"main.go","line":12,"severity":"major","message":"nil deref"}]}`, 6)
	defer srv.Close()

	params := Params{
		Key:     domain.EntityKey{Repository: "acme/widgets", Kind: domain.EntityPR, Number: 3},
		Profile: Profile{Name: "t", Model: "m-1", BaseURL: srv.URL + "/v1", StepEveryChunks: 2},
		HeadSHA: "abcdef1234",
	}
	evs := collect(t, NewDriver(NewOpenAIProvider()).Execute(context.Background(), params))
	require.NotEmpty(t, evs)

	last := evs[len(evs)-1]
	require.Equal(t, EventOutcome, last.Kind, "got %+v", last.Err)
	require.NotNil(t, last.Outcome.Review)
	assert.Equal(t, domain.VerdictRequestChanges, last.Outcome.Review.Verdict)
	assert.Equal(t, 62, last.Outcome.Review.Score)
	assert.Len(t, last.Outcome.Review.Findings, 1)
	assert.Equal(t, "abcdef1234", last.Outcome.HeadSHA)
	assert.Equal(t, 120, last.Outcome.Metrics.InputTokens)
	assert.Equal(t, 40, last.Outcome.Metrics.OutputTokens)

	steps := evs[:len(evs)-1]
	assert.GreaterOrEqual(t, len(steps), 3, "status, at least one chunk step, parse step")
	assert.Contains(t, steps[0].Step.Message, "Requesting review")
}

func TestOpenAIProvider_MalformedJSONFails(t *testing.T) {
	srv := sseServer(t, "not json at all", 1)
	defer srv.Close()

	params := Params{
		Key:     domain.EntityKey{Repository: "acme/widgets", Kind: domain.EntityIssue, Number: 9},
		Profile: Profile{Name: "t", Model: "m-1", BaseURL: srv.URL + "/v1"},
	}
	evs := collect(t, NewDriver(NewOpenAIProvider()).Execute(context.Background(), params))
	require.NotEmpty(t, evs)
	assert.Equal(t, EventError, evs[len(evs)-1].Kind)
}

func TestDecodeOutcome_FencedValidation(t *testing.T) {
	o, err := decodeOutcome(domain.OutcomeValidation, "```json\n{\"verdict\":\"likely\",\"confidence\":70,\"summary\":\"s\"}\n```")
	require.NoError(t, err)
	require.NotNil(t, o.Validation)
	assert.Equal(t, domain.VerdictLikely, o.Validation.Verdict)
	assert.NoError(t, o.Validate())
}

func TestBuildPrompt_ChainedReview(t *testing.T) {
	prev := &domain.Outcome{Kind: domain.OutcomeReview, Review: &domain.ReviewResult{Verdict: domain.VerdictComment, Summary: "nits"}}
	p := Params{
		Key:             domain.EntityKey{Repository: "acme/widgets", Kind: domain.EntityPR, Number: 3},
		Previous:        prev,
		PreviousHeadSHA: "0123456789",
		IncrementalDiff: true,
	}
	got := buildPrompt(p, domain.OutcomeReview)
	assert.Contains(t, got, "0123456")
	assert.Contains(t, got, "nits")
	assert.Contains(t, got, "since that revision")
}
