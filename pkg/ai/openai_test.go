package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTrip func(*http.Request) (*http.Response, error)

func (f roundTrip) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestGetJSONCompletion(t *testing.T) {
	var got Request

	client := NewOpenAI("secret", roundTrip(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))
		assert.Equal(t, defaultEndpoint, req.URL.String())
		require.NoError(t, json.NewDecoder(req.Body).Decode(&got))

		return respond(http.StatusOK, `{
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"is_spam\": true, \"note\": \"ads\"}"}}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5}
		}`), nil
	}))

	var check SpamCheck
	usage, err := client.GetJSONCompletion(context.Background(), "sys", "buy now", SpamCheckFormat, &check)
	require.NoError(t, err)

	assert.Equal(t, SpamCheck{IsSpam: true, Note: "ads"}, check)
	assert.Equal(t, 5, usage.TotalTokens)
	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, ReasoningEffortMedium, got.ReasoningEffort)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, RoleSystem, got.Messages[0].Role)
	assert.Equal(t, "buy now", got.Messages[1].Content)
}

func TestGetJSONCompletionErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"status", http.StatusTooManyRequests, `slow down`, "unexpected status code: 429"},
		{"no choices", http.StatusOK, `{"choices": []}`, "empty choices"},
		{"truncated", http.StatusOK, `{"choices": [{"finish_reason": "length", "message": {"content": "{"}}]}`, "unexpected finish reason"},
		{"bad content", http.StatusOK, `{"choices": [{"finish_reason": "stop", "message": {"content": "nope"}}]}`, "unmarshal response content"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewOpenAI("k", roundTrip(func(*http.Request) (*http.Response, error) {
				return respond(tt.status, tt.body), nil
			}))

			var check SpamCheck
			_, err := client.GetJSONCompletion(context.Background(), "s", "u", SpamCheckFormat, &check)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestReasoningEffortOverride(t *testing.T) {
	var got map[string]any

	client := NewOpenAI("k", roundTrip(func(req *http.Request) (*http.Response, error) {
		require.NoError(t, json.NewDecoder(req.Body).Decode(&got))
		return respond(http.StatusOK, `{"choices": [{"finish_reason": "stop", "message": {"content": "{}"}}]}`), nil
	}))
	client.ReasoningEffort = ""

	var check SpamCheck
	_, err := client.GetJSONCompletion(context.Background(), "s", "u", SpamCheckFormat, &check)
	require.NoError(t, err)

	assert.NotContains(t, got, "reasoning_effort")
}

func TestParseReasoningEffort(t *testing.T) {
	for _, s := range []string{"", "minimal", "low", "medium", "high"} {
		effort, err := ParseReasoningEffort(s)
		require.NoError(t, err, s)
		assert.Equal(t, ReasoningEffort(s), effort)
	}

	_, err := ParseReasoningEffort("extreme")
	assert.ErrorContains(t, err, `unknown reasoning effort "extreme"`)
}
