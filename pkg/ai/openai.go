package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const defaultEndpoint = "https://api.openai.com/v1/chat/completions"

type OpenAI struct {
	apiKey     string
	httpClient HTTPClient

	// Model defaults to DefaultModel
	Model string

	// Endpoint is the chat completions url, any OpenAI compatible api works
	Endpoint string

	// ReasoningEffort defaults to ReasoningEffortMedium
	ReasoningEffort ReasoningEffort
}

func NewOpenAI(apiKey string, httpClient HTTPClient) *OpenAI {
	return &OpenAI{
		apiKey:     apiKey,
		httpClient: httpClient,
		Model:      DefaultModel,
		Endpoint:   defaultEndpoint,

		ReasoningEffort: ReasoningEffortMedium,
	}
}

func (c *OpenAI) GetJSONCompletion(ctx context.Context, system, user string, rf ResponseFormat, result any) (*Usage, error) {
	request := Request{
		Model: c.Model,
		Messages: []Message{
			{
				Role:    RoleSystem,
				Content: system,
			},
			{
				Role:    RoleUser,
				Content: user,
			},
		},
		ReasoningEffort: c.ReasoningEffort,
		ResponseFormat:  rf,
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshaling body: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.Endpoint,
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("doing request: %w", err)
	}

	defer func() { _ = res.Body.Close() }()
	if res.StatusCode != http.StatusOK {
		resBody, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("unexpected status code: %d: %s", res.StatusCode, resBody)
	}

	body, err = io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	var response Response
	if err = json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(response.Choices) == 0 {
		return &response.Usage, fmt.Errorf("empty choices in response")
	}

	choice := response.Choices[0]

	if choice.FinishReason != finishReasonStop {
		return &response.Usage, fmt.Errorf("unexpected finish reason: %v", choice.FinishReason)
	}

	if err = json.Unmarshal([]byte(choice.Message.Content), result); err != nil {
		return &response.Usage, fmt.Errorf("unmarshal response content: %w", err)
	}

	return &response.Usage, nil
}

type SpamCheck struct {
	IsSpam bool   `json:"is_spam"`
	Note   string `json:"note"`
}

type ResponseFormat string

func (rf ResponseFormat) MarshalJSON() ([]byte, error) {
	return []byte(rf), nil
}

var SpamCheckFormat ResponseFormat = `{
  "type": "json_schema",
  "json_schema": {
    "name": "spam_check_response",
    "schema": {
      "type": "object",
      "properties": {
        "is_spam": {
          "type": "boolean",
		  "description": "true if the message is spam, false otherwise"
        },
		"note": {
		  "type": "string",
		  "description": "if message is spam, this field contains short description of reason why it is spam"
		}
      },
      "required": ["is_spam", "note"],
      "additionalProperties": false
    },
    "strict": true
  }
}`

const DefaultModel = "gpt-5-mini"
