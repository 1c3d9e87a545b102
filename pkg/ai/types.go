package ai

import (
	"fmt"
	"net/http"
)

type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// ReasoningEffort is sent as is; an empty value leaves the model default.
type ReasoningEffort string

const (
	ReasoningEffortMinimal ReasoningEffort = "minimal"
	ReasoningEffortLow     ReasoningEffort = "low"
	ReasoningEffortMedium  ReasoningEffort = "medium"
	ReasoningEffortHigh    ReasoningEffort = "high"
)

func ParseReasoningEffort(s string) (ReasoningEffort, error) {
	switch effort := ReasoningEffort(s); effort {
	case "", ReasoningEffortMinimal, ReasoningEffortLow, ReasoningEffortMedium, ReasoningEffortHigh:
		return effort, nil
	default:
		return "", fmt.Errorf("unknown reasoning effort %q", s)
	}
}

type Request struct {
	Model           string          `json:"model"`
	Messages        []Message       `json:"messages"`
	ReasoningEffort ReasoningEffort `json:"reasoning_effort,omitempty"`
	ResponseFormat  any             `json:"response_format"`
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Response struct {
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// finishReasonStop is the only finish reason with a complete answer.
const finishReasonStop = "stop"

type Choice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}
