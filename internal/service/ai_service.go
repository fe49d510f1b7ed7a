package service

import (
	"certify_backend/internal/config"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// 模型失败原因，用于日志与指标
const (
	FailureTransport     = "transport"
	FailureStatus        = "status"
	FailureEmpty         = "empty"
	FailureInvalidOutput = "invalid_output"
)

type AIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	Model       string
	Messages    []AIChatMessage
	MaxTokens   int
	Temperature float64
}

type CompletionResponse struct {
	Content string
	Model   string
}

// CompletionProvider 文本生成提供方
type CompletionProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// ProviderError 带失败原因的提供方错误
type ProviderError struct {
	Reason string
	Status int
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Reason, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

type chatCompletionRequest struct {
	Model       string          `json:"model"`
	Messages    []AIChatMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message AIChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// AIService OpenAI 兼容的 chat/completions 接口
type AIService struct {
	client *resty.Client
}

func NewAIService(cfg config.AIConfig) *AIService {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)

	return &AIService{client: client}
}

func (s *AIService) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	var result chatCompletionResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(chatCompletionRequest{
			Model:       req.Model,
			Messages:    req.Messages,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
		}).
		SetResult(&result).
		Post("/chat/completions")
	if err != nil {
		return CompletionResponse{}, &ProviderError{Reason: FailureTransport, Err: err}
	}

	if resp.IsError() {
		body := resp.String()
		if len(body) > 300 {
			body = body[:300]
		}
		return CompletionResponse{}, &ProviderError{
			Reason: FailureStatus,
			Status: resp.StatusCode(),
			Err:    fmt.Errorf("AI API error: %s", body),
		}
	}

	if result.Error != nil {
		return CompletionResponse{}, &ProviderError{Reason: FailureStatus, Status: resp.StatusCode(), Err: fmt.Errorf("AI API error: %s", result.Error.Message)}
	}

	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		return CompletionResponse{}, &ProviderError{Reason: FailureEmpty, Err: fmt.Errorf("AI returned no content")}
	}

	model := result.Model
	if model == "" {
		model = req.Model
	}
	return CompletionResponse{Content: result.Choices[0].Message.Content, Model: model}, nil
}
