package service

import (
	"certify_backend/internal/util"
	"certify_backend/pkg/logger"
	"certify_backend/pkg/monitoring"
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ModelFailure 单个模型的失败记录
type ModelFailure struct {
	Model  string
	Reason string
	Err    error
}

// GenerationError 所有模型均失败时的汇总错误
type GenerationError struct {
	Failures []ModelFailure
}

func (e *GenerationError) Error() string {
	if len(e.Failures) == 0 {
		return "no AI models configured"
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Model, f.Err))
	}
	return "all AI models failed: " + strings.Join(parts, "; ")
}

func (e *GenerationError) Unwrap() error {
	return util.ErrQuestionGeneration
}

// ModelChain 按优先级依次尝试模型，每个请求每个模型只试一次
type ModelChain struct {
	Provider CompletionProvider
	Models   []string
}

func NewModelChain(provider CompletionProvider, models []string) *ModelChain {
	return &ModelChain{Provider: provider, Models: models}
}

// Run 对每个模型调用 accept 校验输出，accept 返回错误视为该模型失败
func (c *ModelChain) Run(ctx context.Context, req CompletionRequest, accept func(content string) error) (string, error) {
	genErr := &GenerationError{}

	for _, model := range c.Models {
		if err := ctx.Err(); err != nil {
			genErr.Failures = append(genErr.Failures, ModelFailure{Model: model, Reason: FailureTransport, Err: err})
			break
		}

		req.Model = model
		resp, err := c.Provider.Complete(ctx, req)
		if err == nil {
			if err = accept(resp.Content); err != nil {
				err = &ProviderError{Reason: FailureInvalidOutput, Err: err}
			}
		}
		if err != nil {
			reason := FailureTransport
			var pe *ProviderError
			if errors.As(err, &pe) {
				reason = pe.Reason
			}
			logger.Log.Warn("AI model failed, trying next",
				zap.String("model", model),
				zap.String("reason", reason),
				zap.Error(err),
			)
			monitoring.AIModelFailures.WithLabelValues(model, reason).Inc()
			genErr.Failures = append(genErr.Failures, ModelFailure{Model: model, Reason: reason, Err: err})
			continue
		}

		logger.Log.Debug("AI request completed", zap.String("model", model))
		return model, nil
	}

	return "", genErr
}
