package service

import (
	"certify_backend/internal/model"
	"certify_backend/pkg/tracing"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
)

const (
	optionsPerQuestion = 4
	truncationMarker   = "\n\n[... conteúdo truncado ...]"
)

// questionSetSchema 模型输出的严格结构
const questionSetSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["question", "options", "correctAnswer"],
    "properties": {
      "question": {"type": "string", "minLength": 1},
      "options": {
        "type": "array",
        "minItems": 4,
        "maxItems": 4,
        "items": {"type": "string", "minLength": 1}
      },
      "correctAnswer": {"type": "integer", "minimum": 0, "maximum": 3}
    }
  }
}`

var codeFencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// GenerationOptions 单次出题参数
type GenerationOptions struct {
	Count           int
	MinCount        int
	MaxContentChars int
}

type QuestionService struct {
	Chain       *ModelChain
	MaxTokens   int
	Temperature float64
	schema      *gojsonschema.Schema
}

func NewQuestionService(chain *ModelChain, maxTokens int, temperature float64) (*QuestionService, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(questionSetSchema))
	if err != nil {
		return nil, fmt.Errorf("compile question schema: %w", err)
	}
	return &QuestionService{
		Chain:       chain,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		schema:      schema,
	}, nil
}

// GenerateQuestions 基于课程正文生成选择题，模型输出不合格时换下一个模型
func (s *QuestionService) GenerateQuestions(ctx context.Context, content, courseTitle string, opts GenerationOptions) ([]model.QuizQuestion, error) {
	ctx, span := tracing.Tracer.Start(ctx, "questions.generate")
	defer span.End()
	span.SetAttributes(attribute.Int("questions.count", opts.Count))

	req := CompletionRequest{
		Messages: []AIChatMessage{
			{Role: "system", Content: "Você é um especialista em avaliação educacional. Responda somente com JSON válido."},
			{Role: "user", Content: BuildQuestionPrompt(TruncateContent(content, opts.MaxContentChars), courseTitle, opts.Count)},
		},
		MaxTokens:   s.MaxTokens,
		Temperature: s.Temperature,
	}

	var questions []model.QuizQuestion
	usedModel, err := s.Chain.Run(ctx, req, func(raw string) error {
		qs, err := s.ParseQuestions(raw, opts.MinCount)
		if err != nil {
			return err
		}
		if len(qs) > opts.Count {
			qs = qs[:opts.Count]
		}
		questions = qs
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("ai.model", usedModel), attribute.Int("questions.generated", len(questions)))
	return questions, nil
}

// TruncateContent 按字符截断并追加标记
func TruncateContent(content string, maxChars int) string {
	if maxChars <= 0 {
		return content
	}
	runes := []rune(content)
	if len(runes) <= maxChars {
		return content
	}
	return string(runes[:maxChars]) + truncationMarker
}

func BuildQuestionPrompt(content, courseTitle string, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Com base no conteúdo do curso \"%s\" abaixo, crie exatamente %d perguntas de múltipla escolha em português do Brasil.\n\n", courseTitle, count)
	b.WriteString("Regras:\n")
	fmt.Fprintf(&b, "- Cada pergunta deve ter exatamente %d alternativas distintas.\n", optionsPerQuestion)
	b.WriteString("- Apenas uma alternativa correta por pergunta.\n")
	b.WriteString("- As perguntas devem cobrir tópicos diferentes do conteúdo.\n")
	b.WriteString("- Dificuldade de moderada a difícil.\n")
	b.WriteString("- Responda APENAS com um array JSON, sem texto adicional, no formato:\n")
	b.WriteString(`[{"question": "texto", "options": ["A", "B", "C", "D"], "correctAnswer": 0}]`)
	b.WriteString("\n- correctAnswer é o índice (0 a 3) da alternativa correta.\n\n")
	b.WriteString("Conteúdo do curso:\n")
	b.WriteString(content)
	return b.String()
}

// ExtractJSONArray 去除 markdown 代码块并截取第一个 JSON 数组
func ExtractJSONArray(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if m := codeFencePattern.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	// 从每个 '[' 起尝试解码一个完整的 JSON 值，忽略其后的说明文字
	for i := strings.IndexByte(text, '['); i >= 0; {
		var arr json.RawMessage
		if err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&arr); err == nil {
			return string(arr), nil
		}
		next := strings.IndexByte(text[i+1:], '[')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return "", errors.New("no JSON array found in model output")
}

// ParseQuestions 严格校验模型输出，任何字段不合格都整体拒绝
func (s *QuestionService) ParseQuestions(raw string, minCount int) ([]model.QuizQuestion, error) {
	arr, err := ExtractJSONArray(raw)
	if err != nil {
		return nil, err
	}

	result, err := s.schema.Validate(gojsonschema.NewStringLoader(arr))
	if err != nil {
		return nil, fmt.Errorf("decode question set: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("question set failed validation: %s", strings.Join(msgs, "; "))
	}

	var questions []model.QuizQuestion
	if err := json.Unmarshal([]byte(arr), &questions); err != nil {
		return nil, fmt.Errorf("decode question set: %w", err)
	}

	if len(questions) < minCount {
		return nil, fmt.Errorf("model returned %d questions, need at least %d", len(questions), minCount)
	}

	for i := range questions {
		q := &questions[i]
		q.Question = strings.TrimSpace(q.Question)
		if q.Question == "" {
			return nil, fmt.Errorf("question %d: empty text", i+1)
		}
		seen := make(map[string]bool, optionsPerQuestion)
		for j, opt := range q.Options {
			opt = strings.TrimSpace(opt)
			if opt == "" {
				return nil, fmt.Errorf("question %d: option %d is empty", i+1, j+1)
			}
			key := strings.ToLower(opt)
			if seen[key] {
				return nil, fmt.Errorf("question %d: duplicate option %q", i+1, opt)
			}
			seen[key] = true
			q.Options[j] = opt
		}
	}

	return questions, nil
}
