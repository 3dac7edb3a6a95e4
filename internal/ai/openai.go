package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"frontdesk/internal/config"
	"frontdesk/internal/domain"
)

// OpenAI implements Gateway with the official openai-go SDK. Every call is a
// single chat completion; JSON replies are parsed strictly so malformed
// output surfaces as an error and the engine can fall back.
type OpenAI struct {
	model string
	opts  []option.RequestOption
}

func NewOpenAI(cfg config.AIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key missing; provide ai.api_key")
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAI{model: model, opts: opts}, nil
}

func (o *OpenAI) complete(ctx context.Context, system, user string) (string, error) {
	client := openai.NewClient(o.opts...)
	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAI) ClassifyIntent(ctx context.Context, text string) (IntentAnalysis, error) {
	raw, err := o.complete(ctx, classifySystem, text)
	if err != nil {
		return IntentAnalysis{}, err
	}
	var out IntentAnalysis
	if err := decodeJSON(raw, &out); err != nil {
		return IntentAnalysis{}, err
	}
	switch out.Intent {
	case domain.IntentGreeting, domain.IntentHelp, domain.IntentNewsletter, domain.IntentResearch, domain.IntentUnknown:
	default:
		return IntentAnalysis{}, fmt.Errorf("unexpected intent %q", out.Intent)
	}
	return out, nil
}

func (o *OpenAI) ExtractFields(ctx context.Context, text string, existing map[string]string) (map[string]string, error) {
	raw, err := o.complete(ctx, extractSystem(existing), text)
	if err != nil {
		return nil, err
	}
	var out map[string]string
	if err := decodeJSON(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (o *OpenAI) CheckCompleteness(ctx context.Context, required []string, fields map[string]string, transcript []domain.Message) (Completeness, error) {
	raw, err := o.complete(ctx, completenessSystem(required, fields, transcript),
		"Check if we have enough information to proceed.")
	if err != nil {
		return Completeness{}, err
	}
	var out Completeness
	if err := decodeJSON(raw, &out); err != nil {
		return Completeness{}, err
	}
	return out, nil
}

func (o *OpenAI) GenerateArtifact(ctx context.Context, topic string, fields map[string]string) (Draft, error) {
	fieldsJSON, _ := json.Marshal(fields)
	raw, err := o.complete(ctx, generateSystem(),
		fmt.Sprintf("Topic: %s\n\nContext: %s", topic, fieldsJSON))
	if err != nil {
		return Draft{}, err
	}
	var out Draft
	if err := decodeJSON(raw, &out); err != nil {
		return Draft{}, err
	}
	if out.Subject == "" || out.Body == "" {
		return Draft{}, errors.New("generation returned empty subject or body")
	}
	return out, nil
}

func (o *OpenAI) ClarifyingQuestion(ctx context.Context, transcript []domain.Message) (string, error) {
	raw, err := o.complete(ctx, clarifySystem(transcript), "Generate a clarifying question.")
	if err != nil {
		return "", err
	}
	q := strings.TrimSpace(raw)
	if q == "" {
		return "", errors.New("empty clarifying question")
	}
	return q, nil
}

// decodeJSON tolerates the model wrapping its reply in a Markdown code fence.
func decodeJSON(raw string, out any) error {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if err := json.Unmarshal([]byte(s), out); err != nil {
		return fmt.Errorf("parse model reply: %w", err)
	}
	return nil
}
