// Package ai is the capability gateway: intent classification, field
// extraction, completeness judgment, artifact generation and clarifying
// questions. Implementations are stateless per call; the engine supplies all
// conversation context.
package ai

import (
	"context"
	"fmt"

	"frontdesk/internal/config"
	"frontdesk/internal/domain"
)

type IntentAnalysis struct {
	Intent     domain.Intent `json:"intent"`
	Confidence float64       `json:"confidence"`
}

type Completeness struct {
	Complete            bool     `json:"complete"`
	MissingFields       []string `json:"missingFields"`
	ClarifyingQuestions []string `json:"clarifyingQuestions"`
}

type Draft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type Gateway interface {
	ClassifyIntent(ctx context.Context, text string) (IntentAnalysis, error)
	ExtractFields(ctx context.Context, text string, existing map[string]string) (map[string]string, error)
	CheckCompleteness(ctx context.Context, required []string, fields map[string]string, transcript []domain.Message) (Completeness, error)
	GenerateArtifact(ctx context.Context, topic string, fields map[string]string) (Draft, error)
	ClarifyingQuestion(ctx context.Context, transcript []domain.Message) (string, error)
}

// New builds a gateway from config. Anything other than provider "openai"
// gets the deterministic offline gateway.
func New(cfg config.AIConfig) (Gateway, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg)
	case "", "offline":
		return Offline{}, nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}

// RequiredFields returns the fixed field set for a known intent.
func RequiredFields(intent domain.Intent) []string {
	switch intent {
	case domain.IntentNewsletter:
		return []string{"topic", "audience", "tone"}
	case domain.IntentResearch:
		return []string{"topic"}
	default:
		return nil
	}
}

// WelcomeMessage is the reply for a greeting intent.
func WelcomeMessage() string {
	return `Hey! I'm your office assistant. Here's what I can help you with:

- Create a newsletter: just say "Create a newsletter about [topic]" and I'll write one for you
- Research: ask me to research any topic

What would you like to do?`
}

// HelpMessage is the reply for a help intent.
func HelpMessage() string {
	return `Here's how I can help:

Newsletter creation: tell me what you want a newsletter about, and I'll
1. Ask a few questions to understand your needs
2. Generate a professional newsletter
3. Send you a preview link to review and approve

Try saying:
- "Create a newsletter about AI trends"
- "I need a newsletter for my fitness audience"
- "Write a newsletter about productivity tips"

What would you like me to create?`
}
