package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"frontdesk/internal/domain"
)

const classifySystem = `You are an intent analyzer. Given a user message, analyze the intent and return a JSON object with:
- intent: one of "greeting", "help", "newsletter", "research", or "unknown"
- confidence: a number between 0 and 1

"greeting" = casual hellos, hi, hey, etc.
"help" = asking what you can do, how this works
"newsletter" = wants to create a newsletter or email content
"research" = wants research or information gathering
"unknown" = unclear what they want

Only respond with valid JSON, no other text.`

func extractSystem(existing map[string]string) string {
	ctx, _ := json.Marshal(existing)
	return fmt.Sprintf(`You are an information extractor. Given a user message and existing context, extract relevant information for creating a newsletter.

Current context: %s

Extract and return a JSON object with any of these fields if mentioned:
- topic: the main topic or subject
- audience: target audience
- tone: desired tone (professional, casual, etc.)
- additionalContext: any other relevant details

Only respond with valid JSON, no other text.`, ctx)
}

func completenessSystem(required []string, fields map[string]string, transcript []domain.Message) string {
	collected, _ := json.Marshal(fields)
	return fmt.Sprintf(`You are evaluating if we have enough information to create a deliverable.

We need values for these fields: %s

Collected information: %s

Conversation history:
%s

Return a JSON object with:
- complete: boolean - true if we have enough info to proceed
- missingFields: array of strings listing what's still needed
- clarifyingQuestions: array of 1-2 questions to ask if not complete

Only respond with valid JSON, no other text.`, strings.Join(required, ", "), collected, renderTranscript(transcript))
}

func generateSystem() string {
	return `You are a professional copywriter. Generate a newsletter based on the provided topic and context.

Return a JSON object with:
- subject: A compelling email subject line (max 60 characters)
- body: The full newsletter content in Markdown format. Include:
  - A greeting
  - Main content sections with headers
  - Bullet points where appropriate
  - A call to action
  - A professional sign-off

Make the content engaging, informative, and well-structured.

Only respond with valid JSON, no other text.`
}

func clarifySystem(transcript []domain.Message) string {
	return fmt.Sprintf(`You are the orchestrator of a small virtual office. Based on the conversation, generate a friendly clarifying question to gather more information about what the user wants.

Be conversational and specific. Ask about topics, audience, tone, or specific content they'd like included.

Conversation so far:
%s

Respond with just the question, no JSON.`, renderTranscript(transcript))
}

func renderTranscript(transcript []domain.Message) string {
	lines := make([]string, 0, len(transcript))
	for _, m := range transcript {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return strings.Join(lines, "\n")
}
