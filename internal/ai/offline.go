package ai

import (
	"context"
	"fmt"
	"strings"

	"frontdesk/internal/domain"
)

// Offline is the deterministic local gateway: keyword intent matching and
// canned templates. It backs the "offline" provider and serves as the
// fallback when a remote call fails, so it never returns an error.
type Offline struct{}

var greetings = []string{
	"hi", "hello", "hey", "hola", "ciao",
	"good morning", "good afternoon", "good evening",
	"howdy", "sup", "yo",
}

func (Offline) ClassifyIntent(_ context.Context, text string) (IntentAnalysis, error) {
	msg := strings.ToLower(strings.TrimSpace(text))
	for _, g := range greetings {
		if msg == g || strings.HasPrefix(msg, g+" ") || strings.HasPrefix(msg, g+"!") {
			return IntentAnalysis{Intent: domain.IntentGreeting, Confidence: 0.95}, nil
		}
	}
	switch {
	case strings.Contains(msg, "help"),
		strings.Contains(msg, "what can you do"),
		strings.Contains(msg, "how does this work"):
		return IntentAnalysis{Intent: domain.IntentHelp, Confidence: 0.9}, nil
	case strings.Contains(msg, "newsletter"):
		return IntentAnalysis{Intent: domain.IntentNewsletter, Confidence: 0.95}, nil
	case strings.Contains(msg, "research"):
		return IntentAnalysis{Intent: domain.IntentResearch, Confidence: 0.9}, nil
	}
	return IntentAnalysis{Intent: domain.IntentUnknown, Confidence: 0.3}, nil
}

// ExtractFields does simple pattern scans: "about X" fills the topic, "for X"
// the audience, and a few tone words the tone. Already-collected values are
// never overwritten with guesses.
func (Offline) ExtractFields(_ context.Context, text string, existing map[string]string) (map[string]string, error) {
	out := map[string]string{}
	lower := strings.ToLower(text)
	if existing["topic"] == "" {
		if topic := scanAfter(text, "about "); topic != "" {
			out["topic"] = topic
		}
	}
	if existing["audience"] == "" {
		if audience := scanAfter(text, "for "); audience != "" {
			out["audience"] = audience
		}
	}
	if existing["tone"] == "" {
		for _, tone := range []string{"professional", "casual", "friendly", "formal", "playful"} {
			if strings.Contains(lower, tone) {
				out["tone"] = tone
				break
			}
		}
	}
	return out, nil
}

// scanAfter returns the clause following the marker, trimmed at sentence
// punctuation.
func scanAfter(text, marker string) string {
	lower := strings.ToLower(text)
	idx := strings.Index(lower, marker)
	if idx < 0 {
		return ""
	}
	rest := text[idx+len(marker):]
	if cut := strings.IndexAny(rest, ".,!?\n"); cut >= 0 {
		rest = rest[:cut]
	}
	return strings.TrimSpace(rest)
}

func (Offline) CheckCompleteness(_ context.Context, required []string, fields map[string]string, _ []domain.Message) (Completeness, error) {
	var missing []string
	for _, f := range required {
		if fields[f] == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		return Completeness{Complete: true}, nil
	}
	return Completeness{
		Complete:            false,
		MissingFields:       missing,
		ClarifyingQuestions: []string{questionFor(missing)},
	}, nil
}

func questionFor(missing []string) string {
	if len(missing) == 0 {
		return "Could you provide more details about what you'd like in the newsletter?"
	}
	switch missing[0] {
	case "topic":
		return "What topic should the newsletter cover?"
	case "audience":
		return "Who is the target audience for this newsletter?"
	case "tone":
		return "What tone should it have - professional, casual, something else?"
	default:
		return fmt.Sprintf("Could you tell me more about the %s?", missing[0])
	}
}

func (Offline) GenerateArtifact(_ context.Context, topic string, fields map[string]string) (Draft, error) {
	if topic == "" {
		topic = "Your Weekly Update"
	}
	audience := fields["audience"]
	if audience == "" {
		audience = "readers"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", topic)
	fmt.Fprintf(&sb, "Dear %s,\n\nWelcome to this week's edition of our newsletter!\n\n", audience)
	sb.WriteString("## Highlights\n\n")
	fmt.Fprintf(&sb, "- The latest developments in %s\n", topic)
	sb.WriteString("- Key insight from the week\n")
	sb.WriteString("- Upcoming events to watch\n\n")
	sb.WriteString("## Deep Dive\n\n")
	fmt.Fprintf(&sb, "This week we're exploring %s in depth. Stay tuned for more insights!\n\n", topic)
	sb.WriteString("## What's Next\n\nWe have exciting content planned for next week.\n\nBest regards,\nYour Newsletter Team\n")
	return Draft{
		Subject: fmt.Sprintf("Newsletter: %s", topic),
		Body:    sb.String(),
	}, nil
}

func (Offline) ClarifyingQuestion(_ context.Context, _ []domain.Message) (string, error) {
	return "What topics would you like the newsletter to cover? And who is your target audience?", nil
}
