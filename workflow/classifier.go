package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// ErrNoChoices indicates the model returned an empty completion.
var ErrNoChoices = errors.New("model returned no choices")

// Classifier wraps a model call constrained to the closed intent enumeration.
// It performs exactly one call per classification and never retries; failing
// closed is the caller's job.
type Classifier struct {
	model        llms.Model
	systemPrompt string
}

// NewClassifier creates a classifier with the given instruction prompt.
func NewClassifier(model llms.Model, systemPrompt string) *Classifier {
	return &Classifier{
		model:        model,
		systemPrompt: systemPrompt,
	}
}

// Classify determines the intent of a single user utterance. History is
// deliberately excluded; classification looks at the latest message only.
func (c *Classifier) Classify(ctx context.Context, utterance string) (Intent, error) {
	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, c.systemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, utterance),
	}

	resp, err := c.model.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("classification call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	return parseIntentResponse(resp.Choices[0].Content)
}

// parseIntentResponse accepts either the bare enumeration value or a JSON
// object of the form {"message_type": "..."}.
func parseIntentResponse(raw string) (Intent, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	if intent, ok := ParseIntent(trimmed); ok {
		return intent, nil
	}

	if candidate, err := ExtractJSON(raw); err == nil {
		var structured struct {
			MessageType string `json:"message_type"`
		}
		if err := json.Unmarshal([]byte(candidate), &structured); err == nil {
			if intent, ok := ParseIntent(strings.ToUpper(strings.TrimSpace(structured.MessageType))); ok {
				return intent, nil
			}
		}
	}

	return "", fmt.Errorf("unrecognized classifier output: %q", raw)
}
