package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"shopchat/memstore"
)

// recentWindow is how many short-memory entries are rendered into the
// conversational agents' prompt context.
const recentWindow = 3

// intentRecognizer is the entry node. It records the utterance in long-term
// memory, classifies it, and sets both the intent and the routing label.
// Classification failures default to OTHER and route to the fallback agent;
// they never fail the run.
func (w *Workflow) intentRecognizer(ctx context.Context, state State) (State, error) {
	last := state.LastMessage()

	// Audit before classifying, so even a failed classification leaves a trail.
	w.remember(ctx, []string{"user", "queries"}, last.Content)

	intent, err := w.classifier.Classify(ctx, last.Content)
	if err != nil {
		w.logger.Warn("workflow: classification failed, defaulting to OTHER: %v", err)
		intent = IntentOther
	}

	next := NodeOtherAgent
	switch intent {
	case IntentGeneral:
		next = NodeGeneralAgent
	case IntentNewQuery, IntentAdjustFilter:
		next = NodeConditionOrganizer
	}

	w.remember(ctx, []string{"system", "actions"}, map[string]any{
		"action":       "intent_classification_and_routing",
		"message_type": string(intent),
		"routed_to":    next,
	})

	return State{
		MessageType: intent,
		Next:        next,
	}, nil
}

// generalAgent answers conversational messages with the full history plus a
// recency-biased rendering of the short-memory window.
func (w *Workflow) generalAgent(ctx context.Context, state State) (State, error) {
	last := state.LastMessage()

	prompt := w.prompts.generalAgent + memoryContext(state.ShortMem)
	messages := make([]llms.MessageContent, 0, len(state.Messages)+1)
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, prompt))
	for _, m := range state.Messages {
		messages = append(messages, llms.TextParts(m.Role, m.Content))
	}

	reply, err := w.generate(ctx, messages)
	if err != nil {
		return State{}, err
	}

	w.remember(ctx, []string{"user", "queries"}, last.Content)

	return State{
		Messages: []Message{AIMessage(reply)},
		ShortMem: ShortMem{
			UserQueries: []string{last.Content},
			SystemResps: []string{reply},
		},
	}, nil
}

// otherAgent handles out-of-scope input. Unlike the general agent it sends
// only the latest message, not the history.
func (w *Workflow) otherAgent(ctx context.Context, state State) (State, error) {
	last := state.LastMessage()

	prompt := w.prompts.otherAgent + memoryContext(state.ShortMem)
	reply, err := w.generate(ctx, []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, prompt),
		llms.TextParts(schema.ChatMessageTypeHuman, last.Content),
	})
	if err != nil {
		return State{}, err
	}

	w.remember(ctx, []string{"misc", "history"}, map[string]any{
		"request":  last.Content,
		"response": reply,
	})

	return State{
		Messages: []Message{AIMessage(reply)},
		ShortMem: ShortMem{
			UserQueries: []string{last.Content},
			SystemResps: []string{reply},
		},
	}, nil
}

// conditionOrganizer maintains the structured search state. The model is
// asked for a JSON delta which is shallow-merged over the current organize
// object; on parse failure the object is left untouched, the failure is
// recorded for diagnosis, and the run continues.
func (w *Workflow) conditionOrganizer(ctx context.Context, state State) (State, error) {
	last := state.LastMessage()

	current := state.Organize
	if current == nil {
		current = &Organize{}
	}

	prompt := w.prompts.conditionOrganizer
	if !current.empty() {
		prompt += "\n\nCurrent conditions list:\n" + current.render()
	}

	reply, err := w.generate(ctx, []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, prompt),
		llms.TextParts(schema.ChatMessageTypeHuman, last.Content),
	})
	if err != nil {
		return State{}, err
	}

	updated, mergeErr := mergeOrganize(*current, reply)
	if mergeErr != nil {
		w.remember(ctx, []string{"condition", "errors"}, map[string]any{
			"error":    mergeErr.Error(),
			"response": reply,
			"request":  last.Content,
		})
		updated = current
	}

	w.remember(ctx, []string{"condition", "history"}, map[string]any{
		"request":      last.Content,
		"response":     reply,
		"parsed_state": updated,
	})

	// MessageType stays at its last known value through the reducer; the
	// downstream conditional edge routes on it via Next.
	var next string
	switch state.MessageType {
	case IntentNewQuery:
		next = NodeNewQueryAgent
	case IntentAdjustFilter:
		next = NodeAdjustFilterAgent
	}

	return State{
		Messages: []Message{AIMessage(reply)},
		Next:     next,
		Organize: updated,
	}, nil
}

// newQueryAgent produces the response for a freshly organized search.
func (w *Workflow) newQueryAgent(ctx context.Context, state State) (State, error) {
	reply, organize, err := w.organizeBackedReply(ctx, state, w.prompts.newQueryAgent,
		"\n\nOrganized search conditions from previous step:\n")
	if err != nil {
		return State{}, err
	}

	w.remember(ctx, []string{"query", "history"}, map[string]any{
		"query":          state.LastMessage().Content,
		"response":       reply,
		"organize_state": organize,
	})

	return State{
		Messages: []Message{AIMessage(reply)},
		Organize: organize,
		ShortMem: ShortMem{Reset: true},
	}, nil
}

// adjustFilterAgent produces the response for a refinement of an existing search.
func (w *Workflow) adjustFilterAgent(ctx context.Context, state State) (State, error) {
	reply, organize, err := w.organizeBackedReply(ctx, state, w.prompts.adjustFilterAgent,
		"\n\nCurrent search conditions:\n")
	if err != nil {
		return State{}, err
	}

	w.remember(ctx, []string{"filter", "history"}, map[string]any{
		"request":        state.LastMessage().Content,
		"response":       reply,
		"organize_state": organize,
	})

	return State{
		Messages: []Message{AIMessage(reply)},
		Organize: organize,
		ShortMem: ShortMem{Reset: true},
	}, nil
}

// organizeBackedReply runs the shared shape of the two search agents: one
// single-turn call with the organize state rendered into the prompt, and the
// unchanged organize object handed back for explicit pass-through.
func (w *Workflow) organizeBackedReply(ctx context.Context, state State, prompt, contextHeader string) (string, *Organize, error) {
	organize := state.Organize
	if organize == nil {
		organize = &Organize{}
	}
	if !organize.empty() {
		prompt += contextHeader + organize.render()
	}

	reply, err := w.generate(ctx, []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, prompt),
		llms.TextParts(schema.ChatMessageTypeHuman, state.LastMessage().Content),
	})
	if err != nil {
		return "", nil, err
	}
	return reply, organize, nil
}

// mergeOrganize extracts the JSON object from a model reply and shallow-merges
// its top-level keys over current. Keys absent from the reply keep their
// prior values.
func mergeOrganize(current Organize, reply string) (*Organize, error) {
	candidate, err := ExtractJSON(reply)
	if err != nil {
		return nil, err
	}

	var delta organizeDelta
	if err := json.Unmarshal([]byte(candidate), &delta); err != nil {
		return nil, fmt.Errorf("failed to parse organize delta: %w", err)
	}
	return current.merged(delta), nil
}

// generate performs a single model call and returns the first choice's text.
func (w *Workflow) generate(ctx context.Context, messages []llms.MessageContent) (string, error) {
	resp, err := w.model.GenerateContent(ctx, messages)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Content, nil
}

// remember appends an audit record to long-term memory. Best-effort: the
// store is never consulted by routing, so a write failure only logs.
func (w *Workflow) remember(ctx context.Context, namespace []string, value any) {
	if w.memory == nil {
		return
	}
	if err := w.memory.Put(ctx, namespace, memstore.Key(), value); err != nil {
		w.logger.Warn("workflow: long-term memory write to %s failed: %v", strings.Join(namespace, "/"), err)
	}
}

// memoryContext renders the tail of the short-memory window for inclusion in
// a system prompt. Empty memory renders nothing.
func memoryContext(mem ShortMem) string {
	if len(mem.UserQueries) == 0 {
		return ""
	}
	return fmt.Sprintf(
		"\n\nPrevious conversation context:\nUser queries: %s\nSystem responses: %s",
		strings.Join(tail(mem.UserQueries, recentWindow), ", "),
		strings.Join(tail(mem.SystemResps, recentWindow), ", "),
	)
}

func tail(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}
