package workflow

import (
	"encoding/json"

	"github.com/tmc/langchaingo/schema"
)

// Intent is the classified category of a user message.
type Intent string

const (
	IntentGeneral      Intent = "GENERAL"
	IntentNewQuery     Intent = "NEW_QUERY"
	IntentAdjustFilter Intent = "ADJUST_FILTER"
	IntentOther        Intent = "OTHER"
)

// ParseIntent maps a raw classifier value onto the closed enumeration.
func ParseIntent(s string) (Intent, bool) {
	switch Intent(s) {
	case IntentGeneral, IntentNewQuery, IntentAdjustFilter, IntentOther:
		return Intent(s), true
	}
	return "", false
}

// Message is one conversation turn threaded through the graph.
type Message struct {
	Role    schema.ChatMessageType `json:"role"`
	Content string                 `json:"content"`
}

// HumanMessage builds a user-role message.
func HumanMessage(content string) Message {
	return Message{Role: schema.ChatMessageTypeHuman, Content: content}
}

// AIMessage builds an assistant-role message.
func AIMessage(content string) Message {
	return Message{Role: schema.ChatMessageTypeAI, Content: content}
}

// ShortMem is the rolling per-session recency window of recent exchanges.
// UserQueries and SystemResps are parallel sequences, extended together by
// the conversational agents and consumed as prompt context.
type ShortMem struct {
	UserQueries []string `json:"user_queries,omitempty"`
	SystemResps []string `json:"system_resps,omitempty"`

	// Reset marks an intentional wipe of the window. Without it a node
	// returning an empty ShortMem would be indistinguishable from a node
	// leaving it untouched, and the reducer must treat those differently.
	Reset bool `json:"-"`
}

// Organize is the structured, incrementally refined representation of search
// conditions and filters extracted from the conversation.
type Organize struct {
	Conditions []string `json:"conditions"`
	Filters    []string `json:"filters"`
	QueryType  string   `json:"query_type,omitempty"`
}

// organizeDelta mirrors Organize with pointer fields so that a model-returned
// JSON object distinguishes "key absent, keep prior value" from "key present,
// overwrite". Only top-level keys are merged.
type organizeDelta struct {
	Conditions *[]string `json:"conditions"`
	Filters    *[]string `json:"filters"`
	QueryType  *string   `json:"query_type"`
}

// merged returns a copy of o with the delta's present keys overwriting o's.
func (o Organize) merged(delta organizeDelta) *Organize {
	out := o
	if delta.Conditions != nil {
		out.Conditions = *delta.Conditions
	}
	if delta.Filters != nil {
		out.Filters = *delta.Filters
	}
	if delta.QueryType != nil {
		out.QueryType = *delta.QueryType
	}
	return &out
}

// empty reports whether no condition or filter has been collected yet.
func (o *Organize) empty() bool {
	return o == nil || (len(o.Conditions) == 0 && len(o.Filters) == 0)
}

// render serializes the organize state for inclusion in prompt context.
func (o *Organize) render() string {
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

// State is the value threaded through the workflow graph. Nodes return
// partial States; Schema folds them into the running value, so a zero field
// means "unchanged" wherever the reducer below defines it that way.
type State struct {
	// Messages is the conversation history. Append-only within a run; a
	// node contributes new messages, never replaces prior ones.
	Messages []Message `json:"messages"`

	// Next is the routing label chosen by a conditional node. Transient:
	// overwritten on every hop so a stale decision can never route twice.
	Next string `json:"next,omitempty"`

	// MessageType is the classified intent. Set once by the intent
	// recognizer and carried forward unchanged for the rest of the run.
	MessageType Intent `json:"message_type,omitempty"`

	// ShortMem is the rolling recency window, extended or reset per node.
	ShortMem ShortMem `json:"short_mem"`

	// Organize is the structured search state. Nil means untouched.
	Organize *Organize `json:"organize,omitempty"`
}

// LastMessage returns the most recent message, typically the user utterance
// that triggered the run.
func (s State) LastMessage() Message {
	if len(s.Messages) == 0 {
		return Message{}
	}
	return s.Messages[len(s.Messages)-1]
}

// LastAssistantMessage scans the history from the end for the first
// assistant-role entry. The empty string means no assistant reply exists.
func (s State) LastAssistantMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == schema.ChatMessageTypeAI {
			return s.Messages[i].Content
		}
	}
	return ""
}

// Schema defines the reducer set for State. Every field a node leaves at its
// zero value keeps the last known value deterministically, so pass-through
// never depends on a node remembering to copy fields forward. The two
// exceptions are Next, which is overwritten every hop, and ShortMem, which a
// node wipes only via the explicit Reset marker.
type Schema struct{}

// Init returns an empty state.
func (Schema) Init() State {
	return State{}
}

// Update folds a node's partial result into the running state.
func (Schema) Update(current, new State) (State, error) {
	out := current

	out.Messages = append(out.Messages, new.Messages...)
	out.Next = new.Next

	if new.MessageType != "" {
		out.MessageType = new.MessageType
	}

	switch {
	case new.ShortMem.Reset:
		out.ShortMem = ShortMem{}
	default:
		out.ShortMem.UserQueries = append(out.ShortMem.UserQueries, new.ShortMem.UserQueries...)
		out.ShortMem.SystemResps = append(out.ShortMem.SystemResps, new.ShortMem.SystemResps...)
	}

	if new.Organize != nil {
		out.Organize = new.Organize
	}

	return out, nil
}

// maxMessages is the trim policy applied after a run completes.
const maxMessages = 10

// TrimMessages caps the history at the most recent maxMessages entries.
// Applied as a maintenance step after a run, never inside a reducer.
func TrimMessages(s State) State {
	if len(s.Messages) > maxMessages {
		s.Messages = s.Messages[len(s.Messages)-maxMessages:]
	}
	return s
}
