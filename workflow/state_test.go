package workflow

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaUpdate_MessagesAppendOnly(t *testing.T) {
	current := State{Messages: []Message{HumanMessage("hi")}}

	updated, err := Schema{}.Update(current, State{Messages: []Message{AIMessage("hello")}})
	require.NoError(t, err)
	require.Len(t, updated.Messages, 2)
	assert.Equal(t, "hi", updated.Messages[0].Content)
	assert.Equal(t, "hello", updated.Messages[1].Content)

	// An empty contribution leaves history untouched.
	updated, err = Schema{}.Update(updated, State{})
	require.NoError(t, err)
	assert.Len(t, updated.Messages, 2)
}

func TestSchemaUpdate_MessageTypeSurvivesSilentNodes(t *testing.T) {
	current := State{MessageType: IntentNewQuery}

	// A node that says nothing about message_type must not reset it.
	updated, err := Schema{}.Update(current, State{Messages: []Message{AIMessage("ok")}})
	require.NoError(t, err)
	assert.Equal(t, IntentNewQuery, updated.MessageType)

	// An explicit value overwrites.
	updated, err = Schema{}.Update(updated, State{MessageType: IntentGeneral})
	require.NoError(t, err)
	assert.Equal(t, IntentGeneral, updated.MessageType)
}

func TestSchemaUpdate_NextOverwrittenEveryHop(t *testing.T) {
	current := State{Next: NodeGeneralAgent}

	// A node leaving Next unset clears the stale routing decision.
	updated, err := Schema{}.Update(current, State{})
	require.NoError(t, err)
	assert.Empty(t, updated.Next)
}

func TestSchemaUpdate_ShortMemExtends(t *testing.T) {
	current := State{ShortMem: ShortMem{
		UserQueries: []string{"q1"},
		SystemResps: []string{"r1"},
	}}

	updated, err := Schema{}.Update(current, State{ShortMem: ShortMem{
		UserQueries: []string{"q2"},
		SystemResps: []string{"r2"},
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"q1", "q2"}, updated.ShortMem.UserQueries)
	assert.Equal(t, []string{"r1", "r2"}, updated.ShortMem.SystemResps)

	// Empty contribution means unchanged, never shortened.
	updated, err = Schema{}.Update(updated, State{})
	require.NoError(t, err)
	assert.Len(t, updated.ShortMem.UserQueries, 2)
}

func TestSchemaUpdate_ShortMemResetIsExplicit(t *testing.T) {
	current := State{ShortMem: ShortMem{
		UserQueries: []string{"q1"},
		SystemResps: []string{"r1"},
	}}

	updated, err := Schema{}.Update(current, State{ShortMem: ShortMem{Reset: true}})
	require.NoError(t, err)
	assert.Empty(t, updated.ShortMem.UserQueries)
	assert.Empty(t, updated.ShortMem.SystemResps)
}

func TestSchemaUpdate_OrganizePreservedUnlessSet(t *testing.T) {
	organize := &Organize{Conditions: []string{"red shoes"}, Filters: []string{"price < 50"}}
	current := State{Organize: organize}

	updated, err := Schema{}.Update(current, State{Messages: []Message{AIMessage("ok")}})
	require.NoError(t, err)
	assert.Equal(t, organize, updated.Organize)

	replacement := &Organize{Conditions: []string{"blue shoes"}}
	updated, err = Schema{}.Update(updated, State{Organize: replacement})
	require.NoError(t, err)
	assert.Equal(t, replacement, updated.Organize)
}

// No field silently resets across a single-node transition unless the node's
// contract says it changes that field.
func TestSchemaUpdate_NoSilentResets(t *testing.T) {
	full := State{
		Messages:    []Message{HumanMessage("hi")},
		MessageType: IntentAdjustFilter,
		ShortMem:    ShortMem{UserQueries: []string{"q"}, SystemResps: []string{"r"}},
		Organize:    &Organize{Conditions: []string{"c"}, Filters: []string{"f"}, QueryType: "adjust"},
	}

	updated, err := Schema{}.Update(full, State{})
	require.NoError(t, err)
	assert.Equal(t, full.Messages, updated.Messages)
	assert.Equal(t, full.MessageType, updated.MessageType)
	assert.Equal(t, full.ShortMem.UserQueries, updated.ShortMem.UserQueries)
	assert.Equal(t, full.ShortMem.SystemResps, updated.ShortMem.SystemResps)
	assert.Equal(t, full.Organize, updated.Organize)
}

func TestOrganizeMerged_ShallowOverwrite(t *testing.T) {
	current := Organize{
		Conditions: []string{"red shoes"},
		Filters:    []string{"price < 50"},
		QueryType:  "new",
	}

	merged, err := mergeOrganize(current, `{"filters": ["price < 30"]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"red shoes"}, merged.Conditions)
	assert.Equal(t, []string{"price < 30"}, merged.Filters)
	assert.Equal(t, "new", merged.QueryType)
}

// Feeding prior output back with an empty delta yields the same object.
func TestOrganizeMerged_IdempotentUnderNoOpDelta(t *testing.T) {
	current := Organize{
		Conditions: []string{"red shoes"},
		Filters:    []string{"price < 50"},
		QueryType:  "new",
	}

	merged, err := mergeOrganize(current, "{}")
	require.NoError(t, err)
	assert.Equal(t, &current, merged)
}

func TestOrganizeMerged_ParseFailureSignaled(t *testing.T) {
	_, err := mergeOrganize(Organize{}, "no structured output here")
	assert.ErrorIs(t, err, ErrNoJSON)

	_, err = mergeOrganize(Organize{}, `{"conditions": not valid}`)
	assert.Error(t, err)
}

func TestTrimMessages(t *testing.T) {
	s := State{}
	for i := 0; i < 15; i++ {
		s.Messages = append(s.Messages, HumanMessage(fmt.Sprintf("m%d", i)))
	}

	trimmed := TrimMessages(s)
	require.Len(t, trimmed.Messages, maxMessages)
	assert.Equal(t, "m5", trimmed.Messages[0].Content)
	assert.Equal(t, "m14", trimmed.Messages[len(trimmed.Messages)-1].Content)

	short := State{Messages: []Message{HumanMessage("only")}}
	assert.Len(t, TrimMessages(short).Messages, 1)
}

func TestParseIntent(t *testing.T) {
	for _, valid := range []string{"GENERAL", "NEW_QUERY", "ADJUST_FILTER", "OTHER"} {
		intent, ok := ParseIntent(valid)
		assert.True(t, ok)
		assert.Equal(t, Intent(valid), intent)
	}

	_, ok := ParseIntent("SOMETHING_ELSE")
	assert.False(t, ok)
	_, ok = ParseIntent("")
	assert.False(t, ok)
}

func TestStateLastAssistantMessage(t *testing.T) {
	s := State{Messages: []Message{
		HumanMessage("question"),
		AIMessage("first answer"),
		HumanMessage("followup"),
	}}
	assert.Equal(t, "first answer", s.LastAssistantMessage())

	assert.Empty(t, State{}.LastAssistantMessage())
}
