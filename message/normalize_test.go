package message_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcreflex/loomforest/message"
)

func TestNormalizeLegacyUser(t *testing.T) {
	m, err := message.Normalize(message.LegacyMessage{Role: message.RoleUser, Content: "  hi  "})
	require.NoError(t, err)
	um, ok := m.(message.UserMessage)
	require.True(t, ok)
	require.Len(t, um.Content, 1)
	assert.Equal(t, "  hi  ", um.Content[0].Text)
}

func TestNormalizeLegacyUserEmpty(t *testing.T) {
	_, err := message.Normalize(message.LegacyMessage{Role: message.RoleUser, Content: "   "})
	require.Error(t, err)
	var ec *message.EmptyContentError
	require.ErrorAs(t, err, &ec)
}

func TestNormalizeLegacyAssistantTextThenTools(t *testing.T) {
	m, err := message.Normalize(message.LegacyMessage{
		Role:    message.RoleAssistant,
		Content: "thinking...",
		ToolCalls: []message.LegacyToolCall{
			{ID: "c1", Name: "echo", Arguments: `{"msg":"hi"}`},
			{ID: "c2", Name: "echo", Arguments: ""},
		},
	})
	require.NoError(t, err)
	am, ok := m.(message.AssistantMessage)
	require.True(t, ok)
	require.Len(t, am.Content, 3)
	assert.True(t, message.IsText(am.Content[0]))
	tb := am.Content[1].(message.ToolUseBlock)
	assert.Equal(t, "c1", tb.ID)
	v, ok := tb.Parameters.Get("msg")
	require.True(t, ok)
	assert.Equal(t, "hi", v)
	tb2 := am.Content[2].(message.ToolUseBlock)
	assert.Equal(t, 0, tb2.Parameters.Len())
}

func TestNormalizeLegacyAssistantBadArguments(t *testing.T) {
	_, err := message.Normalize(message.LegacyMessage{
		Role: message.RoleAssistant,
		ToolCalls: []message.LegacyToolCall{
			{ID: "c1", Name: "echo", Arguments: `[1,2,3]`},
		},
	})
	require.Error(t, err)
	var pe *message.ToolArgumentParseError
	require.ErrorAs(t, err, &pe)
}

func TestNormalizeLegacyAssistantEmpty(t *testing.T) {
	_, err := message.Normalize(message.LegacyMessage{Role: message.RoleAssistant})
	require.Error(t, err)
	var ec *message.EmptyContentError
	require.ErrorAs(t, err, &ec)
}

func TestNormalizeLegacyTool(t *testing.T) {
	m, err := message.Normalize(message.LegacyMessage{
		Role:       message.RoleTool,
		ToolCallID: "c1",
		Content:    "result text",
	})
	require.NoError(t, err)
	tm, ok := m.(message.ToolMessage)
	require.True(t, ok)
	assert.Equal(t, "c1", tm.ToolCallID)
}

func TestNormalizeCanonicalPassthrough(t *testing.T) {
	in := message.UserMessage{Content: []message.TextBlock{{Text: "hi"}}}
	out, err := message.Normalize(in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestNormalizeRejectsUnknownShape(t *testing.T) {
	_, err := message.Normalize(42)
	require.Error(t, err)
	var ie *message.InvalidMessageError
	require.ErrorAs(t, err, &ie)
}

func TestIsCanonicalRejectsAssistantBadToolUse(t *testing.T) {
	bad := message.AssistantMessage{Content: []message.ContentBlock{
		message.ToolUseBlock{ID: "", Name: "echo"},
	}}
	err := message.IsCanonical(bad)
	require.Error(t, err)
}

func TestCompareNormalDropsBlankTextAndDetectsAbsent(t *testing.T) {
	m := message.UserMessage{Content: []message.TextBlock{{Text: "   "}}}
	c := message.CompareNormal(m)
	assert.True(t, c.Absent())
}

func TestCompareNormalEqualityIgnoresParamKeyOrder(t *testing.T) {
	a := message.AssistantMessage{Content: []message.ContentBlock{
		message.ToolUseBlock{ID: "c1", Name: "sum", Parameters: message.NewParamMap(
			message.Pair{Key: "a", Value: int64(1)},
			message.Pair{Key: "b", Value: int64(2)},
		)},
	}}
	b := message.AssistantMessage{Content: []message.ContentBlock{
		message.ToolUseBlock{ID: "c1", Name: "sum", Parameters: message.NewParamMap(
			message.Pair{Key: "b", Value: int64(2)},
			message.Pair{Key: "a", Value: int64(1)},
		)},
	}}
	assert.True(t, message.Equal(message.CompareNormal(a), message.CompareNormal(b)))
}

func TestParamMapJSONRoundTripPreservesOrder(t *testing.T) {
	raw := []byte(`{"z":1,"a":2,"m":{"inner":3}}`)
	var pm message.ParamMap
	require.NoError(t, pm.UnmarshalJSON(raw))
	assert.Equal(t, []string{"z", "a", "m"}, pm.Keys())

	out, err := pm.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(out))
	assert.Equal(t, `{"z":1,"a":2,"m":{"inner":3}}`, string(out))
}

func TestMessageWireRoundTrip(t *testing.T) {
	am := message.AssistantMessage{Content: []message.ContentBlock{
		message.TextBlock{Text: "ok"},
		message.ToolUseBlock{ID: "call_1", Name: "echo", Parameters: message.NewParamMap(
			message.Pair{Key: "msg", Value: "hi"},
		)},
	}}
	raw, err := message.MarshalMessage(am)
	require.NoError(t, err)

	back, err := message.UnmarshalMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, am, back)
}
