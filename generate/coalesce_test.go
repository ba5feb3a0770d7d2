package generate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcreflex/loomforest/message"
)

func TestCoalesceTextOnlyAdjacent_MergesSameRoleTextMessages(t *testing.T) {
	msgs := []message.Message{
		message.UserMessage{Content: []message.TextBlock{{Text: "hello"}}},
		message.UserMessage{Content: []message.TextBlock{{Text: "world"}}},
	}
	out := coalesceTextOnlyAdjacent(msgs, "")
	require.Len(t, out, 1)
	um, ok := out[0].(message.UserMessage)
	require.True(t, ok)
	assert.Equal(t, "helloworld", um.Content[0].Text)
}

func TestCoalesceTextOnlyAdjacent_LeavesDifferentRolesSeparate(t *testing.T) {
	msgs := []message.Message{
		message.UserMessage{Content: []message.TextBlock{{Text: "hi"}}},
		message.AssistantMessage{Content: []message.ContentBlock{message.TextBlock{Text: "hello"}}},
	}
	out := coalesceTextOnlyAdjacent(msgs, "")
	require.Len(t, out, 2)
}

func TestCoalesceTextOnlyAdjacent_NeverCoalescesToolMessages(t *testing.T) {
	msgs := []message.Message{
		message.ToolMessage{ToolCallID: "c1", Content: []message.TextBlock{{Text: "result a"}}},
		message.ToolMessage{ToolCallID: "c2", Content: []message.TextBlock{{Text: "result b"}}},
	}
	out := coalesceTextOnlyAdjacent(msgs, "")
	require.Len(t, out, 2)
}

func TestCoalesceTextOnlyAdjacent_SkipsAssistantWithToolUse(t *testing.T) {
	msgs := []message.Message{
		message.AssistantMessage{Content: []message.ContentBlock{message.TextBlock{Text: "thinking"}}},
		message.AssistantMessage{Content: []message.ContentBlock{
			message.TextBlock{Text: "calling a tool"},
			message.ToolUseBlock{ID: "c1", Name: "current_date"},
		}},
	}
	out := coalesceTextOnlyAdjacent(msgs, "")
	require.Len(t, out, 2, "a message carrying a tool-use block is never coalesced")
}
