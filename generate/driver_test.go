package generate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcreflex/loomforest/config"
	"github.com/arcreflex/loomforest/forest"
	"github.com/arcreflex/loomforest/message"
	"github.com/arcreflex/loomforest/provider"
	"github.com/arcreflex/loomforest/provider/stub"
	"github.com/arcreflex/loomforest/store"
	"github.com/arcreflex/loomforest/store/fsstore"
	"github.com/arcreflex/loomforest/toolregistry"
)

func newTestDriver(t *testing.T, client provider.Client) (*Driver, *forest.Forest, *store.RootData) {
	t.Helper()
	st, err := fsstore.Open(t.TempDir())
	require.NoError(t, err)
	f := forest.New(st, config.NewMemoryBookmarkStore())

	root, err := f.GetOrCreateRoot(context.Background(), store.RootConfig{SystemPrompt: "be terse"})
	require.NoError(t, err)

	clients := provider.NewRegistry()
	clients.Register("stub", client)

	d := NewDriver(f, clients, toolregistry.New())
	return d, f, root
}

func textUser(s string) message.Message {
	return message.UserMessage{Content: []message.TextBlock{{Text: s}}}
}

func TestDriver_GenerateTextOnlyAppendsAssistantNode(t *testing.T) {
	client := &stub.Client{Responses: []stub.Response{stub.NewTextResponse("hi there")}}
	d, f, root := newTestDriver(t, client)

	result, err := d.Generate(context.Background(), root.ID, "stub", "test-model",
		[]message.Message{textUser("hello")}, Options{N: 1}, nil)
	require.NoError(t, err)
	require.Len(t, result.ChildNodes, 1)

	_, msgs, err := f.GetMessages(context.Background(), result.ChildNodes[0].ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, message.RoleUser, msgs[0].Role())
	assert.Equal(t, message.RoleAssistant, msgs[1].Role())
}

func TestDriver_GenerateTextOnlyRequestsNCompletions(t *testing.T) {
	client := &stub.Client{Responses: []stub.Response{
		stub.NewTextResponse("one"),
		stub.NewTextResponse("two"),
		stub.NewTextResponse("three"),
	}}
	d, _, root := newTestDriver(t, client)

	result, err := d.Generate(context.Background(), root.ID, "stub", "test-model",
		[]message.Message{textUser("hello")}, Options{N: 3}, nil)
	require.NoError(t, err)
	assert.Len(t, result.ChildNodes, 3)
	assert.Len(t, client.Requests, 3)
}

func TestDriver_GenerateRejectsMultipleCompletionsWithTools(t *testing.T) {
	client := &stub.Client{Responses: []stub.Response{stub.NewTextResponse("hi")}}
	d, _, root := newTestDriver(t, client)

	_, err := d.Generate(context.Background(), root.ID, "stub", "test-model",
		[]message.Message{textUser("hello")}, Options{N: 2}, []string{"current_date"})
	require.Error(t, err)
	var target *ToolsOnlySupportNSingletonError
	assert.ErrorAs(t, err, &target)
}

func TestDriver_GenerateUnsupportedProvider(t *testing.T) {
	client := &stub.Client{Responses: []stub.Response{stub.NewTextResponse("hi")}}
	d, _, root := newTestDriver(t, client)

	_, err := d.Generate(context.Background(), root.ID, "nonexistent", "test-model",
		[]message.Message{textUser("hello")}, Options{N: 1}, nil)
	require.Error(t, err)
	var target *UnsupportedProviderError
	assert.ErrorAs(t, err, &target)
}

func TestDriver_GenerateToolLoopExecutesRegisteredTool(t *testing.T) {
	client := &stub.Client{Responses: []stub.Response{
		stub.NewToolUseResponse("call_1", "current_date", message.NewParamMap()),
		stub.NewTextResponse("the date was reported"),
	}}
	d, f, root := newTestDriver(t, client)

	result, err := d.Generate(context.Background(), root.ID, "stub", "test-model",
		[]message.Message{textUser("what is today's date?")}, Options{N: 1, MaxToolIterations: 3},
		[]string{"current_date"})
	require.NoError(t, err)
	require.Len(t, result.ChildNodes, 1)

	_, msgs, err := f.GetMessages(context.Background(), result.ChildNodes[0].ID)
	require.NoError(t, err)
	// user, assistant(tool_use), tool_result, assistant(final)
	require.Len(t, msgs, 4)
	assert.Equal(t, message.RoleTool, msgs[2].Role())
}

func TestDriver_GenerateToolLoopRaisesIterationLimit(t *testing.T) {
	responses := make([]stub.Response, 0, 4)
	for i := 0; i < 4; i++ {
		responses = append(responses, stub.NewToolUseResponse("call", "current_date", message.NewParamMap()))
	}
	client := &stub.Client{Responses: responses}
	d, _, root := newTestDriver(t, client)

	_, err := d.Generate(context.Background(), root.ID, "stub", "test-model",
		[]message.Message{textUser("loop forever")}, Options{N: 1, MaxToolIterations: 2},
		[]string{"current_date"})
	require.Error(t, err)
	var target *ToolIterationLimitExceededError
	assert.ErrorAs(t, err, &target)
}

func TestDriver_GenerateAbortBeforeProviderCallRaisesAborted(t *testing.T) {
	client := &stub.Client{Responses: []stub.Response{stub.NewTextResponse("too late")}}
	d, _, root := newTestDriver(t, client)

	sess := d.GenerateStream(root.ID, "stub", "test-model", []message.Message{textUser("hi")}, Options{N: 1}, nil)
	sess.Abort("user cancelled")

	sess.Run(context.Background())
	var lastEvent Event
	for ev := range sess.Events() {
		lastEvent = ev
	}
	errEvent, ok := lastEvent.(ErrorEvent)
	require.True(t, ok)
	var target *AbortedError
	assert.ErrorAs(t, errEvent.Err, &target)
	assert.Equal(t, "user cancelled", target.Reason)
}

func TestDriver_UnknownToolIsReportedAsErrorResultNotFatal(t *testing.T) {
	client := &stub.Client{Responses: []stub.Response{
		stub.NewToolUseResponse("call_1", "does_not_exist", message.NewParamMap()),
		stub.NewTextResponse("handled the error"),
	}}
	d, f, root := newTestDriver(t, client)

	result, err := d.Generate(context.Background(), root.ID, "stub", "test-model",
		[]message.Message{textUser("call a missing tool")}, Options{N: 1, MaxToolIterations: 3},
		[]string{"does_not_exist"})
	require.NoError(t, err)

	_, msgs, err := f.GetMessages(context.Background(), result.ChildNodes[0].ID)
	require.NoError(t, err)
	toolMsg, ok := msgs[2].(message.ToolMessage)
	require.True(t, ok)
	assert.Contains(t, toolMsg.Content[0].Text, "error")
}
