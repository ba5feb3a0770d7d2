package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcreflex/loomforest/message"
)

type fakeClient struct {
	err   error
	calls int
}

func (f *fakeClient) Complete(ctx context.Context, req Request) (Response, error) {
	f.calls++
	if f.err != nil {
		return Response{}, f.err
	}
	return Response{Message: message.AssistantMessage{Content: []message.ContentBlock{message.TextBlock{Text: "ok"}}}}, nil
}

func (f *fakeClient) Stream(ctx context.Context, req Request) (Streamer, error) {
	return nil, nil
}

func TestAdaptiveRateLimiter_BackoffOnRateLimit(t *testing.T) {
	l := NewAdaptiveRateLimiter(60000, 60000)
	fake := &fakeClient{err: &Error{Provider: "test", Kind: ErrorKindRateLimited}}
	wrapped := l.Wrap(fake)

	req := Request{Messages: []message.Message{message.UserMessage{Content: []message.TextBlock{{Text: "hi"}}}}}
	_, err := wrapped.Complete(context.Background(), req)
	require.Error(t, err)

	before := l.currentTPM
	fake.err = nil
	_, err = wrapped.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Greater(t, l.currentTPM, before*0.4)
	assert.Less(t, l.currentTPM, 60000.0)
}

func TestEstimateTokens_NonZeroForEmptyMessages(t *testing.T) {
	assert.Greater(t, estimateTokens(Request{}), 0)
}
