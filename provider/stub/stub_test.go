package stub

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcreflex/loomforest/provider"
)

func TestClient_CompleteReplaysScriptInOrder(t *testing.T) {
	c := &Client{Responses: []Response{NewTextResponse("first"), NewTextResponse("second")}}

	r1, err := c.Complete(context.Background(), provider.Request{})
	require.NoError(t, err)
	r2, err := c.Complete(context.Background(), provider.Request{})
	require.NoError(t, err)

	assert.Len(t, c.Requests, 2)
	assert.Equal(t, NewTextResponse("first").Message, r1.Message)
	assert.Equal(t, NewTextResponse("second").Message, r2.Message)

	_, err = c.Complete(context.Background(), provider.Request{})
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestClient_StreamReplaysChunksThenEOF(t *testing.T) {
	c := &Client{Responses: []Response{NewTextResponse("hello")}}
	s, err := c.Stream(context.Background(), provider.Request{})
	require.NoError(t, err)

	chunk, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, provider.ChunkTypeText, chunk.Type)
	assert.Equal(t, "hello", chunk.Text)

	chunk, err = s.Recv()
	require.NoError(t, err)
	assert.Equal(t, provider.ChunkTypeStop, chunk.Type)

	_, err = s.Recv()
	assert.ErrorIs(t, err, io.EOF)
}
