package generate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arcreflex/loomforest/message"
)

func TestEstimateInputTokens_GrowsWithMessageLength(t *testing.T) {
	short := []message.Message{message.UserMessage{Content: []message.TextBlock{{Text: "hi"}}}}
	long := []message.Message{message.UserMessage{Content: []message.TextBlock{{Text: "hello, this is a much longer message body"}}}}
	assert.Less(t, estimateInputTokens("", short), estimateInputTokens("", long))
}

func TestClampMaxTokens_UsesFallbackBoundsWhenUnknown(t *testing.T) {
	got := clampMaxTokens(100000, 0, ModelCapabilities{}, false)
	assert.Equal(t, fallbackMaxOutputTokens, got)
}

func TestClampMaxTokens_HonorsKnownCapabilities(t *testing.T) {
	caps := ModelCapabilities{MaxInputTokens: 1000, MaxOutputTokens: 500, MaxTotalTokens: 1200}
	got := clampMaxTokens(10000, 900, caps, true)
	// max_input_tokens - estimated = 100, the tightest of the four bounds.
	assert.Equal(t, 100, got)
}

func TestClampMaxTokens_NeverGoesBelowOne(t *testing.T) {
	caps := ModelCapabilities{MaxInputTokens: 100, MaxOutputTokens: 500}
	got := clampMaxTokens(10000, 10000, caps, true)
	assert.Equal(t, 1, got)
}

func TestClampMaxTokens_RequestedZeroFallsBackToMaxOutput(t *testing.T) {
	caps := ModelCapabilities{MaxInputTokens: 100000, MaxOutputTokens: 4096}
	got := clampMaxTokens(0, 0, caps, true)
	assert.Equal(t, 4096, got)
}
