package generate

import (
	"github.com/arcreflex/loomforest/message"
)

// ModelCapabilities bounds a provider+model pair's context window, used by
// clampMaxTokens when known. Unknown models fall back to fallbackMaxInputTokens /
// fallbackMaxOutputTokens (8192 each, per spec §4.4).
type ModelCapabilities struct {
	MaxInputTokens  int
	MaxOutputTokens int
	MaxTotalTokens  int
}

const (
	fallbackMaxInputTokens  = 8192
	fallbackMaxOutputTokens = 8192
)

// CapabilitiesTable looks up a model's capabilities by provider+model name.
// A Driver with no table configured treats every model as unknown and uses
// the fallback bounds.
type CapabilitiesTable map[string]ModelCapabilities

func (t CapabilitiesTable) lookup(provider, model string) (ModelCapabilities, bool) {
	if t == nil {
		return ModelCapabilities{}, false
	}
	c, ok := t[provider+"/"+model]
	return c, ok
}

// estimateInputTokens implements spec §4.4's clamping estimate:
// floor((sys_len + sum(JSON-length(m))) * 0.3).
func estimateInputTokens(systemMessage string, msgs []message.Message) int {
	total := len(systemMessage)
	for _, m := range msgs {
		data, err := message.MarshalMessage(m)
		if err != nil {
			continue
		}
		total += len(data)
	}
	return int(float64(total) * 0.3)
}

// clampMaxTokens computes the clamped max_tokens for a provider request:
// max(1, min(requested, max_output_tokens, max_input_tokens - estimated,
// max_total_tokens - estimated)), using caps's bounds when known for
// provider/model, otherwise the fallback bounds (8192/8192, with no total
// cap). A requested value of zero or less sets no bound of its own, so
// max_output_tokens takes its place in the min.
func clampMaxTokens(requested int, estimated int, caps ModelCapabilities, known bool) int {
	maxOutput := fallbackMaxOutputTokens
	maxInput := fallbackMaxInputTokens
	maxTotal := 0
	if known {
		if caps.MaxOutputTokens > 0 {
			maxOutput = caps.MaxOutputTokens
		}
		if caps.MaxInputTokens > 0 {
			maxInput = caps.MaxInputTokens
		}
		maxTotal = caps.MaxTotalTokens
	}

	clamped := requested
	if clamped <= 0 || clamped > maxOutput {
		clamped = maxOutput
	}
	if v := maxInput - estimated; v < clamped {
		clamped = v
	}
	if maxTotal > 0 {
		if v := maxTotal - estimated; v < clamped {
			clamped = v
		}
	}
	if clamped < 1 {
		clamped = 1
	}
	return clamped
}
