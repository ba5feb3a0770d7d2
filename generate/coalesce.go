package generate

import "github.com/arcreflex/loomforest/message"

// coalesceTextOnlyAdjacent merges adjacent messages that share a role and
// carry only TextBlock content, per spec §4.4. Tool messages are never
// coalesced. Merged messages concatenate their first text blocks with sep
// (the empty string by default) and keep any subsequent blocks in order.
// The input slice is never mutated.
func coalesceTextOnlyAdjacent(msgs []message.Message, sep string) []message.Message {
	out := make([]message.Message, 0, len(msgs))
	for _, m := range msgs {
		if len(out) > 0 {
			prev := out[len(out)-1]
			if merged, ok := tryCoalesce(prev, m, sep); ok {
				out[len(out)-1] = merged
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

// textOnly reports whether m's role is user or assistant (never tool) and
// every block it carries is a TextBlock.
func textOnly(m message.Message) bool {
	if m.Role() == message.RoleTool {
		return false
	}
	for _, b := range m.Blocks() {
		if !message.IsText(b) {
			return false
		}
	}
	return true
}

func tryCoalesce(a, b message.Message, sep string) (message.Message, bool) {
	if a.Role() != b.Role() || !textOnly(a) || !textOnly(b) {
		return nil, false
	}
	aBlocks := a.Blocks()
	bBlocks := b.Blocks()
	if len(aBlocks) == 0 || len(bBlocks) == 0 {
		return nil, false
	}
	aFirst := aBlocks[0].(message.TextBlock)
	bFirst := bBlocks[0].(message.TextBlock)
	merged := append([]message.ContentBlock{
		message.TextBlock{Text: aFirst.Text + sep + bFirst.Text},
	}, append(append([]message.ContentBlock{}, aBlocks[1:]...), bBlocks[1:]...)...)

	switch a.Role() {
	case message.RoleUser:
		texts := make([]message.TextBlock, len(merged))
		for i, blk := range merged {
			texts[i] = blk.(message.TextBlock)
		}
		return message.UserMessage{Content: texts}, true
	case message.RoleAssistant:
		return message.AssistantMessage{Content: merged}, true
	default:
		return nil, false
	}
}
