package message

import (
	"strings"
)

// Comparable is the derived "comparison normal form" of a Message used by
// the Forest's prefix-matching append and by idempotence tests. It is
// intentionally not exported as a Message variant: it exists only to answer
// "do these two messages denote the same step through the tree".
type Comparable struct {
	role    Role
	content []comparableBlock
	absent  bool
}

type comparableBlock struct {
	isText     bool
	text       string
	toolID     string
	toolName   string
	toolParams ParamMap
}

// CompareNormal reduces m to its comparison normal form: text blocks are
// trimmed and dropped if they become empty; if the resulting content is
// empty, the message is "absent" (to be skipped by append).
func CompareNormal(m Message) Comparable {
	c := Comparable{role: m.Role()}
	for _, b := range m.Blocks() {
		switch v := b.(type) {
		case TextBlock:
			t := strings.TrimSpace(v.Text)
			if t == "" {
				continue
			}
			c.content = append(c.content, comparableBlock{isText: true, text: t})
		case ToolUseBlock:
			c.content = append(c.content, comparableBlock{
				toolID:     v.ID,
				toolName:   v.Name,
				toolParams: v.Parameters,
			})
		}
	}
	if len(c.content) == 0 {
		c.absent = true
	}
	return c
}

// Absent reports whether the message reduces to nothing under comparison
// normal form (and should be skipped by Forest.Append).
func (c Comparable) Absent() bool { return c.absent }

// Equal reports whether two comparison-normal-form messages denote the same
// step through the tree: same role, same block sequence, tool parameters
// compared with key-order-independent structural equality.
func Equal(a, b Comparable) bool {
	if a.absent || b.absent {
		return false
	}
	if a.role != b.role {
		return false
	}
	if len(a.content) != len(b.content) {
		return false
	}
	for i := range a.content {
		ca, cb := a.content[i], b.content[i]
		if ca.isText != cb.isText {
			return false
		}
		if ca.isText {
			if ca.text != cb.text {
				return false
			}
			continue
		}
		if ca.toolID != cb.toolID || ca.toolName != cb.toolName {
			return false
		}
		if !StableDeepEqual(ca.toolParams.AsMap(), cb.toolParams.AsMap()) {
			return false
		}
	}
	return true
}

// StableDeepEqual is a structural equality over JSON-like values (nil,
// bool, string, numbers, []any, map[string]any) where object key order is
// irrelevant and arrays are compared positionally.
func StableDeepEqual(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !StableDeepEqual(v, bvv) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !StableDeepEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return numericAwareEqual(a, b)
	}
}

// numericAwareEqual compares scalars, treating int64/float64 representations
// of the same numeric value as equal (json decode paths may produce either
// depending on whether UseNumber was set).
func numericAwareEqual(a, b any) bool {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
