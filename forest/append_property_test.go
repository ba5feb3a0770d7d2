package forest

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/arcreflex/loomforest/message"
	"github.com/arcreflex/loomforest/store"
)

// Append idempotence (universal invariant 3): appending the same message
// under the same parent and metadata twice never creates a second node.
func TestAppend_IdempotenceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("repeated append collapses onto the first result", prop.ForAll(
		func(text string) bool {
			ctx := context.Background()
			f := newTestForest(t)
			root, err := f.GetOrCreateRoot(ctx, store.RootConfig{})
			if err != nil {
				return false
			}
			meta := store.NodeMetadata{Source: store.Source{Kind: store.SourceUser}}

			first, err := f.Append(ctx, string(root.ID), []message.Message{textUser(text)}, meta)
			if err != nil {
				return false
			}
			before, err := f.st.ListAllNodeStructures(ctx)
			if err != nil {
				return false
			}

			second, err := f.Append(ctx, string(root.ID), []message.Message{textUser(text)}, meta)
			if err != nil {
				return false
			}
			after, err := f.st.ListAllNodeStructures(ctx)
			if err != nil {
				return false
			}

			return first.ID() == second.ID() && len(before) == len(after)
		},
		gen.AlphaString().Map(func(s string) string { return "x" + s }),
	))

	properties.TestingRun(t)
}
