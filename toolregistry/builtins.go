package toolregistry

import (
	"context"
	"fmt"
	"runtime"
)

// registerBuiltins seeds r with the two built-ins the specification names:
// current_date (no args, returns ISO-8601 now) and introspect (a terse
// description of the host codebase).
func registerBuiltins(r *Registry) {
	_ = r.Register(
		"current_date",
		"Returns the current date and time in ISO-8601 format.",
		map[string]any{"type": "object", "additionalProperties": false},
		currentDateHandler,
		"builtin",
	)
	_ = r.Register(
		"introspect",
		"Returns a short description of the host codebase (engine name, Go runtime OS and architecture).",
		map[string]any{"type": "object", "additionalProperties": false},
		introspectHandler,
		"builtin",
	)
}

func currentDateHandler(ctx context.Context, args map[string]any) (string, error) {
	return nowISO8601(), nil
}

func introspectHandler(ctx context.Context, args map[string]any) (string, error) {
	return fmt.Sprintf(
		"loomforest forest engine; go runtime %s/%s",
		runtime.GOOS, runtime.GOARCH,
	), nil
}
