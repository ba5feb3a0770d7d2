package generate

import "fmt"

// ToolsOnlySupportNSingletonError is raised when Options.N > 1 is combined
// with a non-empty activeTools set (spec §4.4: "n=1 is enforced").
type ToolsOnlySupportNSingletonError struct {
	N int
}

func (e *ToolsOnlySupportNSingletonError) Error() string {
	return fmt.Sprintf("generate: tool-use generation only supports n=1, got n=%d", e.N)
}

// ToolIterationLimitExceededError is raised when the tool-use loop reaches
// Options.MaxToolIterations without the model stopping on its own.
type ToolIterationLimitExceededError struct {
	Limit int
}

func (e *ToolIterationLimitExceededError) Error() string {
	return fmt.Sprintf("generate: tool iteration limit exceeded (max %d)", e.Limit)
}

// AbortedError is raised at the next cancellation checkpoint after a
// session's abort(reason) is called. Partial tree state up to that point is
// kept; abort never rolls back already-persisted nodes.
type AbortedError struct {
	Reason string
}

func (e *AbortedError) Error() string {
	if e.Reason == "" {
		return "generate: generation aborted"
	}
	return fmt.Sprintf("generate: generation aborted: %s", e.Reason)
}

// UnsupportedProviderError is raised when providerName has no Client
// registered in the provider.Registry passed to the Driver.
type UnsupportedProviderError struct {
	Provider string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("generate: unsupported provider %q", e.Provider)
}
