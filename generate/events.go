package generate

import (
	"github.com/arcreflex/loomforest/provider"
	"github.com/arcreflex/loomforest/store"
)

type (
	// Event is the closed sum type for a GenerateSession's event stream, per
	// spec §4.4. The marker method is unexported so only the variants defined
	// in this package ever satisfy the interface.
	Event interface {
		isEvent()
	}

	// ProviderRequestEvent is emitted before each provider call.
	ProviderRequestEvent struct {
		Request provider.Request
	}

	// ProviderResponseEvent is emitted after each provider call completes.
	ProviderResponseEvent struct {
		Response provider.Response
	}

	// AssistantNodeEvent is emitted after an assistant response is persisted.
	AssistantNodeEvent struct {
		Node store.NodeData
	}

	// ToolResultNodeEvent is emitted after a tool result is persisted.
	ToolResultNodeEvent struct {
		Node store.NodeData
	}

	// DoneEvent is terminal: final holds the leaf nodes the caller should
	// treat as the generation's result.
	DoneEvent struct {
		Final []store.NodeData
	}

	// ErrorEvent is terminal.
	ErrorEvent struct {
		Err error
	}
)

func (ProviderRequestEvent) isEvent()  {}
func (ProviderResponseEvent) isEvent() {}
func (AssistantNodeEvent) isEvent()    {}
func (ToolResultNodeEvent) isEvent()   {}
func (DoneEvent) isEvent()             {}
func (ErrorEvent) isEvent()            {}
