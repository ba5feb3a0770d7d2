// Package generate implements the Generation Driver: request assembly,
// provider invocation, the tool-use loop, streaming events, cancellation,
// and token clamping, per the core's contract of
// generate(rootId, providerName, modelName, contextMessages, options, activeTools?).
package generate

import (
	"context"
	"fmt"

	"github.com/arcreflex/loomforest/forest"
	"github.com/arcreflex/loomforest/ids"
	"github.com/arcreflex/loomforest/message"
	"github.com/arcreflex/loomforest/provider"
	"github.com/arcreflex/loomforest/store"
	"github.com/arcreflex/loomforest/telemetry"
	"github.com/arcreflex/loomforest/toolregistry"
)

// Driver is the sole entry point for generation: it wires a Forest (to
// persist results), a provider.Registry (to resolve a provider name to a
// Client at call time), and a toolregistry.Registry (for the tool-use loop).
type Driver struct {
	f       *forest.Forest
	clients *provider.Registry
	tools   *toolregistry.Registry
	logger  telemetry.Logger
	tracer  telemetry.Tracer
	caps    CapabilitiesTable
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger attaches a structured logger.
func WithLogger(l telemetry.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// WithTracer attaches a tracer.
func WithTracer(t telemetry.Tracer) Option {
	return func(d *Driver) { d.tracer = t }
}

// WithCapabilities attaches the model capabilities table used for token
// clamping. Without one, every model is treated as unknown and the fallback
// bounds (8192 input/output) apply.
func WithCapabilities(caps CapabilitiesTable) Option {
	return func(d *Driver) { d.caps = caps }
}

// NewDriver builds a Driver over f, resolving provider names through
// clients and tool names through tools.
func NewDriver(f *forest.Forest, clients *provider.Registry, tools *toolregistry.Registry, opts ...Option) *Driver {
	d := &Driver{
		f:       f,
		clients: clients,
		tools:   tools,
		logger:  telemetry.NewNoopLogger(),
		tracer:  telemetry.NewNoopTracer(),
	}
	for _, o := range opts {
		if o != nil {
			o(d)
		}
	}
	return d
}

// GenerateStream starts a streaming generation session. The caller must
// call Run to drive it and drain Events() until it closes. Events() buffers
// only four events and Run blocks while that buffer is full, so Run is
// normally started on its own goroutine while the caller drains.
func (d *Driver) GenerateStream(rootID ids.RootId, providerName, modelName string, contextMessages []message.Message, opts Options, activeTools []string) *GenerateSession {
	return newGenerateSession(d.f, d.clients, d.tools, d.logger, d.tracer, rootID, providerName, modelName, contextMessages, opts, activeTools, d.caps)
}

// Result is the non-streaming generate call's return value: the leaf nodes
// produced by the session, in emission order.
type Result struct {
	ChildNodes []store.NodeData
}

// Generate runs a session to completion and collects its result, per spec
// §4.4's non-streaming contract. It blocks until the session reaches Done or
// Error.
func (d *Driver) Generate(ctx context.Context, rootID ids.RootId, providerName, modelName string, contextMessages []message.Message, opts Options, activeTools []string) (Result, error) {
	sess := d.GenerateStream(rootID, providerName, modelName, contextMessages, opts, activeTools)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.Run(ctx)
	}()

	var result Result
	for ev := range sess.Events() {
		switch e := ev.(type) {
		case DoneEvent:
			result = Result{ChildNodes: e.Final}
		case ErrorEvent:
			<-done
			return Result{}, e.Err
		}
	}
	<-done
	if err := sess.Err(); err != nil {
		return Result{}, err
	}
	return result, nil
}

// String renders a session for logging.
func (s *GenerateSession) String() string {
	return fmt.Sprintf("GenerateSession{root=%s, provider=%s, model=%s}", s.rootID, s.providerName, s.modelName)
}
