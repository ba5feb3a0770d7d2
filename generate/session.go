package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/arcreflex/loomforest/forest"
	"github.com/arcreflex/loomforest/ids"
	"github.com/arcreflex/loomforest/message"
	"github.com/arcreflex/loomforest/provider"
	"github.com/arcreflex/loomforest/store"
	"github.com/arcreflex/loomforest/telemetry"
	"github.com/arcreflex/loomforest/toolregistry"
)

// GenerateSession drives a single call to generate/generateStream, per spec
// §4.4. It is iterated at most once: call Run, draining Events() until it
// closes, then read Err() for the terminal outcome.
type GenerateSession struct {
	f        *forest.Forest
	clients  *provider.Registry
	tools    *toolregistry.Registry
	logger   telemetry.Logger
	tracer   telemetry.Tracer

	rootID       ids.RootId
	providerName string
	modelName    string
	context      []message.Message
	opts         Options
	activeTools  []string
	caps         CapabilitiesTable

	events chan Event

	aborted atomic.Bool
	reason  atomic.Value // string

	runOnce sync.Once
	err     error
	errMu   sync.Mutex
}

func newGenerateSession(f *forest.Forest, clients *provider.Registry, tools *toolregistry.Registry, logger telemetry.Logger, tracer telemetry.Tracer, rootID ids.RootId, providerName, modelName string, contextMessages []message.Message, opts Options, activeTools []string, caps CapabilitiesTable) *GenerateSession {
	return &GenerateSession{
		f:            f,
		clients:      clients,
		tools:        tools,
		logger:       logger,
		tracer:       tracer,
		rootID:       rootID,
		providerName: providerName,
		modelName:    modelName,
		context:      contextMessages,
		opts:         opts.withDefaults(),
		activeTools:  activeTools,
		caps:         caps,
		events:       make(chan Event, 4),
	}
}

// Events returns the session's event channel. It closes once a DoneEvent or
// ErrorEvent has been delivered.
func (s *GenerateSession) Events() <-chan Event { return s.events }

// Abort requests cancellation. It is safe to call from any goroutine, any
// number of times; only the first call's reason is recorded. Cancellation is
// not immediate: the running iteration observes it at its next well-defined
// suspension point (before a provider request, before a Store write, before
// appending a tool result) and raises AbortedError there.
func (s *GenerateSession) Abort(reason string) {
	if s.aborted.CompareAndSwap(false, true) {
		s.reason.Store(reason)
	}
}

func (s *GenerateSession) checkAborted() error {
	if s.aborted.Load() {
		reason, _ := s.reason.Load().(string)
		return &AbortedError{Reason: reason}
	}
	return nil
}

// Err returns the session's terminal error, if any, once Events() has
// closed. A nil return after a clean DoneEvent means success.
func (s *GenerateSession) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *GenerateSession) setErr(err error) {
	s.errMu.Lock()
	s.err = err
	s.errMu.Unlock()
}

// Run executes the session to completion, emitting events as it goes and
// closing Events() when done. It must be called at most once; subsequent
// calls are no-ops.
func (s *GenerateSession) Run(ctx context.Context) {
	s.runOnce.Do(func() {
		defer close(s.events)
		var err error
		if len(s.activeTools) > 0 {
			err = s.runToolLoop(ctx)
		} else {
			err = s.runTextLoop(ctx)
		}
		if err != nil {
			s.setErr(err)
			s.events <- ErrorEvent{Err: err}
		}
	})
}

func (s *GenerateSession) emit(ev Event) {
	s.events <- ev
}

func (s *GenerateSession) client() (provider.Client, error) {
	c, err := s.clients.Lookup(s.providerName)
	if err != nil {
		return nil, &UnsupportedProviderError{Provider: s.providerName}
	}
	return c, nil
}

func (s *GenerateSession) systemPrompt(ctx context.Context) (string, error) {
	root, err := s.f.GetRoot(ctx, s.rootID)
	if err != nil {
		return "", fmt.Errorf("generate: load root %s: %w", s.rootID, err)
	}
	return root.Config.SystemPrompt, nil
}

// buildRequest coalesces msgs and assembles a provider.Request, estimating
// and clamping max_tokens per spec §4.4.
func (s *GenerateSession) buildRequest(systemMessage string, msgs []message.Message, tools []provider.ToolDefinition, toolChoice *provider.ToolChoice) provider.Request {
	coalesced := coalesceTextOnlyAdjacent(msgs, "")
	estimated := estimateInputTokens(systemMessage, coalesced)
	caps, known := s.caps.lookup(s.providerName, s.modelName)
	maxTokens := clampMaxTokens(s.opts.MaxTokens, estimated, caps, known)

	return provider.Request{
		SystemMessage: systemMessage,
		Messages:      coalesced,
		Model:         s.modelName,
		Temperature:   s.opts.Temperature,
		MaxTokens:     maxTokens,
		Tools:         tools,
		ToolChoice:    toolChoice,
	}
}

// runTextLoop implements spec §4.4's tool-free loop.
func (s *GenerateSession) runTextLoop(ctx context.Context) error {
	client, err := s.client()
	if err != nil {
		return err
	}
	sys, err := s.systemPrompt(ctx)
	if err != nil {
		return err
	}

	final := make([]store.NodeData, 0, s.opts.N)
	for i := 0; i < s.opts.N; i++ {
		if err := s.checkAborted(); err != nil {
			return err
		}

		ctx, span := s.tracer.Start(ctx, "generate.complete")
		req := s.buildRequest(sys, s.context, nil, nil)
		s.emit(ProviderRequestEvent{Request: req})

		resp, err := client.Complete(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.End()
			return fmt.Errorf("generate: provider %s: %w", s.providerName, err)
		}
		span.End()
		s.emit(ProviderResponseEvent{Response: resp})

		if err := s.checkAborted(); err != nil {
			return err
		}

		toAppend := append(append([]message.Message{}, s.context...), resp.Message)
		node, err := s.f.Append(ctx, string(s.rootID), toAppend, store.NodeMetadata{
			Source: store.Source{
				Kind: store.SourceModel,
				Model: &store.ModelSource{
					Provider:     s.providerName,
					ModelName:    s.modelName,
					FinishReason: resp.FinishReason,
					Usage:        toStoreUsage(resp.Usage),
				},
			},
		})
		if err != nil {
			return fmt.Errorf("generate: append assistant node: %w", err)
		}
		if node.IsRoot() || node.Node == nil {
			return fmt.Errorf("generate: append assistant node: expected non-root result")
		}
		s.emit(AssistantNodeEvent{Node: *node.Node})
		final = append(final, *node.Node)
	}

	s.emit(DoneEvent{Final: final})
	return nil
}

// runToolLoop implements spec §4.4's tool-use loop. n=1 is enforced.
func (s *GenerateSession) runToolLoop(ctx context.Context) error {
	if s.opts.N != 1 {
		return &ToolsOnlySupportNSingletonError{N: s.opts.N}
	}
	client, err := s.client()
	if err != nil {
		return err
	}
	sys, err := s.systemPrompt(ctx)
	if err != nil {
		return err
	}

	defs := make([]provider.ToolDefinition, 0, len(s.activeTools))
	for _, name := range s.activeTools {
		t, ok := s.tools.Lookup(name)
		if !ok {
			continue
		}
		defs = append(defs, provider.ToolDefinition{Name: t.Name, Description: t.Description, InputSchema: t.Schema})
	}
	toolChoice := &provider.ToolChoice{Mode: provider.ToolChoiceModeAuto}

	messages := append([]message.Message{}, s.context...)

	for iteration := 1; ; iteration++ {
		if err := s.checkAborted(); err != nil {
			return err
		}

		s.logger.Debug(ctx, "generate: tool loop iteration", "root", s.rootID, "iteration", iteration, "maxIterations", s.opts.MaxToolIterations)

		req := s.buildRequest(sys, messages, defs, toolChoice)
		s.emit(ProviderRequestEvent{Request: req})

		ctx, span := s.tracer.Start(ctx, "generate.complete")
		resp, err := client.Complete(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.End()
			return fmt.Errorf("generate: provider %s: %w", s.providerName, err)
		}
		span.End()
		s.emit(ProviderResponseEvent{Response: resp})

		if err := s.checkAborted(); err != nil {
			return err
		}

		appendMsgs := append(append([]message.Message{}, messages...), resp.Message)
		assistantNode, err := s.f.Append(ctx, string(s.rootID), appendMsgs, store.NodeMetadata{
			Source: store.Source{
				Kind: store.SourceModel,
				Model: &store.ModelSource{
					Provider:     s.providerName,
					ModelName:    s.modelName,
					Tools:        s.activeTools,
					ToolChoice:   string(toolChoice.Mode),
					FinishReason: resp.FinishReason,
					Usage:        toStoreUsage(resp.Usage),
				},
			},
		})
		if err != nil {
			return fmt.Errorf("generate: append assistant node: %w", err)
		}
		if assistantNode.IsRoot() || assistantNode.Node == nil {
			return fmt.Errorf("generate: append assistant node: expected non-root result")
		}
		s.emit(AssistantNodeEvent{Node: *assistantNode.Node})
		messages = append(messages, resp.Message)

		toolUses := extractToolUses(resp.Message)
		if len(toolUses) == 0 {
			s.emit(DoneEvent{Final: []store.NodeData{*assistantNode.Node}})
			return nil
		}

		results := make([]message.Message, 0, len(toolUses))
		for _, tu := range toolUses {
			results = append(results, s.executeTool(ctx, tu))
		}

		for i, result := range results {
			if err := s.checkAborted(); err != nil {
				return err
			}
			appendMsgs := append(append([]message.Message{}, messages...), result)
			resultNode, err := s.f.Append(ctx, string(s.rootID), appendMsgs, store.NodeMetadata{
				Source: store.Source{
					Kind:       store.SourceToolResult,
					ToolResult: &store.ToolResultSource{ToolName: toolUses[i].Name},
				},
			})
			if err != nil {
				return fmt.Errorf("generate: append tool result: %w", err)
			}
			if resultNode.IsRoot() || resultNode.Node == nil {
				return fmt.Errorf("generate: append tool result: expected non-root result")
			}
			s.emit(ToolResultNodeEvent{Node: *resultNode.Node})
			messages = append(messages, result)
		}

		if iteration >= s.opts.MaxToolIterations {
			return &ToolIterationLimitExceededError{Limit: s.opts.MaxToolIterations}
		}
	}
}

// executeTool invokes the Tool Registry for a single ToolUse, translating a
// handler error into an {error: ...} JSON tool result per spec §4.4 rather
// than propagating it — the tool-use loop continues regardless of a single
// tool's failure.
func (s *GenerateSession) executeTool(ctx context.Context, tu message.ToolUseBlock) message.Message {
	result, err := s.tools.Execute(ctx, tu.Name, tu.Parameters)
	if err != nil {
		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		return message.ToolMessage{
			ToolCallID: tu.ID,
			Content:    []message.TextBlock{{Text: string(payload)}},
		}
	}
	return message.ToolMessage{
		ToolCallID: tu.ID,
		Content:    []message.TextBlock{{Text: result}},
	}
}

func extractToolUses(m message.Message) []message.ToolUseBlock {
	var out []message.ToolUseBlock
	for _, b := range m.Blocks() {
		if tu, ok := b.(message.ToolUseBlock); ok {
			out = append(out, tu)
		}
	}
	return out
}

func toStoreUsage(u *provider.TokenUsage) *store.TokenUsage {
	if u == nil {
		return nil
	}
	return &store.TokenUsage{InputTokens: u.InputTokens, OutputTokens: u.OutputTokens}
}
