package agentruntime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// MessagesClient captures the subset of the Anthropic SDK client this
// adapter needs, following the teacher's MessagesClient seam so tests can
// substitute a fake instead of a live HTTP client.
type MessagesClient interface {
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// AnthropicRuntime implements Runtime on top of the Anthropic Messages API.
type AnthropicRuntime struct {
	msg       MessagesClient
	model     string
	maxTokens int
}

// NewAnthropicRuntime constructs an AnthropicRuntime. model identifies the
// Claude model to invoke (e.g. string(sdk.ModelClaudeSonnet4_5_20250929));
// maxTokens bounds each completion.
func NewAnthropicRuntime(msg MessagesClient, model string, maxTokens int) (*AnthropicRuntime, error) {
	if msg == nil {
		return nil, errors.New("agentruntime: anthropic client is required")
	}
	if model == "" {
		return nil, errors.New("agentruntime: model identifier is required")
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicRuntime{msg: msg, model: model, maxTokens: maxTokens}, nil
}

// NewAnthropicRuntimeFromAPIKey constructs an AnthropicRuntime using the
// default Anthropic HTTP client, reading ANTHROPIC_API_KEY from apiKey.
func NewAnthropicRuntimeFromAPIKey(apiKey, model string, maxTokens int) (*AnthropicRuntime, error) {
	if apiKey == "" {
		return nil, errors.New("agentruntime: api key is required")
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropicRuntime(&client.Messages, model, maxTokens)
}

func (r *AnthropicRuntime) CreateMessage(ctx context.Context, agentID string, input Input) (Stream, error) {
	params, err := r.buildParams(input)
	if err != nil {
		return nil, fmt.Errorf("agentruntime: build request for agent %s: %w", agentID, err)
	}
	sdkStream := r.msg.NewStreaming(ctx, params)
	return newAnthropicStream(ctx, sdkStream), nil
}

func (r *AnthropicRuntime) buildParams(input Input) (sdk.MessageNewParams, error) {
	params := sdk.MessageNewParams{
		MaxTokens: int64(r.maxTokens),
		Model:     sdk.Model(r.model),
	}

	switch {
	case len(input.Approvals) > 0:
		blocks := make([]sdk.ContentBlockParamUnion, 0, len(input.Approvals))
		for _, a := range input.Approvals {
			content, err := encodeApprovalResult(a)
			if err != nil {
				return sdk.MessageNewParams{}, err
			}
			blocks = append(blocks, sdk.NewToolResultBlock(a.ToolCallID, content, a.Status == "error"))
		}
		params.Messages = []sdk.MessageParam{sdk.NewUserMessage(blocks...)}
	case input.Message != "":
		params.Messages = []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(input.Message))}
	default:
		return sdk.MessageNewParams{}, errors.New("agentruntime: input must set Message or Approvals")
	}

	if len(input.ClientTools) > 0 {
		tools := make([]sdk.ToolUnionParam, 0, len(input.ClientTools))
		for _, t := range input.ClientTools {
			schema, err := encodeInputSchema(t.InputSchema)
			if err != nil {
				return sdk.MessageNewParams{}, fmt.Errorf("tool %q schema: %w", t.Name, err)
			}
			u := sdk.ToolUnionParamOfTool(schema, t.Name)
			if u.OfTool != nil {
				u.OfTool.Description = sdk.String(t.Description)
			}
			tools = append(tools, u)
		}
		params.Tools = tools
	}
	return params, nil
}

func encodeApprovalResult(a ApprovalResult) (string, error) {
	data, err := json.Marshal(a.Result)
	if err != nil {
		return "", fmt.Errorf("marshal approval result for %s: %w", a.ToolCallID, err)
	}
	return string(data), nil
}

func encodeInputSchema(schema map[string]any) (sdk.ToolInputSchemaParam, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	var props any
	if err := json.Unmarshal(data, &props); err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	m, _ := props.(map[string]any)
	return sdk.ToolInputSchemaParam{Properties: m["properties"]}, nil
}

// anthropicStream adapts the SDK's ssestream event source onto Stream,
// forwarding each tool-call argument delta as its own chunk keyed by tool
// call id (the consumer concatenates them) and reporting a single
// ChunkStopReason at end of stream, matching the teacher's
// anthropicStreamer goroutine-plus-channel shape.
type anthropicStream struct {
	cancel context.CancelFunc
	stream *ssestream.Stream[sdk.MessageStreamEventUnion]
	chunks chan Chunk

	mu       sync.Mutex
	finalErr error
}

func newAnthropicStream(ctx context.Context, stream *ssestream.Stream[sdk.MessageStreamEventUnion]) *anthropicStream {
	cctx, cancel := context.WithCancel(ctx)
	s := &anthropicStream{
		cancel: cancel,
		stream: stream,
		chunks: make(chan Chunk, 32),
	}
	go s.run(cctx)
	return s
}

func (s *anthropicStream) run(ctx context.Context) {
	defer close(s.chunks)
	defer func() { _ = s.stream.Close() }()

	toolNames := make(map[int]string)
	toolIDs := make(map[int]string)
	stopReason := StopEndTurn

	emit := func(c Chunk) bool {
		select {
		case s.chunks <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for s.stream.Next() {
		event := s.stream.Current()
		switch ev := event.AsAny().(type) {
		case sdk.ContentBlockStartEvent:
			idx := int(ev.Index)
			if toolUse, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
				toolIDs[idx] = toolUse.ID
				toolNames[idx] = toolUse.Name
				if !emit(Chunk{Type: ChunkApprovalRequest, ToolCallID: toolUse.ID, ToolName: toolUse.Name}) {
					return
				}
			}
		case sdk.ContentBlockDeltaEvent:
			idx := int(ev.Index)
			switch delta := ev.Delta.AsAny().(type) {
			case sdk.TextDelta:
				if delta.Text == "" {
					continue
				}
				if !emit(Chunk{Type: ChunkAssistantText, Text: delta.Text}) {
					return
				}
			case sdk.InputJSONDelta:
				if delta.PartialJSON == "" {
					continue
				}
				id := toolIDs[idx]
				if id == "" {
					s.setErr(fmt.Errorf("agentruntime: tool JSON delta at index %d missing tool call id", idx))
					return
				}
				if !emit(Chunk{Type: ChunkApprovalRequest, ToolCallID: id, ArgumentsDelta: delta.PartialJSON}) {
					return
				}
			}
		case sdk.MessageDeltaEvent:
			if reason := string(ev.Delta.StopReason); reason == string(sdk.StopReasonToolUse) {
				stopReason = StopRequiresApproval
			}
		}
	}
	if err := s.stream.Err(); err != nil {
		s.setErr(err)
		return
	}
	emit(Chunk{Type: ChunkStopReason, StopReason: stopReason})
}

func (s *anthropicStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalErr == nil {
		s.finalErr = err
	}
}

func (s *anthropicStream) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalErr
}

func (s *anthropicStream) Recv(ctx context.Context) (Chunk, error) {
	select {
	case chunk, ok := <-s.chunks:
		if ok {
			return chunk, nil
		}
		if err := s.err(); err != nil {
			return Chunk{}, err
		}
		return Chunk{Type: ChunkStopReason, StopReason: StopEndTurn}, nil
	case <-ctx.Done():
		return Chunk{}, ctx.Err()
	}
}

func (s *anthropicStream) Close() error {
	s.cancel()
	return s.stream.Close()
}
