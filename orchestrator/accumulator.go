package orchestrator

import (
	"strings"

	"github.com/worldforge/core/agentruntime"
)

// turnAccumulator collects output across the whole sendMessage call: every
// assistant_text chunk across every approval batch, and a ToolCallRecord for
// every tool call attempted, in the order those batches occurred.
type turnAccumulator struct {
	messages        []AgentMessage
	toolCallRecords []ToolCallRecord
}

// appendText folds consecutive assistant_text chunks into the same output
// message rather than emitting one AgentMessage per chunk, matching how a
// single streamed response arrives as many small text deltas.
func (a *turnAccumulator) appendText(text string) {
	if text == "" {
		return
	}
	if n := len(a.messages); n > 0 && a.messages[n-1].Role == "assistant" {
		a.messages[n-1].Text += text
		return
	}
	a.messages = append(a.messages, AgentMessage{Role: "assistant", Text: text})
}

// pendingToolCall accumulates one in-flight approval-request chunk stream
// for a single toolCallId (spec §3's ToolCall invariant: chunks with the
// same id concatenate in arrival order before parsing).
type pendingToolCall struct {
	toolCallID   string
	toolName     string
	argumentsRaw string
}

// batchAccumulator accumulates one approval batch's inbound chunk set: all
// assistant text that arrived during the stream round, and the pending
// tool calls themselves, preserving first-arrival order so dispatch can
// honor spec §4.1's ordering guarantee.
type batchAccumulator struct {
	order       []string
	byID        map[string]*pendingToolCall
	inboundText strings.Builder
}

func newBatchAccumulator() *batchAccumulator {
	return &batchAccumulator{byID: make(map[string]*pendingToolCall)}
}

func (b *batchAccumulator) addChunk(c agentruntime.Chunk) {
	p, ok := b.byID[c.ToolCallID]
	if !ok {
		p = &pendingToolCall{toolCallID: c.ToolCallID}
		b.byID[c.ToolCallID] = p
		b.order = append(b.order, c.ToolCallID)
	}
	if c.ToolName != "" {
		p.toolName = c.ToolName
	}
	p.argumentsRaw += c.ArgumentsDelta
}

// ordered returns every pending tool call in first-arrival order.
func (b *batchAccumulator) ordered() []*pendingToolCall {
	out := make([]*pendingToolCall, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.byID[id])
	}
	return out
}
