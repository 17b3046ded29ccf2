// Package orchestrator implements the approval-driven tool-execution loop
// (spec §4.1): it resolves an agent through package router, reconciles its
// memory blocks, streams the external agent runtime, dispatches every
// requested tool call through package tools in strict order, and repeats
// until the agent signals completion or the turn diverges.
//
// There is no single teacher file with this exact shape — goa-ai's nearest
// analogue is agents/runtime/runtime.go's Runtime.Run, which drives a
// planner/tool loop against a Temporal workflow rather than a client-side
// approval protocol. This package keeps that file's overall posture (a
// struct holding every collaborator, a bounded loop with an iteration cap,
// typed events published at each step) but replaces the Temporal-activity
// dispatch with direct, synchronous tools.Registry.Dispatch calls, and
// replaces the teacher's implicit loop with the explicit three-state machine
// named in spec §9's REDESIGN FLAGS (Streaming / AwaitingApprovals / Done),
// so every transition can publish a hooks.Event for telemetry to observe.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/worldforge/core/agentruntime"
	"github.com/worldforge/core/canvas"
	"github.com/worldforge/core/errs"
	"github.com/worldforge/core/hooks"
	"github.com/worldforge/core/ids"
	"github.com/worldforge/core/memory"
	"github.com/worldforge/core/policy"
	"github.com/worldforge/core/router"
	"github.com/worldforge/core/store"
	"github.com/worldforge/core/telemetry"
	"github.com/worldforge/core/tools"
	"github.com/worldforge/core/trajectory"
)

// State names one of the orchestrator's three explicit turn states (spec §9).
type State string

const (
	StateStreaming         State = "streaming"
	StateAwaitingApprovals State = "awaiting_approvals"
	StateDone              State = "done"
)

// MessageContext carries sendMessage's optional worldId/storyId scope
// (spec §4.1's public contract).
type MessageContext struct {
	WorldID ids.WorldID
	StoryID ids.StoryID
}

// AgentMessage is one ordered output message produced by the agent during a
// turn (spec §3's Turn.outputMessages).
type AgentMessage struct {
	Role string
	Text string
}

// ToolCallRecord is the per-call result the orchestrator returns to its
// caller (spec §4.1's "record of every tool call that was attempted,
// including its result status"), distinct from trajectory.ToolCallRecord
// which is the truncated, persisted shape.
type ToolCallRecord struct {
	ToolCallID   ids.ToolCallID
	ToolName     string
	ArgumentsRaw string
	Succeeded    bool
	Result       any
	Error        *errs.Error
}

// Metadata carries the turn-level bookkeeping returned alongside messages
// and tool calls.
type Metadata struct {
	TurnID     ids.TurnID
	AgentID    ids.AgentID
	Iterations int
	StopReason string
}

// Result is sendMessage's return value (spec §4.1).
type Result struct {
	Messages  []AgentMessage
	ToolCalls []ToolCallRecord
	Metadata  Metadata
}

// PreferencesSummary formats a user's stored preferences for the
// user_preferences memory block. Optional: the core ships no concrete
// implementation since store.DB exposes preferences by key, not by
// enumeration; embedders that want this block populated supply one.
type PreferencesSummary interface {
	Summarize(ctx context.Context, userID ids.UserID) (string, error)
}

// personaByKind holds each agent kind's static system-prompt-equivalent
// persona text (spec §4.2: "creates one on first call using the kind's
// system prompt"). Reconciliation is idempotent (memory.Reconciler skips
// unchanged content), so writing it on every turn costs nothing once set.
var personaByKind = map[tools.Kind]string{
	router.User: "You help a user draft, browse, and refine their story worlds. " +
		"Use world_draft_generator to propose new worlds, list_worlds to browse " +
		"existing ones, and user_preferences to remember how they like to work.",
	router.World: "You are scoped to a single world. Use world_manager to read and " +
		"edit its foundation document, and story_manager to create and extend its stories.",
	router.Experience: "You narrate and render a live, interactive scene. Use " +
		"image_generator and asset_manager for visuals, canvas_ui and " +
		"get_canvas_interactions to drive the browser surface, and send_suggestion " +
		"to offer the user a next action.",
}

// Orchestrator drives sendMessage calls (spec §4.1). The agent runtime,
// policy engine, hook bus, trajectory sink, database, and object store are
// interfaces so tests can substitute fakes without a live agent runtime,
// database, or object store; Router, Memory, Registry, Images, and Canvas
// are concrete types.
type Orchestrator struct {
	Router     *router.Router
	Memory     *memory.Reconciler
	Registry   *tools.Registry
	Runtime    agentruntime.Runtime
	Policy     policy.Engine
	Hooks      hooks.Bus
	Trajectory trajectory.Sink
	Logger     telemetry.Logger

	DB          store.DB
	Blob        store.Blob
	Images      *tools.ImageProviders
	Canvas      *canvas.Manager
	Preferences PreferencesSummary

	MaxIterations  int
	RetryAttempts  int
	RetryBaseDelay time.Duration

	Now   func() time.Time
	Sleep func(time.Duration)
}

const (
	defaultMaxIterations  = 16
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 200 * time.Millisecond
)

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Orchestrator) sleep(d time.Duration) {
	if o.Sleep != nil {
		o.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (o *Orchestrator) maxIterations() int {
	if o.MaxIterations > 0 {
		return o.MaxIterations
	}
	return defaultMaxIterations
}

func (o *Orchestrator) retryAttempts() int {
	if o.RetryAttempts > 0 {
		return o.RetryAttempts
	}
	return defaultRetryAttempts
}

func (o *Orchestrator) retryBaseDelay() time.Duration {
	if o.RetryBaseDelay > 0 {
		return o.RetryBaseDelay
	}
	return defaultRetryBaseDelay
}

func (o *Orchestrator) publish(ctx context.Context, ev hooks.Event) {
	if o.Hooks == nil {
		return
	}
	_ = o.Hooks.Publish(ctx, ev)
}

func (o *Orchestrator) warn(ctx context.Context, msg string, kv ...any) {
	if o.Logger != nil {
		o.Logger.Warn(ctx, msg, kv...)
	}
}

// SendMessage implements spec §4.1's sole public operation.
func (o *Orchestrator) SendMessage(ctx context.Context, userID ids.UserID, message string, mctx MessageContext) (Result, error) {
	if userID == "" {
		return Result{}, errs.New(errs.ValidationError, "userId is required")
	}
	if strings.TrimSpace(message) == "" {
		return Result{}, errs.New(errs.ValidationError, "message must not be empty")
	}

	turnID := ids.NewTurnID()
	startedAt := o.now()

	agentID, kind, err := o.resolveAgent(ctx, userID, mctx)
	if err != nil {
		return Result{}, err
	}

	blocksWritten := o.reconcileBestEffort(ctx, agentID, kind, userID, mctx)
	if blocksWritten > 0 {
		o.publish(ctx, hooks.NewMemoryReconciledEvent(string(turnID), string(agentID), blocksWritten))
	}

	o.publish(ctx, hooks.NewTurnStartedEvent(string(turnID), string(agentID), string(userID), message))

	acc := &turnAccumulator{}
	builder := trajectory.NewBuilder(agentID, startedAt)
	caps := policy.NewCapsState(o.maxIterations())
	clientTools := o.clientToolDescriptors(kind)

	state := StateStreaming
	o.transition(ctx, turnID, agentID, "", state)

	currentInput := agentruntime.Input{Message: message, ClientTools: clientTools}
	iterations := 0
	var finalStopReason agentruntime.StopReason

	for {
		iterations++

		decision, decErr := o.Policy.Decide(ctx, policy.Input{RemainingCaps: caps})
		if decErr != nil {
			return Result{}, errs.Wrap(errs.Internal, "policy decision failed", decErr)
		}
		caps = decision.Caps
		if decision.Diverged {
			o.publish(ctx, hooks.NewTurnDivergedEvent(string(turnID), string(agentID), iterations, o.maxIterations()))
			o.emitTrajectory(ctx, builder, trajectory.StatusIncomplete, string(finalStopReason))
			return Result{}, policy.DivergedError(o.maxIterations())
		}

		stopReason, batch, streamErr := o.runStreamWithRetry(ctx, turnID, agentID, currentInput, acc)
		if streamErr != nil {
			o.emitTrajectory(ctx, builder, trajectory.StatusError, string(finalStopReason))
			return Result{}, streamErr
		}
		finalStopReason = stopReason

		if stopReason == agentruntime.StopRequiresApproval {
			o.transition(ctx, turnID, agentID, state, StateAwaitingApprovals)
			state = StateAwaitingApprovals

			toolCtx := tools.Context{UserID: userID, DB: o.DB, Blob: o.Blob, Images: o.Images, Canvas: o.Canvas, Now: o.Now}
			approvals, turnRecord := o.executeToolBatch(ctx, turnID, agentID, kind, batch, toolCtx, acc, iterations)
			builder.AddTurn(turnRecord)

			currentInput = agentruntime.Input{Approvals: approvals}

			o.transition(ctx, turnID, agentID, state, StateStreaming)
			state = StateStreaming
			continue
		}

		builder.AddTurn(finalTurnRecord(turnID, batch, stopReason, iterations))
		break
	}

	o.transition(ctx, turnID, agentID, state, StateDone)
	o.publish(ctx, hooks.NewTurnCompletedEvent(string(turnID), string(agentID), iterations))

	traj := builder.Build(trajectory.StatusCompleted, o.now(), string(finalStopReason))
	o.writeTrajectoryBestEffort(ctx, traj)

	return Result{
		Messages:  acc.messages,
		ToolCalls: acc.toolCallRecords,
		Metadata: Metadata{
			TurnID:     turnID,
			AgentID:    agentID,
			Iterations: iterations,
			StopReason: string(finalStopReason),
		},
	}, nil
}

func (o *Orchestrator) transition(ctx context.Context, turnID ids.TurnID, agentID ids.AgentID, from, to State) {
	o.publish(ctx, hooks.NewTurnStateChangedEvent(string(turnID), string(agentID), string(from), string(to)))
}

func (o *Orchestrator) emitTrajectory(ctx context.Context, builder *trajectory.Builder, status trajectory.ExecutionStatus, stopReason string) {
	traj := builder.Build(status, o.now(), stopReason)
	o.writeTrajectoryBestEffort(ctx, traj)
}

func (o *Orchestrator) writeTrajectoryBestEffort(ctx context.Context, traj trajectory.Trajectory) {
	if o.Trajectory == nil {
		return
	}
	if err := o.Trajectory.Write(ctx, traj); err != nil {
		o.warn(ctx, "trajectory write failed", "agentId", traj.AgentID, "error", err)
	}
}

// resolveAgent picks the agent kind implied by mctx and resolves/creates it
// through the router (spec §4.1 step 1, §4.2). World scope takes priority
// over story scope: a worldId always means authoring that world; a bare
// storyId (no worldId) means the live-story Experience agent.
func (o *Orchestrator) resolveAgent(ctx context.Context, userID ids.UserID, mctx MessageContext) (ids.AgentID, tools.Kind, error) {
	switch {
	case mctx.WorldID != "":
		agentID, err := o.Router.GetOrCreateWorldAgent(ctx, userID, mctx.WorldID)
		return agentID, router.World, err
	case mctx.StoryID != "":
		agentID, err := o.Router.GetOrCreateExperienceAgent(ctx, userID)
		return agentID, router.Experience, err
	default:
		agentID, err := o.Router.GetOrCreateUserAgent(ctx, userID)
		return agentID, router.User, err
	}
}

// reconcileBestEffort writes every memory block application state implies
// before the first stream (spec §4.1 step 1). Every sub-reconciliation is
// best-effort: failures are logged, never returned (spec: "Memory-
// reconciliation failures are logged and do not fail the turn"). It returns
// the total number of blocks actually written, across every sub-step, so
// the caller can publish a single MemoryReconciledEvent for the turn.
func (o *Orchestrator) reconcileBestEffort(ctx context.Context, agentID ids.AgentID, kind tools.Kind, userID ids.UserID, mctx MessageContext) int {
	blocksWritten := 0

	if persona, ok := personaByKind[kind]; ok && o.Memory != nil {
		n, err := o.Memory.Reconcile(ctx, string(agentID), memory.Desired{memory.Persona: &persona})
		if err != nil {
			o.warn(ctx, "reconcile persona block failed", "agentId", agentID, "error", err)
		}
		blocksWritten += n
	}

	if mctx.StoryID != "" || kind == router.Experience {
		n, err := o.Router.SetStoryContext(ctx, agentID, mctx.StoryID)
		if err != nil {
			o.warn(ctx, "reconcile current_story block failed", "agentId", agentID, "error", err)
		}
		blocksWritten += n
	}

	if kind == router.World && mctx.WorldID != "" && o.DB != nil {
		world, err := o.DB.LoadWorld(ctx, mctx.WorldID)
		if err != nil {
			o.warn(ctx, "reconcile current_world block failed", "worldId", mctx.WorldID, "error", err)
		} else {
			content := worldSummary(world)
			n, err := o.Memory.Reconcile(ctx, string(agentID), memory.Desired{memory.CurrentWorld: &content})
			if err != nil {
				o.warn(ctx, "reconcile current_world block failed", "agentId", agentID, "error", err)
			}
			blocksWritten += n
		}
	}

	if kind == router.Experience && o.Registry != nil {
		content := capabilitiesSummary(o.Registry.Describe(kind))
		n, err := o.Memory.Reconcile(ctx, string(agentID), memory.Desired{memory.ExperienceCapabilities: &content})
		if err != nil {
			o.warn(ctx, "reconcile experience_capabilities block failed", "agentId", agentID, "error", err)
		}
		blocksWritten += n
	}

	if o.Preferences != nil {
		content, err := o.Preferences.Summarize(ctx, userID)
		if err != nil {
			o.warn(ctx, "reconcile user_preferences block failed", "userId", userID, "error", err)
			return blocksWritten
		}
		n, err := o.Memory.Reconcile(ctx, string(agentID), memory.Desired{memory.UserPreferences: &content})
		if err != nil {
			o.warn(ctx, "reconcile user_preferences block failed", "agentId", agentID, "error", err)
		}
		blocksWritten += n
	}

	return blocksWritten
}

func worldSummary(w store.World) string {
	title, _ := w.Foundation["title"].(string)
	if title == "" {
		title = string(w.WorldID)
	}
	return fmt.Sprintf("%s\nlast updated %s", title, w.UpdatedAt.Format(time.RFC3339))
}

func capabilitiesSummary(descs []tools.ToolDescription) string {
	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })
	var b strings.Builder
	for _, d := range descs {
		fmt.Fprintf(&b, "%s: %s\n", d.Name, d.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// clientToolDescriptors builds the kind-scoped client-tool list passed to
// the agent runtime for this stream (spec §4.1 step 2, §4.3).
func (o *Orchestrator) clientToolDescriptors(kind tools.Kind) []agentruntime.ClientTool {
	names := o.Registry.ForKind(kind)
	sort.Strings(names)
	out := make([]agentruntime.ClientTool, 0, len(names))
	for _, name := range names {
		spec, ok := o.Registry.SpecFor(name)
		if !ok {
			continue
		}
		schema, _ := spec.SchemaDoc.(map[string]any)
		out = append(out, agentruntime.ClientTool{Name: spec.Name, Description: spec.Description, InputSchema: schema})
	}
	return out
}

// runStreamWithRetry opens a stream and drains it to a terminal stop reason,
// making up to RetryAttempts open+drain attempts in total (the first one
// included), with exponential backoff between them on transport failure,
// before giving up with
// AgentRuntimeUnavailable (spec §4.1's failure semantics).
func (o *Orchestrator) runStreamWithRetry(ctx context.Context, turnID ids.TurnID, agentID ids.AgentID, input agentruntime.Input, acc *turnAccumulator) (agentruntime.StopReason, *batchAccumulator, error) {
	delay := o.retryBaseDelay()
	var lastErr error

	for attempt := 0; attempt < o.retryAttempts(); attempt++ {
		if attempt > 0 {
			o.sleep(delay)
			delay *= 2
		}

		stream, err := o.Runtime.CreateMessage(ctx, string(agentID), input)
		if err != nil {
			lastErr = err
			continue
		}

		batch := newBatchAccumulator()
		stopReason, drainErr := o.drainStream(ctx, turnID, agentID, stream, acc, batch)
		_ = stream.Close()
		if drainErr != nil {
			lastErr = drainErr
			continue
		}
		return stopReason, batch, nil
	}

	return "", nil, errs.Wrap(errs.AgentRuntimeUnavailable, "agent runtime stream failed after retries", lastErr)
}

func (o *Orchestrator) drainStream(ctx context.Context, turnID ids.TurnID, agentID ids.AgentID, stream agentruntime.Stream, acc *turnAccumulator, batch *batchAccumulator) (agentruntime.StopReason, error) {
	for {
		chunk, err := stream.Recv(ctx)
		if err != nil {
			return "", err
		}
		switch chunk.Type {
		case agentruntime.ChunkAssistantText:
			acc.appendText(chunk.Text)
			batch.inboundText.WriteString(chunk.Text)
			o.publish(ctx, hooks.NewAssistantTextAppendedEvent(string(turnID), string(agentID), chunk.Text))
		case agentruntime.ChunkApprovalRequest:
			batch.addChunk(chunk)
		case agentruntime.ChunkStopReason:
			return chunk.StopReason, nil
		}
	}
}

// finalTurnRecord builds the trajectory.TurnRecord for the stream round that
// ends the turn (no approval required): it carries the round's inbound
// text with an empty tool-call batch, so the last assistant message is
// captured verbatim alongside every approval round's (spec §4.6's
// "{inbound chunk set, tool-call batch, result batch}").
func finalTurnRecord(turnID ids.TurnID, batch *batchAccumulator, stopReason agentruntime.StopReason, approvalBatch int) trajectory.TurnRecord {
	inboundText, _ := trajectory.TruncateField(batch.inboundText.String())
	return trajectory.TurnRecord{
		TurnID:        turnID,
		InboundText:   inboundText,
		StopReason:    string(stopReason),
		ApprovalBatch: approvalBatch,
	}
}

// executeToolBatch dispatches every pending tool call strictly in arrival
// order (spec §4.1's "Tool calls are executed strictly in the order the
// agent requested them within an approval batch"), builds the approval
// bundle to post back, and records both the caller-facing ToolCallRecords
// and the trajectory.TurnRecord for this batch.
func (o *Orchestrator) executeToolBatch(ctx context.Context, turnID ids.TurnID, agentID ids.AgentID, kind tools.Kind, batch *batchAccumulator, toolCtx tools.Context, acc *turnAccumulator, approvalBatch int) ([]agentruntime.ApprovalResult, trajectory.TurnRecord) {
	pending := batch.ordered()
	approvals := make([]agentruntime.ApprovalResult, 0, len(pending))
	calls := make([]trajectory.ToolCallRecord, 0, len(pending))

	for _, p := range pending {
		toolCallID := ids.ToolCallID(p.toolCallID)

		o.publish(ctx, hooks.NewToolCallDispatchedEvent(string(turnID), string(agentID), p.toolCallID, p.toolName, p.argumentsRaw))

		start := o.now()
		result, execErr := o.dispatchTool(ctx, toolCtx, kind, p.toolName, p.argumentsRaw)
		duration := o.now().Sub(start)

		succeeded := execErr == nil
		var hookErr *errs.Error
		var errStr string
		var approvalResult any = result
		status := "ok"
		if execErr != nil {
			hookErr = errs.From(execErr)
			errStr = hookErr.Error()
			status = "error"
			approvalResult = errs.NewEnvelope(p.toolCallID, execErr)
		}

		o.publish(ctx, hooks.NewToolCallCompletedEvent(string(turnID), string(agentID), p.toolCallID, p.toolName, duration, result, hookErr))

		approvals = append(approvals, agentruntime.ApprovalResult{ToolCallID: p.toolCallID, Status: status, Result: approvalResult})

		acc.toolCallRecords = append(acc.toolCallRecords, ToolCallRecord{
			ToolCallID:   toolCallID,
			ToolName:     p.toolName,
			ArgumentsRaw: p.argumentsRaw,
			Succeeded:    succeeded,
			Result:       result,
			Error:        hookErr,
		})

		argJSON, argTrunc := trajectory.TruncateField(p.argumentsRaw)
		resultJSON, resultTrunc := trajectory.TruncateField(marshalBestEffort(result))
		calls = append(calls, trajectory.ToolCallRecord{
			ToolCallID:         toolCallID,
			ToolName:           p.toolName,
			ArgumentsJSON:      argJSON,
			ArgumentsTruncated: argTrunc,
			ResultJSON:         resultJSON,
			ResultTruncated:    resultTrunc,
			Error:              errStr,
			Succeeded:          succeeded,
		})
	}

	inboundText, _ := trajectory.TruncateField(batch.inboundText.String())
	turnRecord := trajectory.TurnRecord{
		TurnID:        turnID,
		InboundText:   inboundText,
		ToolCalls:     calls,
		StopReason:    string(agentruntime.StopRequiresApproval),
		ApprovalBatch: approvalBatch,
	}
	return approvals, turnRecord
}

// dispatchTool invokes the registry, recovering from any executor panic as a
// typed Internal error rather than crashing the turn (spec §4.1: "A tool
// that throws is caught"). It also enforces spec §4.3's closed, kind-scoped
// tool set: a tool call naming a tool outside the current agent kind's set
// fails with ValidationError instead of reaching its executor, even though
// the agent runtime was never offered that tool's descriptor.
func (o *Orchestrator) dispatchTool(ctx context.Context, toolCtx tools.Context, kind tools.Kind, name, argumentsRaw string) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.Newf(errs.Internal, "tool %q panicked: %v", name, r)
		}
	}()

	spec, ok := o.Registry.SpecFor(name)
	if !ok {
		return nil, errs.Newf(errs.ValidationError, "unknown tool %q", name)
	}
	if spec.Kind != kind {
		return nil, errs.Newf(errs.ValidationError, "tool %q is not available to a %q-scoped agent", name, kind)
	}

	raw := argumentsRaw
	if raw == "" {
		raw = "{}"
	}
	return o.Registry.Dispatch(ctx, toolCtx, name, json.RawMessage(raw))
}

func marshalBestEffort(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
