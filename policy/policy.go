// Package policy enforces the approval loop's iteration cap for a turn (a
// Decision can also carry a tool allowlist, which the default engine leaves
// empty), simplified from the teacher's agents/runtime/policy
// Engine (which additionally tracks time budgets, consecutive-failure
// circuit breaking, and caller-supplied retry hints). Spec §9 only requires
// an iteration cap that yields TurnDiverged, so CapsState here tracks a
// single counter instead of the teacher's four-field budget struct; the
// richer shape is left documented in DESIGN.md as a dropped surface rather
// than speculatively implemented.
package policy

import (
	"context"

	"github.com/worldforge/core/errs"
)

type (
	// ToolMetadata describes a candidate tool available to the allowlist
	// decision, mirroring the teacher's ToolMetadata (ID/Name/Description/Tags).
	ToolMetadata struct {
		ID          string
		Name        string
		Description string
		Tags        []string
	}

	// CapsState tracks the approval loop's remaining iteration budget for a turn.
	CapsState struct {
		// MaxIterations is the total tool-call/approval round trips allowed.
		MaxIterations int
		// RemainingIterations counts down from MaxIterations; Decide takes one
		// off before each round trip starts.
		RemainingIterations int
	}

	// Input groups the information available to Engine.Decide before each
	// approval-loop iteration.
	Input struct {
		Tools         []ToolMetadata
		RemainingCaps CapsState
	}

	// Decision is the outcome of a policy evaluation for one iteration.
	Decision struct {
		// AllowedTools is an allowlist of tool names for this iteration. Nil
		// means no restriction. The orchestrator does not read this field: it
		// uses only Caps and Diverged, and restricts tools by agent kind.
		AllowedTools []string
		// Caps carries the updated iteration budget.
		Caps CapsState
		// Diverged is true once RemainingIterations would go negative,
		// signaling the orchestrator to fail the turn with errs.TurnDiverged.
		Diverged bool
	}

	// Engine decides the tool allowlist and remaining iteration budget before
	// each approval-loop iteration.
	Engine interface {
		Decide(ctx context.Context, input Input) (Decision, error)
	}
)

// capsEngine is the default Engine: it only enforces the iteration cap and
// allows every tool the orchestrator presents.
type capsEngine struct{}

// NewCapsEngine returns the default policy engine, which enforces only the
// iteration cap from CapsState and imposes no tool restriction.
func NewCapsEngine() Engine { return capsEngine{} }

func (capsEngine) Decide(_ context.Context, input Input) (Decision, error) {
	caps := input.RemainingCaps
	if caps.RemainingIterations <= 0 {
		return Decision{Caps: caps, Diverged: true}, nil
	}
	caps.RemainingIterations--
	return Decision{Caps: caps}, nil
}

// NewCapsState constructs a CapsState with RemainingIterations seeded from
// maxIterations.
func NewCapsState(maxIterations int) CapsState {
	return CapsState{MaxIterations: maxIterations, RemainingIterations: maxIterations}
}

// DivergedError builds the errs.Error the orchestrator returns when a
// Decision reports Diverged.
func DivergedError(maxIterations int) *errs.Error {
	return errs.Newf(errs.TurnDiverged, "approval loop exceeded %d iterations without reaching a final response", maxIterations)
}
