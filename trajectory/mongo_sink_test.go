package trajectory

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/worldforge/core/ids"
)

// These property-test toTrajectoryDoc's bson mapping without a live Mongo
// connection (see DESIGN.md for why the teacher's testcontainers-backed
// integration style isn't replicated for this write-only sink).

func TestToTrajectoryDoc_PreservesScalarFieldsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("toTrajectoryDoc preserves id, status, outcome and confidence", prop.ForAll(
		func(trajectoryID, agentID string, confidence float64) bool {
			tr := Trajectory{
				TrajectoryID:    ids.TrajectoryID(trajectoryID),
				AgentID:         ids.AgentID(agentID),
				ExecutionStatus: StatusCompleted,
				Outcome:         OutcomeSuccess,
				Confidence:      confidence,
				CreatedAt:       time.Unix(0, 0).UTC(),
			}
			doc := toTrajectoryDoc(tr)
			return doc.TrajectoryID == trajectoryID &&
				doc.AgentID == agentID &&
				doc.ExecutionStatus == string(StatusCompleted) &&
				doc.Outcome == string(OutcomeSuccess) &&
				doc.Confidence == confidence
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}

func TestToTrajectoryDoc_PreservesTurnOrderAndInboundTextProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("turn order and inbound text survive the doc mapping", prop.ForAll(
		func(inboundTexts []string) bool {
			turns := make([]TurnRecord, 0, len(inboundTexts))
			for i, text := range inboundTexts {
				turns = append(turns, TurnRecord{
					TurnID:      ids.TurnID(ids.NewTurnID()),
					InboundText: text,
					StopReason:  "end_turn",
					ApprovalBatch: i,
				})
			}
			doc := toTrajectoryDoc(Trajectory{Turns: turns})
			if len(doc.Turns) != len(turns) {
				return false
			}
			for i, td := range doc.Turns {
				if td.InboundText != turns[i].InboundText || td.ApprovalBatch != turns[i].ApprovalBatch {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(5, gen.AlphaString()),
	))

	properties.TestingRun(t)
}

func TestToTrajectoryDoc_PreservesToolCallFields(t *testing.T) {
	tr := Trajectory{
		Turns: []TurnRecord{
			{
				TurnID: "turn-1",
				ToolCalls: []ToolCallRecord{
					{
						ToolCallID:         "tc-1",
						ToolName:           "world_manager",
						ArgumentsJSON:      `{"a":1}`,
						ArgumentsTruncated: false,
						ResultJSON:         `{"ok":true}`,
						ResultTruncated:    true,
						Error:              "",
						Succeeded:          true,
					},
				},
			},
		},
	}

	doc := toTrajectoryDoc(tr)
	if len(doc.Turns) != 1 || len(doc.Turns[0].ToolCalls) != 1 {
		t.Fatalf("expected one turn with one tool call, got %+v", doc)
	}
	call := doc.Turns[0].ToolCalls[0]
	if call.ToolCallID != "tc-1" || call.ToolName != "world_manager" || !call.ResultTruncated || !call.Succeeded {
		t.Fatalf("tool call fields not preserved: %+v", call)
	}
}
