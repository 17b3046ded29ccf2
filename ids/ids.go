// Package ids defines the opaque, collision-resistant identifier types shared
// across the orchestration core. Every entity in the system (§3 of the spec)
// is addressed by one of these string-backed types rather than a bare string,
// so callers cannot accidentally pass a StoryId where a WorldId is expected.
package ids

import "github.com/google/uuid"

type (
	// UserID identifies the human or service account driving a conversation.
	UserID string
	// AgentID identifies a conversational identity maintained by the external
	// agent runtime.
	AgentID string
	// WorldID identifies a World document.
	WorldID string
	// StoryID identifies a Story within a World.
	StoryID string
	// SegmentID identifies a single unit of story text within a Story.
	SegmentID string
	// AssetID identifies a blob-backed Asset (typically generated images).
	AssetID string
	// ToolCallID identifies one tool invocation within a turn.
	ToolCallID string
	// TurnID identifies one sendMessage invocation.
	TurnID string
	// TrajectoryID identifies one persisted Trajectory record.
	TrajectoryID string
)

// New mints a fresh collision-resistant identifier with the given prefix
// (e.g. "world", "story"). The prefix is purely cosmetic: it makes IDs
// self-describing in logs and DB rows without requiring a lookup.
func New(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// NewUserID mints a fresh UserID.
func NewUserID() UserID { return UserID(New("user")) }

// NewAgentID mints a fresh AgentID.
func NewAgentID() AgentID { return AgentID(New("agent")) }

// NewWorldID mints a fresh WorldID.
func NewWorldID() WorldID { return WorldID(New("world")) }

// NewStoryID mints a fresh StoryID.
func NewStoryID() StoryID { return StoryID(New("story")) }

// NewSegmentID mints a fresh SegmentID.
func NewSegmentID() SegmentID { return SegmentID(New("seg")) }

// NewAssetID mints a fresh AssetID.
func NewAssetID() AssetID { return AssetID(New("asset")) }

// NewToolCallID mints a fresh ToolCallID.
func NewToolCallID() ToolCallID { return ToolCallID(New("tc")) }

// NewTurnID mints a fresh TurnID.
func NewTurnID() TurnID { return TurnID(New("turn")) }

// NewTrajectoryID mints a fresh TrajectoryID.
func NewTrajectoryID() TrajectoryID { return TrajectoryID(New("traj")) }
