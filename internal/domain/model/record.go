package model

// HitKind distinguishes the task events that trigger correlation.
type HitKind uint8

// Hit kinds.
const (
	HitClick HitKind = iota
	HitTargetDestroyed
)

func (k HitKind) String() string {
	if k == HitTargetDestroyed {
		return "targetDestroyed"
	}
	return "click"
}

// HitEvent is a discrete task occurrence at TimestampMs.
type HitEvent struct {
	TimestampMs int64   `json:"timestampMs"`
	TargetID    *string `json:"targetId,omitempty"`
	Kind        HitKind `json:"kind"`
}

// TargetFrame is the task's current view of the active target. Task logic
// computes it on demand; any field may be unknown.
type TargetFrame struct {
	TargetID       *string `json:"targetId,omitempty"`
	Screen         *Point  `json:"screen,omitempty"`
	World          *Vec3   `json:"world,omitempty"`
	CameraRotation *Vec3   `json:"cameraRotation,omitempty"`
	PlayerPosition *Vec3   `json:"playerPosition,omitempty"`
}

// CorrelatedRecord is one row of the session log. Nil fields were not
// observed and must stay nil downstream.
type CorrelatedRecord struct {
	TimestampMs    int64   `json:"timestamp"`
	Phase          Phase   `json:"phase"`
	TargetID       *string `json:"targetId"`
	Target3D       *Vec3   `json:"target3D"`
	TargetScreen   *Point  `json:"targetScreen"`
	Gaze           *Point  `json:"gaze"`
	Pointer        *Point  `json:"mouse"`
	CameraRotation *Vec3   `json:"cameraRotation"`
	PlayerPosition *Vec3   `json:"playerPosition"`
	HitRegistered  bool    `json:"hitRegistered"`
}

// HasTarget reports whether the record names targetID.
func (r *CorrelatedRecord) HasTarget(targetID string) bool {
	return r.TargetID != nil && *r.TargetID == targetID
}

// ID returns a pointer to a copy of s, or nil for the empty string.
func ID(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
