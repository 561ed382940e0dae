package models

// InstanceMetrics is a derived, read-only view of an instance.
type InstanceMetrics struct {
	InstanceID string `json:"instance_id"`

	// TotalDurationMs sums closed stage durations. Nil while the instance
	// is active with no closed stages.
	TotalDurationMs *int64 `json:"total_duration_ms,omitempty"`

	// PendingApprovals counts stages that still have outstanding required
	// votes.
	PendingApprovals int `json:"pending_approvals"`

	// CanProgress reports whether an advance would currently succeed.
	CanProgress bool `json:"can_progress"`

	// BlockedReason explains a false CanProgress: approvals pending,
	// approvals rejected, or the instance being terminal or on hold.
	BlockedReason string `json:"blocked_reason,omitempty"`
}
