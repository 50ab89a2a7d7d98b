package domain

import "time"

// OpsAction is the kind of operator action being recorded.
type OpsAction string

const (
	ActionImport  OpsAction = "IMPORT"
	ActionEdit    OpsAction = "EDIT"
	ActionPublish OpsAction = "PUBLISH"
	ActionArchive OpsAction = "ARCHIVE"
)

// OpsEntry records one operator action for the audit trail.
type OpsEntry struct {
	ID         string    `json:"id"`
	Action     OpsAction `json:"action"`
	Actor      string    `json:"actor"`
	TargetID   string    `json:"targetId"`
	TargetType string    `json:"targetType"` // "Event", "StagingEvent", "ImportBatch"
	Details    string    `json:"details,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
