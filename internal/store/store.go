// Package store provides persistence for import batches, staging
// events, published events, and the operations log. A PostgreSQL
// implementation backs production; an in-memory implementation backs
// tests and local development.
package store

import (
	"context"
	"errors"

	"github.com/machikado/eventops/internal/domain"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an operation loses a race, such as
	// publishing a staging event another operator already disposed of.
	ErrConflict = errors.New("conflict")
)

// Staging status filters for ListStaging.
const (
	// FilterErrors selects rows with at least one validation error.
	FilterErrors = "error"

	// FilterWarnings selects rows with warnings and no errors.
	FilterWarnings = "warning"

	// FilterPublishable selects rows with zero validation errors.
	FilterPublishable = "publishable"
)

// StagingFilter narrows a staging listing. Zero values match everything.
type StagingFilter struct {
	BatchID string
	Status  string
}

// OpsLogFilter narrows an operations log listing.
type OpsLogFilter struct {
	Action domain.OpsAction
	Limit  int
}

// Store is the persistence boundary for the ingestion pipeline.
// Implementations must be safe for concurrent use.
type Store interface {
	// CreateBatch persists a finalized batch together with its staged
	// rows atomically.
	CreateBatch(ctx context.Context, batch domain.ImportBatch, rows []domain.StagingEvent) error

	// GetBatch returns one batch. ErrNotFound if unknown.
	GetBatch(ctx context.Context, id string) (domain.ImportBatch, error)

	// ListBatches returns all batches, most recent first.
	ListBatches(ctx context.Context) ([]domain.ImportBatch, error)

	// GetStaging returns one staging event. ErrNotFound if unknown.
	GetStaging(ctx context.Context, id string) (domain.StagingEvent, error)

	// ListStaging returns staging events matching the filter, ordered
	// by batch then line number. The publishable filter never returns
	// a row carrying validation errors.
	ListStaging(ctx context.Context, filter StagingFilter) ([]domain.StagingEvent, error)

	// UpdateStaging replaces a staging event's stored state.
	// ErrNotFound if the row was already disposed of.
	UpdateStaging(ctx context.Context, ev domain.StagingEvent) error

	// RemoveStaging deletes a staging event. It is idempotent: removing
	// an unknown id returns (false, nil).
	RemoveStaging(ctx context.Context, id string) (bool, error)

	// PublishStaging atomically removes a staging event and inserts the
	// published record. ErrConflict if the staging row no longer exists.
	PublishStaging(ctx context.Context, stagingID string, ev domain.Event) error

	// GetEvent returns one published event. ErrNotFound if unknown.
	GetEvent(ctx context.Context, id string) (domain.Event, error)

	// ListEvents returns all published events.
	ListEvents(ctx context.Context) ([]domain.Event, error)

	// AppendOpsLog records one operator action.
	AppendOpsLog(ctx context.Context, entry domain.OpsEntry) error

	// ListOpsLog returns log entries matching the filter, most recent
	// first.
	ListOpsLog(ctx context.Context, filter OpsLogFilter) ([]domain.OpsEntry, error)
}
