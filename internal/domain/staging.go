package domain

import (
	"fmt"
	"time"
)

// ErrorCode identifies a hard validation failure. Any error on a
// staging event blocks publish.
type ErrorCode string

const (
	CodeEmptyTitle      ErrorCode = "EMPTY_TITLE"
	CodeInvalidURL      ErrorCode = "INVALID_URL"
	CodeInvalidDate     ErrorCode = "INVALID_DATE"
	CodeMissingRequired ErrorCode = "MISSING_REQUIRED"
)

// WarningCode identifies a soft validation issue. Warnings are surfaced
// for operator attention but never block publish.
type WarningCode string

const (
	CodeMissingStartDate  WarningCode = "MISSING_START_DATE"
	CodeMissingCategories WarningCode = "MISSING_CATEGORIES"
	CodeUnparseableDate   WarningCode = "UNPARSEABLE_DATE"
)

// ValidationError is a hard, publish-blocking diagnostic on one field.
type ValidationError struct {
	Field   string    `json:"field"`
	Message string    `json:"message"`
	Code    ErrorCode `json:"code"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Field, e.Message, e.Code)
}

// ValidationWarning is a soft diagnostic on one field.
type ValidationWarning struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Code    WarningCode `json:"code"`
}

// MatchReason explains why a duplicate candidate was flagged.
type MatchReason string

const (
	MatchSameURLAndDate      MatchReason = "SAME_URL_AND_DATE"
	MatchSimilarTitleAndDate MatchReason = "SIMILAR_TITLE_AND_DATE"
)

// DuplicateCandidate is an advisory match against an already-published
// event. It never blocks or auto-resolves anything.
type DuplicateCandidate struct {
	EventID     string      `json:"eventId"`
	Title       string      `json:"title"`
	MatchReason MatchReason `json:"matchReason"`
	MatchScore  float64     `json:"matchScore"`
}

// StagingEvent is an imported event pending operator review. It is
// owned by exactly one ImportBatch and leaves staging on publish or
// archive.
type StagingEvent struct {
	Event

	ImportBatchID string               `json:"importBatchId"`
	ImportedAt    time.Time            `json:"importedAt"`
	Line          int                  `json:"line,omitempty"`
	Errors        []ValidationError    `json:"validationErrors"`
	Warnings      []ValidationWarning  `json:"validationWarnings"`
	Duplicates    []DuplicateCandidate `json:"duplicateCandidates,omitempty"`
}

// Publishable reports whether the event has no hard errors.
func (s *StagingEvent) Publishable() bool {
	return len(s.Errors) == 0
}

// BatchStatus is the overall outcome of one CSV import.
type BatchStatus string

const (
	BatchProcessing     BatchStatus = "Processing"
	BatchCompleted      BatchStatus = "Completed"
	BatchPartialSuccess BatchStatus = "PartialSuccess"
	BatchFailed         BatchStatus = "Failed"
)

// ImportBatch identifies one CSV upload. Immutable once finalized
// except for the status transition out of Processing.
type ImportBatch struct {
	ID           string      `json:"id"`
	FileName     string      `json:"fileName"`
	ImportedAt   time.Time   `json:"importedAt"`
	ImportedBy   string      `json:"importedBy"`
	TotalRows    int         `json:"totalRows"`
	SuccessCount int         `json:"successCount"`
	ErrorCount   int         `json:"errorCount"`
	WarningCount int         `json:"warningCount"`
	Status       BatchStatus `json:"status"`
}
