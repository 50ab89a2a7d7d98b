package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/machikado/eventops/internal/domain"
	"github.com/machikado/eventops/internal/store"
)

// PreviewRow is one analyzed row of a preview, nothing persisted.
type PreviewRow struct {
	Line     int                        `json:"line"`
	Fields   map[string]string          `json:"fields"`
	Errors   []domain.ValidationError   `json:"validationErrors"`
	Warnings []domain.ValidationWarning `json:"validationWarnings"`
}

// PreviewResult is the outcome of a dry-run analysis of a CSV file.
type PreviewResult struct {
	Columns   []string     `json:"columns"`
	Rows      []PreviewRow `json:"rows"`
	BadRows   []BadRow     `json:"badRows,omitempty"`
	Truncated bool         `json:"truncated"`
}

// Preview parses and validates a file without staging anything,
// capped at the configured preview size.
func (s *Service) Preview(_ context.Context, data []byte) (*PreviewResult, error) {
	if int64(len(data)) > s.cfg.MaxFileSize {
		return nil, fmt.Errorf("file too large: %d bytes (limit %d)", len(data), s.cfg.MaxFileSize)
	}

	parsed, err := Parse(data, s.cfg.PreviewRows)
	if err != nil {
		return nil, err
	}

	result := &PreviewResult{
		Columns:   parsed.Columns,
		BadRows:   parsed.BadRows,
		Truncated: parsed.Truncated,
		Rows:      make([]PreviewRow, 0, len(parsed.Rows)),
	}
	for _, row := range parsed.Rows {
		errs, warns := ValidateRow(row.Fields)
		result.Rows = append(result.Rows, PreviewRow{
			Line:     row.Line,
			Fields:   row.Fields,
			Errors:   errs,
			Warnings: warns,
		})
	}
	return result, nil
}

// StagingPatch is a partial update to a staged event. Nil fields are
// left untouched. Date fields are raw strings so bad input surfaces as
// validation errors instead of being rejected at the transport layer.
type StagingPatch struct {
	Title       *string             `json:"title,omitempty"`
	Summary     *string             `json:"summary,omitempty"`
	OfficialURL *string             `json:"officialUrl,omitempty"`
	UpdatedAt   *string             `json:"updatedAt,omitempty"`
	StartAt     *string             `json:"startAt,omitempty"`
	EndAt       *string             `json:"endAt,omitempty"`
	AreaName    *string             `json:"areaName,omitempty"`
	AreaSlug    *string             `json:"areaSlug,omitempty"`
	VenueName   *string             `json:"venueName,omitempty"`
	AgeLabel    *string             `json:"ageLabel,omitempty"`
	PriceText   *string             `json:"priceText,omitempty"`
	Categories  *[]string           `json:"categories,omitempty"`
	Reservation *domain.Reservation `json:"reservation,omitempty"`
}

// applyFields overlays the patch on a canonical field map.
func (p StagingPatch) applyFields(fields map[string]string) {
	set := func(key string, v *string) {
		if v != nil {
			fields[key] = CleanCell(*v)
		}
	}
	set(FieldTitle, p.Title)
	set(FieldSummary, p.Summary)
	set(FieldOfficialURL, p.OfficialURL)
	set(FieldUpdatedAt, p.UpdatedAt)
	set(FieldStartAt, p.StartAt)
	set(FieldEndAt, p.EndAt)
	set(FieldAreaName, p.AreaName)
	set(FieldAreaSlug, p.AreaSlug)
	set(FieldVenueName, p.VenueName)
	if p.Categories != nil {
		fields[FieldCategories] = strings.Join(*p.Categories, ",")
	}
}

// UpdateStaging applies an operator edit, then re-runs validation and
// duplicate detection so diagnostics stay consistent with the current
// field values. Returns store.ErrNotFound when the row is gone.
func (s *Service) UpdateStaging(ctx context.Context, id string, patch StagingPatch, actor string) (domain.StagingEvent, error) {
	cur, err := s.store.GetStaging(ctx, id)
	if err != nil {
		return domain.StagingEvent{}, err
	}

	fields := fieldsFromEvent(cur.Event)
	patch.applyFields(fields)

	errs, warns := ValidateRow(fields)

	updated := cur
	updated.Event = eventFromFields(fields)
	updated.Event.ID = cur.Event.ID
	updated.Event.AgeLabel = cur.AgeLabel
	updated.Event.PriceText = cur.PriceText
	updated.Event.Reservation = cur.Reservation
	if patch.AgeLabel != nil {
		updated.Event.AgeLabel = *patch.AgeLabel
	}
	if patch.PriceText != nil {
		updated.Event.PriceText = *patch.PriceText
	}
	if patch.Reservation != nil {
		updated.Event.Reservation = *patch.Reservation
	}
	updated.Errors = errs
	updated.Warnings = warns

	published, err := s.store.ListEvents(ctx)
	if err != nil {
		return domain.StagingEvent{}, fmt.Errorf("load published events: %w", err)
	}
	updated.Duplicates = s.detector.Detect(updated.Event, published)

	if err := s.store.UpdateStaging(ctx, updated); err != nil {
		return domain.StagingEvent{}, err
	}

	s.logOps(ctx, actor, domain.ActionEdit, id, "StagingEvent",
		fmt.Sprintf("edited %q", updated.Title))
	return updated, nil
}

// GetStaging returns one staging event.
func (s *Service) GetStaging(ctx context.Context, id string) (domain.StagingEvent, error) {
	return s.store.GetStaging(ctx, id)
}

// ListStaging returns staging events matching the filter.
func (s *Service) ListStaging(ctx context.Context, filter store.StagingFilter) ([]domain.StagingEvent, error) {
	return s.store.ListStaging(ctx, filter)
}

// GetBatch returns one import batch.
func (s *Service) GetBatch(ctx context.Context, id string) (domain.ImportBatch, error) {
	return s.store.GetBatch(ctx, id)
}

// ListBatches returns all import batches, most recent first.
func (s *Service) ListBatches(ctx context.Context) ([]domain.ImportBatch, error) {
	return s.store.ListBatches(ctx)
}

// ListEvents returns the published event set.
func (s *Service) ListEvents(ctx context.Context) ([]domain.Event, error) {
	return s.store.ListEvents(ctx)
}

// ListOpsLog returns audit entries, most recent first.
func (s *Service) ListOpsLog(ctx context.Context, filter store.OpsLogFilter) ([]domain.OpsEntry, error) {
	return s.store.ListOpsLog(ctx, filter)
}

// PublishBlockedError reports a publish attempt on a staging event that
// still carries hard validation errors.
type PublishBlockedError struct {
	StagingID string
	Codes     []domain.ErrorCode
}

func (e *PublishBlockedError) Error() string {
	codes := make([]string, len(e.Codes))
	for i, c := range e.Codes {
		codes[i] = string(c)
	}
	return fmt.Sprintf("staging event %s has validation errors: %s", e.StagingID, strings.Join(codes, ", "))
}

// Publish promotes one staging event to the published set. It fails
// with *PublishBlockedError when the row has validation errors, and
// with store.ErrConflict when another operator disposed of the row
// first. Nothing is partially applied.
func (s *Service) Publish(ctx context.Context, id, actor string) (domain.Event, error) {
	staged, err := s.store.GetStaging(ctx, id)
	if err != nil {
		return domain.Event{}, err
	}

	if !staged.Publishable() {
		codes := make([]domain.ErrorCode, len(staged.Errors))
		for i, ve := range staged.Errors {
			codes[i] = ve.Code
		}
		return domain.Event{}, &PublishBlockedError{StagingID: id, Codes: codes}
	}

	now := time.Now().UTC()
	ev := staged.Event
	ev.Status = domain.StatusPublished
	ev.PublishedAt = &now

	if err := s.store.PublishStaging(ctx, id, ev); err != nil {
		return domain.Event{}, err
	}

	s.logOps(ctx, actor, domain.ActionPublish, ev.ID, "Event",
		fmt.Sprintf("published %q", ev.Title))
	return ev, nil
}

// PublishOutcome is one row's result from a bulk publish.
type PublishOutcome struct {
	StagingID string             `json:"stagingId"`
	Published bool               `json:"published"`
	Error     string             `json:"error,omitempty"`
	Codes     []domain.ErrorCode `json:"codes,omitempty"`
}

// PublishBatch publishes each id best-effort: publishable rows go
// through, blocked or missing rows are reported per id, and one
// failure never stops the rest.
func (s *Service) PublishBatch(ctx context.Context, ids []string, actor string) []PublishOutcome {
	outcomes := make([]PublishOutcome, 0, len(ids))
	for _, id := range ids {
		outcome := PublishOutcome{StagingID: id}
		_, err := s.Publish(ctx, id, actor)
		switch e := err.(type) {
		case nil:
			outcome.Published = true
		case *PublishBlockedError:
			outcome.Error = "validation errors"
			outcome.Codes = e.Codes
		default:
			outcome.Error = err.Error()
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// Archive removes a staging event without publishing it. Archiving an
// already-removed id is a no-op.
func (s *Service) Archive(ctx context.Context, id, actor string) error {
	removed, err := s.store.RemoveStaging(ctx, id)
	if err != nil {
		return err
	}
	if removed {
		s.logOps(ctx, actor, domain.ActionArchive, id, "StagingEvent", "archived from staging")
	}
	return nil
}
