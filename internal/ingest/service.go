package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/machikado/eventops/internal/domain"
	"github.com/machikado/eventops/internal/store"
)

// ImportPhase indicates the current stage of import processing.
type ImportPhase string

const (
	PhaseStarting   ImportPhase = "starting"
	PhaseParsing    ImportPhase = "parsing"
	PhaseValidating ImportPhase = "validating"
	PhaseStaging    ImportPhase = "staging"
	PhaseComplete   ImportPhase = "complete"
	PhaseFailed     ImportPhase = "failed"
	PhaseCancelled  ImportPhase = "cancelled"
)

// ImportProgress represents the current state of an import operation.
type ImportProgress struct {
	BatchID    string      `json:"batchId"`
	FileName   string      `json:"fileName"`
	Phase      ImportPhase `json:"phase"`
	TotalRows  int         `json:"totalRows"`
	CurrentRow int         `json:"currentRow"`
	Error      string      `json:"error,omitempty"` // non-empty if Phase is PhaseFailed
}

// Percent returns the progress as a percentage (0-100).
func (p ImportProgress) Percent() int {
	if p.TotalRows > 0 {
		return (p.CurrentRow * 100) / p.TotalRows
	}
	return 0
}

// ImportResult contains the final outcome of an import operation.
type ImportResult struct {
	BatchID      string             `json:"batchId"`
	FileName     string             `json:"fileName"`
	Status       domain.BatchStatus `json:"status"`
	TotalRows    int                `json:"totalRows"`
	SuccessCount int                `json:"successCount"`
	ErrorCount   int                `json:"errorCount"`
	WarningCount int                `json:"warningCount"`
	BadRows      []BadRow           `json:"badRows,omitempty"`
	Duration     time.Duration      `json:"-"`
	Error        string             `json:"error,omitempty"`
}

// Config holds the import pipeline settings.
type Config struct {
	// MaxFileSize rejects files above it, in bytes.
	MaxFileSize int64

	// MaxRows caps the number of data rows staged per batch.
	MaxRows int

	// PreviewRows caps the rows returned by Preview.
	PreviewRows int

	// Timeout bounds a single import operation.
	Timeout time.Duration
}

// DefaultConfig returns the settings used when none are provided.
func DefaultConfig() Config {
	return Config{
		MaxFileSize: 10 * 1024 * 1024,
		MaxRows:     5000,
		PreviewRows: 10,
		Timeout:     2 * time.Minute,
	}
}

// Service coordinates the import pipeline: parse, validate, detect
// duplicates, stage, and the review operations through publish.
type Service struct {
	store    store.Store
	detector *Detector
	cfg      Config
	logger   *slog.Logger

	mu      sync.RWMutex
	imports map[string]*activeImport
}

type activeImport struct {
	ID         string
	FileName   string
	Cancel     context.CancelFunc
	Progress   ImportProgress
	Result     *ImportResult
	Done       chan struct{}
	Listeners  []chan ImportProgress
	ListenerMu sync.Mutex
}

// NewService creates a Service. Zero config fields fall back to defaults.
func NewService(st store.Store, detector *Detector, cfg Config, logger *slog.Logger) *Service {
	def := DefaultConfig()
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = def.MaxFileSize
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = def.MaxRows
	}
	if cfg.PreviewRows <= 0 {
		cfg.PreviewRows = def.PreviewRows
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if detector == nil {
		detector = NewDetector(DefaultDetectorConfig())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    st,
		detector: detector,
		cfg:      cfg,
		logger:   logger,
		imports:  make(map[string]*activeImport),
	}
}

// StartImport begins an asynchronous import of one CSV file.
// Returns the batch ID immediately. Use SubscribeProgress for updates
// and GetImportResult for the final outcome.
func (s *Service) StartImport(_ context.Context, fileName, actor string, data []byte) (string, error) {
	if int64(len(data)) > s.cfg.MaxFileSize {
		return "", fmt.Errorf("file too large: %d bytes (limit %d)", len(data), s.cfg.MaxFileSize)
	}

	batchID := uuid.New().String()

	// The import outlives the request, so it gets its own context.
	importCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)

	imp := &activeImport{
		ID:       batchID,
		FileName: fileName,
		Cancel:   cancel,
		Progress: ImportProgress{
			BatchID:  batchID,
			FileName: fileName,
			Phase:    PhaseStarting,
		},
		Done:      make(chan struct{}),
		Listeners: make([]chan ImportProgress, 0),
	}

	s.mu.Lock()
	s.imports[batchID] = imp
	s.mu.Unlock()

	go func() {
		defer cancel()
		s.processImport(importCtx, imp, actor, data)
	}()

	return batchID, nil
}

// SubscribeProgress returns a channel that receives progress updates.
// The channel is closed when the import completes.
func (s *Service) SubscribeProgress(batchID string) (<-chan ImportProgress, error) {
	s.mu.RLock()
	imp, ok := s.imports[batchID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("import not found: %s", batchID)
	}

	ch := make(chan ImportProgress, 10)

	imp.ListenerMu.Lock()
	imp.Listeners = append(imp.Listeners, ch)
	// Send current progress immediately
	select {
	case ch <- imp.Progress:
	default:
	}
	imp.ListenerMu.Unlock()

	return ch, nil
}

// CancelImport cancels an in-progress import.
func (s *Service) CancelImport(batchID string) error {
	s.mu.RLock()
	imp, ok := s.imports[batchID]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("import not found: %s", batchID)
	}

	imp.Cancel()
	return nil
}

// GetImportResult returns the result of a completed import.
// Blocks until the import completes if still in progress.
func (s *Service) GetImportResult(batchID string) (*ImportResult, error) {
	s.mu.RLock()
	imp, ok := s.imports[batchID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("import not found: %s", batchID)
	}

	<-imp.Done

	return imp.Result, nil
}

// GetImportProgress returns the current progress without blocking.
func (s *Service) GetImportProgress(batchID string) (ImportProgress, error) {
	s.mu.RLock()
	imp, ok := s.imports[batchID]
	s.mu.RUnlock()

	if !ok {
		return ImportProgress{}, fmt.Errorf("import not found: %s", batchID)
	}

	return imp.Progress, nil
}

// processImport runs the pipeline for one file and persists the batch.
func (s *Service) processImport(ctx context.Context, imp *activeImport, actor string, data []byte) {
	startTime := time.Now()

	defer func() {
		imp.closeListeners()
		close(imp.Done)
		s.cleanup(imp.ID, 5*time.Minute)
	}()

	imp.Progress.Phase = PhaseParsing
	imp.notifyProgress()

	parsed, err := Parse(data, s.cfg.MaxRows)
	if err != nil {
		// Header unusable: record the batch as failed, no rows staged.
		s.finalizeFailed(ctx, imp, actor, err.Error(), startTime)
		return
	}

	if len(parsed.Rows) == 0 {
		reason := "no data rows"
		if len(parsed.BadRows) > 0 {
			reason = fmt.Sprintf("no readable rows (%d malformed)", len(parsed.BadRows))
		}
		s.finalizeFailed(ctx, imp, actor, reason, startTime)
		return
	}

	imp.Progress.Phase = PhaseValidating
	imp.Progress.TotalRows = len(parsed.Rows)
	imp.notifyProgress()

	published, err := s.store.ListEvents(ctx)
	if err != nil {
		s.failImport(imp, fmt.Sprintf("load published events: %v", err), startTime)
		return
	}

	importedAt := time.Now().UTC()
	staged := make([]domain.StagingEvent, 0, len(parsed.Rows))
	var successCount, errorCount, warningCount int

	for i, row := range parsed.Rows {
		if ctx.Err() != nil {
			imp.Progress.Phase = PhaseCancelled
			imp.notifyProgress()
			imp.Result = &ImportResult{
				BatchID:  imp.ID,
				FileName: imp.FileName,
				Duration: time.Since(startTime),
				Error:    "cancelled",
			}
			return
		}

		ev := s.stageRow(row, imp.ID, importedAt)
		ev.Duplicates = s.detector.Detect(ev.Event, published)

		switch {
		case len(ev.Errors) > 0:
			errorCount++
		case len(ev.Warnings) > 0:
			warningCount++
		default:
			successCount++
		}

		staged = append(staged, ev)
		imp.Progress.CurrentRow = i + 1
		if (i+1)%50 == 0 {
			imp.notifyProgress()
		}
	}

	status := domain.BatchCompleted
	if len(parsed.BadRows) > 0 {
		status = domain.BatchPartialSuccess
	}

	batch := domain.ImportBatch{
		ID:           imp.ID,
		FileName:     imp.FileName,
		ImportedAt:   importedAt,
		ImportedBy:   actor,
		TotalRows:    len(staged),
		SuccessCount: successCount,
		ErrorCount:   errorCount,
		WarningCount: warningCount,
		Status:       status,
	}

	imp.Progress.Phase = PhaseStaging
	imp.notifyProgress()

	if err := s.store.CreateBatch(ctx, batch, staged); err != nil {
		s.failImport(imp, fmt.Sprintf("persist batch: %v", err), startTime)
		return
	}

	s.logOps(ctx, actor, domain.ActionImport, batch.ID, "ImportBatch",
		fmt.Sprintf("%s: %d rows staged (%d ok, %d errors, %d warnings)",
			batch.FileName, batch.TotalRows, successCount, errorCount, warningCount))

	imp.Progress.Phase = PhaseComplete
	imp.Progress.CurrentRow = len(staged)
	imp.notifyProgress()
	imp.Result = &ImportResult{
		BatchID:      batch.ID,
		FileName:     batch.FileName,
		Status:       status,
		TotalRows:    batch.TotalRows,
		SuccessCount: successCount,
		ErrorCount:   errorCount,
		WarningCount: warningCount,
		BadRows:      parsed.BadRows,
		Duration:     time.Since(startTime),
	}

	s.logger.Info("import complete",
		"batch_id", batch.ID,
		"file", batch.FileName,
		"rows", batch.TotalRows,
		"errors", errorCount,
		"warnings", warningCount,
		"status", status,
		"duration", time.Since(startTime),
	)
}

// finalizeFailed records a failed batch with no staged rows.
func (s *Service) finalizeFailed(ctx context.Context, imp *activeImport, actor, reason string, startTime time.Time) {
	batch := domain.ImportBatch{
		ID:         imp.ID,
		FileName:   imp.FileName,
		ImportedAt: time.Now().UTC(),
		ImportedBy: actor,
		Status:     domain.BatchFailed,
	}
	if err := s.store.CreateBatch(ctx, batch, nil); err != nil {
		s.logger.Error("persist failed batch", "batch_id", imp.ID, "error", err)
	}
	s.logOps(ctx, actor, domain.ActionImport, batch.ID, "ImportBatch",
		fmt.Sprintf("%s: import failed: %s", imp.FileName, reason))

	imp.Progress.Phase = PhaseFailed
	imp.Progress.Error = reason
	imp.notifyProgress()
	imp.Result = &ImportResult{
		BatchID:  imp.ID,
		FileName: imp.FileName,
		Status:   domain.BatchFailed,
		Duration: time.Since(startTime),
		Error:    reason,
	}
}

// failImport marks the import failed without recording a batch, for
// infrastructure errors rather than bad input.
func (s *Service) failImport(imp *activeImport, reason string, startTime time.Time) {
	imp.Progress.Phase = PhaseFailed
	imp.Progress.Error = reason
	imp.notifyProgress()
	imp.Result = &ImportResult{
		BatchID:  imp.ID,
		FileName: imp.FileName,
		Status:   domain.BatchFailed,
		Duration: time.Since(startTime),
		Error:    reason,
	}
	s.logger.Error("import failed", "batch_id", imp.ID, "error", reason)
}

// stageRow validates one parsed row and builds its staging record.
func (s *Service) stageRow(row Row, batchID string, importedAt time.Time) domain.StagingEvent {
	errs, warns := ValidateRow(row.Fields)

	ev := domain.StagingEvent{
		Event:         eventFromFields(row.Fields),
		ImportBatchID: batchID,
		ImportedAt:    importedAt,
		Line:          row.Line,
		Errors:        errs,
		Warnings:      warns,
	}
	ev.ID = uuid.New().String()
	ev.Status = domain.StatusStaging
	return ev
}

// eventFromFields maps cleaned cell values onto the event payload.
// Unparseable dates become zero values; validation reports them
// separately.
func eventFromFields(fields map[string]string) domain.Event {
	ev := domain.Event{
		Title:       fields[FieldTitle],
		Summary:     fields[FieldSummary],
		OfficialURL: fields[FieldOfficialURL],
		VenueName:   fields[FieldVenueName],
		Area: domain.Area{
			Slug: fields[FieldAreaSlug],
			Name: fields[FieldAreaName],
		},
		Categories: SplitList(fields[FieldCategories]),
		Status:     domain.StatusStaging,
	}

	if t, ok := parseDate(fields[FieldUpdatedAt]); ok {
		ev.UpdatedAt = t
	}
	if t, ok := parseDateTime(fields[FieldStartAt]); ok {
		ev.StartAt = &t
	}
	if t, ok := parseDateTime(fields[FieldEndAt]); ok {
		ev.EndAt = &t
	}
	return ev
}

// fieldsFromEvent is the inverse mapping, used to re-validate after
// operator edits.
func fieldsFromEvent(ev domain.Event) map[string]string {
	fields := map[string]string{
		FieldTitle:       ev.Title,
		FieldSummary:     ev.Summary,
		FieldOfficialURL: ev.OfficialURL,
		FieldVenueName:   ev.VenueName,
		FieldAreaName:    ev.Area.Name,
		FieldAreaSlug:    ev.Area.Slug,
		FieldCategories:  strings.Join(ev.Categories, ","),
		FieldUpdatedAt:   "",
		FieldStartAt:     "",
		FieldEndAt:       "",
	}
	if !ev.UpdatedAt.IsZero() {
		fields[FieldUpdatedAt] = ev.UpdatedAt.Format("2006-01-02")
	}
	if ev.StartAt != nil {
		fields[FieldStartAt] = ev.StartAt.Format(time.RFC3339)
	}
	if ev.EndAt != nil {
		fields[FieldEndAt] = ev.EndAt.Format(time.RFC3339)
	}
	return fields
}

// logOps appends an audit entry. Failures are logged, never fatal.
func (s *Service) logOps(ctx context.Context, actor string, action domain.OpsAction, targetID, targetType, details string) {
	entry := domain.OpsEntry{
		ID:         uuid.New().String(),
		Action:     action,
		Actor:      actor,
		TargetID:   targetID,
		TargetType: targetType,
		Details:    details,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.AppendOpsLog(ctx, entry); err != nil {
		s.logger.Error("append ops log", "action", action, "target", targetID, "error", err)
	}
}

// notifyProgress sends progress updates to all listeners.
func (imp *activeImport) notifyProgress() {
	imp.ListenerMu.Lock()
	defer imp.ListenerMu.Unlock()

	for _, ch := range imp.Listeners {
		select {
		case ch <- imp.Progress:
		default:
			// Listener is slow, skip this update
		}
	}
}

// closeListeners closes all listener channels.
func (imp *activeImport) closeListeners() {
	imp.ListenerMu.Lock()
	defer imp.ListenerMu.Unlock()

	for _, ch := range imp.Listeners {
		close(ch)
	}
	imp.Listeners = nil
}

// cleanup removes the import from tracking after a delay.
func (s *Service) cleanup(batchID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.imports, batchID)
		s.mu.Unlock()
	})
}
