package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machikado/eventops/internal/domain"
)

func seedBatch(t *testing.T, m *Memory, batchID string, rows ...domain.StagingEvent) {
	t.Helper()
	batch := domain.ImportBatch{
		ID:         batchID,
		FileName:   batchID + ".csv",
		ImportedAt: time.Now().UTC(),
		TotalRows:  len(rows),
		Status:     domain.BatchCompleted,
	}
	require.NoError(t, m.CreateBatch(context.Background(), batch, rows))
}

func stagingRow(id, batchID string, line int, errs []domain.ValidationError, warns []domain.ValidationWarning) domain.StagingEvent {
	ev := domain.StagingEvent{
		ImportBatchID: batchID,
		ImportedAt:    time.Now().UTC(),
		Line:          line,
		Errors:        errs,
		Warnings:      warns,
	}
	ev.ID = id
	ev.Title = "Event " + id
	ev.OfficialURL = "https://example.com/" + id
	ev.Status = domain.StatusStaging
	return ev
}

func TestMemory_BatchRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	seedBatch(t, m, "batch-1", stagingRow("row-1", "batch-1", 2, nil, nil))

	batch, err := m.GetBatch(ctx, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, "batch-1.csv", batch.FileName)
	assert.Equal(t, domain.BatchCompleted, batch.Status)

	_, err = m.GetBatch(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_ListBatchesMostRecentFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	old := domain.ImportBatch{ID: "old", ImportedAt: time.Now().Add(-time.Hour), Status: domain.BatchCompleted}
	recent := domain.ImportBatch{ID: "recent", ImportedAt: time.Now(), Status: domain.BatchCompleted}
	require.NoError(t, m.CreateBatch(ctx, old, nil))
	require.NoError(t, m.CreateBatch(ctx, recent, nil))

	batches, err := m.ListBatches(ctx)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, "recent", batches[0].ID)
}

func TestMemory_StagingFilters(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	withErr := stagingRow("row-err", "batch-1", 2,
		[]domain.ValidationError{{Field: "title", Code: domain.CodeEmptyTitle}}, nil)
	withWarn := stagingRow("row-warn", "batch-1", 3, nil,
		[]domain.ValidationWarning{{Field: "startAt", Code: domain.CodeMissingStartDate}})
	clean := stagingRow("row-clean", "batch-1", 4, nil, nil)
	other := stagingRow("row-other", "batch-2", 2, nil, nil)

	seedBatch(t, m, "batch-1", withErr, withWarn, clean)
	seedBatch(t, m, "batch-2", other)

	all, err := m.ListStaging(ctx, StagingFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	byBatch, err := m.ListStaging(ctx, StagingFilter{BatchID: "batch-1"})
	require.NoError(t, err)
	require.Len(t, byBatch, 3)
	// Ordered by line.
	assert.Equal(t, "row-err", byBatch[0].ID)
	assert.Equal(t, "row-clean", byBatch[2].ID)

	errored, err := m.ListStaging(ctx, StagingFilter{Status: FilterErrors})
	require.NoError(t, err)
	require.Len(t, errored, 1)
	assert.Equal(t, "row-err", errored[0].ID)

	warned, err := m.ListStaging(ctx, StagingFilter{Status: FilterWarnings})
	require.NoError(t, err)
	require.Len(t, warned, 1)
	assert.Equal(t, "row-warn", warned[0].ID)

	publishable, err := m.ListStaging(ctx, StagingFilter{Status: FilterPublishable})
	require.NoError(t, err)
	assert.Len(t, publishable, 3)
	for _, row := range publishable {
		assert.Empty(t, row.Errors, "publishable row %s must have no errors", row.ID)
	}
}

func TestMemory_UpdateStaging(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	row := stagingRow("row-1", "batch-1", 2, nil, nil)
	seedBatch(t, m, "batch-1", row)

	row.Title = "Edited"
	require.NoError(t, m.UpdateStaging(ctx, row))

	got, err := m.GetStaging(ctx, "row-1")
	require.NoError(t, err)
	assert.Equal(t, "Edited", got.Title)

	missing := stagingRow("ghost", "batch-1", 9, nil, nil)
	assert.ErrorIs(t, m.UpdateStaging(ctx, missing), ErrNotFound)
}

func TestMemory_RemoveStagingIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	seedBatch(t, m, "batch-1", stagingRow("row-1", "batch-1", 2, nil, nil))

	removed, err := m.RemoveStaging(ctx, "row-1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = m.RemoveStaging(ctx, "row-1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestMemory_PublishStaging(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	row := stagingRow("row-1", "batch-1", 2, nil, nil)
	seedBatch(t, m, "batch-1", row)

	ev := row.Event
	ev.Status = domain.StatusPublished
	require.NoError(t, m.PublishStaging(ctx, "row-1", ev))

	// Staging row is gone, event landed.
	_, err := m.GetStaging(ctx, "row-1")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := m.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPublished, got.Status)

	// A second publish of the same staging id loses the race.
	assert.ErrorIs(t, m.PublishStaging(ctx, "row-1", ev), ErrConflict)
}

func TestMemory_OpsLog(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for i, action := range []domain.OpsAction{domain.ActionImport, domain.ActionPublish, domain.ActionPublish, domain.ActionArchive} {
		require.NoError(t, m.AppendOpsLog(ctx, domain.OpsEntry{
			ID:        string(rune('a' + i)),
			Action:    action,
			CreatedAt: time.Now().UTC(),
		}))
	}

	all, err := m.ListOpsLog(ctx, OpsLogFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	// Most recent first.
	assert.Equal(t, domain.ActionArchive, all[0].Action)

	published, err := m.ListOpsLog(ctx, OpsLogFilter{Action: domain.ActionPublish})
	require.NoError(t, err)
	assert.Len(t, published, 2)

	limited, err := m.ListOpsLog(ctx, OpsLogFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
