package store

import (
	"context"
	"sort"
	"sync"

	"github.com/machikado/eventops/internal/domain"
)

// Memory is an in-memory Store used by tests and local development.
type Memory struct {
	mu      sync.RWMutex
	batches map[string]domain.ImportBatch
	staging map[string]domain.StagingEvent
	events  map[string]domain.Event
	opsLog  []domain.OpsEntry
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		batches: make(map[string]domain.ImportBatch),
		staging: make(map[string]domain.StagingEvent),
		events:  make(map[string]domain.Event),
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) CreateBatch(_ context.Context, batch domain.ImportBatch, rows []domain.StagingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.batches[batch.ID] = batch
	for _, row := range rows {
		m.staging[row.ID] = row
	}
	return nil
}

func (m *Memory) GetBatch(_ context.Context, id string) (domain.ImportBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	batch, ok := m.batches[id]
	if !ok {
		return domain.ImportBatch{}, ErrNotFound
	}
	return batch, nil
}

func (m *Memory) ListBatches(_ context.Context) ([]domain.ImportBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.ImportBatch, 0, len(m.batches))
	for _, b := range m.batches {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ImportedAt.Equal(out[j].ImportedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].ImportedAt.After(out[j].ImportedAt)
	})
	return out, nil
}

func (m *Memory) GetStaging(_ context.Context, id string) (domain.StagingEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ev, ok := m.staging[id]
	if !ok {
		return domain.StagingEvent{}, ErrNotFound
	}
	return ev, nil
}

func (m *Memory) ListStaging(_ context.Context, filter StagingFilter) ([]domain.StagingEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.StagingEvent, 0, len(m.staging))
	for _, ev := range m.staging {
		if filter.BatchID != "" && ev.ImportBatchID != filter.BatchID {
			continue
		}
		if !matchesStatus(ev, filter.Status) {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ImportBatchID != out[j].ImportBatchID {
			return out[i].ImportBatchID < out[j].ImportBatchID
		}
		return out[i].Line < out[j].Line
	})
	return out, nil
}

func matchesStatus(ev domain.StagingEvent, status string) bool {
	switch status {
	case "":
		return true
	case FilterErrors:
		return len(ev.Errors) > 0
	case FilterWarnings:
		return len(ev.Errors) == 0 && len(ev.Warnings) > 0
	case FilterPublishable:
		return len(ev.Errors) == 0
	default:
		return false
	}
}

func (m *Memory) UpdateStaging(_ context.Context, ev domain.StagingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.staging[ev.ID]; !ok {
		return ErrNotFound
	}
	m.staging[ev.ID] = ev
	return nil
}

func (m *Memory) RemoveStaging(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.staging[id]; !ok {
		return false, nil
	}
	delete(m.staging, id)
	return true, nil
}

func (m *Memory) PublishStaging(_ context.Context, stagingID string, ev domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.staging[stagingID]; !ok {
		return ErrConflict
	}
	delete(m.staging, stagingID)
	m.events[ev.ID] = ev
	return nil
}

func (m *Memory) GetEvent(_ context.Context, id string) (domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ev, ok := m.events[id]
	if !ok {
		return domain.Event{}, ErrNotFound
	}
	return ev, nil
}

func (m *Memory) ListEvents(_ context.Context) ([]domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Event, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) AppendOpsLog(_ context.Context, entry domain.OpsEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.opsLog = append(m.opsLog, entry)
	return nil
}

func (m *Memory) ListOpsLog(_ context.Context, filter OpsLogFilter) ([]domain.OpsEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.OpsEntry, 0, len(m.opsLog))
	for i := len(m.opsLog) - 1; i >= 0; i-- {
		entry := m.opsLog[i]
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		out = append(out, entry)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}
