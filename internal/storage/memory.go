package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lte-gateway/enodebd/internal/models"
)

// MemoryStore keeps everything in process memory. It backs deployments
// without a database and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	enodebs map[string]models.Enodeb
	configs map[string]models.EnodebConfig
	events  []models.EventLog
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		enodebs: make(map[string]models.Enodeb),
		configs: make(map[string]models.EnodebConfig),
	}
}

// BeginTx returns the store itself, writes apply immediately
func (s *MemoryStore) BeginTx(ctx context.Context) (Store, error) { return s, nil }

// Commit is a no-op
func (s *MemoryStore) Commit() error { return nil }

// Rollback is a no-op
func (s *MemoryStore) Rollback() error { return nil }

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }

// SaveEnodeb inserts or updates an eNodeB record
func (s *MemoryStore) SaveEnodeb(ctx context.Context, enb *models.Enodeb) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if old, ok := s.enodebs[enb.Serial]; ok {
		enb.CreatedAt = old.CreatedAt
	} else if enb.CreatedAt.IsZero() {
		enb.CreatedAt = now
	}
	enb.UpdatedAt = now
	s.enodebs[enb.Serial] = *enb
	return nil
}

// GetEnodeb retrieves an eNodeB by serial number
func (s *MemoryStore) GetEnodeb(ctx context.Context, serial string) (*models.Enodeb, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	enb, ok := s.enodebs[serial]
	if !ok {
		return nil, ErrNotFound
	}
	return &enb, nil
}

// ListEnodebs lists eNodeBs ordered by serial
func (s *MemoryStore) ListEnodebs(ctx context.Context, limit, offset int) ([]*models.Enodeb, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	serials := make([]string, 0, len(s.enodebs))
	for serial := range s.enodebs {
		serials = append(serials, serial)
	}
	sort.Strings(serials)

	var out []*models.Enodeb
	for _, serial := range page(serials, limit, offset) {
		enb := s.enodebs[serial]
		out = append(out, &enb)
	}
	return out, int64(len(serials)), nil
}

// SaveEnodebConfig inserts or replaces the desired config override of a device
func (s *MemoryStore) SaveEnodebConfig(ctx context.Context, cfg *models.EnodebConfig) error {
	if len(cfg.Config) == 0 {
		return ErrInvalidData
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if old, ok := s.configs[cfg.Serial]; ok {
		cfg.CreatedAt = old.CreatedAt
	} else if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now
	stored := *cfg
	stored.Config = append([]byte(nil), cfg.Config...)
	s.configs[cfg.Serial] = stored
	return nil
}

// GetEnodebConfig retrieves the desired config override of a device
func (s *MemoryStore) GetEnodebConfig(ctx context.Context, serial string) (*models.EnodebConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[serial]
	if !ok {
		return nil, ErrNotFound
	}
	cfg.Config = append([]byte(nil), cfg.Config...)
	return &cfg, nil
}

// DeleteEnodebConfig removes the override of a device
func (s *MemoryStore) DeleteEnodebConfig(ctx context.Context, serial string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.configs[serial]; !ok {
		return ErrNotFound
	}
	delete(s.configs, serial)
	return nil
}

// CreateEventLog creates an event log entry
func (s *MemoryStore) CreateEventLog(ctx context.Context, event *models.EventLog) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

// ListEventLogs lists event logs with filters, newest first
func (s *MemoryStore) ListEventLogs(ctx context.Context, filters EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []int
	for i := len(s.events) - 1; i >= 0; i-- {
		if filters.match(&s.events[i]) {
			matched = append(matched, i)
		}
	}

	var out []*models.EventLog
	for _, i := range page(matched, limit, offset) {
		ev := s.events[i]
		out = append(out, &ev)
	}
	return out, int64(len(matched)), nil
}

func (f EventLogFilters) match(ev *models.EventLog) bool {
	if f.Serial != nil && ev.Serial != *f.Serial {
		return false
	}
	if f.Type != nil && ev.Type != *f.Type {
		return false
	}
	if f.Level != nil && ev.Level != *f.Level {
		return false
	}
	if f.StartTime != nil && ev.CreatedAt.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && ev.CreatedAt.After(*f.EndTime) {
		return false
	}
	return true
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
