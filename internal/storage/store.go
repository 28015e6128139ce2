package storage

import (
	"context"
	"errors"
	"time"

	"github.com/lte-gateway/enodebd/internal/models"
)

// Common errors
var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidData = errors.New("invalid data")
)

// Store defines the storage interface
type Store interface {
	// Transaction support
	BeginTx(ctx context.Context) (Store, error)
	Commit() error
	Rollback() error

	// eNodeB methods
	SaveEnodeb(ctx context.Context, enb *models.Enodeb) error
	GetEnodeb(ctx context.Context, serial string) (*models.Enodeb, error)
	ListEnodebs(ctx context.Context, limit, offset int) ([]*models.Enodeb, int64, error)

	// Desired config override methods
	SaveEnodebConfig(ctx context.Context, cfg *models.EnodebConfig) error
	GetEnodebConfig(ctx context.Context, serial string) (*models.EnodebConfig, error)
	DeleteEnodebConfig(ctx context.Context, serial string) error

	// Event log methods
	CreateEventLog(ctx context.Context, event *models.EventLog) error
	ListEventLogs(ctx context.Context, filters EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error)

	// Close the store
	Close() error
}

// EventLogFilters represents filters for event logs
type EventLogFilters struct {
	Serial    *string
	Type      *models.EventType
	Level     *models.EventLevel
	StartTime *time.Time
	EndTime   *time.Time
}
