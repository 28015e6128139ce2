package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lte-gateway/enodebd/internal/models"
)

const enodebColumns = `serial, device_name, oui, manufacturer, product_class, sw_version,
            state, connected, reboot_required, last_seen_at, transient, created_at, updated_at`

// SaveEnodeb inserts or updates an eNodeB record
func (s *PostgresStore) SaveEnodeb(ctx context.Context, enb *models.Enodeb) error {
	now := time.Now()
	if enb.CreatedAt.IsZero() {
		enb.CreatedAt = now
	}
	enb.UpdatedAt = now

	query := `
        INSERT INTO enodebs (` + enodebColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        ON CONFLICT (serial) DO UPDATE SET
            device_name = EXCLUDED.device_name,
            oui = EXCLUDED.oui,
            manufacturer = EXCLUDED.manufacturer,
            product_class = EXCLUDED.product_class,
            sw_version = EXCLUDED.sw_version,
            state = EXCLUDED.state,
            connected = EXCLUDED.connected,
            reboot_required = EXCLUDED.reboot_required,
            last_seen_at = EXCLUDED.last_seen_at,
            transient = EXCLUDED.transient,
            updated_at = EXCLUDED.updated_at`

	_, err := s.getDB().ExecContext(ctx, query,
		enb.Serial, enb.DeviceName, enb.OUI, enb.Manufacturer, enb.ProductClass,
		enb.SWVersion, enb.State, enb.Connected, enb.RebootRequired,
		enb.LastSeenAt, enb.Transient, enb.CreatedAt, enb.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save enodeb %s: %w", enb.Serial, err)
	}
	return nil
}

// GetEnodeb retrieves an eNodeB by serial number
func (s *PostgresStore) GetEnodeb(ctx context.Context, serial string) (*models.Enodeb, error) {
	query := `SELECT ` + enodebColumns + ` FROM enodebs WHERE serial = $1`

	enb, err := scanEnodeb(s.getDB().QueryRowContext(ctx, query, serial))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return enb, nil
}

// ListEnodebs lists eNodeBs ordered by serial
func (s *PostgresStore) ListEnodebs(ctx context.Context, limit, offset int) ([]*models.Enodeb, int64, error) {
	var count int64
	if err := s.getDB().QueryRowContext(ctx, "SELECT COUNT(*) FROM enodebs").Scan(&count); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + enodebColumns + ` FROM enodebs ORDER BY serial LIMIT $1 OFFSET $2`
	rows, err := s.getDB().QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var enbs []*models.Enodeb
	for rows.Next() {
		enb, err := scanEnodeb(rows)
		if err != nil {
			return nil, 0, err
		}
		enbs = append(enbs, enb)
	}
	return enbs, count, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEnodeb(row rowScanner) (*models.Enodeb, error) {
	enb := &models.Enodeb{}
	var lastSeen sql.NullTime
	err := row.Scan(
		&enb.Serial, &enb.DeviceName, &enb.OUI, &enb.Manufacturer, &enb.ProductClass,
		&enb.SWVersion, &enb.State, &enb.Connected, &enb.RebootRequired,
		&lastSeen, &enb.Transient, &enb.CreatedAt, &enb.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		enb.LastSeenAt = &lastSeen.Time
	}
	return enb, nil
}

// SaveEnodebConfig inserts or replaces the desired config override of a device
func (s *PostgresStore) SaveEnodebConfig(ctx context.Context, cfg *models.EnodebConfig) error {
	if len(cfg.Config) == 0 {
		return ErrInvalidData
	}
	now := time.Now()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	query := `
        INSERT INTO enodeb_configs (serial, config, updated_by, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (serial) DO UPDATE SET
            config = EXCLUDED.config,
            updated_by = EXCLUDED.updated_by,
            updated_at = EXCLUDED.updated_at`

	_, err := s.getDB().ExecContext(ctx, query,
		cfg.Serial, []byte(cfg.Config), cfg.UpdatedBy, cfg.CreatedAt, cfg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save enodeb config %s: %w", cfg.Serial, err)
	}
	return nil
}

// GetEnodebConfig retrieves the desired config override of a device
func (s *PostgresStore) GetEnodebConfig(ctx context.Context, serial string) (*models.EnodebConfig, error) {
	query := `
        SELECT serial, config, updated_by, created_at, updated_at
        FROM enodeb_configs WHERE serial = $1`

	cfg := &models.EnodebConfig{}
	var raw []byte
	err := s.getDB().QueryRowContext(ctx, query, serial).Scan(
		&cfg.Serial, &raw, &cfg.UpdatedBy, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	cfg.Config = raw
	return cfg, nil
}

// DeleteEnodebConfig removes the override of a device
func (s *PostgresStore) DeleteEnodebConfig(ctx context.Context, serial string) error {
	result, err := s.getDB().ExecContext(ctx, "DELETE FROM enodeb_configs WHERE serial = $1", serial)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
