package mconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lte-gateway/enodebd/internal/deviceconfig"
	"github.com/lte-gateway/enodebd/internal/models"
	"github.com/lte-gateway/enodebd/internal/storage"
)

// OverrideStore returns operator overrides saved through the API
type OverrideStore interface {
	GetEnodebConfig(ctx context.Context, serial string) (*models.EnodebConfig, error)
}

// Provider serves desired configurations to device sessions. File defaults
// and per serial entries are overlaid with operator overrides from the store.
type Provider struct {
	mu     sync.RWMutex
	cfg    *EnodebdConfig
	offset int64

	store   OverrideStore
	timeout time.Duration
}

// NewProvider creates a provider. Both arguments may be nil.
func NewProvider(cfg *EnodebdConfig, store OverrideStore) *Provider {
	return &Provider{cfg: cfg, store: store, timeout: 5 * time.Second}
}

// LoadFile replaces the file configuration with the content of path
func (p *Provider) LoadFile(path string) error {
	cfg, offset, err := Load(path)
	if err != nil {
		return err
	}
	p.Update(cfg, offset)
	return nil
}

// Update replaces the file configuration. Stale offsets are ignored.
func (p *Provider) Update(cfg *EnodebdConfig, offset int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if offset != 0 && offset < p.offset {
		log.Warn().Int64("offset", offset).Int64("current", p.offset).Msg("Ignoring stale mconfig")
		return false
	}
	p.cfg = cfg
	p.offset = offset
	log.Info().Int64("offset", offset).Msg("eNodeB mconfig updated")
	return true
}

// Offset returns the stream offset of the current file configuration
func (p *Provider) Offset() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.offset
}

// Config returns the merged configuration for one serial, and whether
// anything is configured for it at all
func (p *Provider) Config(ctx context.Context, serial string) (EnodebConfig, bool, error) {
	var merged EnodebConfig
	p.mu.RLock()
	if p.cfg != nil {
		merged = p.cfg.Default
		if dev, ok := p.cfg.Devices[serial]; ok {
			merged = merged.Merge(dev)
		}
	}
	p.mu.RUnlock()

	if p.store != nil {
		rec, err := p.store.GetEnodebConfig(ctx, serial)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return EnodebConfig{}, false, fmt.Errorf("load override: %w", err)
		default:
			var override EnodebConfig
			if err := json.Unmarshal(rec.Config, &override); err != nil {
				return EnodebConfig{}, false, fmt.Errorf("decode override for %s: %w", serial, err)
			}
			merged = merged.Merge(override)
		}
	}

	return merged, !merged.IsZero(), nil
}

// Desired implements statemachine.DesiredSource. A nil result means the
// device is not managed.
func (p *Provider) Desired(serial string) (*deviceconfig.Desired, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	cfg, ok, err := p.Config(ctx, serial)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return cfg.Desired(), nil
}
