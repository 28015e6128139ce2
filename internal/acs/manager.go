// Package acs owns the device sessions: it routes inbound CWMP events to the
// per-device state machines, runs their timeouts and persists their status.
package acs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/lte-gateway/enodebd/internal/devices"
	"github.com/lte-gateway/enodebd/internal/mconfig"
	"github.com/lte-gateway/enodebd/internal/metrics"
	"github.com/lte-gateway/enodebd/internal/models"
	sm "github.com/lte-gateway/enodebd/internal/statemachine"
	"github.com/lte-gateway/enodebd/internal/storage"
	"github.com/lte-gateway/enodebd/pkg/tr069"
)

var (
	// ErrSessionNotFound is returned for a serial without a session
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidEvent is returned for events that cannot be routed
	ErrInvalidEvent = errors.New("invalid event")
)

// Options tunes the manager
type Options struct {
	// DefaultDevice is used when the device type cannot be detected
	DefaultDevice string
	Timeouts      sm.Timeouts
	SweepInterval time.Duration
	Clock         func() time.Time
	Metrics       *metrics.Collector
}

type session struct {
	mu      sync.Mutex
	machine *sm.Machine
	saved   string
}

// Manager holds one state machine per eNodeB
type Manager struct {
	nc       *nats.Conn
	store    storage.Store
	provider *mconfig.Provider
	opts     Options
	observer sm.Observer

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewManager creates a manager. nc may be nil when no bus is used.
func NewManager(nc *nats.Conn, store storage.Store, provider *mconfig.Provider, opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 5 * time.Second
	}
	if provider == nil {
		provider = mconfig.NewProvider(nil, store)
	}

	m := &Manager{
		nc:       nc,
		store:    store,
		provider: provider,
		opts:     opts,
		sessions: make(map[string]*session),
	}

	observers := sm.MultiObserver{&auditObserver{store: store}}
	if opts.Metrics != nil {
		observers = append(observers, opts.Metrics)
	}
	m.observer = observers
	return m
}

// HandleEvent feeds one inbound event to the device's state machine and
// returns the request to send back. A nil request ends the exchange.
func (m *Manager) HandleEvent(ctx context.Context, ev tr069.Event) (*tr069.Request, error) {
	if ev.Serial == "" && ev.DeviceID != nil {
		ev.Serial = ev.DeviceID.SerialNumber
	}
	if ev.Serial == "" {
		return nil, fmt.Errorf("%w: missing serial", ErrInvalidEvent)
	}

	s, err := m.session(ev)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	req, err := s.machine.Handle(ev)
	status := s.machine.Status()
	changed := status.State != s.saved || ev.Kind == tr069.EventInform
	if changed {
		s.saved = status.State
	}
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if changed {
		m.persist(ctx, status, softwareVersion(ev))
	}
	return req, nil
}

// session returns the session of the event's device, creating it on Inform
func (m *Manager) session(ev tr069.Event) (*session, error) {
	m.mu.RLock()
	s, ok := m.sessions[ev.Serial]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}
	if ev.Kind != tr069.EventInform {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, ev.Serial)
	}

	name, err := m.deviceName(ev)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[ev.Serial]; ok {
		return s, nil
	}

	machine, err := devices.NewMachine(name, sm.Config{
		Serial:   ev.Serial,
		Desired:  m.provider,
		Observer: m.observer,
		Timeouts: m.opts.Timeouts,
		Clock:    m.opts.Clock,
	})
	if err != nil {
		return nil, fmt.Errorf("create session for %s: %w", ev.Serial, err)
	}

	s = &session{machine: machine}
	m.sessions[ev.Serial] = s
	if m.opts.Metrics != nil {
		m.opts.Metrics.SetSessions(len(m.sessions))
	}

	log.Info().
		Str("serial", ev.Serial).
		Str("device", name).
		Msg("New eNodeB session")
	return s, nil
}

func (m *Manager) deviceName(ev tr069.Event) (string, error) {
	var oui string
	if ev.DeviceID != nil {
		oui = ev.DeviceID.OUI
	}
	name, err := devices.Detect(oui, softwareVersion(ev))
	if err == nil {
		return name, nil
	}
	if errors.Is(err, devices.ErrUnknownDevice) && m.opts.DefaultDevice != "" {
		log.Warn().
			Err(err).
			Str("serial", ev.Serial).
			Str("device", m.opts.DefaultDevice).
			Msg("Device not detected, using default")
		return m.opts.DefaultDevice, nil
	}
	return "", err
}

func softwareVersion(ev tr069.Event) string {
	for _, p := range ev.Params {
		if strings.HasSuffix(p.Name, ".SoftwareVersion") {
			return p.Value
		}
	}
	return ""
}

// Sweep applies due state timeouts. It returns the number of sessions that
// changed state.
func (m *Manager) Sweep(ctx context.Context) int {
	now := m.opts.Clock()
	var fired int
	for _, s := range m.all() {
		s.mu.Lock()
		moved := s.machine.CheckTimeout(now)
		status := s.machine.Status()
		if moved {
			s.saved = status.State
		}
		s.mu.Unlock()

		if moved {
			fired++
			m.persist(ctx, status, "")
		}
	}
	return fired
}

func (m *Manager) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(ctx); n > 0 {
				log.Debug().Int("sessions", n).Msg("State timeouts applied")
			}
		}
	}
}

// List returns the status of every session ordered by serial
func (m *Manager) List() []sm.Status {
	sessions := m.all()
	out := make([]sm.Status, 0, len(sessions))
	for _, s := range sessions {
		s.mu.Lock()
		out = append(out, s.machine.Status())
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out
}

// Status returns the status of one session
func (m *Manager) Status(serial string) (sm.Status, error) {
	s, err := m.get(serial)
	if err != nil {
		return sm.Status{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Status(), nil
}

// Config returns the current and desired configuration snapshots of one session
func (m *Manager) Config(serial string) (current, desired map[string]any, err error) {
	s, err := m.get(serial)
	if err != nil {
		return nil, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.CurrentConfig(), s.machine.DesiredConfig(), nil
}

// RebootAsap schedules a reboot for the next exchange with the device
func (m *Manager) RebootAsap(ctx context.Context, serial string) error {
	s, err := m.get(serial)
	if err != nil {
		return err
	}

	s.mu.Lock()
	err = s.machine.RebootAsap()
	status := s.machine.Status()
	if err == nil {
		s.saved = status.State
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	m.audit(ctx, &models.EventLog{
		Serial:      serial,
		Type:        models.EventTypeReboot,
		Level:       models.EventLevelInfo,
		Description: "Reboot scheduled",
	})
	m.persist(ctx, status, "")
	return nil
}

// UpdateDesired saves an operator override and makes the session pick it up
// on its next poll
func (m *Manager) UpdateDesired(ctx context.Context, serial string, cfg mconfig.EnodebConfig, user string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode override: %w", err)
	}
	if err := m.store.SaveEnodebConfig(ctx, &models.EnodebConfig{
		Serial:    serial,
		Config:    raw,
		UpdatedBy: user,
	}); err != nil {
		return err
	}

	m.InvalidateDesired(serial)
	m.audit(ctx, &models.EventLog{
		Serial:      serial,
		Type:        models.EventTypeConfigUpdate,
		Level:       models.EventLevelInfo,
		Description: "Desired configuration override saved",
		Details:     models.Variables{"user": user},
	})
	return nil
}

// DesiredFor returns the merged desired configuration of a device
func (m *Manager) DesiredFor(ctx context.Context, serial string) (mconfig.EnodebConfig, bool, error) {
	return m.provider.Config(ctx, serial)
}

// InvalidateDesired makes one session rebuild its desired configuration
func (m *Manager) InvalidateDesired(serial string) {
	s, err := m.get(serial)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.machine.InvalidateDesired()
	s.mu.Unlock()
}

// InvalidateAll makes every session rebuild its desired configuration
func (m *Manager) InvalidateAll() {
	for _, s := range m.all() {
		s.mu.Lock()
		s.machine.InvalidateDesired()
		s.mu.Unlock()
	}
}

func (m *Manager) get(serial string) (*session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[serial]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, serial)
	}
	return s, nil
}

func (m *Manager) all() []*session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// persist saves the session status and publishes it on the bus. An empty
// swVersion keeps the stored one.
func (m *Manager) persist(ctx context.Context, status sm.Status, swVersion string) {
	lastSeen := status.LastSeen
	enb := &models.Enodeb{
		Serial:         status.Serial,
		DeviceName:     status.Device,
		State:          status.State,
		Connected:      status.Connected,
		RebootRequired: status.RebootRequired,
		Transient:      models.Variables(status.Transient),
	}
	if !lastSeen.IsZero() {
		enb.LastSeenAt = &lastSeen
	}
	if id := status.DeviceID; id != nil {
		enb.OUI = id.OUI
		enb.Manufacturer = id.Manufacturer
		enb.ProductClass = id.ProductClass
	}
	enb.SWVersion = swVersion
	if swVersion == "" {
		if old, err := m.store.GetEnodeb(ctx, status.Serial); err == nil {
			enb.SWVersion = old.SWVersion
		}
	}

	if err := m.store.SaveEnodeb(ctx, enb); err != nil {
		log.Error().Err(err).Str("serial", status.Serial).Msg("Failed to save eNodeB")
	}
	m.publishStatus(status)
}

func (m *Manager) publishStatus(status sm.Status) {
	if m.nc == nil {
		return
	}
	data, err := json.Marshal(status)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal status")
		return
	}
	subject := fmt.Sprintf("enodebd.%s.status", status.Serial)
	if err := m.nc.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("Failed to publish status")
	}
}

func (m *Manager) audit(ctx context.Context, ev *models.EventLog) {
	if err := m.store.CreateEventLog(ctx, ev); err != nil {
		log.Error().Err(err).Str("type", string(ev.Type)).Msg("Failed to write event log")
	}
}
