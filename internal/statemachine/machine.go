package statemachine

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lte-gateway/enodebd/internal/datamodel"
	"github.com/lte-gateway/enodebd/internal/deviceconfig"
	"github.com/lte-gateway/enodebd/pkg/tr069"
)

var (
	// ErrGraphConfiguration is returned when a state graph names an undefined state
	ErrGraphConfiguration = errors.New("invalid state graph")
	// ErrProtocolViolation marks an event the active state does not accept
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrTimeout marks a wait state whose deadline passed
	ErrTimeout = errors.New("state timeout")
	// ErrRebootNotAllowed is returned when a reboot would break an exchange in flight
	ErrRebootNotAllowed = errors.New("reboot not allowed in current state")
)

// DesiredSource supplies the vendor-neutral desired state of a device.
// A nil result means the device has no configuration to enforce.
type DesiredSource interface {
	Desired(serial string) (*deviceconfig.Desired, error)
}

// Config holds what a machine needs besides its graph
type Config struct {
	Serial        string
	DeviceName    string
	Model         datamodel.DataModel
	PostProcessor deviceconfig.PostProcessor
	Desired       DesiredSource
	Observer      Observer
	Timeouts      Timeouts
	Clock         func() time.Time
}

// GraphBuilder creates the state graph of a device family bound to a machine
type GraphBuilder func(m *Machine) Graph

// Machine drives the configuration session of one device. It is not safe
// for concurrent use; callers serialise access per device.
type Machine struct {
	serial     string
	deviceName string
	model      datamodel.DataModel
	pp         deviceconfig.PostProcessor
	source     DesiredSource
	observer   Observer
	timeouts   Timeouts
	clock      func() time.Time
	logger     zerolog.Logger

	graph    Graph
	state    string
	deadline time.Time

	deviceCfg  *deviceconfig.Configuration
	desiredCfg *deviceconfig.Configuration
	unmanaged  bool

	presence   map[datamodel.ParameterName]bool
	unreadable map[datamodel.ParameterName]bool
	transient  map[datamodel.ParameterName]any

	deviceID        *tr069.DeviceID
	lastSeen        time.Time
	lastRequest     tr069.RPCKind
	rebootRequired  bool
	pendingSet      map[datamodel.ParameterName]any
	pendingInvasive bool
	paramKey        int
}

// NewMachine builds and validates the graph and places the machine in the
// disconnected state.
func NewMachine(cfg Config, build GraphBuilder) (*Machine, error) {
	if cfg.Model == nil {
		return nil, errors.New("statemachine: data model is required")
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	cfg.Timeouts = cfg.Timeouts.withDefaults()

	m := &Machine{
		serial:     cfg.Serial,
		deviceName: cfg.DeviceName,
		model:      cfg.Model,
		pp:         cfg.PostProcessor,
		source:     cfg.Desired,
		observer:   cfg.Observer,
		timeouts:   cfg.Timeouts,
		clock:      cfg.Clock,
		logger:     log.With().Str("serial", cfg.Serial).Str("device", cfg.DeviceName).Logger(),
	}
	m.resetSession()

	m.graph = build(m)
	if err := m.graph.Validate(); err != nil {
		return nil, err
	}
	m.state = StateDisconnected
	return m, nil
}

// Handle processes one inbound event and returns at most one outbound
// request. A nil request means the exchange ends with an empty response.
func (m *Machine) Handle(ev tr069.Event) (*tr069.Request, error) {
	m.lastSeen = m.clock()
	if ev.DeviceID != nil {
		m.deviceID = ev.DeviceID
	}

	tr, handled := m.graph[m.state].State.Read(ev)
	if !handled {
		m.logger.Warn().
			Str("state", m.state).
			Str("event", string(ev.Kind)).
			Msg("unexpected message for state")
		m.observer.ProtocolViolation(m.serial, m.state, ev.Kind)

		if ev.Fault != nil {
			m.logger.Error().Err(ev.Fault).Msg("device returned fault")
		}
		// without a session only an Inform can open one
		if m.state == StateDisconnected && ev.Kind != tr069.EventInform {
			return nil, nil
		}
		if err := m.Transition(StateUnexpectedInform); err != nil {
			return nil, err
		}
		if ev.Kind != tr069.EventInform {
			return nil, nil
		}
		tr, handled = m.graph[m.state].State.Read(ev)
		if !handled {
			return nil, fmt.Errorf("%w: %s does not accept Inform", ErrGraphConfiguration, m.state)
		}
	}

	if !m.graph[m.state].FixedDeadline {
		m.resetDeadline()
	}
	if tr.Next != "" {
		if err := m.Transition(tr.Next); err != nil {
			return nil, err
		}
	}
	if tr.EndSession {
		return nil, nil
	}
	return m.get(ev)
}

// get asks the active state for its request, following states that only
// forward to another state.
func (m *Machine) get(ev tr069.Event) (*tr069.Request, error) {
	for hops := 0; hops <= len(m.graph); hops++ {
		out := m.graph[m.state].State.Get(ev)
		if out.Next != "" {
			if err := m.Transition(out.Next); err != nil {
				return nil, err
			}
		}
		if out.Request != nil {
			m.lastRequest = out.Request.Kind
			m.observer.RequestSent(m.serial, out.Request.Kind)
			return out.Request, nil
		}
		if out.EndSession || out.Next == "" {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("%w: request chain from %s does not settle", ErrGraphConfiguration, m.state)
}

// Transition moves to a named state
func (m *Machine) Transition(next string) error {
	cfg, ok := m.graph[next]
	if !ok {
		return fmt.Errorf("%w: unknown state %q", ErrGraphConfiguration, next)
	}
	if exiter, ok := m.graph[m.state].State.(Exiter); ok && m.state != "" {
		exiter.Exit()
	}

	from := m.state
	m.state = next
	m.setDeadline(cfg)
	if next == StateDisconnected {
		m.resetSession()
	}
	if enterer, ok := cfg.State.(Enterer); ok {
		enterer.Enter()
	}

	m.logger.Debug().Str("from", from).Str("to", next).Msg("state transition")
	m.observer.StateChanged(m.serial, from, next)
	return nil
}

// CheckTimeout applies the timeout transition of the active state when its
// deadline has passed. It reports whether a transition happened.
func (m *Machine) CheckTimeout(now time.Time) bool {
	if m.deadline.IsZero() || now.Before(m.deadline) {
		return false
	}
	cfg := m.graph[m.state]
	if cfg.OnTimeout == "" {
		m.deadline = time.Time{}
		return false
	}

	m.logger.Warn().
		Str("state", m.state).
		Str("to", cfg.OnTimeout).
		Err(ErrTimeout).
		Msg("no response before deadline")
	m.observer.TimedOut(m.serial, m.state)

	if err := m.Transition(cfg.OnTimeout); err != nil {
		m.logger.Error().Err(err).Msg("timeout transition failed")
		return false
	}
	return true
}

// RebootAsap schedules a reboot for the next exchange. It is only honoured
// between polling cycles.
func (m *Machine) RebootAsap() error {
	if m.state != StateGetTransientParams {
		return fmt.Errorf("%w: %s", ErrRebootNotAllowed, m.state)
	}
	m.logger.Info().Msg("reboot requested")
	return m.Transition(StateReboot)
}

// IsConnected reports whether the device has an active session
func (m *Machine) IsConnected() bool {
	return m.state != StateDisconnected
}

// State returns the active state name
func (m *Machine) State() string {
	return m.state
}

// Deadline returns the timeout deadline of the active state, zero when none
func (m *Machine) Deadline() time.Time {
	return m.deadline
}

// InvalidateDesired drops the computed desired configuration so the next
// poll re-reads the device and rebuilds it.
func (m *Machine) InvalidateDesired() {
	m.desiredCfg = nil
	m.unmanaged = false
}

// Status is a point-in-time view of a session
type Status struct {
	Serial         string          `json:"serial"`
	Device         string          `json:"device"`
	State          string          `json:"state"`
	Connected      bool            `json:"connected"`
	LastSeen       time.Time       `json:"lastSeen"`
	LastRequest    string          `json:"lastRequest,omitempty"`
	RebootRequired bool            `json:"rebootRequired"`
	Synced         bool            `json:"synced"`
	DeviceID       *tr069.DeviceID `json:"deviceId,omitempty"`
	Transient      map[string]any  `json:"transient,omitempty"`
}

// Status returns a snapshot of the session
func (m *Machine) Status() Status {
	transient := make(map[string]any, len(m.transient))
	for k, v := range m.transient {
		transient[string(k)] = v
	}
	synced := m.desiredCfg != nil && deviceconfig.InSync(m.desiredCfg, m.deviceCfg, m.skipSet)
	return Status{
		Serial:         m.serial,
		Device:         m.deviceName,
		State:          m.state,
		Connected:      m.IsConnected(),
		LastSeen:       m.lastSeen,
		LastRequest:    string(m.lastRequest),
		RebootRequired: m.rebootRequired,
		Synced:         synced,
		DeviceID:       m.deviceID,
		Transient:      transient,
	}
}

// CurrentConfig returns a snapshot of the values reported by the device
func (m *Machine) CurrentConfig() map[string]any {
	return m.deviceCfg.Snapshot()
}

// DesiredConfig returns a snapshot of the desired values, nil when not built
func (m *Machine) DesiredConfig() map[string]any {
	if m.desiredCfg == nil {
		return nil
	}
	return m.desiredCfg.Snapshot()
}

// Model returns the device data model
func (m *Machine) Model() datamodel.DataModel {
	return m.model
}

// DeviceConfig returns the live device configuration
func (m *Machine) DeviceConfig() *deviceconfig.Configuration {
	return m.deviceCfg
}

// Timeouts returns the configured state timeouts
func (m *Machine) Timeouts() Timeouts {
	return m.timeouts
}

func (m *Machine) resetSession() {
	m.deviceCfg = deviceconfig.New(m.model)
	m.desiredCfg = nil
	m.unmanaged = false
	m.presence = make(map[datamodel.ParameterName]bool)
	m.unreadable = make(map[datamodel.ParameterName]bool)
	m.transient = make(map[datamodel.ParameterName]any)
	m.pendingSet = nil
	m.pendingInvasive = false
}

func (m *Machine) setDeadline(cfg StateConfig) {
	if cfg.Timeout <= 0 || cfg.OnTimeout == "" {
		m.deadline = time.Time{}
		return
	}
	m.deadline = m.clock().Add(cfg.Timeout)
}

func (m *Machine) resetDeadline() {
	m.setDeadline(m.graph[m.state])
}

// rebuildDesired recomputes the desired configuration from the northbound
// source and the post-processor.
func (m *Machine) rebuildDesired() {
	m.desiredCfg = nil
	m.unmanaged = false
	if m.source == nil {
		m.unmanaged = true
		return
	}

	d, err := m.source.Desired(m.serial)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to load desired configuration")
		m.unmanaged = true
		return
	}
	if d == nil {
		m.logger.Debug().Msg("no desired configuration for device")
		m.unmanaged = true
		return
	}

	cfg, err := deviceconfig.BuildDesired(m.model, *d, m.pp)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to build desired configuration")
		m.unmanaged = true
		return
	}
	m.desiredCfg = cfg
}

// skipParam excludes optional parameters the device lacks and parameters it
// failed to report.
func (m *Machine) skipParam(name datamodel.ParameterName) bool {
	if m.unreadable[name] {
		return true
	}
	p, ok := m.model.GetParameter(name)
	if !ok {
		return true
	}
	return p.IsOptional && !m.presence[name]
}

// skipSet excludes desired values the device cannot take. PLMN sub-parameters
// follow their object instance instead of the presence check.
func (m *Machine) skipSet(name datamodel.ParameterName) bool {
	if datamodel.IsIndexed(name) {
		return false
	}
	return m.skipParam(name)
}

// optionalToProbe lists optional parameters whose presence is still unknown
func (m *Machine) optionalToProbe() []datamodel.ParameterName {
	var out []datamodel.ParameterName
	for _, name := range m.model.ParameterNames() {
		p, ok := m.model.GetParameter(name)
		if !ok || !p.IsOptional {
			continue
		}
		if _, known := m.presence[name]; !known {
			out = append(out, name)
		}
	}
	return out
}

// storeValues applies the magma transforms to wire values and writes them
// into cfg. Values failing to transform are skipped for this cycle.
func (m *Machine) storeValues(cfg *deviceconfig.Configuration, params []tr069.ParameterValue) map[datamodel.ParameterName]any {
	stored := make(map[datamodel.ParameterName]any, len(params))
	for _, pv := range params {
		name, ok := m.model.NameForPath(pv.Name)
		if !ok {
			continue
		}
		p, _ := m.model.GetParameter(name)
		if p.IsObject() {
			continue
		}
		v, err := datamodel.TransformForMagma(m.model, name, pv.Value)
		if err != nil {
			m.logger.Warn().Err(err).Str("param", string(name)).Str("value", pv.Value).Msg("skipping parameter")
			m.observer.TransformFailed(m.serial, name, err)
			continue
		}
		if err := cfg.SetParameter(name, v); err != nil {
			m.logger.Warn().Err(err).Str("param", string(name)).Msg("skipping parameter")
			continue
		}
		stored[name] = v
	}
	return stored
}

// syncObjects aligns PLMN instances in cfg with the reported entry count
func (m *Machine) syncObjects(cfg *deviceconfig.Configuration) {
	v, ok := cfg.GetParameter(datamodel.NumPlmns)
	if !ok {
		return
	}
	n, err := datamodel.ToInt(v)
	if err != nil {
		return
	}
	if n > m.model.NumPlmns() {
		m.logger.Warn().Int("reported", n).Int("slots", m.model.NumPlmns()).Msg("device reports more PLMNs than modelled")
		n = m.model.NumPlmns()
	}
	for i := 1; i <= m.model.NumPlmns(); i++ {
		obj := datamodel.PlmnN(i)
		if i <= n {
			if err := cfg.AddObject(obj); err != nil {
				m.logger.Warn().Err(err).Str("object", string(obj)).Msg("cannot record object")
			}
		} else if cfg.HasObject(obj) {
			cfg.DeleteObject(obj)
		}
	}
}

// pathsFor maps names to wire paths, dropping names the model lacks
func (m *Machine) pathsFor(names []datamodel.ParameterName) []string {
	paths := make([]string, 0, len(names))
	for _, name := range names {
		if p, ok := m.model.GetParameter(name); ok {
			paths = append(paths, p.Path)
		}
	}
	return paths
}

func (m *Machine) nextParameterKey() string {
	m.paramKey++
	return "enodebd-" + strconv.Itoa(m.paramKey)
}

// syncStep picks the next reconciliation step. Structural changes come
// before value pushes.
func (m *Machine) syncStep() syncAction {
	if m.desiredCfg == nil {
		return syncNone
	}
	switch {
	case len(deviceconfig.ObjectsToDelete(m.desiredCfg, m.deviceCfg)) > 0:
		return syncDelete
	case len(deviceconfig.ObjectsToAdd(m.desiredCfg, m.deviceCfg)) > 0:
		return syncAdd
	case len(deviceconfig.ParamValuesToSet(m.desiredCfg, m.deviceCfg, m.skipSet)) > 0:
		return syncSet
	}
	return syncNone
}

type syncAction int

const (
	syncNone syncAction = iota
	syncDelete
	syncAdd
	syncSet
)

func sortedNames(values map[datamodel.ParameterName]any) []datamodel.ParameterName {
	names := make([]datamodel.ParameterName, 0, len(values))
	for n := range values {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
