package statemachine

import (
	"sort"

	"github.com/lte-gateway/enodebd/internal/datamodel"
	"github.com/lte-gateway/enodebd/internal/deviceconfig"
	"github.com/lte-gateway/enodebd/pkg/tr069"
)

// transientParams are polled every cycle to detect drift cheaply
var transientParams = []datamodel.ParameterName{
	datamodel.OpState,
	datamodel.RFTxStatus,
	datamodel.GPSStatus,
	datamodel.PTPStatus,
	datamodel.MMEStatus,
	datamodel.GPSLat,
	datamodel.GPSLong,
}

// SyncTargets names the states a reconciliation decision can lead to
type SyncTargets struct {
	Delete string
	Add    string
	Set    string
	Skip   string
}

func (t SyncTargets) list() []string {
	return []string{t.Delete, t.Add, t.Set, t.Skip}
}

// decide picks the reconciliation step for the current cycle. Skipping ends
// the CWMP session so the next poll waits for the device's next Inform.
func (m *Machine) decide(t SyncTargets) Transition {
	switch m.syncStep() {
	case syncDelete:
		return Transition{Next: t.Delete}
	case syncAdd:
		return Transition{Next: t.Add}
	case syncSet:
		return Transition{Next: t.Set}
	}
	return Transition{Next: t.Skip, EndSession: true}
}

func (m *Machine) processInform(ev tr069.Event) {
	m.storeValues(m.deviceCfg, ev.Params)
	if ev.HasEventCode(tr069.EventCodeBootstrap) || ev.HasEventCode(tr069.EventCodeBoot) {
		m.logger.Info().Strs("events", ev.EventCodes).Msg("device booted")
	}
}

// informState answers an Inform and moves on. It serves the session entry
// points: disconnected, unexpected_inform and wait_inform.
type informState struct {
	m    *Machine
	done string
}

// NewInformState creates a state that accepts an Inform and continues to done
func NewInformState(m *Machine, done string) State {
	return &informState{m: m, done: done}
}

func (s *informState) Read(ev tr069.Event) (Transition, bool) {
	if ev.Kind != tr069.EventInform {
		return Transition{}, false
	}
	s.m.processInform(ev)
	return Transition{}, true
}

func (s *informState) Get(tr069.Event) Output {
	return Output{Request: tr069.NewInformResponse(), Next: s.done}
}

func (s *informState) Targets() []string { return []string{s.done} }

type waitEmptyState struct {
	m    *Machine
	done string
}

// NewWaitEmptyState creates a state expecting the empty message that ends
// the device's Inform exchange
func NewWaitEmptyState(m *Machine, done string) State {
	return &waitEmptyState{m: m, done: done}
}

func (s *waitEmptyState) Read(ev tr069.Event) (Transition, bool) {
	if ev.Kind != tr069.EventEmpty {
		return Transition{}, false
	}
	return Transition{Next: s.done}, true
}

func (s *waitEmptyState) Get(tr069.Event) Output { return Output{} }

func (s *waitEmptyState) Targets() []string { return []string{s.done} }

// checkOptionalParamsState probes optional parameters once per session. The
// whole set is requested first; after a fault they are probed one by one.
type checkOptionalParamsState struct {
	m       *Machine
	done    string
	pending []datamodel.ParameterName
	single  bool
}

// NewCheckOptionalParamsState creates the optional parameter probe
func NewCheckOptionalParamsState(m *Machine, done string) State {
	return &checkOptionalParamsState{m: m, done: done}
}

func (s *checkOptionalParamsState) Enter() {
	s.pending = nil
	s.single = false
}

func (s *checkOptionalParamsState) Read(ev tr069.Event) (Transition, bool) {
	switch ev.Kind {
	case tr069.EventGetParameterValuesResponse:
		got := make(map[string]bool, len(ev.Params))
		for _, pv := range ev.Params {
			got[pv.Name] = true
		}
		for _, name := range s.pending {
			p, _ := s.m.model.GetParameter(name)
			s.m.presence[name] = got[p.Path]
		}
		s.m.storeValues(s.m.deviceCfg, ev.Params)
		s.pending = nil
		return Transition{}, true
	case tr069.EventFault:
		if !s.single && len(s.pending) > 1 {
			s.single = true
		} else {
			for _, name := range s.pending {
				s.m.presence[name] = false
			}
		}
		if ev.Fault != nil {
			s.m.logger.Debug().Int("code", ev.Fault.Code).Msg("optional parameter probe faulted")
		}
		s.pending = nil
		return Transition{}, true
	}
	return Transition{}, false
}

func (s *checkOptionalParamsState) Get(tr069.Event) Output {
	unknown := s.m.optionalToProbe()
	if len(unknown) == 0 {
		return Output{Next: s.done}
	}
	if s.single {
		unknown = unknown[:1]
	}
	s.pending = unknown
	return Output{Request: tr069.NewGetParameterValues(s.m.pathsFor(unknown))}
}

func (s *checkOptionalParamsState) Targets() []string { return []string{s.done} }

// getTransientParamsState is the top of the polling loop. It answers the
// device's Inform and then requests the transient parameters.
type getTransientParamsState struct {
	m    *Machine
	done string
}

// NewGetTransientParamsState creates the polling loop entry
func NewGetTransientParamsState(m *Machine, done string) State {
	return &getTransientParamsState{m: m, done: done}
}

func (s *getTransientParamsState) Read(ev tr069.Event) (Transition, bool) {
	switch ev.Kind {
	case tr069.EventInform:
		s.m.processInform(ev)
		return Transition{}, true
	case tr069.EventEmpty:
		return Transition{}, true
	}
	return Transition{}, false
}

func (s *getTransientParamsState) Get(ev tr069.Event) Output {
	if ev.Kind == tr069.EventInform {
		return Output{Request: tr069.NewInformResponse()}
	}

	var names []datamodel.ParameterName
	for _, name := range transientParams {
		if !s.m.skipParam(name) {
			names = append(names, name)
		}
	}
	s.m.transient = make(map[datamodel.ParameterName]any, len(names))
	if len(names) == 0 {
		return Output{Next: s.done}
	}
	return Output{Request: tr069.NewGetParameterValues(s.m.pathsFor(names)), Next: s.done}
}

func (s *getTransientParamsState) Targets() []string { return []string{s.done} }

type waitGetTransientParamsState struct {
	m           *Machine
	getParams   string
	getObjParms string
	sync        SyncTargets
}

// NewWaitGetTransientParamsState creates the drift decision point of the
// polling loop
func NewWaitGetTransientParamsState(m *Machine, getParams, getObjParams string, sync SyncTargets) State {
	return &waitGetTransientParamsState{m: m, getParams: getParams, getObjParms: getObjParams, sync: sync}
}

func (s *waitGetTransientParamsState) Read(ev tr069.Event) (Transition, bool) {
	if ev.Kind != tr069.EventGetParameterValuesResponse {
		return Transition{}, false
	}
	for name, v := range s.m.storeValues(s.m.deviceCfg, ev.Params) {
		s.m.transient[name] = v
	}
	return s.next(), true
}

// Get only runs when the transient set is empty and no response is awaited
func (s *waitGetTransientParamsState) Get(tr069.Event) Output {
	tr := s.next()
	return Output{Next: tr.Next, EndSession: tr.EndSession}
}

func (s *waitGetTransientParamsState) next() Transition {
	m := s.m
	if len(deviceconfig.ParamsToGet(m.deviceCfg, m.skipParam)) > 0 {
		return Transition{Next: s.getParams}
	}
	if len(deviceconfig.ObjectParamsToGet(m.deviceCfg)) > 0 {
		return Transition{Next: s.getObjParms}
	}
	if m.desiredCfg == nil && !m.unmanaged {
		return Transition{Next: s.getParams}
	}
	return m.decide(s.sync)
}

func (s *waitGetTransientParamsState) Targets() []string {
	return append([]string{s.getParams, s.getObjParms}, s.sync.list()...)
}

type getParamsState struct {
	m    *Machine
	done string
}

// NewGetParamsState creates the full scalar read
func NewGetParamsState(m *Machine, done string) State {
	return &getParamsState{m: m, done: done}
}

func (s *getParamsState) Read(tr069.Event) (Transition, bool) { return Transition{}, false }

func (s *getParamsState) Get(tr069.Event) Output {
	names := s.m.readableParams()
	return Output{Request: tr069.NewGetParameterValues(s.m.pathsFor(names)), Next: s.done}
}

func (s *getParamsState) Targets() []string { return []string{s.done} }

// readableParams lists every sync parameter except absent optional ones
func (m *Machine) readableParams() []datamodel.ParameterName {
	var names []datamodel.ParameterName
	for _, name := range m.model.ParameterNames() {
		p, ok := m.model.GetParameter(name)
		if !ok || (p.IsOptional && !m.presence[name]) {
			continue
		}
		names = append(names, name)
	}
	return names
}

type waitGetParamsState struct {
	m    *Machine
	done string
}

// NewWaitGetParamsState creates the state receiving the full scalar read.
// The result supersedes the previous device configuration.
func NewWaitGetParamsState(m *Machine, done string) State {
	return &waitGetParamsState{m: m, done: done}
}

func (s *waitGetParamsState) Read(ev tr069.Event) (Transition, bool) {
	if ev.Kind != tr069.EventGetParameterValuesResponse {
		return Transition{}, false
	}
	m := s.m
	fresh := deviceconfig.New(m.model)
	stored := m.storeValues(fresh, ev.Params)
	m.syncObjects(fresh)
	m.deviceCfg = fresh

	m.unreadable = make(map[datamodel.ParameterName]bool)
	for _, name := range m.readableParams() {
		if _, ok := stored[name]; !ok {
			m.unreadable[name] = true
		}
	}
	if len(m.unreadable) > 0 {
		m.logger.Warn().Int("count", len(m.unreadable)).Msg("device did not report all parameters")
	}
	return Transition{Next: s.done}, true
}

func (s *waitGetParamsState) Get(tr069.Event) Output { return Output{} }

func (s *waitGetParamsState) Targets() []string { return []string{s.done} }

type getObjParamsState struct {
	m    *Machine
	done string
	sync SyncTargets
}

// NewGetObjParamsState creates the read of object counts and contents. When
// the model has nothing to read the reconciliation decision is made here.
func NewGetObjParamsState(m *Machine, done string, sync SyncTargets) State {
	return &getObjParamsState{m: m, done: done, sync: sync}
}

func (s *getObjParamsState) Read(tr069.Event) (Transition, bool) { return Transition{}, false }

func (s *getObjParamsState) Get(tr069.Event) Output {
	m := s.m
	var names []datamodel.ParameterName
	if _, ok := m.model.GetParameter(datamodel.NumPlmns); ok {
		names = append(names, datamodel.NumPlmns)
	}
	numbered := m.model.NumberedParameterNames()
	for _, obj := range m.deviceCfg.ObjectNames() {
		names = append(names, numbered[obj]...)
	}
	if len(names) == 0 {
		m.rebuildDesired()
		tr := m.decide(s.sync)
		return Output{Next: tr.Next, EndSession: tr.EndSession}
	}
	return Output{Request: tr069.NewGetParameterValues(m.pathsFor(names)), Next: s.done}
}

func (s *getObjParamsState) Targets() []string {
	return append([]string{s.done}, s.sync.list()...)
}

type waitGetObjParamsState struct {
	m    *Machine
	sync SyncTargets
}

// NewWaitGetObjParamsState creates the structural decision point
func NewWaitGetObjParamsState(m *Machine, sync SyncTargets) State {
	return &waitGetObjParamsState{m: m, sync: sync}
}

func (s *waitGetObjParamsState) Read(ev tr069.Event) (Transition, bool) {
	if ev.Kind != tr069.EventGetParameterValuesResponse {
		return Transition{}, false
	}
	m := s.m
	m.storeValues(m.deviceCfg, ev.Params)
	m.syncObjects(m.deviceCfg)
	m.rebuildDesired()
	return m.decide(s.sync), true
}

func (s *waitGetObjParamsState) Get(tr069.Event) Output { return Output{} }

func (s *waitGetObjParamsState) Targets() []string { return s.sync.list() }

type deleteObjsState struct {
	m       *Machine
	add     string
	skip    string
	pending datamodel.ParameterName
}

// NewDeleteObjsState creates the state removing surplus object instances,
// one DeleteObject per exchange
func NewDeleteObjsState(m *Machine, add, skip string) State {
	return &deleteObjsState{m: m, add: add, skip: skip}
}

func (s *deleteObjsState) Read(ev tr069.Event) (Transition, bool) {
	if ev.Kind != tr069.EventDeleteObjectResponse || s.pending == "" {
		return Transition{}, false
	}
	m := s.m
	m.deviceCfg.DeleteObject(s.pending)
	m.adjustObjectCount(-1)
	m.logger.Info().Str("object", string(s.pending)).Msg("object deleted")
	s.pending = ""
	return Transition{}, true
}

func (s *deleteObjsState) Get(tr069.Event) Output {
	m := s.m
	if m.desiredCfg == nil {
		return Output{Next: s.skip}
	}
	surplus := deviceconfig.ObjectsToDelete(m.desiredCfg, m.deviceCfg)
	if len(surplus) == 0 {
		if len(deviceconfig.ObjectsToAdd(m.desiredCfg, m.deviceCfg)) > 0 {
			return Output{Next: s.add}
		}
		return Output{Next: s.skip}
	}
	p, ok := m.model.GetParameter(surplus[0])
	if !ok {
		m.deviceCfg.DeleteObject(surplus[0])
		return Output{Next: s.skip}
	}
	s.pending = surplus[0]
	return Output{Request: tr069.NewDeleteObject(p.Path)}
}

func (s *deleteObjsState) Targets() []string { return []string{s.add, s.skip} }

type addObjsState struct {
	m        *Machine
	done     string
	pending  datamodel.ParameterName
	attempts int
}

// NewAddObjsState creates the state creating missing object instances. The
// device assigns the instance number.
func NewAddObjsState(m *Machine, done string) State {
	return &addObjsState{m: m, done: done}
}

func (s *addObjsState) Enter() {
	s.pending = ""
	s.attempts = 0
}

func (s *addObjsState) Read(ev tr069.Event) (Transition, bool) {
	if ev.Kind != tr069.EventAddObjectResponse || s.pending == "" {
		return Transition{}, false
	}
	m := s.m
	obj := datamodel.PlmnN(ev.Instance)
	if ev.Instance < 1 || ev.Instance > m.model.NumPlmns() {
		m.logger.Error().Int("instance", ev.Instance).Msg("device created object outside modelled range")
		s.pending = ""
		return Transition{Next: s.done}, true
	}
	if obj != s.pending {
		m.logger.Warn().Str("expected", string(s.pending)).Str("created", string(obj)).Msg("device assigned a different instance")
	}
	if err := m.deviceCfg.AddObject(obj); err != nil {
		m.logger.Error().Err(err).Msg("cannot record created object")
	}
	m.adjustObjectCount(1)
	s.pending = ""
	return Transition{}, true
}

func (s *addObjsState) Get(tr069.Event) Output {
	m := s.m
	if m.desiredCfg == nil || s.attempts >= m.model.NumPlmns() {
		return Output{Next: s.done}
	}
	missing := deviceconfig.ObjectsToAdd(m.desiredCfg, m.deviceCfg)
	if len(missing) == 0 {
		return Output{Next: s.done}
	}
	container, ok := m.model.GetParameter(datamodel.Plmn)
	if !ok {
		return Output{Next: s.done}
	}
	s.pending = missing[0]
	s.attempts++
	return Output{Request: tr069.NewAddObject(container.Path)}
}

func (s *addObjsState) Targets() []string { return []string{s.done} }

// adjustObjectCount keeps the cached PLMN count in step with object changes
func (m *Machine) adjustObjectCount(delta int) {
	v, ok := m.deviceCfg.GetParameter(datamodel.NumPlmns)
	if !ok {
		return
	}
	n, err := datamodel.ToInt(v)
	if err != nil {
		return
	}
	if n+delta < 0 {
		delta = -n
	}
	_ = m.deviceCfg.SetParameter(datamodel.NumPlmns, n+delta)
}

type setParamsState struct {
	m    *Machine
	done string
	skip string
}

// NewSetParamsState creates the state pushing every scalar difference in
// one SetParameterValues
func NewSetParamsState(m *Machine, done, skip string) State {
	return &setParamsState{m: m, done: done, skip: skip}
}

func (s *setParamsState) Read(tr069.Event) (Transition, bool) { return Transition{}, false }

func (s *setParamsState) Get(tr069.Event) Output {
	m := s.m
	if m.desiredCfg == nil {
		return Output{Next: s.skip, EndSession: true}
	}

	diff := deviceconfig.ParamValuesToSet(m.desiredCfg, m.deviceCfg, m.skipSet)
	pending := make(map[datamodel.ParameterName]any, len(diff))
	values := make([]tr069.ParameterValue, 0, len(diff))
	invasive := false
	for _, name := range sortedNames(diff) {
		pv, err := datamodel.TransformForEnb(m.model, name, diff[name])
		if err != nil {
			m.logger.Warn().Err(err).Str("param", string(name)).Msg("parameter left out of this update")
			m.observer.TransformFailed(m.serial, name, err)
			continue
		}
		if p, _ := m.model.GetParameter(name); p.IsInvasive {
			invasive = true
		}
		pending[name] = diff[name]
		values = append(values, pv)
	}
	if len(values) == 0 {
		return Output{Next: s.skip, EndSession: true}
	}

	sort.SliceStable(values, func(i, j int) bool { return values[i].Name < values[j].Name })
	m.pendingSet = pending
	m.pendingInvasive = invasive
	return Output{Request: tr069.NewSetParameterValues(values, m.nextParameterKey()), Next: s.done}
}

func (s *setParamsState) Targets() []string { return []string{s.done, s.skip} }

type waitSetParamsState struct {
	m    *Machine
	done string
}

// NewWaitSetParamsState creates the state closing the polling loop
func NewWaitSetParamsState(m *Machine, done string) State {
	return &waitSetParamsState{m: m, done: done}
}

func (s *waitSetParamsState) Read(ev tr069.Event) (Transition, bool) {
	m := s.m
	switch ev.Kind {
	case tr069.EventSetParameterValuesResponse:
		for name, v := range m.pendingSet {
			_ = m.deviceCfg.SetParameter(name, v)
		}
		if ev.Status == 1 || m.pendingInvasive {
			m.rebootRequired = true
			m.logger.Info().Msg("configuration applied, reboot required to take effect")
		} else {
			m.logger.Info().Int("count", len(m.pendingSet)).Msg("configuration applied")
		}
	case tr069.EventFault:
		e := m.logger.Error()
		if ev.Fault != nil {
			e = e.Err(ev.Fault)
			for _, pf := range ev.Fault.Params {
				m.logger.Error().Str("path", pf.Name).Int("code", pf.Code).Str("reason", pf.String).Msg("parameter rejected")
			}
		}
		e.Msg("set parameter values failed")
	default:
		return Transition{}, false
	}
	m.pendingSet = nil
	m.pendingInvasive = false
	return Transition{Next: s.done, EndSession: true}, true
}

func (s *waitSetParamsState) Get(tr069.Event) Output { return Output{} }

func (s *waitSetParamsState) Targets() []string { return []string{s.done} }

type rebootState struct {
	m    *Machine
	done string
}

// NewRebootState creates the manual reboot entry. It waits for the device's
// next session and sends Reboot once the Inform exchange is complete.
func NewRebootState(m *Machine, done string) State {
	return &rebootState{m: m, done: done}
}

func (s *rebootState) Read(ev tr069.Event) (Transition, bool) {
	switch ev.Kind {
	case tr069.EventInform:
		s.m.processInform(ev)
		return Transition{}, true
	case tr069.EventEmpty:
		return Transition{}, true
	}
	return Transition{}, false
}

func (s *rebootState) Get(ev tr069.Event) Output {
	if ev.Kind == tr069.EventInform {
		return Output{Request: tr069.NewInformResponse()}
	}
	return Output{Request: tr069.NewReboot(s.m.nextParameterKey()), Next: s.done}
}

func (s *rebootState) Targets() []string { return []string{s.done} }

type waitRebootState struct {
	m    *Machine
	done string
}

// NewWaitRebootState creates the state awaiting the RebootResponse
func NewWaitRebootState(m *Machine, done string) State {
	return &waitRebootState{m: m, done: done}
}

func (s *waitRebootState) Read(ev tr069.Event) (Transition, bool) {
	if ev.Kind != tr069.EventRebootResponse {
		return Transition{}, false
	}
	s.m.rebootRequired = false
	s.m.logger.Info().Msg("device accepted reboot")
	return Transition{Next: s.done, EndSession: true}, true
}

func (s *waitRebootState) Get(tr069.Event) Output { return Output{} }

func (s *waitRebootState) Targets() []string { return []string{s.done} }

type waitPostRebootInformState struct {
	m      *Machine
	done   string
	booted bool
}

// NewWaitPostRebootInformState creates the state waiting for the device to
// announce it came back from the reboot
func NewWaitPostRebootInformState(m *Machine, done string) State {
	return &waitPostRebootInformState{m: m, done: done}
}

func (s *waitPostRebootInformState) Enter() { s.booted = false }

func (s *waitPostRebootInformState) Read(ev tr069.Event) (Transition, bool) {
	switch ev.Kind {
	case tr069.EventInform:
		s.m.processInform(ev)
		if ev.HasEventCode(tr069.EventCodeMReboot) || ev.HasEventCode(tr069.EventCodeBoot) {
			s.booted = true
			s.m.InvalidateDesired()
		}
		return Transition{}, true
	case tr069.EventEmpty:
		return Transition{EndSession: true}, true
	}
	return Transition{}, false
}

func (s *waitPostRebootInformState) Get(tr069.Event) Output {
	out := Output{Request: tr069.NewInformResponse()}
	if s.booted {
		out.Next = s.done
	}
	return out
}

func (s *waitPostRebootInformState) Targets() []string { return []string{s.done} }

// waitRebootDelayState lets the device settle after a reboot. It keeps
// answering Informs and leaves on timeout.
type waitRebootDelayState struct {
	m *Machine
}

// NewWaitRebootDelayState creates the post-reboot grace period
func NewWaitRebootDelayState(m *Machine) State {
	return &waitRebootDelayState{m: m}
}

func (s *waitRebootDelayState) Read(ev tr069.Event) (Transition, bool) {
	switch ev.Kind {
	case tr069.EventInform:
		s.m.processInform(ev)
		return Transition{}, true
	case tr069.EventEmpty:
		return Transition{EndSession: true}, true
	}
	return Transition{}, false
}

func (s *waitRebootDelayState) Get(tr069.Event) Output {
	return Output{Request: tr069.NewInformResponse()}
}

func (s *waitRebootDelayState) Targets() []string { return nil }
