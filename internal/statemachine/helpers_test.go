package statemachine_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lte-gateway/enodebd/internal/datamodel"
	"github.com/lte-gateway/enodebd/internal/deviceconfig"
	"github.com/lte-gateway/enodebd/internal/devices"
	sm "github.com/lte-gateway/enodebd/internal/statemachine"
	"github.com/lte-gateway/enodebd/pkg/tr069"
)

const testSerial = "120200002618AGP0003"

// fakeEnb answers requests the way a Baicells eNodeB would
type fakeEnb struct {
	values  map[string]string
	written map[string]string
	// inverted holds the paths this firmware stores with the opposite meaning
	// of what is written
	inverted map[string]bool
	plmns    string
	count    string
	reboots  int
}

func newFakeEnb(t *testing.T) *fakeEnb {
	t.Helper()
	dm := devices.NewBaicellsOldModel()
	enb := &fakeEnb{
		values:   make(map[string]string),
		written:  make(map[string]string),
		inverted: make(map[string]bool),
	}

	for _, name := range dm.ParameterNames() {
		p, _ := dm.GetParameter(name)
		switch p.Type {
		case datamodel.TypeBoolean:
			enb.values[p.Path] = "false"
		case datamodel.TypeInt:
			enb.values[p.Path] = "0"
		default:
			enb.values[p.Path] = ""
		}
	}
	set := func(name datamodel.ParameterName, v string) {
		p, ok := dm.GetParameter(name)
		require.True(t, ok, name)
		enb.values[p.Path] = v
	}
	set(datamodel.DLBandwidth, "n100")
	set(datamodel.ULBandwidth, "n100")
	set(datamodel.GPSLat, "37421900")
	set(datamodel.GPSLong, "-122084000")
	set(datamodel.CellBarred, "true")
	set(datamodel.CellReserved, "true")
	set(datamodel.SWVersion, "BaiStation_V100R001C00B110SPC002")
	for _, name := range []datamodel.ParameterName{datamodel.CellBarred, datamodel.CellReserved} {
		p, _ := dm.GetParameter(name)
		enb.inverted[p.Path] = true
	}

	for _, name := range []datamodel.ParameterName{datamodel.REMStatus, datamodel.PTPStatus} {
		p, _ := dm.GetParameter(name)
		delete(enb.values, p.Path)
	}

	container, _ := dm.GetParameter(datamodel.Plmn)
	count, _ := dm.GetParameter(datamodel.NumPlmns)
	enb.plmns = container.Path
	enb.count = count.Path
	enb.values[enb.count] = "0"
	enb.addPlmn("00101", true, true)
	return enb
}

func (e *fakeEnb) numPlmns() int {
	var n int
	fmt.Sscan(e.values[e.count], &n)
	return n
}

func (e *fakeEnb) addPlmn(id string, enable, primary bool) int {
	i := 1
	for ; ; i++ {
		if _, ok := e.values[fmt.Sprintf("%s%d.PLMNID", e.plmns, i)]; !ok {
			break
		}
	}
	prefix := fmt.Sprintf("%s%d.", e.plmns, i)
	e.values[prefix+"CellReservedForOperatorUse"] = "false"
	e.values[prefix+"Enable"] = fmt.Sprint(enable)
	e.values[prefix+"IsPrimary"] = fmt.Sprint(primary)
	e.values[prefix+"PLMNID"] = id
	e.values[e.count] = fmt.Sprint(e.numPlmns() + 1)
	return i
}

func (e *fakeEnb) deletePlmn(prefix string) {
	for k := range e.values {
		if strings.HasPrefix(k, prefix) {
			delete(e.values, k)
		}
	}
	e.values[e.count] = fmt.Sprint(e.numPlmns() - 1)
}

func (e *fakeEnb) value(t *testing.T, name datamodel.ParameterName) string {
	t.Helper()
	p, ok := devices.NewBaicellsOldModel().GetParameter(name)
	require.True(t, ok, name)
	return e.values[p.Path]
}

// remove drops a parameter this device does not implement
func (e *fakeEnb) remove(t *testing.T, name datamodel.ParameterName) {
	t.Helper()
	p, ok := devices.NewBaicellsOldModel().GetParameter(name)
	require.True(t, ok, name)
	delete(e.values, p.Path)
}

// wrote returns the last value a SetParameterValues put on the wire
func (e *fakeEnb) wrote(t *testing.T, name datamodel.ParameterName) string {
	t.Helper()
	p, ok := devices.NewBaicellsOldModel().GetParameter(name)
	require.True(t, ok, name)
	return e.written[p.Path]
}

func (e *fakeEnb) inform(codes ...string) tr069.Event {
	if len(codes) == 0 {
		codes = []string{tr069.EventCodePeriodic}
	}
	return tr069.Event{
		Kind:       tr069.EventInform,
		Serial:     testSerial,
		DeviceID:   &tr069.DeviceID{Manufacturer: "Baicells", OUI: "48BF74", SerialNumber: testSerial},
		EventCodes: codes,
		Params: []tr069.ParameterValue{
			{Name: "Device.DeviceInfo.SoftwareVersion", Value: e.values["Device.DeviceInfo.SoftwareVersion"]},
		},
	}
}

func (e *fakeEnb) answer(req *tr069.Request) tr069.Event {
	switch req.Kind {
	case tr069.RPCInformResponse:
		return tr069.Event{Kind: tr069.EventEmpty, Serial: testSerial}
	case tr069.RPCGetParameterValues:
		ev := tr069.Event{Kind: tr069.EventGetParameterValuesResponse, Serial: testSerial}
		for _, name := range req.Names {
			v, ok := e.values[name]
			if !ok {
				return fault(tr069.FaultInvalidParameterName)
			}
			ev.Params = append(ev.Params, tr069.ParameterValue{Name: name, Value: v})
		}
		return ev
	case tr069.RPCSetParameterValues:
		// the device rejects the whole batch when one name is unknown
		for _, pv := range req.Values {
			if _, ok := e.values[pv.Name]; !ok {
				return fault(tr069.FaultInvalidParameterName)
			}
		}
		for _, pv := range req.Values {
			e.written[pv.Name] = pv.Value
			if e.inverted[pv.Name] {
				b, _ := datamodel.ParseBool(pv.Value)
				e.values[pv.Name] = fmt.Sprint(!b)
				continue
			}
			e.values[pv.Name] = pv.Value
		}
		return tr069.Event{Kind: tr069.EventSetParameterValuesResponse, Serial: testSerial}
	case tr069.RPCAddObject:
		i := e.addPlmn("", false, false)
		return tr069.Event{Kind: tr069.EventAddObjectResponse, Serial: testSerial, Instance: i}
	case tr069.RPCDeleteObject:
		e.deletePlmn(req.ObjectName)
		return tr069.Event{Kind: tr069.EventDeleteObjectResponse, Serial: testSerial}
	case tr069.RPCReboot:
		e.reboots++
		return tr069.Event{Kind: tr069.EventRebootResponse, Serial: testSerial}
	}
	return fault(9000)
}

func fault(code int) tr069.Event {
	return tr069.Event{Kind: tr069.EventFault, Serial: testSerial, Fault: &tr069.Fault{Code: code, String: "fault"}}
}

// runSession drives one CWMP session from the Inform until the machine
// answers with an empty response. It returns the requests sent.
func runSession(t *testing.T, m *sm.Machine, enb *fakeEnb, inform tr069.Event) []tr069.RPCKind {
	t.Helper()
	var sent []tr069.RPCKind
	ev := inform
	for i := 0; i < 200; i++ {
		req, err := m.Handle(ev)
		require.NoError(t, err)
		if req == nil {
			return sent
		}
		sent = append(sent, req.Kind)
		ev = enb.answer(req)
	}
	t.Fatalf("session did not end, state %s", m.State())
	return nil
}

type staticDesired struct {
	desired *deviceconfig.Desired
	calls   int
}

func (s *staticDesired) Desired(string) (*deviceconfig.Desired, error) {
	s.calls++
	return s.desired, nil
}

func defaultDesired() *deviceconfig.Desired {
	return &deviceconfig.Desired{
		Values: map[datamodel.ParameterName]any{
			datamodel.AdminState:  true,
			datamodel.EARFCNDL:    44590,
			datamodel.PCI:         260,
			datamodel.DLBandwidth: 20,
			datamodel.ULBandwidth: 20,
			datamodel.TAC:         1,
			datamodel.CellBarred:  true,
			datamodel.MMEIP:       "192.168.60.142",
			datamodel.MMEPort:     36412,
		},
		Plmns: []deviceconfig.Plmn{
			{PlmnID: "00101", Enable: true, Primary: true},
			{PlmnID: "00102", Enable: true},
		},
	}
}

type recorder struct {
	transitions []string
	violations  []string
	timeouts    []string
	failed      []datamodel.ParameterName
}

func (r *recorder) StateChanged(_, _, to string) { r.transitions = append(r.transitions, to) }
func (r *recorder) RequestSent(string, tr069.RPCKind) {}
func (r *recorder) ProtocolViolation(_, state string, kind tr069.EventKind) {
	r.violations = append(r.violations, state+":"+string(kind))
}
func (r *recorder) TimedOut(_, state string) { r.timeouts = append(r.timeouts, state) }
func (r *recorder) TransformFailed(_ string, name datamodel.ParameterName, _ error) {
	r.failed = append(r.failed, name)
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newMachine(t *testing.T, source sm.DesiredSource) (*sm.Machine, *recorder, *fakeClock) {
	t.Helper()
	rec := &recorder{}
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	m, err := devices.NewMachine(devices.BaicellsOld, sm.Config{
		Serial:   testSerial,
		Desired:  source,
		Observer: rec,
		Clock:    clock.Now,
	})
	require.NoError(t, err)
	return m, rec, clock
}
