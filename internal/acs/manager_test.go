package acs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lte-gateway/enodebd/internal/devices"
	"github.com/lte-gateway/enodebd/internal/mconfig"
	"github.com/lte-gateway/enodebd/internal/models"
	sm "github.com/lte-gateway/enodebd/internal/statemachine"
	"github.com/lte-gateway/enodebd/internal/storage"
	"github.com/lte-gateway/enodebd/pkg/tr069"
)

const (
	serial    = "120200002618AGP0003"
	oldFwVers = "BaiStation_V100R001C00B110SPC002"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newManager(t *testing.T, opts Options) (*Manager, *storage.MemoryStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	opts.Clock = clock.Now
	store := storage.NewMemoryStore()
	return NewManager(nil, store, mconfig.NewProvider(nil, store), opts), store, clock
}

func inform(serial, oui, sw string) tr069.Event {
	return tr069.Event{
		Kind:       tr069.EventInform,
		Serial:     serial,
		DeviceID:   &tr069.DeviceID{Manufacturer: "Baicells", OUI: oui, ProductClass: "mBS1100", SerialNumber: serial},
		EventCodes: []string{tr069.EventCodeBoot},
		Params: []tr069.ParameterValue{
			{Name: "Device.DeviceInfo.SoftwareVersion", Value: sw},
		},
	}
}

func eventTypes(t *testing.T, store storage.Store) []models.EventType {
	t.Helper()
	events, _, err := store.ListEventLogs(context.Background(), storage.EventLogFilters{}, 100, 0)
	require.NoError(t, err)
	var out []models.EventType
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func TestInformCreatesSession(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newManager(t, Options{})

	req, err := m.HandleEvent(ctx, inform(serial, "48BF74", oldFwVers))
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, tr069.RPCInformResponse, req.Kind)

	status, err := m.Status(serial)
	require.NoError(t, err)
	assert.Equal(t, devices.BaicellsOld, status.Device)
	assert.Equal(t, sm.StateWaitEmpty, status.State)
	assert.True(t, status.Connected)

	enb, err := store.GetEnodeb(ctx, serial)
	require.NoError(t, err)
	assert.True(t, enb.Connected)
	assert.Equal(t, sm.StateWaitEmpty, enb.State)
	assert.Equal(t, oldFwVers, enb.SWVersion)
	assert.Equal(t, "48BF74", enb.OUI)
	require.NotNil(t, enb.LastSeenAt)

	assert.Contains(t, eventTypes(t, store), models.EventTypeConnected)

	// the session continues with the next message of the exchange
	req, err = m.HandleEvent(ctx, tr069.Event{Kind: tr069.EventEmpty, Serial: serial})
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, tr069.RPCGetParameterValues, req.Kind)
}

func TestEventWithoutSession(t *testing.T) {
	m, _, _ := newManager(t, Options{})

	_, err := m.HandleEvent(context.Background(), tr069.Event{Kind: tr069.EventEmpty, Serial: serial})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = m.HandleEvent(context.Background(), tr069.Event{Kind: tr069.EventInform})
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestSerialFromDeviceID(t *testing.T) {
	m, _, _ := newManager(t, Options{})
	ev := inform("", "48BF74", oldFwVers)
	ev.DeviceID.SerialNumber = "SER2"

	_, err := m.HandleEvent(context.Background(), ev)
	require.NoError(t, err)
	_, err = m.Status("SER2")
	assert.NoError(t, err)
}

func TestUnknownDevice(t *testing.T) {
	ctx := context.Background()

	m, _, _ := newManager(t, Options{})
	_, err := m.HandleEvent(ctx, inform(serial, "000000", "X1"))
	assert.ErrorIs(t, err, devices.ErrUnknownDevice)
	assert.Empty(t, m.List())

	m, _, _ = newManager(t, Options{DefaultDevice: devices.BaicellsOld})
	req, err := m.HandleEvent(ctx, inform(serial, "000000", "X1"))
	require.NoError(t, err)
	assert.Equal(t, tr069.RPCInformResponse, req.Kind)
}

func TestSweepAppliesTimeouts(t *testing.T) {
	ctx := context.Background()
	m, store, clock := newManager(t, Options{Timeouts: sm.Timeouts{Response: 30 * time.Second}})

	_, err := m.HandleEvent(ctx, inform(serial, "48BF74", oldFwVers))
	require.NoError(t, err)

	clock.Advance(10 * time.Second)
	assert.Equal(t, 0, m.Sweep(ctx))

	clock.Advance(25 * time.Second)
	assert.Equal(t, 1, m.Sweep(ctx))

	status, err := m.Status(serial)
	require.NoError(t, err)
	assert.Equal(t, sm.StateDisconnected, status.State)

	enb, err := store.GetEnodeb(ctx, serial)
	require.NoError(t, err)
	assert.False(t, enb.Connected)
	assert.Equal(t, oldFwVers, enb.SWVersion, "software version survives status updates")

	types := eventTypes(t, store)
	assert.Contains(t, types, models.EventTypeTimeout)
	assert.Contains(t, types, models.EventTypeDisconnected)
}

func TestRebootAsap(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t, Options{})

	assert.ErrorIs(t, m.RebootAsap(ctx, serial), ErrSessionNotFound)

	_, err := m.HandleEvent(ctx, inform(serial, "48BF74", oldFwVers))
	require.NoError(t, err)
	assert.ErrorIs(t, m.RebootAsap(ctx, serial), sm.ErrRebootNotAllowed)
}

func TestUpdateDesired(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newManager(t, Options{})

	err := m.UpdateDesired(ctx, serial, mconfig.EnodebConfig{PCI: intp(600)}, "admin")
	assert.Error(t, err)
	_, err = store.GetEnodebConfig(ctx, serial)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, m.UpdateDesired(ctx, serial, mconfig.EnodebConfig{PCI: intp(260), TAC: intp(1)}, "admin"))
	rec, err := store.GetEnodebConfig(ctx, serial)
	require.NoError(t, err)
	assert.Equal(t, "admin", rec.UpdatedBy)

	cfg, ok, err := m.DesiredFor(ctx, serial)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NotNil(t, cfg.PCI)
	assert.Equal(t, 260, *cfg.PCI)

	assert.Contains(t, eventTypes(t, store), models.EventTypeConfigUpdate)
}

func TestListIsSorted(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t, Options{})

	for _, s := range []string{"SER3", "SER1", "SER2"} {
		_, err := m.HandleEvent(ctx, inform(s, "48BF74", oldFwVers))
		require.NoError(t, err)
	}
	list := m.List()
	require.Len(t, list, 3)
	assert.Equal(t, "SER1", list[0].Serial)
	assert.Equal(t, "SER3", list[2].Serial)

	current, desired, err := m.Config("SER1")
	require.NoError(t, err)
	assert.NotNil(t, current)
	assert.Nil(t, desired)

	_, _, err = m.Config("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestProcessEvent(t *testing.T) {
	m, _, _ := newManager(t, Options{})
	ctx := context.Background()

	reply := m.processEvent(ctx, "cwmp.SER9.event", []byte(`{
		"kind": "Inform",
		"deviceId": {"oui": "48BF74", "serialNumber": ""},
		"eventCodes": ["2 PERIODIC"],
		"params": [{"name": "Device.DeviceInfo.SoftwareVersion", "value": "BaiStation_V100R001C00B110SPC002"}]
	}`))
	assert.Empty(t, reply.Error)
	require.NotNil(t, reply.Request)
	assert.Equal(t, tr069.RPCInformResponse, reply.Request.Kind)

	_, err := m.Status("SER9")
	assert.NoError(t, err)

	reply = m.processEvent(ctx, "cwmp.SER9.event", []byte(`{broken`))
	assert.NotEmpty(t, reply.Error)

	reply = m.processEvent(ctx, "cwmp.OTHER.event", []byte(`{"kind": "Empty"}`))
	assert.Contains(t, reply.Error, "session not found")
}

const mconfigUpdate = `{
  "offset": 7,
  "configs": {"configs_by_key": {
    "enodebd": {
      "@type": "type.googleapis.com/magma.mconfig.EnodebD",
      "earfcndl": 44590,
      "pci": 260,
      "plmnidList": "00101"
    }
  }}
}`

func TestApplyMconfig(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t, Options{})

	_, ok, err := m.DesiredFor(ctx, serial)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.applyMconfig([]byte(mconfigUpdate)))
	cfg, ok, err := m.DesiredFor(ctx, serial)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NotNil(t, cfg.EARFCNDL)
	assert.Equal(t, 44590, *cfg.EARFCNDL)

	assert.Error(t, m.applyMconfig([]byte(`nope`)))
}

func intp(v int) *int { return &v }
