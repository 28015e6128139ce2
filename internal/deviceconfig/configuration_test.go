package deviceconfig_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lte-gateway/enodebd/internal/datamodel"
	"github.com/lte-gateway/enodebd/internal/deviceconfig"
	"github.com/lte-gateway/enodebd/internal/devices"
)

func TestConfigurationParameters(t *testing.T) {
	cfg := deviceconfig.New(devices.NewBaicellsOldModel())

	require.NoError(t, cfg.SetParameter(datamodel.PCI, 260))
	v, ok := cfg.GetParameter(datamodel.PCI)
	require.True(t, ok)
	assert.Equal(t, 260, v)
	assert.True(t, cfg.HasParameter(datamodel.PCI))

	err := cfg.SetParameter("Frobnicator", 1)
	assert.ErrorIs(t, err, datamodel.ErrUnsupportedParameter)
	assert.Error(t, cfg.SetParameter(datamodel.Plmn, "x"))

	cfg.DeleteParameter(datamodel.PCI)
	assert.False(t, cfg.HasParameter(datamodel.PCI))
}

func TestConfigurationObjects(t *testing.T) {
	cfg := deviceconfig.New(devices.NewBaicellsOldModel())

	require.NoError(t, cfg.AddObject(datamodel.PlmnN(3)))
	require.NoError(t, cfg.AddObject(datamodel.PlmnN(1)))
	assert.Error(t, cfg.AddObject(datamodel.PCI))
	assert.ErrorIs(t, cfg.AddObject(datamodel.PlmnN(7)), datamodel.ErrUnsupportedParameter)
	assert.Equal(t, []datamodel.ParameterName{datamodel.PlmnN(1), datamodel.PlmnN(3)}, cfg.ObjectNames())

	require.NoError(t, cfg.SetParameter(datamodel.PlmnNPlmnID(3), "00101"))
	cfg.DeleteObject(datamodel.PlmnN(3))
	assert.False(t, cfg.HasObject(datamodel.PlmnN(3)))
	assert.False(t, cfg.HasParameter(datamodel.PlmnNPlmnID(3)))
}

func TestDiff(t *testing.T) {
	dm := devices.NewBaicellsOldModel()
	desired := deviceconfig.New(dm)
	current := deviceconfig.New(dm)

	for i := 1; i <= 2; i++ {
		require.NoError(t, desired.AddObject(datamodel.PlmnN(i)))
		require.NoError(t, desired.SetParameter(datamodel.PlmnNPlmnID(i), "0010"+string(rune('0'+i))))
	}
	for _, i := range []int{1, 3, 4} {
		require.NoError(t, current.AddObject(datamodel.PlmnN(i)))
	}
	require.NoError(t, desired.SetParameter(datamodel.TAC, 1))
	require.NoError(t, current.SetParameter(datamodel.TAC, 1.0))
	require.NoError(t, desired.SetParameter(datamodel.PCI, 260))
	require.NoError(t, current.SetParameter(datamodel.PCI, 100))

	assert.Equal(t, []datamodel.ParameterName{datamodel.PlmnN(4), datamodel.PlmnN(3)}, deviceconfig.ObjectsToDelete(desired, current))
	assert.Equal(t, []datamodel.ParameterName{datamodel.PlmnN(2)}, deviceconfig.ObjectsToAdd(desired, current))

	// PLMN 2 values wait until the object exists
	assert.Equal(t, map[datamodel.ParameterName]any{
		datamodel.PCI:            260,
		datamodel.PlmnNPlmnID(1): "00101",
	}, deviceconfig.ParamValuesToSet(desired, current, nil))
	assert.False(t, deviceconfig.InSync(desired, current, nil))

	current.DeleteObject(datamodel.PlmnN(4))
	current.DeleteObject(datamodel.PlmnN(3))
	require.NoError(t, current.AddObject(datamodel.PlmnN(2)))
	for name, v := range deviceconfig.ParamValuesToSet(desired, current, nil) {
		require.NoError(t, current.SetParameter(name, v))
	}
	assert.True(t, deviceconfig.InSync(desired, current, nil))

	// a value the device cannot take does not hold the sync back
	require.NoError(t, desired.SetParameter(datamodel.CellBarred, false))
	assert.False(t, deviceconfig.InSync(desired, current, nil))
	skipCellBarred := func(name datamodel.ParameterName) bool { return name == datamodel.CellBarred }
	assert.Empty(t, deviceconfig.ParamValuesToSet(desired, current, skipCellBarred))
	assert.True(t, deviceconfig.InSync(desired, current, skipCellBarred))
}

func TestParamsToGet(t *testing.T) {
	dm := devices.NewBaicellsOldModel()
	current := deviceconfig.New(dm)
	all := deviceconfig.ParamsToGet(current, nil)
	assert.ElementsMatch(t, dm.ParameterNames(), all)

	for _, name := range dm.ParameterNames() {
		if name != datamodel.PCI && name != datamodel.REMStatus {
			require.NoError(t, current.SetParameter(name, 0))
		}
	}
	skip := func(name datamodel.ParameterName) bool { return name == datamodel.REMStatus }
	assert.Equal(t, []datamodel.ParameterName{datamodel.PCI}, deviceconfig.ParamsToGet(current, skip))

	require.NoError(t, current.AddObject(datamodel.PlmnN(1)))
	require.NoError(t, current.SetParameter(datamodel.PlmnNEnable(1), true))
	assert.Equal(t, []datamodel.ParameterName{
		datamodel.PlmnNCellReserved(1),
		datamodel.PlmnNPrimary(1),
		datamodel.PlmnNPlmnID(1),
	}, deviceconfig.ObjectParamsToGet(current))
}

type forceAdminOff struct{}

func (forceAdminOff) Postprocess(desired *deviceconfig.Configuration) {
	_ = desired.SetParameter(datamodel.AdminState, false)
}

func TestBuildDesired(t *testing.T) {
	dm := devices.NewBaicellsOldModel()
	d := deviceconfig.Desired{
		Values: map[datamodel.ParameterName]any{
			datamodel.AdminState: true,
			datamodel.EARFCNDL:   44590,
			"Unknown knob":       3,
		},
		Plmns: make([]deviceconfig.Plmn, 8),
	}
	for i := range d.Plmns {
		d.Plmns[i] = deviceconfig.Plmn{PlmnID: "00101", Enable: true, Primary: i == 0}
	}

	cfg, err := deviceconfig.BuildDesired(dm, d, forceAdminOff{})
	require.NoError(t, err)
	assert.Len(t, cfg.ObjectNames(), dm.NumPlmns())
	assert.False(t, cfg.HasParameter("Unknown knob"))

	v, _ := cfg.GetParameter(datamodel.AdminState)
	assert.Equal(t, false, v)
	v, _ = cfg.GetParameter(datamodel.PlmnNPrimary(1))
	assert.Equal(t, true, v)
	v, _ = cfg.GetParameter(datamodel.PlmnNPrimary(2))
	assert.Equal(t, false, v)

	snap := cfg.Snapshot()
	assert.Equal(t, 44590, snap[string(datamodel.EARFCNDL)])
	assert.Len(t, snap["objects"], dm.NumPlmns())
}
