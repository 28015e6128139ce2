package mconfig_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lte-gateway/enodebd/internal/datamodel"
	"github.com/lte-gateway/enodebd/internal/deviceconfig"
	"github.com/lte-gateway/enodebd/internal/mconfig"
	"github.com/lte-gateway/enodebd/internal/models"
	"github.com/lte-gateway/enodebd/internal/storage"
)

const fixture = `{
  "offset": 42,
  "configs": {
    "configs_by_key": {
      "magmad": {
        "@type": "type.googleapis.com/magma.mconfig.MagmaD",
        "checkinInterval": 10
      },
      "enodebd": {
        "@type": "type.googleapis.com/magma.mconfig.EnodebD",
        "earfcndl": 44590,
        "pci": 260,
        "bandwidthMhz": 20,
        "tac": 1,
        "plmnidList": "00101, 00102",
        "allowEnodebTransmit": true,
        "mmeAddress": "192.168.60.142",
        "mmePort": 36412,
        "periodicInformInterval": 60,
        "enbConfigsBySerial": {
          "120200002618AGP0003": {"pci": 261, "cellBarred": true},
          "BROKEN": {"pci": 9000}
        }
      }
    }
  }
}`

func TestParse(t *testing.T) {
	cfg, offset, err := mconfig.Parse([]byte(fixture))
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, int64(42), offset)

	require.NotNil(t, cfg.Default.EARFCNDL)
	assert.Equal(t, 44590, *cfg.Default.EARFCNDL)
	assert.Equal(t, 20.0, cfg.Default.BandwidthMhz)
	require.NotNil(t, cfg.Default.AllowEnodebTransmit)
	assert.True(t, *cfg.Default.AllowEnodebTransmit)

	assert.Len(t, cfg.Devices, 1, "invalid per-device entry is dropped")
	assert.Equal(t, intp(261), cfg.Devices["120200002618AGP0003"].PCI)
}

func TestParseWithoutSection(t *testing.T) {
	cfg, offset, err := mconfig.Parse([]byte(`{"offset": 3, "configs": {"configs_by_key": {}}}`))
	require.NoError(t, err)
	assert.Nil(t, cfg)
	assert.Equal(t, int64(3), offset)
}

func TestParseErrors(t *testing.T) {
	_, _, err := mconfig.Parse([]byte(`{not json`))
	assert.Error(t, err)

	_, err = mconfig.ParseSection([]byte(`{"@type": "type.googleapis.com/magma.mconfig.MME"}`))
	assert.Error(t, err)

	_, err = mconfig.ParseSection([]byte(`{"bandwidthMhz": 7}`))
	assert.Error(t, err)

	_, err = mconfig.ParseSection([]byte(`{"plmnidList": "00101,abc"}`))
	assert.Error(t, err)
}

func TestDesired(t *testing.T) {
	cfg, _, err := mconfig.Parse([]byte(fixture))
	require.NoError(t, err)

	merged := cfg.Default.Merge(cfg.Devices["120200002618AGP0003"])
	d := merged.Desired()

	assert.Equal(t, 261, d.Values[datamodel.PCI])
	assert.Equal(t, 44590, d.Values[datamodel.EARFCNDL])
	assert.Equal(t, 20.0, d.Values[datamodel.DLBandwidth])
	assert.Equal(t, 20.0, d.Values[datamodel.ULBandwidth])
	assert.Equal(t, true, d.Values[datamodel.AdminState])
	assert.Equal(t, true, d.Values[datamodel.CellBarred])
	assert.Equal(t, true, d.Values[datamodel.PeriodicInformEnable])
	assert.Equal(t, 60, d.Values[datamodel.PeriodicInformInterval])
	assert.NotContains(t, d.Values, datamodel.CellReserved)
	assert.NotContains(t, d.Values, datamodel.SubframeAssignment)

	assert.Equal(t, []deviceconfig.Plmn{
		{PlmnID: "00101", Enable: true, Primary: true},
		{PlmnID: "00102", Enable: true},
	}, d.Plmns)
}

func TestMergeReplacesPlmnList(t *testing.T) {
	base := mconfig.EnodebConfig{PlmnidList: "00101,00102", PCI: intp(1)}
	over := mconfig.EnodebConfig{Plmns: []deviceconfig.Plmn{{PlmnID: "310410", Enable: true, Primary: true}}}

	merged := base.Merge(over)
	assert.Equal(t, intp(1), merged.PCI)
	assert.Empty(t, merged.PlmnidList)
	assert.Equal(t, over.Plmns, merged.Desired().Plmns)

	assert.True(t, mconfig.EnodebConfig{}.IsZero())
	assert.False(t, merged.IsZero())
}

func TestZeroIsConfigured(t *testing.T) {
	base := mconfig.EnodebConfig{PCI: intp(260), SubframeAssignment: intp(2)}
	merged := base.Merge(mconfig.EnodebConfig{PCI: intp(0), SubframeAssignment: intp(0)})
	assert.Equal(t, intp(0), merged.PCI)
	assert.Equal(t, intp(0), merged.SubframeAssignment)

	d := mconfig.EnodebConfig{PCI: intp(0), SubframeAssignment: intp(0), SpecialSubframePattern: intp(0)}.Desired()
	assert.Equal(t, 0, d.Values[datamodel.PCI])
	assert.Equal(t, 0, d.Values[datamodel.SubframeAssignment])
	assert.Equal(t, 0, d.Values[datamodel.SpecialSubframePattern])
	assert.NotContains(t, d.Values, datamodel.TAC)

	assert.Equal(t, intp(260), base.Merge(mconfig.EnodebConfig{}).PCI, "unset override keeps the base")
	assert.False(t, mconfig.EnodebConfig{PCI: intp(0)}.IsZero())

	var cfg mconfig.EnodebConfig
	require.NoError(t, json.Unmarshal([]byte(`{"pci": 0, "tac": 0}`), &cfg))
	require.NoError(t, cfg.Validate())
	assert.Equal(t, intp(0), cfg.PCI)
	assert.Equal(t, intp(0), cfg.TAC)
	assert.Nil(t, cfg.EARFCNDL)

	assert.Error(t, mconfig.EnodebConfig{PCI: intp(504)}.Validate())
	assert.Error(t, mconfig.EnodebConfig{SubframeAssignment: intp(-1)}.Validate())
}

func TestProvider(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	p := mconfig.NewProvider(nil, store)

	d, err := p.Desired("120200002618AGP0003")
	require.NoError(t, err)
	assert.Nil(t, d, "nothing configured means unmanaged")

	path := filepath.Join(t.TempDir(), "gateway.mconfig")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))
	require.NoError(t, p.LoadFile(path))
	assert.Equal(t, int64(42), p.Offset())

	raw, err := json.Marshal(mconfig.EnodebConfig{TAC: intp(7)})
	require.NoError(t, err)
	require.NoError(t, store.SaveEnodebConfig(ctx, &models.EnodebConfig{Serial: "120200002618AGP0003", Config: raw}))

	d, err = p.Desired("120200002618AGP0003")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 7, d.Values[datamodel.TAC])
	assert.Equal(t, 261, d.Values[datamodel.PCI])

	other, err := p.Desired("OTHER")
	require.NoError(t, err)
	assert.Equal(t, 1, other.Values[datamodel.TAC])
	assert.Equal(t, 260, other.Values[datamodel.PCI])

	assert.False(t, p.Update(nil, 41), "stale offset")
	assert.True(t, p.Update(nil, 43))
	d, err = p.Desired("OTHER")
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestProviderBadOverride(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.SaveEnodebConfig(context.Background(),
		&models.EnodebConfig{Serial: "X", Config: json.RawMessage(`[1,2]`)}))

	_, err := mconfig.NewProvider(nil, store).Desired("X")
	assert.Error(t, err)
}

func intp(v int) *int { return &v }
