// Package mconfig reads the desired eNodeB configuration pushed down to the
// gateway by the orchestrator.
package mconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/lte-gateway/enodebd/internal/datamodel"
	"github.com/lte-gateway/enodebd/internal/deviceconfig"
	"github.com/lte-gateway/enodebd/internal/validation"
)

const (
	// ServiceKey is the key of the eNodeB section in configs_by_key
	ServiceKey = "enodebd"
	// TypeURL identifies the eNodeB section payload
	TypeURL = "type.googleapis.com/magma.mconfig.EnodebD"
)

// PerfMgmt configures the device performance upload
type PerfMgmt struct {
	Enable         *bool  `json:"enable,omitempty" yaml:"enable"`
	UploadInterval int    `json:"uploadInterval,omitempty" yaml:"upload_interval" validate:"omitempty,min=1"`
	UploadURL      string `json:"uploadUrl,omitempty" yaml:"upload_url" validate:"omitempty,url"`
}

// EnodebConfig is the desired radio configuration of one eNodeB.
// Nil fields mean "not configured". Zero is a valid PCI, subframe assignment
// and so on, so those fields are pointers.
type EnodebConfig struct {
	EARFCNDL     *int    `json:"earfcndl,omitempty" yaml:"earfcndl" validate:"omitempty,min=0,max=65535"`
	PCI          *int    `json:"pci,omitempty" yaml:"pci" validate:"omitempty,min=0,max=503"`
	BandwidthMhz float64 `json:"bandwidthMhz,omitempty" yaml:"bandwidth_mhz" validate:"omitempty,bandwidth"`
	TAC          *int    `json:"tac,omitempty" yaml:"tac" validate:"omitempty,min=0,max=65535"`

	// PlmnidList is the comma separated form, the first entry is primary
	PlmnidList string              `json:"plmnidList,omitempty" yaml:"plmnid_list"`
	Plmns      []deviceconfig.Plmn `json:"plmns,omitempty" yaml:"plmns" validate:"max=6,dive"`

	AllowEnodebTransmit *bool `json:"allowEnodebTransmit,omitempty" yaml:"allow_enodeb_transmit"`
	CellReserved        *bool `json:"cellReserved,omitempty" yaml:"cell_reserved"`
	CellBarred          *bool `json:"cellBarred,omitempty" yaml:"cell_barred"`

	MMEAddress string `json:"mmeAddress,omitempty" yaml:"mme_address" validate:"omitempty,ip"`
	MMEPort    *int   `json:"mmePort,omitempty" yaml:"mme_port" validate:"omitempty,min=0,max=65535"`

	SubframeAssignment     *int `json:"subframeAssignment,omitempty" yaml:"subframe_assignment" validate:"omitempty,min=0,max=6"`
	SpecialSubframePattern *int `json:"specialSubframePattern,omitempty" yaml:"special_subframe_pattern" validate:"omitempty,min=0,max=9"`

	// PeriodicInformInterval in seconds, zero leaves the device setting alone
	PeriodicInformInterval int       `json:"periodicInformInterval,omitempty" yaml:"periodic_inform_interval" validate:"min=0"`
	PerfMgmt               *PerfMgmt `json:"perfMgmt,omitempty" yaml:"perf_mgmt"`
}

// EnodebdConfig is the decoded eNodeB section: network defaults plus per serial overrides
type EnodebdConfig struct {
	Default EnodebConfig
	Devices map[string]EnodebConfig
}

// wire form of the eNodeB section
type enodebdSection struct {
	Type string `json:"@type"`
	EnodebConfig
	EnbConfigsBySerial map[string]EnodebConfig `json:"enbConfigsBySerial,omitempty"`
}

type offsetGatewayConfigs struct {
	Offset  int64 `json:"offset"`
	Configs struct {
		ConfigsByKey map[string]json.RawMessage `json:"configs_by_key"`
	} `json:"configs"`
}

var validator = validation.NewValidator()

// Load reads a streamed gateway config file
func Load(path string) (*EnodebdConfig, int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read mconfig: %w", err)
	}
	return Parse(data)
}

// Parse decodes a streamed gateway config and returns the eNodeB section with
// the stream offset. A config without an eNodeB section yields a nil section.
func Parse(data []byte) (*EnodebdConfig, int64, error) {
	var gw offsetGatewayConfigs
	if err := json.Unmarshal(data, &gw); err != nil {
		return nil, 0, fmt.Errorf("decode mconfig: %w", err)
	}

	var section *EnodebdConfig
	for key, raw := range gw.Configs.ConfigsByKey {
		if key != ServiceKey {
			log.Debug().Str("key", key).Msg("Skipping mconfig for other service")
			continue
		}
		cfg, err := ParseSection(raw)
		if err != nil {
			return nil, gw.Offset, err
		}
		section = cfg
	}
	if section == nil {
		log.Warn().Int64("offset", gw.Offset).Msg("mconfig has no enodebd section")
	}
	return section, gw.Offset, nil
}

// ParseSection decodes one packed eNodeB section
func ParseSection(raw []byte) (*EnodebdConfig, error) {
	var s enodebdSection
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode enodebd mconfig: %w", err)
	}
	if s.Type != "" && s.Type != TypeURL {
		return nil, fmt.Errorf("unexpected enodebd mconfig type %q", s.Type)
	}

	cfg := &EnodebdConfig{Default: s.EnodebConfig, Devices: make(map[string]EnodebConfig)}
	if err := cfg.Default.Validate(); err != nil {
		return nil, fmt.Errorf("enodebd mconfig default: %w", err)
	}
	for serial, dev := range s.EnbConfigsBySerial {
		if err := dev.Validate(); err != nil {
			log.Warn().Err(err).Str("serial", serial).Msg("Dropping invalid per-device mconfig")
			continue
		}
		cfg.Devices[serial] = dev
	}
	return cfg, nil
}

// Validate checks value ranges
func (c EnodebConfig) Validate() error {
	if err := validator.Validate(c); err != nil {
		return err
	}
	for i, id := range splitPlmnids(c.PlmnidList) {
		if err := validator.Var(fmt.Sprintf("plmnidList[%d]", i), id, "plmnid"); err != nil {
			return err
		}
	}
	return nil
}

// IsZero reports whether nothing is configured
func (c EnodebConfig) IsZero() bool {
	return c.EARFCNDL == nil && c.PCI == nil && c.BandwidthMhz == 0 && c.TAC == nil &&
		c.PlmnidList == "" && len(c.Plmns) == 0 &&
		c.AllowEnodebTransmit == nil && c.CellReserved == nil && c.CellBarred == nil &&
		c.MMEAddress == "" && c.MMEPort == nil &&
		c.SubframeAssignment == nil && c.SpecialSubframePattern == nil &&
		c.PeriodicInformInterval == 0 && c.PerfMgmt == nil
}

// Merge returns c with every configured field of override applied on top
func (c EnodebConfig) Merge(override EnodebConfig) EnodebConfig {
	out := c
	if override.EARFCNDL != nil {
		out.EARFCNDL = override.EARFCNDL
	}
	if override.PCI != nil {
		out.PCI = override.PCI
	}
	if override.BandwidthMhz != 0 {
		out.BandwidthMhz = override.BandwidthMhz
	}
	if override.TAC != nil {
		out.TAC = override.TAC
	}
	if override.PlmnidList != "" || len(override.Plmns) > 0 {
		out.PlmnidList = override.PlmnidList
		out.Plmns = override.Plmns
	}
	if override.AllowEnodebTransmit != nil {
		out.AllowEnodebTransmit = override.AllowEnodebTransmit
	}
	if override.CellReserved != nil {
		out.CellReserved = override.CellReserved
	}
	if override.CellBarred != nil {
		out.CellBarred = override.CellBarred
	}
	if override.MMEAddress != "" {
		out.MMEAddress = override.MMEAddress
	}
	if override.MMEPort != nil {
		out.MMEPort = override.MMEPort
	}
	if override.SubframeAssignment != nil {
		out.SubframeAssignment = override.SubframeAssignment
	}
	if override.SpecialSubframePattern != nil {
		out.SpecialSubframePattern = override.SpecialSubframePattern
	}
	if override.PeriodicInformInterval != 0 {
		out.PeriodicInformInterval = override.PeriodicInformInterval
	}
	if override.PerfMgmt != nil {
		out.PerfMgmt = override.PerfMgmt
	}
	return out
}

// Desired converts the configuration into the vendor neutral desired state
func (c EnodebConfig) Desired() *deviceconfig.Desired {
	values := make(map[datamodel.ParameterName]any)
	setInt := func(name datamodel.ParameterName, v *int) {
		if v != nil {
			values[name] = *v
		}
	}
	setBool := func(name datamodel.ParameterName, v *bool) {
		if v != nil {
			values[name] = *v
		}
	}

	setInt(datamodel.EARFCNDL, c.EARFCNDL)
	setInt(datamodel.PCI, c.PCI)
	setInt(datamodel.TAC, c.TAC)
	if c.BandwidthMhz != 0 {
		values[datamodel.DLBandwidth] = c.BandwidthMhz
		values[datamodel.ULBandwidth] = c.BandwidthMhz
	}
	setBool(datamodel.AdminState, c.AllowEnodebTransmit)
	setBool(datamodel.CellReserved, c.CellReserved)
	setBool(datamodel.CellBarred, c.CellBarred)
	if c.MMEAddress != "" {
		values[datamodel.MMEIP] = c.MMEAddress
	}
	setInt(datamodel.MMEPort, c.MMEPort)
	setInt(datamodel.SubframeAssignment, c.SubframeAssignment)
	setInt(datamodel.SpecialSubframePattern, c.SpecialSubframePattern)
	if c.PeriodicInformInterval > 0 {
		values[datamodel.PeriodicInformEnable] = true
		values[datamodel.PeriodicInformInterval] = c.PeriodicInformInterval
	}
	if pm := c.PerfMgmt; pm != nil {
		setBool(datamodel.PerfMgmtEnable, pm.Enable)
		if pm.UploadInterval > 0 {
			values[datamodel.PerfMgmtUploadInterval] = pm.UploadInterval
		}
		if pm.UploadURL != "" {
			values[datamodel.PerfMgmtUploadURL] = pm.UploadURL
		}
	}

	return &deviceconfig.Desired{Values: values, Plmns: c.plmns()}
}

func (c EnodebConfig) plmns() []deviceconfig.Plmn {
	if len(c.Plmns) > 0 {
		out := make([]deviceconfig.Plmn, len(c.Plmns))
		copy(out, c.Plmns)
		return out
	}
	var out []deviceconfig.Plmn
	for i, id := range splitPlmnids(c.PlmnidList) {
		out = append(out, deviceconfig.Plmn{PlmnID: id, Enable: true, Primary: i == 0})
	}
	return out
}

func splitPlmnids(list string) []string {
	var ids []string
	for _, id := range strings.Split(list, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
