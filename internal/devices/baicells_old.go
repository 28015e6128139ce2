package devices

import (
	"strings"

	"github.com/lte-gateway/enodebd/internal/datamodel"
	"github.com/lte-gateway/enodebd/internal/datamodel/transform"
	"github.com/lte-gateway/enodebd/internal/deviceconfig"
	sm "github.com/lte-gateway/enodebd/internal/statemachine"
)

// BaicellsOld is the device name for Baicells firmware before
// BaiStation_V100R001C00B110SPC003
const BaicellsOld = "baicells_old"

const (
	baicellsDevicePath     = "Device."
	baicellsFAPServicePath = baicellsDevicePath + "Services.FAPService.1."
	baicellsNumPlmns       = 6
)

// baicellsOldModel maps names onto the TR-196/TR-098/TR-181 tree of older
// Baicells firmware. These releases advertise CellReservedForOperatorUse and
// CellBarred with inverted meaning, so both are flipped on the way out.
type baicellsOldModel struct {
	params   map[datamodel.ParameterName]datamodel.Param
	byPath   map[string]datamodel.ParameterName
	names    []datamodel.ParameterName
	numbered map[datamodel.ParameterName][]datamodel.ParameterName
	toEnb    map[datamodel.ParameterName]datamodel.EnbTransform
	toMagma  map[datamodel.ParameterName]datamodel.MagmaTransform
}

// NewBaicellsOldModel builds the data model. The result is read-only.
func NewBaicellsOldModel() datamodel.DataModel {
	dev, fap := baicellsDevicePath, baicellsFAPServicePath
	b, i, s, o := datamodel.TypeBoolean, datamodel.TypeInt, datamodel.TypeString, datamodel.TypeObject

	params := map[datamodel.ParameterName]datamodel.Param{
		// Top-level objects
		datamodel.Device:     {Path: dev, IsOptional: true, Type: o},
		datamodel.FAPService: {Path: fap, IsOptional: true, Type: o},

		// Device info
		datamodel.GPSStatus:          {Path: dev + "DeviceInfo.X_BAICELLS_COM_GPS_Status", IsOptional: true, Type: b},
		datamodel.PTPStatus:          {Path: dev + "DeviceInfo.X_BAICELLS_COM_1588_Status", IsOptional: true, Type: b},
		datamodel.MMEStatus:          {Path: dev + "DeviceInfo.X_BAICELLS_COM_MME_Status", IsOptional: true, Type: b},
		datamodel.REMStatus:          {Path: fap + "REM.X_BAICELLS_COM_REM_Status", IsOptional: true, Type: b, IsInvasive: true},
		datamodel.LocalGatewayEnable: {Path: dev + "DeviceInfo.X_BAICELLS_COM_LTE_LGW_Switch", Type: b},
		datamodel.GPSEnable:          {Path: dev + "X_BAICELLS_COM_GpsSyncEnable", Type: b, IsInvasive: true},
		datamodel.GPSLat:             {Path: dev + "FAP.GPS.LockedLatitude", IsOptional: true, Type: i, IsInvasive: true},
		datamodel.GPSLong:            {Path: dev + "FAP.GPS.LockedLongitude", IsOptional: true, Type: i, IsInvasive: true},
		datamodel.SWVersion:          {Path: dev + "DeviceInfo.SoftwareVersion", IsOptional: true, Type: s},

		// Capabilities
		datamodel.DuplexModeCapability: {Path: fap + "Capabilities.LTE.DuplexMode", IsOptional: true, Type: s},
		datamodel.BandCapability:       {Path: fap + "Capabilities.LTE.BandsSupported", IsOptional: true, Type: s},

		// RF
		datamodel.EARFCNDL:               {Path: fap + "X_BAICELLS_COM_LTE.EARFCNDLInUse", IsOptional: true, Type: i},
		datamodel.EARFCNUL:               {Path: fap + "X_BAICELLS_COM_LTE.EARFCNULInUse", IsOptional: true, Type: i},
		datamodel.Band:                   {Path: fap + "CellConfig.LTE.RAN.RF.FreqBandIndicator", IsOptional: true, Type: i},
		datamodel.PCI:                    {Path: fap + "CellConfig.LTE.RAN.RF.PhyCellID", IsOptional: true, Type: i},
		datamodel.DLBandwidth:            {Path: fap + "CellConfig.LTE.RAN.RF.DLBandwidth", IsOptional: true, Type: s},
		datamodel.ULBandwidth:            {Path: fap + "CellConfig.LTE.RAN.RF.ULBandwidth", IsOptional: true, Type: s},
		datamodel.SubframeAssignment:     {Path: fap + "CellConfig.LTE.RAN.PHY.TDDFrame.SubFrameAssignment", IsOptional: true, Type: i},
		datamodel.SpecialSubframePattern: {Path: fap + "CellConfig.LTE.RAN.PHY.TDDFrame.SpecialSubframePatterns", IsOptional: true, Type: i},

		// LTE control
		datamodel.AdminState: {Path: fap + "FAPControl.LTE.AdminState", Type: b},
		datamodel.OpState:    {Path: fap + "FAPControl.LTE.OpState", IsOptional: true, Type: b},
		datamodel.RFTxStatus: {Path: fap + "FAPControl.LTE.RFTxStatus", IsOptional: true, Type: b},

		// RAN
		datamodel.CellReserved: {Path: fap + "CellConfig.LTE.RAN.CellRestriction.CellReservedForOperatorUse", IsOptional: true, Type: b},
		datamodel.CellBarred:   {Path: fap + "CellConfig.LTE.RAN.CellRestriction.CellBarred", IsOptional: true, Type: b},

		// Core network
		datamodel.MMEIP:         {Path: fap + "FAPControl.LTE.Gateway.S1SigLinkServerList", IsOptional: true, Type: s},
		datamodel.MMEPort:       {Path: fap + "FAPControl.LTE.Gateway.S1SigLinkPort", IsOptional: true, Type: i},
		datamodel.NumPlmns:      {Path: fap + "CellConfig.LTE.EPC.PLMNListNumberOfEntries", IsOptional: true, Type: i},
		datamodel.Plmn:          {Path: fap + "CellConfig.LTE.EPC.PLMNList.", IsOptional: true, Type: o},
		datamodel.TAC:           {Path: fap + "CellConfig.LTE.EPC.TAC", IsOptional: true, Type: i},
		datamodel.IPSecEnable:   {Path: dev + "Services.FAPService.Ipsec.IPSEC_ENABLE", Type: b},
		datamodel.MMEPoolEnable: {Path: fap + "FAPControl.LTE.Gateway.X_BAICELLS_COM_MmePool.Enable", IsOptional: true, Type: b, IsInvasive: true},

		// Management server
		datamodel.PeriodicInformEnable:   {Path: dev + "ManagementServer.PeriodicInformEnable", Type: b},
		datamodel.PeriodicInformInterval: {Path: dev + "ManagementServer.PeriodicInformInterval", Type: i},

		// Performance management
		datamodel.PerfMgmtEnable:         {Path: dev + "FAP.PerfMgmt.Config.1.Enable", Type: b},
		datamodel.PerfMgmtUploadInterval: {Path: dev + "FAP.PerfMgmt.Config.1.PeriodicUploadInterval", Type: i},
		datamodel.PerfMgmtUploadURL:      {Path: dev + "FAP.PerfMgmt.Config.1.URL", Type: s},
	}

	plmnList := fap + "CellConfig.LTE.EPC.PLMNList.%d."
	families := []datamodel.IndexedParam{
		{Family: datamodel.PlmnNFamily, PathFormat: plmnList, IsOptional: true, Type: o},
		{Family: datamodel.PlmnNCellReservedFamily, PathFormat: plmnList + "CellReservedForOperatorUse", IsOptional: true, Type: b},
		{Family: datamodel.PlmnNEnableFamily, PathFormat: plmnList + "Enable", IsOptional: true, Type: b},
		{Family: datamodel.PlmnNPrimaryFamily, PathFormat: plmnList + "IsPrimary", IsOptional: true, Type: b},
		{Family: datamodel.PlmnNPlmnIDFamily, PathFormat: plmnList + "PLMNID", IsOptional: true, Type: s},
	}
	for _, f := range families {
		for _, np := range datamodel.BuildIndexedParameters(f, baicellsNumPlmns) {
			params[np.Name] = np.Param
		}
	}

	m := &baicellsOldModel{
		params:   params,
		byPath:   make(map[string]datamodel.ParameterName, len(params)),
		numbered: make(map[datamodel.ParameterName][]datamodel.ParameterName, baicellsNumPlmns),
		toEnb: map[datamodel.ParameterName]datamodel.EnbTransform{
			datamodel.DLBandwidth:  transform.BandwidthForEnb,
			datamodel.ULBandwidth:  transform.BandwidthForEnb,
			datamodel.CellBarred:   transform.InvertBoolForEnb,
			datamodel.CellReserved: transform.InvertBoolForEnb,
			datamodel.GPSLat:       transform.GpsForEnb,
			datamodel.GPSLong:      transform.GpsForEnb,
		},
		toMagma: map[datamodel.ParameterName]datamodel.MagmaTransform{
			datamodel.GPSLat:      transform.GpsForMagma,
			datamodel.GPSLong:     transform.GpsForMagma,
			datamodel.DLBandwidth: transform.BandwidthForMagma,
			datamodel.ULBandwidth: transform.BandwidthForMagma,
		},
	}
	for name, p := range params {
		m.byPath[p.Path] = name
		if p.IsObject() || datamodel.IsIndexed(name) || strings.HasPrefix(string(name), string(datamodel.Plmn)) {
			continue
		}
		m.names = append(m.names, name)
	}
	sortNames(m.names)
	for n := 1; n <= baicellsNumPlmns; n++ {
		m.numbered[datamodel.PlmnN(n)] = datamodel.PlmnSubParameters(n)
	}
	return m
}

func (m *baicellsOldModel) GetParameter(name datamodel.ParameterName) (datamodel.Param, bool) {
	p, ok := m.params[name]
	return p, ok
}

func (m *baicellsOldModel) LoadParameters() []datamodel.ParameterName {
	return []datamodel.ParameterName{datamodel.Device}
}

func (m *baicellsOldModel) ParameterNames() []datamodel.ParameterName {
	out := make([]datamodel.ParameterName, len(m.names))
	copy(out, m.names)
	return out
}

func (m *baicellsOldModel) NumberedParameterNames() map[datamodel.ParameterName][]datamodel.ParameterName {
	return m.numbered
}

func (m *baicellsOldModel) NumPlmns() int { return baicellsNumPlmns }

func (m *baicellsOldModel) EnbTransforms() map[datamodel.ParameterName]datamodel.EnbTransform {
	return m.toEnb
}

func (m *baicellsOldModel) MagmaTransforms() map[datamodel.ParameterName]datamodel.MagmaTransform {
	return m.toMagma
}

func (m *baicellsOldModel) NameForPath(path string) (datamodel.ParameterName, bool) {
	name, ok := m.byPath[path]
	return name, ok
}

// baicellsOldPostProcessor keeps cell barred off. Toggling it trips a
// firmware bug on these releases.
type baicellsOldPostProcessor struct{}

func (baicellsOldPostProcessor) Postprocess(desired *deviceconfig.Configuration) {
	_ = desired.SetParameter(datamodel.CellBarred, false)
}

// baicellsOldGraph wires the session graph for older Baicells firmware
func baicellsOldGraph(m *sm.Machine) sm.Graph {
	t := m.Timeouts()
	sync := sm.SyncTargets{
		Delete: sm.StateDeleteObjs,
		Add:    sm.StateAddObjs,
		Set:    sm.StateSetParams,
		Skip:   sm.StateGetTransientParams,
	}
	waiting := func(s sm.State) sm.StateConfig {
		return sm.StateConfig{State: s, Timeout: t.Response, OnTimeout: sm.StateDisconnected}
	}

	return sm.Graph{
		sm.StateDisconnected:     {State: sm.NewInformState(m, sm.StateWaitEmpty)},
		sm.StateUnexpectedInform: waiting(sm.NewInformState(m, sm.StateWaitEmpty)),
		sm.StateWaitEmpty:        waiting(sm.NewWaitEmptyState(m, sm.StateCheckOptionalParams)),
		sm.StateCheckOptionalParams: waiting(
			sm.NewCheckOptionalParamsState(m, sm.StateGetTransientParams)),
		sm.StateGetTransientParams: {
			State:     sm.NewGetTransientParamsState(m, sm.StateWaitGetTransientParams),
			Timeout:   t.Idle,
			OnTimeout: sm.StateDisconnected,
		},
		sm.StateWaitGetTransientParams: waiting(
			sm.NewWaitGetTransientParamsState(m, sm.StateGetParams, sm.StateGetObjParams, sync)),
		sm.StateGetParams:        waiting(sm.NewGetParamsState(m, sm.StateWaitGetParams)),
		sm.StateWaitGetParams:    waiting(sm.NewWaitGetParamsState(m, sm.StateGetObjParams)),
		sm.StateGetObjParams:     waiting(sm.NewGetObjParamsState(m, sm.StateWaitGetObjParams, sync)),
		sm.StateWaitGetObjParams: waiting(sm.NewWaitGetObjParamsState(m, sync)),
		sm.StateDeleteObjs:       waiting(sm.NewDeleteObjsState(m, sm.StateAddObjs, sm.StateSetParams)),
		sm.StateAddObjs:          waiting(sm.NewAddObjsState(m, sm.StateSetParams)),
		sm.StateSetParams:        waiting(sm.NewSetParamsState(m, sm.StateWaitSetParams, sm.StateGetTransientParams)),
		sm.StateWaitSetParams:    waiting(sm.NewWaitSetParamsState(m, sm.StateGetTransientParams)),

		// Only entered through a manual reboot request
		sm.StateReboot: {
			State:     sm.NewRebootState(m, sm.StateWaitReboot),
			Timeout:   t.Idle,
			OnTimeout: sm.StateDisconnected,
		},
		sm.StateWaitReboot: waiting(sm.NewWaitRebootState(m, sm.StateWaitPostRebootInform)),
		sm.StateWaitPostRebootInform: {
			State:         sm.NewWaitPostRebootInformState(m, sm.StateWaitRebootDelay),
			Timeout:       t.PostRebootInform,
			OnTimeout:     sm.StateDisconnected,
			FixedDeadline: true,
		},
		sm.StateWaitRebootDelay: {
			State:         sm.NewWaitRebootDelayState(m),
			Timeout:       t.RebootDelay,
			OnTimeout:     sm.StateWaitInform,
			FixedDeadline: true,
		},
		sm.StateWaitInform: {
			State:     sm.NewInformState(m, sm.StateGetTransientParams),
			Timeout:   t.Idle,
			OnTimeout: sm.StateDisconnected,
		},
	}
}
