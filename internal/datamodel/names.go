package datamodel

import (
	"fmt"
	"regexp"
	"strconv"
)

// ParameterName is the vendor-independent name of one configuration field
type ParameterName string

const (
	// Top-level objects
	Device     ParameterName = "Device"
	FAPService ParameterName = "FAPService"

	// Device info
	GPSStatus          ParameterName = "GPS status"
	PTPStatus          ParameterName = "PTP status"
	MMEStatus          ParameterName = "MME status"
	REMStatus          ParameterName = "REM status"
	LocalGatewayEnable ParameterName = "Local gateway enable"
	GPSEnable          ParameterName = "GPS enable"
	GPSLat             ParameterName = "GPS lat"
	GPSLong            ParameterName = "GPS long"
	SWVersion          ParameterName = "SW version"

	// Capabilities
	DuplexModeCapability ParameterName = "Duplex mode capability"
	BandCapability       ParameterName = "Band capability"

	// RF
	EARFCNDL               ParameterName = "EARFCNDL"
	EARFCNUL               ParameterName = "EARFCNUL"
	Band                   ParameterName = "Band"
	PCI                    ParameterName = "PCI"
	DLBandwidth            ParameterName = "DL bandwidth"
	ULBandwidth            ParameterName = "UL bandwidth"
	SubframeAssignment     ParameterName = "Subframe assignment"
	SpecialSubframePattern ParameterName = "Special subframe pattern"

	// LTE control
	AdminState ParameterName = "Admin state"
	OpState    ParameterName = "Opstate"
	RFTxStatus ParameterName = "RF TX status"

	// RAN
	CellReserved ParameterName = "Cell reserved"
	CellBarred   ParameterName = "Cell barred"

	// Core network
	MMEIP         ParameterName = "MME IP"
	MMEPort       ParameterName = "MME port"
	NumPlmns      ParameterName = "Num PLMNs"
	Plmn          ParameterName = "PLMN"
	TAC           ParameterName = "TAC"
	IPSecEnable   ParameterName = "IPSec enable"
	MMEPoolEnable ParameterName = "MME pool enable"

	// Management server
	PeriodicInformEnable   ParameterName = "Periodic inform enable"
	PeriodicInformInterval ParameterName = "Periodic inform interval"

	// Performance management
	PerfMgmtEnable         ParameterName = "Perf mgmt enable"
	PerfMgmtUploadInterval ParameterName = "Perf mgmt upload interval"
	PerfMgmtUploadURL      ParameterName = "Perf mgmt upload URL"
)

// Indexed families. Each is a format string taking the 1-based instance number.
const (
	PlmnNFamily             ParameterName = "PLMN %d"
	PlmnNCellReservedFamily ParameterName = "PLMN %d cell reserved"
	PlmnNEnableFamily       ParameterName = "PLMN %d enable"
	PlmnNPrimaryFamily      ParameterName = "PLMN %d primary"
	PlmnNPlmnIDFamily       ParameterName = "PLMN %d PLMNID"
)

var indexedPattern = regexp.MustCompile(`^PLMN (\d+)(.*)$`)

// Indexed expands an indexed family for instance i
func Indexed(family ParameterName, i int) ParameterName {
	return ParameterName(fmt.Sprintf(string(family), i))
}

func PlmnN(i int) ParameterName             { return Indexed(PlmnNFamily, i) }
func PlmnNCellReserved(i int) ParameterName { return Indexed(PlmnNCellReservedFamily, i) }
func PlmnNEnable(i int) ParameterName       { return Indexed(PlmnNEnableFamily, i) }
func PlmnNPrimary(i int) ParameterName      { return Indexed(PlmnNPrimaryFamily, i) }
func PlmnNPlmnID(i int) ParameterName       { return Indexed(PlmnNPlmnIDFamily, i) }

// PlmnSubParameters lists the sub-parameters of PLMN entry i in protocol order
func PlmnSubParameters(i int) []ParameterName {
	return []ParameterName{
		PlmnNCellReserved(i),
		PlmnNEnable(i),
		PlmnNPrimary(i),
		PlmnNPlmnID(i),
	}
}

// ParseIndexed recognises an indexed name and returns its family and instance
func ParseIndexed(name ParameterName) (ParameterName, int, bool) {
	m := indexedPattern.FindStringSubmatch(string(name))
	if m == nil {
		return "", 0, false
	}
	i, err := strconv.Atoi(m[1])
	if err != nil || i < 1 {
		return "", 0, false
	}
	return ParameterName("PLMN %d" + m[2]), i, true
}

// IsIndexed reports whether name belongs to an indexed family
func IsIndexed(name ParameterName) bool {
	_, _, ok := ParseIndexed(name)
	return ok
}
