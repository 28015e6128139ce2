package tr069

import (
	"fmt"
	"strings"
)

// EventKind identifies an inbound message delivered by the transport bridge
type EventKind string

const (
	EventInform                     EventKind = "Inform"
	EventEmpty                      EventKind = "Empty"
	EventGetParameterValuesResponse EventKind = "GetParameterValuesResponse"
	EventGetParameterNamesResponse  EventKind = "GetParameterNamesResponse"
	EventSetParameterValuesResponse EventKind = "SetParameterValuesResponse"
	EventAddObjectResponse          EventKind = "AddObjectResponse"
	EventDeleteObjectResponse       EventKind = "DeleteObjectResponse"
	EventRebootResponse             EventKind = "RebootResponse"
	EventFault                      EventKind = "Fault"
)

// RPCKind identifies an outbound request
type RPCKind string

const (
	RPCInformResponse     RPCKind = "InformResponse"
	RPCGetParameterValues RPCKind = "GetParameterValues"
	RPCGetParameterNames  RPCKind = "GetParameterNames"
	RPCSetParameterValues RPCKind = "SetParameterValues"
	RPCAddObject          RPCKind = "AddObject"
	RPCDeleteObject       RPCKind = "DeleteObject"
	RPCReboot             RPCKind = "Reboot"
)

// Inform event codes
const (
	EventCodeBootstrap     = "0 BOOTSTRAP"
	EventCodeBoot          = "1 BOOT"
	EventCodePeriodic      = "2 PERIODIC"
	EventCodeValueChange   = "4 VALUE CHANGE"
	EventCodeConnectionReq = "6 CONNECTION REQUEST"
	EventCodeMReboot       = "M Reboot"
)

// CWMP fault codes the ACS reacts to
const (
	FaultInvalidParameterName  = 9005
	FaultInvalidParameterType  = 9006
	FaultInvalidParameterValue = 9007
)

// XSD value types carried in ParameterValueStruct
const (
	TypeBoolean     = "xsd:boolean"
	TypeInt         = "xsd:int"
	TypeUnsignedInt = "xsd:unsignedInt"
	TypeString      = "xsd:string"
)

// DeviceID is the DeviceIdStruct of an Inform
type DeviceID struct {
	Manufacturer string `json:"manufacturer"`
	OUI          string `json:"oui"`
	ProductClass string `json:"productClass"`
	SerialNumber string `json:"serialNumber"`
}

// ParameterValue is one name/value pair on the wire
type ParameterValue struct {
	Name  string `json:"name"`
	Type  string `json:"type,omitempty"`
	Value string `json:"value"`
}

// Fault carries a CWMP fault
type Fault struct {
	Code   int              `json:"code"`
	String string           `json:"string"`
	Params []ParameterFault `json:"params,omitempty"`
}

// ParameterFault is a per-parameter SetParameterValuesFault
type ParameterFault struct {
	Name   string `json:"name"`
	Code   int    `json:"code"`
	String string `json:"string"`
}

func (f *Fault) Error() string {
	return fmt.Sprintf("cwmp fault %d: %s", f.Code, f.String)
}

// Event is a decoded inbound message for one device
type Event struct {
	Kind       EventKind        `json:"kind"`
	Serial     string           `json:"serial"`
	DeviceID   *DeviceID        `json:"deviceId,omitempty"`
	EventCodes []string         `json:"eventCodes,omitempty"`
	Params     []ParameterValue `json:"params,omitempty"`
	Names      []string         `json:"names,omitempty"`
	Status     int              `json:"status,omitempty"`
	Instance   int              `json:"instance,omitempty"`
	Fault      *Fault           `json:"fault,omitempty"`
}

// HasEventCode reports whether an Inform carries the given event code
func (e Event) HasEventCode(code string) bool {
	for _, c := range e.EventCodes {
		if strings.EqualFold(strings.TrimSpace(c), code) {
			return true
		}
	}
	return false
}

// ParamMap returns the event parameters keyed by path
func (e Event) ParamMap() map[string]string {
	m := make(map[string]string, len(e.Params))
	for _, p := range e.Params {
		m[p.Name] = p.Value
	}
	return m
}

// Request is an outbound RPC for one device
type Request struct {
	Kind         RPCKind          `json:"kind"`
	Names        []string         `json:"names,omitempty"`
	Values       []ParameterValue `json:"values,omitempty"`
	ObjectName   string           `json:"objectName,omitempty"`
	ParameterKey string           `json:"parameterKey,omitempty"`
	MaxEnvelopes int              `json:"maxEnvelopes,omitempty"`
}

// NewInformResponse creates the answer to an Inform
func NewInformResponse() *Request {
	return &Request{Kind: RPCInformResponse, MaxEnvelopes: 1}
}

// NewGetParameterValues creates a GetParameterValues request
func NewGetParameterValues(paths []string) *Request {
	names := make([]string, len(paths))
	copy(names, paths)
	return &Request{Kind: RPCGetParameterValues, Names: names}
}

// NewSetParameterValues creates a SetParameterValues request
func NewSetParameterValues(values []ParameterValue, key string) *Request {
	return &Request{Kind: RPCSetParameterValues, Values: values, ParameterKey: key}
}

// NewAddObject creates an AddObject request for a multi-instance object path
func NewAddObject(objectPath string) *Request {
	return &Request{Kind: RPCAddObject, ObjectName: objectPath}
}

// NewDeleteObject creates a DeleteObject request for one object instance
func NewDeleteObject(instancePath string) *Request {
	return &Request{Kind: RPCDeleteObject, ObjectName: instancePath}
}

// NewReboot creates a Reboot request
func NewReboot(commandKey string) *Request {
	return &Request{Kind: RPCReboot, ParameterKey: commandKey}
}
