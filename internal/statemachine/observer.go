package statemachine

import (
	"github.com/lte-gateway/enodebd/internal/datamodel"
	"github.com/lte-gateway/enodebd/pkg/tr069"
)

// Observer receives session events for metrics and audit logging
type Observer interface {
	StateChanged(serial, from, to string)
	RequestSent(serial string, kind tr069.RPCKind)
	ProtocolViolation(serial, state string, kind tr069.EventKind)
	TimedOut(serial, state string)
	TransformFailed(serial string, name datamodel.ParameterName, err error)
}

// NopObserver ignores all events
type NopObserver struct{}

func (NopObserver) StateChanged(string, string, string) {}
func (NopObserver) RequestSent(string, tr069.RPCKind) {}
func (NopObserver) ProtocolViolation(string, string, tr069.EventKind) {}
func (NopObserver) TimedOut(string, string) {}
func (NopObserver) TransformFailed(string, datamodel.ParameterName, error) {}

// MultiObserver fans events out to several observers
type MultiObserver []Observer

func (mo MultiObserver) StateChanged(serial, from, to string) {
	for _, o := range mo {
		o.StateChanged(serial, from, to)
	}
}

func (mo MultiObserver) RequestSent(serial string, kind tr069.RPCKind) {
	for _, o := range mo {
		o.RequestSent(serial, kind)
	}
}

func (mo MultiObserver) ProtocolViolation(serial, state string, kind tr069.EventKind) {
	for _, o := range mo {
		o.ProtocolViolation(serial, state, kind)
	}
}

func (mo MultiObserver) TimedOut(serial, state string) {
	for _, o := range mo {
		o.TimedOut(serial, state)
	}
}

func (mo MultiObserver) TransformFailed(serial string, name datamodel.ParameterName, err error) {
	for _, o := range mo {
		o.TransformFailed(serial, name, err)
	}
}
