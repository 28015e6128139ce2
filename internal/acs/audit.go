package acs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lte-gateway/enodebd/internal/datamodel"
	"github.com/lte-gateway/enodebd/internal/models"
	sm "github.com/lte-gateway/enodebd/internal/statemachine"
	"github.com/lte-gateway/enodebd/internal/storage"
	"github.com/lte-gateway/enodebd/pkg/tr069"
)

// auditObserver writes noteworthy session events to the event log
type auditObserver struct {
	store storage.Store
}

func (a *auditObserver) StateChanged(serial, from, to string) {
	switch {
	case from == sm.StateDisconnected:
		a.write(serial, models.EventTypeConnected, models.EventLevelInfo, "eNodeB connected", nil)
	case to == sm.StateDisconnected:
		a.write(serial, models.EventTypeDisconnected, models.EventLevelWarning,
			fmt.Sprintf("eNodeB disconnected from %s", from), models.Variables{"from": from})
	}
}

func (a *auditObserver) RequestSent(string, tr069.RPCKind) {}

func (a *auditObserver) ProtocolViolation(serial, state string, kind tr069.EventKind) {
	a.write(serial, models.EventTypeProtocolError, models.EventLevelWarning,
		fmt.Sprintf("Unexpected %s in %s", kind, state),
		models.Variables{"state": state, "message": string(kind)})
}

func (a *auditObserver) TimedOut(serial, state string) {
	a.write(serial, models.EventTypeTimeout, models.EventLevelWarning,
		fmt.Sprintf("No response in %s", state), models.Variables{"state": state})
}

func (a *auditObserver) TransformFailed(serial string, name datamodel.ParameterName, err error) {
	a.write(serial, models.EventTypeTransformError, models.EventLevelError,
		fmt.Sprintf("Cannot convert %s", name),
		models.Variables{"param": string(name), "error": err.Error()})
}

func (a *auditObserver) write(serial string, typ models.EventType, level models.EventLevel, desc string, details models.Variables) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ev := &models.EventLog{
		Serial:      serial,
		Type:        typ,
		Level:       level,
		Description: desc,
		Details:     details,
	}
	if err := a.store.CreateEventLog(ctx, ev); err != nil {
		log.Error().Err(err).Str("serial", serial).Str("type", string(typ)).Msg("Failed to write event log")
	}
}
