package acs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/lte-gateway/enodebd/internal/mconfig"
	"github.com/lte-gateway/enodebd/pkg/tr069"
)

const (
	// EventSubject carries decoded CWMP messages as request/reply, cwmp.<serial>.event
	EventSubject = "cwmp.*.event"
	// MconfigSubject carries streamed gateway config updates
	MconfigSubject = "mconfig.enodebd"
)

// Reply is the answer to one event on the bus. A nil Request means the
// bridge should send an empty HTTP response and close the CWMP session.
type Reply struct {
	Request *tr069.Request `json:"request,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Start subscribes to the bus and runs the timeout sweeper until ctx is done
func (m *Manager) Start(ctx context.Context) error {
	var subs []*nats.Subscription
	if m.nc != nil {
		sub, err := m.nc.Subscribe(EventSubject, m.handleEventMsg)
		if err != nil {
			return fmt.Errorf("subscribe to cwmp events: %w", err)
		}
		subs = append(subs, sub)

		sub, err = m.nc.Subscribe(MconfigSubject, m.handleMconfigMsg)
		if err != nil {
			_ = unsubscribeAll(subs)
			return fmt.Errorf("subscribe to mconfig updates: %w", err)
		}
		subs = append(subs, sub)
	}

	go m.sweepLoop(ctx)

	log.Info().
		Int("subscriptions", len(subs)).
		Dur("sweep", m.opts.SweepInterval).
		Msg("eNodeB session manager started")

	<-ctx.Done()

	_ = unsubscribeAll(subs)
	return nil
}

// unsubscribeAll drops every subscription, logging the ones that fail
func unsubscribeAll(subs []*nats.Subscription) error {
	var errs []error
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			log.Error().Err(err).Str("subject", sub.Subject).Msg("Failed to unsubscribe")
			errs = append(errs, fmt.Errorf("unsubscribe %s: %w", sub.Subject, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) handleEventMsg(msg *nats.Msg) {
	reply := m.processEvent(context.Background(), msg.Subject, msg.Data)

	data, err := json.Marshal(reply)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal reply")
		return
	}
	if msg.Reply == "" {
		return
	}
	if err := msg.Respond(data); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("Failed to respond")
	}
}

// processEvent decodes one bus message and runs it through the session
func (m *Manager) processEvent(ctx context.Context, subject string, data []byte) Reply {
	var ev tr069.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("Failed to unmarshal cwmp event")
		return Reply{Error: fmt.Sprintf("decode event: %v", err)}
	}

	parts := strings.Split(subject, ".")
	if len(parts) == 3 && ev.Serial == "" {
		ev.Serial = parts[1]
	}

	log.Debug().
		Str("serial", ev.Serial).
		Str("message", string(ev.Kind)).
		Msg("Received cwmp event")

	req, err := m.HandleEvent(ctx, ev)
	if err != nil {
		log.Warn().Err(err).Str("serial", ev.Serial).Msg("Event not handled")
		return Reply{Error: err.Error()}
	}
	return Reply{Request: req}
}

func (m *Manager) handleMconfigMsg(msg *nats.Msg) {
	if err := m.applyMconfig(msg.Data); err != nil {
		log.Error().Err(err).Msg("Failed to apply mconfig update")
	}
}

// applyMconfig installs a streamed gateway config and makes sessions rebuild
// their desired configuration
func (m *Manager) applyMconfig(data []byte) error {
	cfg, offset, err := mconfig.Parse(data)
	if err != nil {
		return err
	}
	if !m.provider.Update(cfg, offset) {
		return nil
	}
	m.InvalidateAll()
	return nil
}
