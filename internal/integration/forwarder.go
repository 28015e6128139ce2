package integration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/lte-gateway/enodebd/internal/config"
)

// StatusSubject is the NATS subject pattern session status is published on
const StatusSubject = "enodebd.*.status"

// publisher is the part of mqtt.Client the forwarder needs
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// StatusForwarder relays eNodeB status updates from NATS to an MQTT broker
type StatusForwarder struct {
	nc     *nats.Conn
	config config.MQTTConfig

	mu     sync.Mutex
	client publisher

	publishTimeout time.Duration
}

// NewStatusForwarder creates the forwarder, the broker connection is made on Start
func NewStatusForwarder(nc *nats.Conn, cfg config.MQTTConfig) *StatusForwarder {
	return &StatusForwarder{
		nc:             nc,
		config:         cfg,
		publishTimeout: 5 * time.Second,
	}
}

// Start connects to the broker and forwards until ctx is done
func (s *StatusForwarder) Start(ctx context.Context) error {
	client, err := s.connect()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	sub, err := s.nc.Subscribe(StatusSubject, s.handleStatus)
	if err != nil {
		client.Disconnect(250)
		return fmt.Errorf("subscribe to status: %w", err)
	}

	log.Info().Str("broker", s.config.Broker).Msg("MQTT status forwarder started")

	<-ctx.Done()

	sub.Unsubscribe()
	s.mu.Lock()
	if s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	s.client = nil
	s.mu.Unlock()

	log.Info().Msg("MQTT status forwarder stopped")
	return nil
}

func (s *StatusForwarder) connect() (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.config.Broker)
	opts.SetClientID(s.config.ClientID)

	if s.config.Username != "" {
		opts.SetUsername(s.config.Username)
		opts.SetPassword(s.config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Str("broker", s.config.Broker).Msg("MQTT client connected")
	})

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Error().Err(err).Str("broker", s.config.Broker).Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connect to mqtt broker %s: timeout", s.config.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", s.config.Broker, err)
	}
	return client, nil
}

// handleStatus forwards one status message, the serial comes from the subject
func (s *StatusForwarder) handleStatus(msg *nats.Msg) {
	parts := strings.Split(msg.Subject, ".")
	if len(parts) != 3 || parts[1] == "" {
		log.Warn().Str("subject", msg.Subject).Msg("Invalid status subject")
		return
	}
	if err := s.Forward(parts[1], msg.Data); err != nil {
		log.Error().Err(err).Str("serial", parts[1]).Msg("Failed to forward status")
	}
}

// Forward publishes a status payload as a retained message
func (s *StatusForwarder) Forward(serial string, payload []byte) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	if client == nil || !client.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	topic := s.Topic(serial)
	token := client.Publish(topic, s.config.QoS, true, payload)
	if !token.WaitTimeout(s.publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	log.Debug().Str("serial", serial).Str("topic", topic).Msg("Status forwarded to MQTT")
	return nil
}

// Topic returns the MQTT topic for one device
func (s *StatusForwarder) Topic(serial string) string {
	return fmt.Sprintf("%s/%s/status", strings.TrimSuffix(s.config.TopicPrefix, "/"), serial)
}
