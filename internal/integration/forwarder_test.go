package integration

import (
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lte-gateway/enodebd/internal/config"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	connected bool
	err       error
	sent      []published
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.sent = append(c.sent, published{topic, qos, retained, payload.([]byte)})
	return doneToken{err: c.err}
}
func (c *fakeClient) IsConnected() bool       { return c.connected }
func (c *fakeClient) Disconnect(quiesce uint) { c.connected = false }

func newForwarder(client *fakeClient) *StatusForwarder {
	f := NewStatusForwarder(nil, config.MQTTConfig{TopicPrefix: "lte/enodebd/", QoS: 1})
	f.client = client
	return f
}

func TestForward(t *testing.T) {
	client := &fakeClient{connected: true}
	f := newForwarder(client)

	f.handleStatus(&nats.Msg{Subject: "enodebd.120200002618AGP0003.status", Data: []byte(`{"state":"wait_empty"}`)})

	require.Len(t, client.sent, 1)
	assert.Equal(t, "lte/enodebd/120200002618AGP0003/status", client.sent[0].topic)
	assert.Equal(t, byte(1), client.sent[0].qos)
	assert.True(t, client.sent[0].retained)
	assert.JSONEq(t, `{"state":"wait_empty"}`, string(client.sent[0].payload))
}

func TestForwardBadSubject(t *testing.T) {
	client := &fakeClient{connected: true}
	f := newForwarder(client)

	f.handleStatus(&nats.Msg{Subject: "enodebd.status", Data: []byte(`{}`)})
	f.handleStatus(&nats.Msg{Subject: "enodebd..status", Data: []byte(`{}`)})
	assert.Empty(t, client.sent)
}

func TestForwardErrors(t *testing.T) {
	f := newForwarder(&fakeClient{connected: false})
	assert.Error(t, f.Forward("A1", []byte(`{}`)))

	f = newForwarder(&fakeClient{connected: true, err: errors.New("broker gone")})
	assert.ErrorContains(t, f.Forward("A1", []byte(`{}`)), "broker gone")

	f = NewStatusForwarder(nil, config.MQTTConfig{TopicPrefix: "enodebd"})
	assert.Error(t, f.Forward("A1", []byte(`{}`)))
}
