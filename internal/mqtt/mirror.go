package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/emmatufvesson/relAI/internal/models"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// publisher is the part of paho.Client the mirror needs
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Mirror republishes every state-store metric on MQTT as retained messages:
// <prefix>/<entity>/state and <prefix>/<entity>/attributes.
type Mirror struct {
	client publisher
	prefix string
	qos    byte
}

// Connect dials the broker with auto-reconnect enabled
func Connect(broker, clientID, prefix string) (*Mirror, error) {
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(c paho.Client) {
		slog.Info("mqtt connection established", "broker", broker, "client_id", clientID)
	}
	opts.OnConnectionLost = func(c paho.Client, err error) {
		slog.Warn("mqtt connection lost, will auto-reconnect", "broker", broker, "error", err)
	}

	return connect(paho.NewClient(opts), prefix)
}

// connect waits for the first connection. With connect retry enabled paho keeps dialing
// in the background, so a client that gave up is disconnected before returning.
func connect(client paho.Client, prefix string) (*Mirror, error) {
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	return NewMirror(client, prefix), nil
}

func NewMirror(client publisher, prefix string) *Mirror {
	return &Mirror{client: client, prefix: strings.Trim(prefix, "/")}
}

func (m *Mirror) Name() string { return "mqtt" }

// Record mirrors the publish batch of a completed cycle. Failed cycles are skipped.
func (m *Mirror) Record(_ context.Context, report *models.CycleReport) error {
	if report.Failed() || report.Batch == nil {
		return nil
	}

	attrs, err := json.Marshal(report.Batch.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}

	for _, metric := range report.Batch.Metrics {
		base := m.topic(metric.EntityID)
		if err := m.publish(base+"/state", []byte(metric.State)); err != nil {
			return err
		}
		if err := m.publish(base+"/attributes", attrs); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mirror) topic(entityID string) string {
	entity := strings.ReplaceAll(entityID, ".", "/")
	if m.prefix == "" {
		return entity
	}
	return m.prefix + "/" + entity
}

func (m *Mirror) publish(topic string, payload []byte) error {
	token := m.client.Publish(topic, m.qos, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects when the mirror owns a paho client
func (m *Mirror) Close() error {
	if c, ok := m.client.(paho.Client); ok && c.IsConnected() {
		c.Disconnect(250)
	}
	return nil
}
