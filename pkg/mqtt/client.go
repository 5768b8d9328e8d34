package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/saaga0h/agent2mqtt/pkg/config"
)

const (
	// KeepAlive is the MQTT keep-alive interval negotiated with the broker
	KeepAlive = 20 * time.Second

	// subackFailure is the SUBACK return code for a refused subscription
	subackFailure byte = 0x80

	disconnectQuiesce = 250 // ms
)

// mqttClient implements the Client interface using the Paho MQTT client
type mqttClient struct {
	client pahomqtt.Client
	cfg    *config.Config
	logger *slog.Logger

	lostMu sync.RWMutex
	onLost ConnectionLostHandler
}

// NewClient creates a new MQTT client with the given configuration.
// Automatic reconnection is disabled: the caller owns the reconnect loop.
func NewClient(cfg *config.Config, logger *slog.Logger) Client {
	m := &mqttClient{
		cfg:    cfg,
		logger: logger,
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTAddress())
	opts.SetClientID(cfg.MQTTClientID)

	// Connection settings
	opts.SetKeepAlive(KeepAlive)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetOrderMatters(true)

	// Connection handlers
	opts.OnConnect = func(c pahomqtt.Client) {
		logger.Info("Connected to MQTT broker", "broker", cfg.MQTTAddress())
	}

	opts.OnConnectionLost = func(c pahomqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "error", err)
		m.lostMu.RLock()
		handler := m.onLost
		m.lostMu.RUnlock()
		if handler != nil {
			handler(err)
		}
	}

	m.client = pahomqtt.NewClient(opts)
	return m
}

// Connect establishes a connection to the MQTT broker
func (m *mqttClient) Connect(ctx context.Context) error {
	m.logger.Info("Connecting to MQTT broker", "broker", m.cfg.MQTTAddress())

	token := m.client.Connect()

	// Wait for connection with context timeout
	select {
	case <-token.Done():
		if token.Error() != nil {
			return fmt.Errorf("%w: %w", ErrConnectionFailed, token.Error())
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("connection timeout: %w", ctx.Err())
	}
}

// Disconnect closes the connection to the MQTT broker
func (m *mqttClient) Disconnect() {
	m.logger.Info("Disconnecting from MQTT broker")
	m.client.Disconnect(disconnectQuiesce)
}

// Subscribe subscribes to a topic with the given QoS and handler and checks
// that the SUBACK grants it
func (m *mqttClient) Subscribe(topic string, qos byte, handler MessageHandler) error {
	m.logger.Info("Subscribing to MQTT topic", "topic", topic, "qos", qos)

	if !m.client.IsConnected() {
		return ErrNotConnected
	}

	// Wrap the handler to convert paho message to our interface
	pahoHandler := func(client pahomqtt.Client, msg pahomqtt.Message) {
		handler(&mqttMessage{msg: msg})
	}

	token := m.client.Subscribe(topic, qos, pahoHandler)
	token.Wait()

	if token.Error() != nil {
		return fmt.Errorf("%w: topic %s: %w", ErrSubscribeFailed, topic, token.Error())
	}

	subToken, ok := token.(*pahomqtt.SubscribeToken)
	if !ok {
		return fmt.Errorf("%w: unexpected token type %T", ErrBadSubscribeResponse, token)
	}
	if err := checkGrant(topic, subToken.Result()); err != nil {
		return err
	}

	m.logger.Info("Successfully subscribed to topic", "topic", topic)
	return nil
}

// checkGrant validates the per-topic return codes of a SUBACK
func checkGrant(topic string, granted map[string]byte) error {
	code, ok := granted[topic]
	if !ok {
		return fmt.Errorf("%w: no grant for topic %s", ErrBadSubscribeResponse, topic)
	}
	if code == subackFailure {
		return fmt.Errorf("%w: topic %s", ErrSubscriptionRejected, topic)
	}
	return nil
}

// Publish publishes a message to a topic
func (m *mqttClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := m.client.Publish(topic, qos, retained, payload)
	token.Wait()

	if token.Error() != nil {
		return fmt.Errorf("%w: topic %s: %w", ErrPublishFailed, topic, token.Error())
	}

	m.logger.Debug("Published message", "topic", topic, "size", len(payload))
	return nil
}

// IsConnected returns whether the client is currently connected
func (m *mqttClient) IsConnected() bool {
	return m.client.IsConnected()
}

// SetConnectionLostHandler registers the connection-lost callback
func (m *mqttClient) SetConnectionLostHandler(handler ConnectionLostHandler) {
	m.lostMu.Lock()
	m.onLost = handler
	m.lostMu.Unlock()
}

// mqttMessage wraps a Paho MQTT message to implement our Message interface
type mqttMessage struct {
	msg pahomqtt.Message
}

func (m *mqttMessage) Topic() string {
	return m.msg.Topic()
}

func (m *mqttMessage) Payload() []byte {
	return m.msg.Payload()
}

func (m *mqttMessage) Ack() {
	m.msg.Ack()
}
