package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/types"
)

type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Publisher is the slice of an MQTT client the notifiers need.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MessageHandler handles one inbound MQTT message.
type MessageHandler func(topic string, payload []byte) error

// MQTTClient wraps a connected paho client.
type MQTTClient struct {
	client mqtt.Client
	logger *zap.Logger
}

// DialMQTT connects to the broker. A connect failure is a startup failure.
func DialMQTT(cfg MQTTConfig, logger *zap.Logger) (*MQTTClient, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker %s: %w", cfg.Broker, token.Error())
	}
	logger.Info("mqtt connected", zap.String("broker", cfg.Broker))
	return &MQTTClient{client: client, logger: logger}, nil
}

func (c *MQTTClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(DefaultTimeout) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (c *MQTTClient) Subscribe(topic string, qos byte, handler MessageHandler) error {
	token := c.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logger.Warn("mqtt handler failed", zap.String("topic", msg.Topic()), zap.Error(err))
		}
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	return nil
}

func (c *MQTTClient) Disconnect() {
	c.client.Disconnect(250)
}

// MQTT publishes each record as JSON on <prefix>/events.
type MQTT struct {
	pub    Publisher
	topic  string
	device string
}

func NewMQTT(pub Publisher, prefix, device string) *MQTT {
	return &MQTT{pub: pub, topic: prefix + "/events", device: device}
}

func (m *MQTT) Notify(_ context.Context, rec types.Record) error {
	payload, err := json.Marshal(NewMessage(m.device, rec))
	if err != nil {
		return err
	}
	return m.pub.Publish(m.topic, 1, false, payload)
}
