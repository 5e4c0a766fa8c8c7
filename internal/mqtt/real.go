package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/tado-setpoint-exporter/internal/config"
)

const (
	availabilityOnline  = "online"
	availabilityOffline = "offline"
)

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client paho.Client
	topics Topics
}

// NewRealPublisher connects to the broker configured in cfg.
func NewRealPublisher(broker string, cfg config.MQTT) (*RealPublisher, error) {
	topics := Topics{Base: cfg.BaseTopic}
	clientID := fmt.Sprintf("%s-%s", cfg.ClientID, uuid.NewString()[:8])

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(topics.Availability(), availabilityOffline, 1, true).
		SetOnConnectHandler(func(c paho.Client) {
			log.Info().Str("broker", broker).Msg("Connected to MQTT broker")
			c.Publish(topics.Availability(), 1, true, availabilityOnline)
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Msg("MQTT connection lost")
		})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &RealPublisher{
		client: client,
		topics: topics,
	}, nil
}

// PublishDiscovery sends a retained Home Assistant discovery config.
func (p *RealPublisher) PublishDiscovery(zone, sensorKey, friendlyName, uniqueID string) error {
	payload, err := FormatDiscoveryPayload(p.topics, zone, sensorKey, friendlyName, uniqueID)
	if err != nil {
		return fmt.Errorf("format discovery payload: %w", err)
	}
	return p.publish(p.topics.Discovery(zone, sensorKey), payload)
}

// PublishState sends a retained sensor state.
func (p *RealPublisher) PublishState(zone, sensorKey, value string) error {
	return p.publish(p.topics.State(zone, sensorKey), []byte(value))
}

func (p *RealPublisher) publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, 1, true, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close marks the exporter offline and disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Publish(p.topics.Availability(), 1, true, availabilityOffline).WaitTimeout(time.Second)
	p.client.Disconnect(1000)
	return nil
}
