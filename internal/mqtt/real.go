package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/yves-gaignard/poolmanager/internal/logic"
)

// Options configures the broker connection.
type Options struct {
	Broker     string
	ClientID   string
	Username   string
	Password   string
	BufferSize int // messages held while disconnected
}

// RealPublisher publishes to an actual MQTT broker. Messages published
// while the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	logger zerolog.Logger

	mu  sync.Mutex
	buf *ringBuffer
}

// NewRealPublisher connects to the broker. A broker that is not reachable
// yet is not an error: paho keeps retrying in the background.
func NewRealPublisher(o Options, logger zerolog.Logger) (*RealPublisher, error) {
	if o.ClientID == "" {
		o.ClientID = "poolmanager"
	}
	p := &RealPublisher{
		logger: logger,
		buf:    newRingBuffer(o.BufferSize),
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetUsername(o.Username).
		SetPassword(o.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(WillPayload()), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn().Err(err).Msg("MQTT connection lost")
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		logger.Warn().Str("broker", o.Broker).Msg("MQTT broker not reachable yet, buffering")
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// onConnect replays messages buffered while disconnected.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	dropped := p.buf.dropped
	pending := p.buf.drainAll()
	p.mu.Unlock()

	p.logger.Info().Int("buffered", len(pending)).Int("dropped", dropped).Msg("MQTT connected")
	for _, m := range pending {
		token := c.Publish(m.topic, m.qos, m.retained, m.payload)
		if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
			p.logger.Warn().Err(token.Error()).Str("topic", m.topic).Msg("Replay failed")
		}
	}
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Publish sends a pump event, QoS 0, not retained.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: Topic, payload: payload})
}

// PublishSystem sends a system event with QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(m bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		dropped := p.buf.push(m)
		p.mu.Unlock()
		if dropped {
			p.logger.Warn().Str("topic", m.topic).Msg("MQTT buffer full, dropped oldest message")
		}
		return nil
	}

	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
