package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/logo-monitor/internal/logic"
)

// Defaults for RealConfig.
const (
	DefaultClientID   = "logo-monitor"
	DefaultBufferSize = 100
)

const publishTimeout = 5 * time.Second

// RealConfig configures a broker connection.
type RealConfig struct {
	Broker     string // e.g. "tcp://192.168.1.10:1883"
	ClientID   string
	BufferSize int // messages held while disconnected
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed on reconnect, in order:
// while a replay runs, new messages queue behind the buffered ones.
type RealPublisher struct {
	client paho.Client

	mu        sync.Mutex
	buf       *ringBuffer
	replaying bool
}

// NewRealPublisher creates a publisher for the given broker. It does not fail
// when the broker is unreachable at startup; paho keeps retrying and
// messages are buffered meanwhile.
func NewRealPublisher(cfg RealConfig) (*RealPublisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}

	p := &RealPublisher{buf: newRingBuffer(cfg.BufferSize)}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: broker %s not reachable yet, buffering until connected", cfg.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// Publish sends a confirmed transition (QoS 0, not retained).
func (p *RealPublisher) Publish(id string, event logic.Event) error {
	payload, err := FormatPayload(id, event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.send(message{topic: Topic, payload: payload, qos: 0})
}

// PublishSystem sends a lifecycle event (QoS 1).
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(message{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is currently open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a reconnect.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker. Buffered messages are discarded.
func (p *RealPublisher) Close() error {
	if n := p.Buffered(); n > 0 {
		log.Printf("mqtt: discarding %d buffered messages on close", n)
	}
	p.client.Disconnect(1000)
	return nil
}

func (p *RealPublisher) send(m message) error {
	p.mu.Lock()
	if p.replaying || !p.client.IsConnectionOpen() {
		p.buf.push(m)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	return p.publish(m)
}

func (p *RealPublisher) publish(m message) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", m.topic, err)
	}
	return nil
}

func (p *RealPublisher) onConnect(paho.Client) {
	p.mu.Lock()
	p.replaying = true
	p.mu.Unlock()

	replayed, dropped := 0, 0
	for {
		p.mu.Lock()
		pending, d := p.buf.drainAll()
		if len(pending) == 0 {
			p.replaying = false
			p.mu.Unlock()
			break
		}
		p.mu.Unlock()

		dropped += d
		for _, m := range pending {
			if err := p.publish(m); err != nil {
				log.Printf("mqtt: replay failed: %v", err)
			}
			replayed++
		}
	}

	if replayed == 0 {
		log.Printf("mqtt: connected")
		return
	}
	log.Printf("mqtt: connected, replayed %d buffered messages (%d dropped)", replayed, dropped)
}
