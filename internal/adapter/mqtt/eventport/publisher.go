package eventport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/darrnshn/stateline/internal/config"
	"github.com/darrnshn/stateline/internal/core/ports/primary"
	"github.com/darrnshn/stateline/internal/core/ports/secondary"
	"github.com/darrnshn/stateline/internal/domain"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

var _ secondary.EventSink = &EventPublisher{}

// EventPublisher streams sampler step and swap events to an MQTT broker as
// JSON, on <prefix>/<runId>/steps and <prefix>/<runId>/swaps
type EventPublisher struct {
	Client     mqtt.Client
	stepsTopic string
	swapsTopic string
	logger     primary.Logger

	mu        sync.Mutex
	published uint64
	errors    uint64
}

// NewEventPublisher creates a publisher around an already built client
func NewEventPublisher(client mqtt.Client, cfg *config.MqttConfig, runID string, logger primary.Logger) *EventPublisher {
	base := fmt.Sprintf("%s/%s", cfg.TopicPrefix, runID)
	return &EventPublisher{
		Client:     client,
		stepsTopic: base + "/steps",
		swapsTopic: base + "/swaps",
		logger:     logger,
	}
}

// Connect builds a reconnecting client for the configured broker and connects it
func Connect(cfg *config.MqttConfig, runID string, logger primary.Logger) (*EventPublisher, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "stateline-sampler-" + runID
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("MQTT connection established", "broker", cfg.Broker, "clientId", clientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost, will auto-reconnect", "broker", cfg.Broker, "error", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	return NewEventPublisher(client, cfg, runID, logger), nil
}

func (p *EventPublisher) EmitStep(ctx context.Context, event domain.StepEvent) error {
	return p.publish(ctx, p.stepsTopic, event)
}

func (p *EventPublisher) EmitSwap(ctx context.Context, event domain.SwapEvent) error {
	return p.publish(ctx, p.swapsTopic, event)
}

func (p *EventPublisher) publish(ctx context.Context, topic string, event interface{}) error {
	if !p.Client.IsConnected() {
		p.countError()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.countError()
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	token := p.Client.Publish(topic, 0, false, payload)
	select {
	case <-token.Done():
	case <-time.After(publishTimeout):
		p.countError()
		return fmt.Errorf("publish to %s timed out", topic)
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		p.countError()
		return fmt.Errorf("publish to %s failed: %w", topic, err)
	}

	p.mu.Lock()
	p.published++
	p.mu.Unlock()
	return nil
}

func (p *EventPublisher) countError() {
	p.mu.Lock()
	p.errors++
	p.mu.Unlock()
}

// Counts returns how many events were published and how many failed
func (p *EventPublisher) Counts() (published, failed uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published, p.errors
}

// Disconnect closes the MQTT connection
func (p *EventPublisher) Disconnect() {
	if p.Client != nil && p.Client.IsConnected() {
		p.Client.Disconnect(250)
		p.logger.Info("MQTT disconnected")
	}
}
