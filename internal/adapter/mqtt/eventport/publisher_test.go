package eventport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/darrnshn/stateline/internal/adapter/logging"
	"github.com/darrnshn/stateline/internal/config"
	"github.com/darrnshn/stateline/internal/domain"
)

type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// recordingClient overrides the calls the publisher makes
type recordingClient struct {
	mqtt.Client
	mu        sync.Mutex
	connected bool
	fail      error
	topics    []string
	payloads  [][]byte
}

func (c *recordingClient) IsConnected() bool { return c.connected }

func (c *recordingClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
	c.payloads = append(c.payloads, payload.([]byte))
	return doneToken{err: c.fail}
}

func newTestPublisher(client *recordingClient) *EventPublisher {
	cfg := &config.MqttConfig{TopicPrefix: "stateline"}
	return NewEventPublisher(client, cfg, "run1", logging.NewNopLogger())
}

func TestEmitTopicsAndPayloads(t *testing.T) {
	client := &recordingClient{connected: true}
	p := newTestPublisher(client)
	ctx := context.Background()

	if err := p.EmitStep(ctx, domain.StepEvent{ChainID: 3, Accepted: true, Energy: 1.5}); err != nil {
		t.Fatalf("EmitStep failed: %v", err)
	}
	if err := p.EmitSwap(ctx, domain.SwapEvent{StackID: 1, I: 4, J: 5, Accepted: false}); err != nil {
		t.Fatalf("EmitSwap failed: %v", err)
	}

	if client.topics[0] != "stateline/run1/steps" || client.topics[1] != "stateline/run1/swaps" {
		t.Errorf("Unexpected topics %v", client.topics)
	}
	var step map[string]interface{}
	if err := json.Unmarshal(client.payloads[0], &step); err != nil {
		t.Fatalf("Bad payload: %v", err)
	}
	if step["chain_id"] != float64(3) || step["accepted"] != true || step["energy"] != 1.5 {
		t.Errorf("Unexpected step payload %v", step)
	}
	if published, failed := p.Counts(); published != 2 || failed != 0 {
		t.Errorf("Expected 2/0, got %d/%d", published, failed)
	}
}

func TestEmitFailures(t *testing.T) {
	client := &recordingClient{}
	p := newTestPublisher(client)
	ctx := context.Background()

	if err := p.EmitStep(ctx, domain.StepEvent{}); err == nil {
		t.Error("Expected error while disconnected")
	}

	client.connected = true
	client.fail = errors.New("broker said no")
	if err := p.EmitSwap(ctx, domain.SwapEvent{}); err == nil {
		t.Error("Expected publish error surfaced")
	}
	if _, failed := p.Counts(); failed != 2 {
		t.Errorf("Expected 2 failures counted, got %d", failed)
	}
}
