package source

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"pulsehub/internal/logger"
	"pulsehub/internal/pipeline"
)

// kafkaEvent is the message shape expected on the metrics topic
type kafkaEvent struct {
	Metric    string                 `json:"metric"`
	Value     float64                `json:"value"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// KafkaConnector consumes a metrics topic and emits points as they arrive.
// It is push-based; Pull always returns empty because delivery happens
// through the emit callback.
type KafkaConnector struct {
	name     string
	category pipeline.Category
	modules  []string
	reader   *kafka.Reader
	log      logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewKafkaConnector creates a push-based Kafka connector
func NewKafkaConnector(name string, category pipeline.Category, modules []string, brokers []string, topic string, log logger.Logger) *KafkaConnector {
	if log == nil {
		log = logger.Nop()
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     "pulsehub-" + name,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		StartOffset: kafka.LastOffset,
	})
	return &KafkaConnector{
		name:     name,
		category: category,
		modules:  modules,
		reader:   reader,
		log:      log.WithField("source", name),
	}
}

// Name implements Connector
func (c *KafkaConnector) Name() string { return c.name }

// Category implements Connector
func (c *KafkaConnector) Category() pipeline.Category { return c.category }

// Modules implements Connector
func (c *KafkaConnector) Modules() []string { return c.modules }

// Pull implements Connector; Kafka delivery is push-only
func (c *KafkaConnector) Pull(ctx context.Context) ([]pipeline.DataPoint, error) {
	return nil, nil
}

// Start launches the consume loop. Malformed messages are logged and
// skipped; read errors back off briefly and retry until Stop.
func (c *KafkaConnector) Start(ctx context.Context, emit func(pipeline.DataPoint)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return fmt.Errorf("kafka connector %s already started", c.name)
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		for {
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.log.Warn("kafka read failed", "error", err)
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return
				}
				continue
			}

			var event kafkaEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				c.log.Warn("skipping malformed kafka message", "error", err)
				continue
			}
			if event.Metric == "" {
				continue
			}
			ts := event.Timestamp
			if ts.IsZero() {
				ts = msg.Time
			}
			emit(pipeline.DataPoint{
				ID:           uuid.New().String(),
				Timestamp:    ts,
				Source:       c.name,
				Category:     c.category,
				Metric:       event.Metric,
				Value:        event.Value,
				Status:       pipeline.StatusHealthy,
				Metadata:     event.Metadata,
				ModuleAccess: c.modules,
			})
		}
	}()
	return nil
}

// Stop cancels the consume loop and closes the reader
func (c *KafkaConnector) Stop() error {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return c.reader.Close()
}
