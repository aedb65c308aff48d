// Package kafka forwards live events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/isdelr/ender-monitor-be/internal/config"
	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	queueSize    = 256
	writeTimeout = 5 * time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Sink is a hub subscriber that writes every message it receives to Kafka,
// keyed by event name. Writes happen on a separate goroutine so the hub never
// waits on the broker.
type Sink struct {
	id        string
	writer    messageWriter
	queue     chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

// NewSink creates a Sink writing to the configured brokers and topic.
func NewSink(cfg config.KafkaConfig) *Sink {
	writer := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafkago.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newSink("kafka:"+cfg.Topic, writer)
}

func newSink(id string, w messageWriter) *Sink {
	s := &Sink{
		id:     id,
		writer: w,
		queue:  make(chan []byte, queueSize),
		done:   make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *Sink) ID() string { return s.id }

// Deliver queues a message without blocking. A full queue makes the hub drop
// the sink, after which nothing is forwarded until the process restarts.
func (s *Sink) Deliver(msg []byte) bool {
	select {
	case s.queue <- msg:
		return true
	default:
		log.Warn().Str("sink", s.id).Int("queued", len(s.queue)).
			Msg("Kafka sink queue full, forwarding stops until restart")
		return false
	}
}

// Close stops accepting messages. Queued messages are still written.
func (s *Sink) Close() {
	s.closeOnce.Do(func() { close(s.queue) })
}

// Wait blocks until every queued message has been handed to the writer and
// the writer is closed, or ctx expires.
func (s *Sink) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("kafka sink did not drain: %w", ctx.Err())
	}
}

func (s *Sink) pump() {
	defer close(s.done)
	for msg := range s.queue {
		if err := s.write(msg); err != nil {
			log.Error().Err(err).Str("sink", s.id).Msg("Failed to write event to kafka")
		}
	}
	if err := s.writer.Close(); err != nil {
		log.Error().Err(err).Str("sink", s.id).Msg("Failed to close kafka writer")
	}
}

func (s *Sink) write(msg []byte) error {
	var head struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(msg, &head); err != nil {
		return fmt.Errorf("decode event name: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return s.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(head.Event),
		Value: msg,
		Time:  time.Now(),
	})
}
