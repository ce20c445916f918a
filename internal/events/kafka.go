package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaPublisher buffers envelopes and writes them from a single goroutine.
// Publish never blocks a request; when the buffer is full the event is dropped and logged.
type KafkaPublisher struct {
	w      *kafka.Writer
	inbox  chan kafka.Message
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, buf int, logger *zap.Logger) *KafkaPublisher {
	p := &KafkaPublisher{
		inbox:  make(chan kafka.Message, buf),
		done:   make(chan struct{}),
		logger: logger,
	}
	p.w = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	go p.loop()
	return p
}

func (p *KafkaPublisher) loop() {
	defer close(p.done)
	for m := range p.inbox {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := p.w.WriteMessages(ctx, m); err != nil {
			p.logger.Warn("kafka publish failed", zap.ByteString("key", m.Key), zap.Error(err))
		}
		cancel()
	}
}

func (p *KafkaPublisher) Publish(_ context.Context, e Envelope) {
	raw, err := json.Marshal(e)
	if err != nil {
		p.logger.Error("encode event", zap.String("event_type", e.EventType), zap.Error(err))
		return
	}
	msg := kafka.Message{
		Key:   []byte(e.CorrelationID),
		Value: raw,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.EventType)},
			{Key: "event_id", Value: []byte(e.EventID)},
		},
	}
	select {
	case p.inbox <- msg:
	default:
		p.logger.Warn("event buffer full, dropping", zap.String("event_type", e.EventType), zap.String("event_id", e.EventID))
	}
}

// Close flushes buffered events and closes the writer.
func (p *KafkaPublisher) Close() error {
	p.once.Do(func() { close(p.inbox) })
	<-p.done
	return p.w.Close()
}
