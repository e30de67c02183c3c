package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fast-queue/internal/config"
	"fast-queue/internal/logger"
	"fast-queue/internal/models"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes ticket lifecycle events, keyed by queue id so a queue's
// events stay ordered within a partition.
type Producer struct {
	Writer  MessageWriter
	Topics  config.TopicConfig
	Logger  *logger.Logger
	Timeout time.Duration
}

func NewProducer(brokers []string, topics config.TopicConfig, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Producer{Writer: writer, Topics: topics, Logger: log, Timeout: 5 * time.Second}
}

func (p *Producer) TopicFor(eventType string) (string, error) {
	switch eventType {
	case models.TicketCreatedEvent:
		return p.Topics.TicketCreated, nil
	case models.TicketCalledEvent:
		return p.Topics.TicketCalled, nil
	case models.TicketDoneEvent:
		return p.Topics.TicketDone, nil
	case models.TicketSkippedEvent:
		return p.Topics.TicketSkipped, nil
	}
	return "", fmt.Errorf("no topic for event type %q", eventType)
}

// AllTopics lists the configured topics for bootstrap.
func (p *Producer) AllTopics() []string {
	return []string{p.Topics.TicketCreated, p.Topics.TicketCalled, p.Topics.TicketDone, p.Topics.TicketSkipped}
}

// PublishTicketEvent streams a lifecycle event to its topic.
func (p *Producer) PublishTicketEvent(ctx context.Context, eventType string, t models.Ticket) error {
	topic, err := p.TopicFor(eventType)
	if err != nil {
		return err
	}

	msgBytes, err := json.Marshal(models.NewTicketLifecycleEvent(eventType, t, time.Now()))
	if err != nil {
		return err
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	if err := p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(t.QueueID),
		Value: msgBytes,
	}); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	p.Logger.LogKafka("PUBLISH", topic, t.ID)
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
