// Package events delivers outbox records to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"inkwell/app/models"
)

const (
	DefaultBatchSize = 200
	DefaultInterval  = time.Second
)

// Outbox is the part of the store the relay drains.
type Outbox interface {
	PendingEvents(ctx context.Context, limit int) ([]*models.Event, error)
	MarkEventsSent(ctx context.Context, ids []int64) error
}

// Sender publishes a batch of events. A batch either fully succeeds or is
// retried on the next tick, so consumers must tolerate duplicates.
type Sender interface {
	Send(ctx context.Context, events []*models.Event) error
}

// Relay polls the outbox and forwards pending events to a Sender.
type Relay struct {
	outbox    Outbox
	sender    Sender
	batchSize int
	interval  time.Duration
}

func NewRelay(outbox Outbox, sender Sender, interval time.Duration) *Relay {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Relay{
		outbox:    outbox,
		sender:    sender,
		batchSize: DefaultBatchSize,
		interval:  interval,
	}
}

// Run drains the outbox every interval until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := r.DrainOnce(ctx); err != nil && ctx.Err() == nil {
				log.Printf("outbox relay: %v", err)
			}
		}
	}
}

// DrainOnce forwards one batch and returns how many events were sent.
func (r *Relay) DrainOnce(ctx context.Context) (int, error) {
	pending, err := r.outbox.PendingEvents(ctx, r.batchSize)
	if err != nil || len(pending) == 0 {
		return 0, err
	}
	if err := r.sender.Send(ctx, pending); err != nil {
		return 0, err
	}
	ids := make([]int64, 0, len(pending))
	for _, e := range pending {
		ids = append(ids, e.ID)
	}
	if err := r.outbox.MarkEventsSent(ctx, ids); err != nil {
		return 0, err
	}
	return len(pending), nil
}

// LogSender writes events to the process log.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, events []*models.Event) error {
	for _, e := range events {
		log.Printf("OUTBOX SEND id=%d type=%s post=%d comment=%d %s->%s",
			e.ID, e.Type, e.PostID, e.CommentID, e.From, e.To)
	}
	return nil
}

// KafkaSender publishes events as JSON, keyed by post id so every event of
// a post lands on the same partition in order.
type KafkaSender struct {
	writer *kafka.Writer
}

func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	return &KafkaSender{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}}
}

func (s *KafkaSender) Send(ctx context.Context, events []*models.Event) error {
	msgs, err := Messages(events)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, msgs...)
}

func (s *KafkaSender) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}

// Messages encodes events as kafka messages.
func Messages(events []*models.Event) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.PartitionKey()),
			Value: value,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(e.Type)},
			},
			Time: e.OccurredAt,
		})
	}
	return msgs, nil
}
