// Package events fans report events out to the realtime hub and the event bus.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/bwise1/safestreet/internal/model"
	"github.com/segmentio/kafka-go"
)

const (
	// batchTimeout caps how long the writer holds a partial batch. The
	// library default of one second stalls every synchronous publish.
	batchTimeout   = 10 * time.Millisecond
	writeTimeout   = 5 * time.Second
	publishTimeout = 3 * time.Second
)

type Publisher interface {
	Publish(ctx context.Context, event model.ReportEvent) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
}

func writerConfig(brokers []string, topic string) kafka.WriterConfig {
	return kafka.WriterConfig{
		Brokers:      brokers,
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: batchTimeout,
		WriteTimeout: writeTimeout,
	}
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: kafka.NewWriter(writerConfig(brokers, topic))}
}

// Publish keys messages by report id so events for one report stay ordered
// within a partition.
func (p *KafkaPublisher) Publish(ctx context.Context, event model.ReportEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ReportID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("writing %s event: %w", event.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, model.ReportEvent) error { return nil }

// Multi delivers each event to every publisher, returning the joined errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event model.ReportEvent) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Emit publishes event within publishTimeout and logs failures. Event
// delivery never fails the write that produced it.
func Emit(ctx context.Context, p Publisher, event model.ReportEvent) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.Publish(ctx, event); err != nil {
		log.Printf("[Events] failed to publish %s for report %s: %v", event.Type, event.ReportID, err)
	}
}
