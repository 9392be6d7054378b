// Package events publishes invoice lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"invoicedesk/internal/domain"
)

const (
	TypeInvoiceCompleted = "invoice.completed"
	TypeInvoiceVoided    = "invoice.voided"
)

const (
	// BatchTimeout flush delay of the writer
	BatchTimeout = 10 * time.Millisecond
	// PublishTimeout upper bound of one publish, independent of the caller's context
	PublishTimeout = 3 * time.Second
)

// InvoiceEvent payload of every published message
type InvoiceEvent struct {
	Type        string            `json:"type"`
	InvoiceID   string            `json:"invoice_id"`
	TotalAmount float64           `json:"total_amount"`
	Items       []domain.LineItem `json:"items,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

func NewInvoiceEvent(typ string, inv *domain.Invoice, at time.Time) InvoiceEvent {
	return InvoiceEvent{
		Type:        typ,
		InvoiceID:   inv.ID,
		TotalAmount: inv.TotalAmount,
		Items:       inv.LineItems,
		Reason:      inv.VoidReason,
		OccurredAt:  at.UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e InvoiceEvent) error
	Close() error
}

// Nop drops events, used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, InvoiceEvent) error { return nil }
func (Nop) Close() error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(topic string, brokers ...string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           BatchTimeout,
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e InvoiceEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(e.InvoiceID), // invoice id for ordering
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}
	// событие отправляется и после отмены запроса, но не дольше PublishTimeout
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), PublishTimeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }
