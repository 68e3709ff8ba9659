package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher routes events to a topic chosen by event type prefix.
type KafkaPublisher struct {
	orders *kafka.Writer
	ledger *kafka.Writer
}

// NewKafkaPublisher writes order.* and orders.* events to orderTopic and
// everything else to ledgerTopic.
func NewKafkaPublisher(brokers []string, orderTopic, ledgerTopic string) *KafkaPublisher {
	return &KafkaPublisher{
		orders: newWriter(brokers, orderTopic),
		ledger: newWriter(brokers, ledgerTopic),
	}
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}

	err = p.writerFor(ev.Type).WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Key),
		Value: value,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) writerFor(eventType string) *kafka.Writer {
	if strings.HasPrefix(eventType, "order") {
		return p.orders
	}
	return p.ledger
}

func (p *KafkaPublisher) Close() error {
	errOrders := p.orders.Close()
	errLedger := p.ledger.Close()
	if errOrders != nil {
		return errOrders
	}
	return errLedger
}
