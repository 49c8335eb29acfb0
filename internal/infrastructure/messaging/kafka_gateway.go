package messaging

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/bookstore/inventory-service-go/internal/domain"
)

type KafkaOptions struct {
	Brokers    []string
	GroupID    string
	OrderTopic string
	StockTopic string
}

// KafkaGateway adapts a kafka reader/writer pair to the EventGateway port.
// FetchMessage/CommitMessages keep acknowledgment explicit: an order event is
// committed to the consumer group only after the processor says so.
type KafkaGateway struct {
	reader *kafka.Reader
	writer *kafka.Writer
}

func NewKafkaGateway(opts KafkaOptions) *KafkaGateway {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     opts.Brokers,
		GroupID:     opts.GroupID,
		Topic:       opts.OrderTopic,
		StartOffset: kafka.FirstOffset,
	})
	writer := &kafka.Writer{
		Addr:         kafka.TCP(opts.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return &KafkaGateway{reader: reader, writer: writer}
}

func (g *KafkaGateway) Receive(ctx context.Context) (domain.InboundMessage, error) {
	msg, err := g.reader.FetchMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return domain.InboundMessage{}, ctx.Err()
		}
		return domain.InboundMessage{}, &domain.TransientError{Op: "kafka fetch", Err: err}
	}
	return domain.InboundMessage{Payload: msg.Value, Handle: msg}, nil
}

func (g *KafkaGateway) Ack(ctx context.Context, msg domain.InboundMessage) error {
	km, ok := msg.Handle.(kafka.Message)
	if !ok {
		return fmt.Errorf("kafka ack: unexpected handle type %T", msg.Handle)
	}
	if err := g.reader.CommitMessages(ctx, km); err != nil {
		return &domain.TransientError{Op: "kafka commit", Err: err}
	}
	return nil
}

func (g *KafkaGateway) Publish(ctx context.Context, topic string, payload []byte) error {
	err := g.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Value: payload,
	})
	if err != nil {
		return &domain.TransientError{Op: "kafka publish", Err: err}
	}
	return nil
}

func (g *KafkaGateway) Close() error {
	rerr := g.reader.Close()
	werr := g.writer.Close()
	if rerr != nil {
		return rerr
	}
	return werr
}
