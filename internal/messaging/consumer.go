package messaging

import (
	"context"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

var consumerTracer = otel.Tracer("messaging/consumer")

// HandleFunc processes one notification payload. A returned error stops the
// consumer before the offset is committed, so the message is redelivered.
type HandleFunc func(ctx context.Context, payload []byte) error

type Consumer struct {
	reader  *kafka.Reader
	groupID string
}

func NewConsumer(brokers []string, groupID string) *Consumer {
	return &Consumer{
		groupID: groupID,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   TopicNotifications,
			GroupID: groupID,
		}),
	}
}

// Run fetches, handles, and commits messages one at a time until the context
// is cancelled or the handler fails.
func (c *Consumer) Run(ctx context.Context, handle HandleFunc) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}

		if err := c.handle(ctx, msg, handle); err != nil {
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message, handle HandleFunc) error {
	ctx = otel.GetTextMapPropagator().Extract(ctx, headerCarrier{&msg})

	ctx, span := consumerTracer.Start(ctx, "process "+TopicNotifications,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationName("process"),
			semconv.MessagingOperationTypeDeliver,
			semconv.MessagingDestinationName(TopicNotifications),
			semconv.MessagingKafkaConsumerGroup(c.groupID),
			semconv.MessagingKafkaMessageOffset(int(msg.Offset)),
			semconv.MessagingDestinationPartitionID(strconv.Itoa(msg.Partition)),
			semconv.MessagingKafkaMessageKey(string(msg.Key)),
		),
	)
	defer span.End()

	if err := handle(ctx, msg.Value); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
