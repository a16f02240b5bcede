package feed

import (
	"context"
	"log/slog"

	"github.com/archers7727/rokey5/internal/domain"
	"github.com/archers7727/rokey5/internal/kafka"
)

// DefaultTopic carries CDC envelopes for ros2_commands.
const DefaultTopic = "ros2_commands.changes"

// KafkaSource reads envelopes from a CDC topic. Offsets are committed only
// after the handler accepts an envelope.
type KafkaSource struct {
	consumer kafka.Consumer
	logger   *slog.Logger
}

func NewKafkaSource(consumer kafka.Consumer, logger *slog.Logger) *KafkaSource {
	return &KafkaSource{consumer: consumer, logger: logger}
}

func (s *KafkaSource) Subscribe(ctx context.Context, handler HandlerFunc) error {
	return s.consumer.Subscribe(ctx, func(ctx context.Context, msg kafka.Message) error {
		env, err := domain.DecodeEnvelope(msg.Value)
		if err != nil {
			// Undecodable records would block the partition forever; commit past them.
			s.logger.WarnContext(ctx, "discarding undecodable change event",
				slog.String("topic", msg.Topic),
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()),
			)
			return nil
		}
		return handler(ctx, env)
	})
}

func (s *KafkaSource) Close() error {
	return s.consumer.Close()
}
