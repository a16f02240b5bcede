package actuation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/archers7727/rokey5/internal/kafka"
	"github.com/archers7727/rokey5/pkg/telemetry"
)

// KafkaPublisher writes actuation requests as JSON records.
type KafkaPublisher struct {
	producer kafka.Producer
}

// NewKafkaPublisher wraps an existing producer. The caller owns the producer.
func NewKafkaPublisher(p kafka.Producer) *KafkaPublisher {
	return &KafkaPublisher{producer: p}
}

func (p *KafkaPublisher) PublishExit(ctx context.Context, req ExitRequest) error {
	return p.publish(ctx, kindExit, TopicExit, req.GateID, req, req.Legacy())
}

func (p *KafkaPublisher) PublishGuide(ctx context.Context, req GuideRequest) error {
	return p.publish(ctx, kindGuide, TopicGuide, req.TargetSpot, req, req.Legacy())
}

func (p *KafkaPublisher) publish(ctx context.Context, kind, topic, key string, req any, legacy string) error {
	body, err := json.Marshal(req)
	if err != nil {
		telemetry.ActuationPublishTotal.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("encode %s request: %w", kind, err)
	}
	err = p.producer.Publish(ctx, topic, key, body, kafka.Header{Key: LegacyHeader, Value: []byte(legacy)})
	if err != nil {
		telemetry.ActuationPublishTotal.WithLabelValues(kind, "error").Inc()
		return err
	}
	telemetry.ActuationPublishTotal.WithLabelValues(kind, "ok").Inc()
	return nil
}
