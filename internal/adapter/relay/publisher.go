package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/webitel/im-messaging-service/internal/monitoring"
)

// Interface guards
var (
	_ Publisher = (*FramePublisher)(nil)
	_ Publisher = NoopPublisher{}
)

// FramePublisher ships frames to the fan-out topic.
type FramePublisher struct {
	publisher message.Publisher
	origin    string
}

func NewFramePublisher(pub message.Publisher, origin string) *FramePublisher {
	return &FramePublisher{publisher: pub, origin: origin}
}

func (p *FramePublisher) PublishFrame(ctx context.Context, userID uuid.UUID, frame []byte) error {
	payload, err := json.Marshal(envelope{UserID: userID, Origin: p.origin, Frame: frame})
	if err != nil {
		return fmt.Errorf("relay: marshal envelope: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(FramesTopic, msg); err != nil {
		return fmt.Errorf("relay: publish: %w", err)
	}
	monitoring.RelayFrames.WithLabelValues("published").Inc()
	return nil
}

// NoopPublisher drops every frame. Used when no broker is configured and the
// node runs alone.
type NoopPublisher struct{}

func (NoopPublisher) PublishFrame(context.Context, uuid.UUID, []byte) error { return nil }
