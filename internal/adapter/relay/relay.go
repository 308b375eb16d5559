// Package relay moves server frames between nodes. A send whose target has no
// accepting socket on this node publishes the already-encoded frame to a
// fan-out topic; every peer consumes on its own queue and writes the frame to
// whatever local sockets it holds. Delivery guarantees never come from here:
// the offline queue stays authoritative and relay traffic is best-effort.
package relay

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// FramesTopic is the fan-out exchange every node publishes to and consumes
// from.
const FramesTopic = "im_messaging.frames.v1"

// Publisher is the engine-facing half of the relay.
type Publisher interface {
	PublishFrame(ctx context.Context, userID uuid.UUID, frame []byte) error
}

// envelope wraps a frame with enough routing context for the consuming side:
// who it is for and which node produced it, so the origin can drop its own
// echo.
type envelope struct {
	UserID uuid.UUID       `json:"user_id"`
	Origin string          `json:"origin"`
	Frame  json.RawMessage `json:"frame"`
}
