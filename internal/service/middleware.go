package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// resolverMiddleware adds outcome logging around name resolution without
// touching the lookup logic.
type resolverMiddleware struct {
	next   Resolver
	logger *slog.Logger
}

func (m *resolverMiddleware) Username(ctx context.Context, userID uuid.UUID) (string, error) {
	start := time.Now()

	name, err := m.next.Username(ctx, userID)
	if err != nil {
		m.logger.Warn("NAME_RESOLUTION_FAILED",
			"user_id", userID,
			"err", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	return name, err
}
