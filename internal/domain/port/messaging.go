package port

import (
	"context"

	"github.com/fiapx/fiapx-frame-expander/internal/domain/entity"
)

type StatusPublisher interface {
	PublishStatus(ctx context.Context, msg entity.ExpansionStatusMessage) error
}

// DLQPublisher forwards the raw request body so it can be replayed unchanged.
type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, body []byte, reason string) error
}
