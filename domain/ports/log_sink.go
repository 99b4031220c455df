package ports

import (
	"context"

	"github.com/cervus-dev/cervus/domain/entities"
)

// LogSink is the privileged global log guest messages may be written to.
type LogSink interface {
	GuestLog(ctx context.Context, id entities.Identity, level LogLevel, text string)
}
