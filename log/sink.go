package log

import (
	"context"
	"log/slog"

	"github.com/cervus-dev/cervus/domain/entities"
	"github.com/cervus-dev/cervus/domain/ports"
)

// Sink is the global log privileged guests write to. Messages become slog
// records tagged with the writing identity.
type Sink struct {
	logger *slog.Logger
}

var _ ports.LogSink = (*Sink)(nil)

// NewSink returns a sink writing through logger.
func NewSink(logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{logger: logger.With("source", "guest")}
}

// GuestLog implements ports.LogSink.
func (s *Sink) GuestLog(ctx context.Context, id entities.Identity, level ports.LogLevel, text string) {
	s.logger.LogAttrs(ctx, SlogLevel(level), text,
		slog.Uint64("identity", uint64(id)),
		slog.Int("guest_level", int(level)))
}

// SlogLevel maps a guest log level onto slog. Lower guest levels are more
// severe; anything past info is debug.
func SlogLevel(level ports.LogLevel) slog.Level {
	switch {
	case level <= ports.LogLevelError:
		return slog.LevelError
	case level <= ports.LogLevelWarning:
		return slog.LevelWarn
	case level <= ports.LogLevelInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
