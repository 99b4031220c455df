package hostfuncs

import (
	"context"

	hosterrors "github.com/cervus-dev/cervus/domain/errors"
	"github.com/cervus-dev/cervus/domain/ports"
)

// LogPrefix returns the severity tag written in front of guest log lines.
func LogPrefix(level ports.LogLevel) string {
	switch level {
	case ports.LogLevelError:
		return "[ERROR]"
	case ports.LogLevelWarning:
		return "[WARNING]"
	case ports.LogLevelInfo:
		return "[INFO]"
	default:
		return ""
	}
}

// Log writes a guest log line. With an inherited stderr the line goes there,
// tagged by severity. Otherwise only the privileged identity may log, to the
// global sink; everyone else gets PermissionDenied.
func (c *Context) Log(level ports.LogLevel, text string) error {
	const op = "log"

	if stderr := c.stream(HandleStderr); stderr != nil {
		line := make([]byte, 0, len(text)+12)
		line = append(line, LogPrefix(level)...)
		line = append(line, ' ')
		line = append(line, text...)
		line = append(line, '\n')
		if _, err := stderr.Write(line); err != nil {
			return hosterrors.Wrap(hosterrors.KindIO, op, err)
		}
		return nil
	}

	if !c.Privileged() {
		return hosterrors.New(hosterrors.KindPermissionDenied, op, "identity %s has no log stream", c.identity)
	}
	if c.sink == nil {
		return hosterrors.New(hosterrors.KindIO, op, "no global log sink")
	}
	c.sink.GuestLog(context.Background(), c.identity, level, text)
	return nil
}
