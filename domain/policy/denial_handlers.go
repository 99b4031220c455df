package policy

import (
	"log/slog"

	"github.com/cervus-dev/cervus/domain/ports"
)

// Ensure implementations satisfy the interface.
var _ ports.DenialHandler = (*SlogDenialHandler)(nil)
var _ ports.DenialHandler = (*NopDenialHandler)(nil)

// SlogDenialHandler logs denials through the default slog logger.
type SlogDenialHandler struct{}

func (h *SlogDenialHandler) OnDenial(kind string, request interface{}, reason string) {
	slog.Warn("permission denied", "kind", kind, "request", request, "reason", reason)
}

// NopDenialHandler does nothing.
type NopDenialHandler struct{}

func (h *NopDenialHandler) OnDenial(kind string, request interface{}, reason string) {}
