package app

import (
	"context"

	"go.uber.org/zap"
)

// Host is an application embedding the service which waits for the readiness
// signal.
type Host interface {
	Ready(ctx context.Context) error
}

// HostFunc is a function implementing [Host].
type HostFunc func(ctx context.Context) error

// Ready implements [Host].
func (f HostFunc) Ready(ctx context.Context) error {
	return f(ctx)
}

// Start signals the host that the service is ready. Start is called once at
// startup, host failures are logged and ignored.
func Start(ctx context.Context, log *zap.Logger, h Host) {
	if h == nil {
		return
	}

	if err := h.Ready(ctx); err != nil {
		log.Warn("host readiness signal failed", zap.Error(err))
		return
	}

	log.Debug("host notified about readiness")
}
