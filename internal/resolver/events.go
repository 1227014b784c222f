package resolver

import (
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/dto"
)

// Exchange describes one status protocol round trip.
type Exchange struct {
	Fingerprint string
	StartedAt   time.Time
	Duration    time.Duration
	Response    *dto.DeviceStatusResponse
	Err         error
}

// EventSink receives a record of every exchange, e.g. for a debug panel.
type EventSink interface {
	OnExchange(Exchange)
}

type EventSinkFunc func(Exchange)

func (f EventSinkFunc) OnExchange(e Exchange) { f(e) }

// LogSink writes exchanges to slog.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) OnExchange(e Exchange) {
	if e.Err != nil {
		s.Logger.Warn("status exchange failed",
			"fingerprint", e.Fingerprint,
			"latency_ms", float64(e.Duration.Microseconds())/1000,
			"error", e.Err,
		)
		return
	}
	s.Logger.Debug("status exchange",
		"fingerprint", e.Fingerprint,
		"latency_ms", float64(e.Duration.Microseconds())/1000,
		"reason", e.Response.Reason,
		"allowed", e.Response.Allowed,
	)
}
