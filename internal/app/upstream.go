package app

import (
	"errors"
	"strconv"
	"time"

	gateway "github.com/mediagate/mediagate/internal"
	"github.com/mediagate/mediagate/internal/telemetry"
)

// observeUpstream records duration and failures of one QueryService call.
// A nil metrics set is a no-op.
func observeUpstream(m *telemetry.Metrics, query string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.UpstreamDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
	if err == nil {
		return
	}
	m.UpstreamErrors.WithLabelValues(query, upstreamErrorLabel(err)).Inc()
}

func upstreamErrorLabel(err error) string {
	var upErr *gateway.UpstreamError
	switch {
	case errors.As(err, &upErr):
		return strconv.Itoa(upErr.StatusCode)
	case errors.Is(err, gateway.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, gateway.ErrMalformedResponse):
		return "malformed"
	default:
		return "error"
	}
}
