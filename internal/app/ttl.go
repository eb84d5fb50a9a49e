package app

import (
	"time"

	gateway "github.com/mediagate/mediagate/internal"
)

// DefaultNonAiringTTL is how long titles without an airing schedule stay cached.
const DefaultNonAiringTTL = 86400 * time.Second

// TTL policy labels, used for logging and metrics.
const (
	PolicyAiring  = "airing"
	PolicyDefault = "default"
)

// ExpirationFor returns how long m may stay cached. A title with an upcoming
// episode expires exactly when that episode airs so the next lookup refetches
// the moment new data can exist; anything else gets fallback.
// The result may be zero or negative when the next episode already aired.
func ExpirationFor(m *gateway.Media, fallback time.Duration) (time.Duration, string) {
	if n, ok := m.NextAiring(); ok && n.TimeUntilAiring != nil {
		return time.Duration(*n.TimeUntilAiring) * time.Second, PolicyAiring
	}
	return fallback, PolicyDefault
}
