// Package gateway defines domain types and interfaces for the mediagate caching gateway.
// This package has no project imports -- it is the dependency root.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"time"
)

// --- Upstream ---

// Query template names understood by QueryService implementations.
const (
	QuerySearch        = "search"
	QueryRelationStats = "relation_stats"
)

// QueryService executes named GraphQL queries against the upstream media API.
type QueryService interface {
	// Execute runs the named query template with the given variables and returns
	// the raw JSON response body. A non-200 upstream reply is returned as
	// *UpstreamError; a network failure wraps ErrUnavailable.
	Execute(ctx context.Context, name string, vars map[string]any) (json.RawMessage, error)
}

// --- Cache ---

// KeyValueCache is a string-keyed store with per-key expiration.
// Implementations must be safe for concurrent use.
type KeyValueCache interface {
	// Get returns the stored value, or ErrCacheMiss when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores a value without expiration. Callers follow up with Expire.
	Set(ctx context.Context, key string, val []byte) error
	// Expire sets the key's time to live. A non-positive ttl removes the key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// TTL returns the live remaining time to live, or ErrCacheMiss when the key
	// is absent or has no expiration.
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// --- Requests ---

// MediaRequest is the body of POST /media.
type MediaRequest struct {
	MediaID   *int   `json:"media_id"`
	MediaType string `json:"media_type"`
}

// RelationRequest is the body of POST /relations.
type RelationRequest struct {
	MediaName string `json:"media_name"`
	MediaType string `json:"media_type"`
}

// --- Entities ---

// Provenance tells whether a served entity came from upstream or from cache.
type Provenance string

const (
	FromAPI   Provenance = "API"
	FromCache Provenance = "Cache"
)

// Media is the washed, cacheable representation of one title.
// Pointer fields are nil when upstream omitted them and encode as null.
type Media struct {
	ID           *int            `json:"id"`
	Romaji       *string         `json:"romaji"`
	Airing       []AiringNode    `json:"airing"`
	AverageScore *int            `json:"averageScore"`
	MeanScore    *int            `json:"meanScore"`
	Banner       *string         `json:"banner"`
	Cover        json.RawMessage `json:"cover"`
	Duration     *int            `json:"duration"`
	Episodes     *int            `json:"episodes"`
	Chapters     *int            `json:"chapters"`
	Volumes      *int            `json:"volumes"`
	Format       *string         `json:"format"`
	Genres       []string        `json:"genres"`
	Popularity   *int            `json:"popularity"`
	Favourites   *int            `json:"favourites"`
	Status       *string         `json:"status"`
	URL          *string         `json:"url"`
	EndDate      string          `json:"endDate"`
	StartDate    string          `json:"startDate"`
	DataFrom     Provenance      `json:"dataFrom"`

	// LeftUntilExpire is the live cache TTL in seconds, set on cache hits only.
	LeftUntilExpire *int64 `json:"leftUntilExpire,omitempty"`
}

// NextAiring returns the earliest airing node, if any.
func (m *Media) NextAiring() (*AiringNode, bool) {
	if len(m.Airing) == 0 {
		return nil, false
	}
	return &m.Airing[0], true
}

// AiringNode is one episode broadcast event. TimeUntilAiring is signed seconds;
// negative means the episode already aired. Every other upstream field is kept
// verbatim in Extra and re-emitted unchanged. A node upstream sent as something
// other than an object is held in Raw and re-emitted as is.
type AiringNode struct {
	TimeUntilAiring *int64
	Extra           map[string]json.RawMessage
	Raw             json.RawMessage
}

const timeUntilAiringKey = "timeUntilAiring"

// MarshalJSON merges TimeUntilAiring back into the pass-through fields.
func (n AiringNode) MarshalJSON() ([]byte, error) {
	if n.Raw != nil {
		return n.Raw, nil
	}
	out := make(map[string]json.RawMessage, len(n.Extra)+1)
	for k, v := range n.Extra {
		out[k] = v
	}
	if n.TimeUntilAiring != nil {
		v, err := json.Marshal(*n.TimeUntilAiring)
		if err != nil {
			return nil, err
		}
		out[timeUntilAiringKey] = v
	} else {
		out[timeUntilAiringKey] = json.RawMessage("null")
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits timeUntilAiring out of the node object.
func (n *AiringNode) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || trimmed[0] != '{' {
		*n = AiringNode{Raw: append(json.RawMessage(nil), trimmed...)}
		return nil
	}
	n.Raw = nil
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	n.TimeUntilAiring = nil
	if raw, ok := fields[timeUntilAiringKey]; ok {
		delete(fields, timeUntilAiringKey)
		var secs *int64
		if err := json.Unmarshal(raw, &secs); err != nil {
			return err
		}
		n.TimeUntilAiring = secs
	}
	n.Extra = fields
	return nil
}

// Relation is the lightweight projection returned by relation search.
type Relation struct {
	ID       *int       `json:"id"`
	Romaji   *string    `json:"romaji"`
	English  *string    `json:"english"`
	Native   *string    `json:"native"`
	Synonyms []string   `json:"synonyms"`
	Type     *string    `json:"type"`
	DataFrom Provenance `json:"dataFrom"`
}

// RelationList is the body of a successful POST /relations response.
type RelationList struct {
	Relations []Relation `json:"relations"`
}

// --- Context keys ---

type contextKey int

const ctxKeyRequestID contextKey = 0

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}
