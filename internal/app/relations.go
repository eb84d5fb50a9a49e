package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	gateway "github.com/mediagate/mediagate/internal"
	"github.com/mediagate/mediagate/internal/telemetry"
	"github.com/mediagate/mediagate/internal/wash"
)

// RelationService searches related titles by name. Results are never cached.
type RelationService struct {
	queries gateway.QueryService
	metrics *telemetry.Metrics
}

// NewRelationService returns a RelationService backed by queries.
// metrics may be nil.
func NewRelationService(queries gateway.QueryService, metrics *telemetry.Metrics) *RelationService {
	return &RelationService{queries: queries, metrics: metrics}
}

// Search runs the relation_stats query and washes every returned title,
// keeping upstream order.
func (rs *RelationService) Search(ctx context.Context, req *gateway.RelationRequest) (*gateway.RelationList, error) {
	if req.MediaName == "" || req.MediaType == "" {
		return nil, gateway.BadRequest("No media name or type was included")
	}

	start := time.Now()
	raw, err := rs.queries.Execute(ctx, gateway.QueryRelationStats, map[string]any{
		"search": req.MediaName,
		"type":   strings.ToUpper(req.MediaType),
	})
	observeUpstream(rs.metrics, gateway.QueryRelationStats, start, err)
	if err != nil {
		slog.WarnContext(ctx, "relation search failed",
			"media_name", req.MediaName, "media_type", req.MediaType, "error", err)
		return nil, err
	}

	list := wash.Relations(raw)
	slog.DebugContext(ctx, "relations washed", "media_name", req.MediaName, "count", len(list.Relations))
	return list, nil
}
