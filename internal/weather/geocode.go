package weather

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// DefaultGeocodeLimit is the candidate count used when the caller passes no limit.
const DefaultGeocodeLimit = 5

// Resolver turns free-text city queries into candidates. It is stateless.
type Resolver struct {
	source Source
	logger *zap.Logger
}

// NewResolver creates a Resolver backed by source.
func NewResolver(source Source, logger *zap.Logger) *Resolver {
	return &Resolver{source: source, logger: logger}
}

// Resolve returns at most limit candidates for query. An empty result is not an error.
func (r *Resolver) Resolve(ctx context.Context, query string, limit int) ([]GeocodeCandidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultGeocodeLimit
	}

	candidates, err := r.source.Geocode(ctx, query, limit)
	if err != nil {
		return nil, upstreamErr("geocode", err)
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	r.logger.Debug("geocode resolved",
		zap.String("query", query),
		zap.Int("limit", limit),
		zap.Int("candidates", len(candidates)))

	return candidates, nil
}
