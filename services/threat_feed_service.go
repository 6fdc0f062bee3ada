package services

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/threatlens/threatfeed-backend/models"
	"github.com/threatlens/threatfeed-backend/shared"
)

const (
	// DefaultFeedLimit is used when a caller supplies no limit; it is also the
	// seeding volume.
	DefaultFeedLimit = 25

	// MaxFeedLimit bounds caller-supplied limits.
	MaxFeedLimit = 200

	// SourceCache answers from the local cache without an upstream call.
	SourceCache = "cache"
	// SourceNVD performs a live fetch and refreshes the cache before answering.
	SourceNVD = "nvd"
)

// CVEFetcher fetches recent vulnerability records from the upstream feed.
type CVEFetcher interface {
	FetchRecent(ctx context.Context, limit int) ([]models.FetchedCVE, error)
}

// CVERepository is the persistent cache of normalized CVE records.
type CVERepository interface {
	GetLatest(ctx context.Context, limit int) ([]models.CVE, error)
	Upsert(ctx context.Context, records []models.CVE) (models.UpsertResult, error)
}

// ThreatFeedService coordinates upstream fetches and cache reconciliation.
// Each call runs its own fetch-then-upsert sequence; there is no cross-request
// locking, and correctness under concurrent refreshes rests on the store's
// per-key last-write-wins upsert.
type ThreatFeedService struct {
	fetcher CVEFetcher
	store   CVERepository
	metrics *shared.ServiceMetrics
}

func NewThreatFeedService(fetcher CVEFetcher, store CVERepository) *ThreatFeedService {
	return &ThreatFeedService{
		fetcher: fetcher,
		store:   store,
		metrics: shared.NewServiceMetrics("threat-feed"),
	}
}

// SeedIfEmpty populates an empty cache with one best-effort fetch. Upstream
// failure is logged and swallowed so the dashboard still starts with an empty
// feed instead of blocking or crashing.
func (s *ThreatFeedService) SeedIfEmpty(ctx context.Context) error {
	existing, err := s.store.GetLatest(ctx, 1)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	items, err := s.fetchRecorded(ctx, DefaultFeedLimit)
	if err != nil {
		logrus.WithError(err).Warn("Threat feed seeding skipped: upstream fetch failed")
		return nil
	}

	result, err := s.store.Upsert(ctx, s.normalize(items))
	if err != nil {
		logrus.WithError(err).Warn("Threat feed seeding skipped: cache write failed")
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"inserted": result.Inserted,
		"updated":  result.Updated,
	}).Info("Threat feed seeded from NVD")
	return nil
}

// Latest serves the read path. With SourceNVD it fetches live and refreshes the
// cache first; either way the answer comes from the cache so ordering stays
// consistent. Upstream failures leave the cache untouched.
func (s *ThreatFeedService) Latest(ctx context.Context, limit int, source string) ([]models.CVE, error) {
	limit = clampLimit(limit)

	if source == SourceNVD {
		items, err := s.fetchRecorded(ctx, limit)
		if err != nil {
			return nil, err
		}
		if _, err := s.store.Upsert(ctx, s.normalize(items)); err != nil {
			return nil, err
		}
	}

	records, err := s.store.GetLatest(ctx, limit)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []models.CVE{}
	}
	return records, nil
}

// Refresh performs a live fetch and reconciles the cache, reporting how many
// records were inserted versus updated.
func (s *ThreatFeedService) Refresh(ctx context.Context, limit int) (models.UpsertResult, error) {
	limit = clampLimit(limit)

	items, err := s.fetchRecorded(ctx, limit)
	if err != nil {
		return models.UpsertResult{}, err
	}

	result, err := s.store.Upsert(ctx, s.normalize(items))
	if err != nil {
		return models.UpsertResult{}, err
	}

	s.metrics.IncrementCustomCounter("records_inserted", int64(result.Inserted))
	s.metrics.IncrementCustomCounter("records_updated", int64(result.Updated))
	s.metrics.LogSummary()

	return result, nil
}

// MetricsSnapshot exposes the service counters for logging and diagnostics.
func (s *ThreatFeedService) MetricsSnapshot() shared.ServiceMetrics {
	return s.metrics.GetSnapshot()
}

func (s *ThreatFeedService) fetchRecorded(ctx context.Context, limit int) ([]models.FetchedCVE, error) {
	start := time.Now()
	items, err := s.fetcher.FetchRecent(ctx, limit)
	s.metrics.RecordRequest(err == nil, time.Since(start))
	return items, err
}

// normalize turns intermediate fetch results into storable records: clamp the
// score to [0,10], scale x10 and round, derive severity from the clamped
// unscaled score, and substitute the placeholder description when empty.
func (s *ThreatFeedService) normalize(items []models.FetchedCVE) []models.CVE {
	records := make([]models.CVE, 0, len(items))

	for _, item := range items {
		score := math.Max(0, math.Min(10, item.CVSSScore))

		description := item.Description
		if description == "" {
			description = models.PlaceholderDescription
		}

		metrics := []byte("{}")
		if len(item.Metrics) > 0 {
			if encoded, err := json.Marshal(item.Metrics); err == nil {
				metrics = encoded
			}
		}

		records = append(records, models.CVE{
			CVEID:        item.CVEID,
			CVSSScoreX10: int(math.Round(score * 10)),
			Severity:     SeverityFromScore(score),
			PublishedAt:  item.PublishedAt,
			Description:  description,
			Metrics:      metrics,
		})
	}

	return records
}

func clampLimit(limit int) int {
	if limit < 1 {
		return DefaultFeedLimit
	}
	if limit > MaxFeedLimit {
		return MaxFeedLimit
	}
	return limit
}
