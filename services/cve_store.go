package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/threatlens/threatfeed-backend/models"
)

// CVEStore persists normalized CVE records keyed by their CVE ID.
type CVEStore struct {
	DB *sql.DB
}

func NewCVEStore(db *sql.DB) *CVEStore {
	return &CVEStore{DB: db}
}

// GetLatest returns at most limit records ordered by publish time descending.
// Ties on published_at break on cve_id so one call is deterministic.
func (s *CVEStore) GetLatest(ctx context.Context, limit int) ([]models.CVE, error) {
	query := `
		SELECT id, cve_id, cvss_score_x10, severity, published_at, description, metrics
		FROM cves
		ORDER BY published_at DESC, cve_id DESC
		LIMIT $1`

	rows, err := s.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query latest cves: %w", err)
	}
	defer rows.Close()

	var records []models.CVE
	for rows.Next() {
		var record models.CVE
		var metrics []byte
		if err := rows.Scan(
			&record.ID,
			&record.CVEID,
			&record.CVSSScoreX10,
			&record.Severity,
			&record.PublishedAt,
			&record.Description,
			&metrics,
		); err != nil {
			return nil, fmt.Errorf("scan cve row: %w", err)
		}
		record.Metrics = metrics
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cve rows: %w", err)
	}

	return records, nil
}

// Upsert writes the batch so that each CVE ID's stored row equals the last
// record for that key in iteration order. Classification into inserted/updated
// reflects one existence check taken before any writes: an ID that repeats
// within the batch counts once.
func (s *CVEStore) Upsert(ctx context.Context, records []models.CVE) (models.UpsertResult, error) {
	if len(records) == 0 {
		return models.UpsertResult{}, nil
	}

	ids := lo.Uniq(lo.Map(records, func(r models.CVE, _ int) string {
		return r.CVEID
	}))

	existing, err := s.existingIDs(ctx, ids)
	if err != nil {
		return models.UpsertResult{}, err
	}

	result := models.UpsertResult{}
	for _, id := range ids {
		if existing[id] {
			result.Updated++
		} else {
			result.Inserted++
		}
	}

	query := `
		INSERT INTO cves (id, cve_id, cvss_score_x10, severity, published_at, description, metrics)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (cve_id) DO UPDATE SET
			cvss_score_x10 = EXCLUDED.cvss_score_x10,
			severity = EXCLUDED.severity,
			published_at = EXCLUDED.published_at,
			description = EXCLUDED.description,
			metrics = EXCLUDED.metrics`

	for _, record := range records {
		metrics := record.Metrics
		if len(metrics) == 0 {
			metrics = []byte("{}")
		}

		_, err := s.DB.ExecContext(ctx, query,
			uuid.NewString(),
			record.CVEID,
			record.CVSSScoreX10,
			record.Severity,
			record.PublishedAt,
			record.Description,
			metrics,
		)
		if err != nil {
			return models.UpsertResult{}, fmt.Errorf("upsert cve %s: %w", record.CVEID, err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"component": "CVEStore",
		"batch":     len(records),
		"inserted":  result.Inserted,
		"updated":   result.Updated,
	}).Info("CVE batch upserted")

	return result, nil
}

// existingIDs returns which of the given CVE IDs are already stored.
func (s *CVEStore) existingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	query := `SELECT cve_id FROM cves WHERE cve_id = ANY($1)`

	rows, err := s.DB.QueryContext(ctx, query, pq.StringArray(ids))
	if err != nil {
		return nil, fmt.Errorf("query existing cve ids: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]bool, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan cve id: %w", err)
		}
		existing[id] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cve ids: %w", err)
	}

	return existing, nil
}
