package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threatlens/threatfeed-backend/models"
	"github.com/threatlens/threatfeed-backend/services"
	"github.com/threatlens/threatfeed-backend/shared"
)

type stubFetcher struct {
	items []models.FetchedCVE
	err   error
	calls int
}

func (f *stubFetcher) FetchRecent(ctx context.Context, limit int) ([]models.FetchedCVE, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

type stubStore struct {
	latest       []models.CVE
	upserts      int
	upsertResult models.UpsertResult
}

func (s *stubStore) GetLatest(ctx context.Context, limit int) ([]models.CVE, error) {
	if limit < len(s.latest) {
		return s.latest[:limit], nil
	}
	return s.latest, nil
}

func (s *stubStore) Upsert(ctx context.Context, records []models.CVE) (models.UpsertResult, error) {
	s.upserts++
	return s.upsertResult, nil
}

func newTestApp(fetcher services.CVEFetcher, store services.CVERepository) *fiber.App {
	handler := NewThreatFeedHandler(services.NewThreatFeedService(fetcher, store))

	app := fiber.New()
	app.Get("/api/threat-feed/latest", handler.GetLatest)
	app.Post("/api/threat-feed/refresh", handler.Refresh)
	return app
}

func TestGetLatestEmptyCacheReturnsEmptyList(t *testing.T) {
	fetcher := &stubFetcher{}
	app := newTestApp(fetcher, &stubStore{})

	req := httptest.NewRequest("GET", "/api/threat-feed/latest?source=cache", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `[]`, string(body))
	// A cache read must never call upstream.
	assert.Zero(t, fetcher.calls)
}

func TestGetLatestReturnsCachedRecords(t *testing.T) {
	store := &stubStore{latest: []models.CVE{{
		ID:           "7d0e8b1a-0000-0000-0000-000000000001",
		CVEID:        "CVE-2025-0001",
		CVSSScoreX10: 98,
		Severity:     models.SeverityCritical,
		PublishedAt:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Description:  "Remote code execution",
		Metrics:      json.RawMessage(`{}`),
	}}}
	app := newTestApp(&stubFetcher{}, store)

	req := httptest.NewRequest("GET", "/api/threat-feed/latest", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var records []models.CVE
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	require.Len(t, records, 1)
	assert.Equal(t, "CVE-2025-0001", records[0].CVEID)
	assert.Equal(t, 98, records[0].CVSSScoreX10)
	assert.Equal(t, models.SeverityCritical, records[0].Severity)
}

func TestGetLatestInvalidQueryFallsBackToDefaults(t *testing.T) {
	fetcher := &stubFetcher{}
	app := newTestApp(fetcher, &stubStore{})

	req := httptest.NewRequest("GET", "/api/threat-feed/latest?limit=9999&source=bogus", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	// Bogus source falls back to cache, so upstream stays untouched.
	assert.Zero(t, fetcher.calls)
}

func TestGetLatestSourceNVDUpstreamFailure(t *testing.T) {
	fetcher := &stubFetcher{err: shared.NewUpstreamUnreachable(nil)}
	store := &stubStore{}
	app := newTestApp(fetcher, store)

	req := httptest.NewRequest("GET", "/api/threat-feed/latest?source=nvd", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.NotEmpty(t, payload["message"])
	assert.Equal(t, "nvd", payload["upstream"])
	assert.Zero(t, store.upserts)
}

func TestRefreshReportsCounts(t *testing.T) {
	fetcher := &stubFetcher{items: []models.FetchedCVE{{
		CVEID:       "CVE-2025-0001",
		PublishedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Description: "Remote code execution",
		CVSSScore:   9.8,
	}}}
	store := &stubStore{upsertResult: models.UpsertResult{Inserted: 2, Updated: 3}}
	app := newTestApp(fetcher, store)

	req := httptest.NewRequest("POST", "/api/threat-feed/refresh", strings.NewReader(`{"limit": 50}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"inserted": 2, "updated": 3, "total": 5}`, string(body))
	assert.Equal(t, 1, store.upserts)
}

func TestRefreshWithEmptyBodyUsesDefaultLimit(t *testing.T) {
	fetcher := &stubFetcher{}
	app := newTestApp(fetcher, &stubStore{})

	req := httptest.NewRequest("POST", "/api/threat-feed/refresh", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, fetcher.calls)
}

func TestRefreshValidatesLimitRange(t *testing.T) {
	app := newTestApp(&stubFetcher{}, &stubStore{})

	for _, body := range []string{`{"limit": 0}`, `{"limit": 201}`, `{"limit": -3}`} {
		req := httptest.NewRequest("POST", "/api/threat-feed/refresh", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, "body: %s", body)

		var payload map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		assert.NotEmpty(t, payload["message"])
		assert.Equal(t, "limit", payload["field"])
	}
}

func TestRefreshRejectsMalformedBody(t *testing.T) {
	app := newTestApp(&stubFetcher{}, &stubStore{})

	req := httptest.NewRequest("POST", "/api/threat-feed/refresh", strings.NewReader(`{"limit": "fifty`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRefreshUpstreamFailure(t *testing.T) {
	fetcher := &stubFetcher{err: shared.NewUpstreamRejected(503)}
	store := &stubStore{}
	app := newTestApp(fetcher, store)

	req := httptest.NewRequest("POST", "/api/threat-feed/refresh", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Contains(t, payload["message"], "503")
	assert.Equal(t, "nvd", payload["upstream"])
	assert.Zero(t, store.upserts)
}
