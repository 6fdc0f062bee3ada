package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/sirupsen/logrus"

	"github.com/threatlens/threatfeed-backend/models"
	"github.com/threatlens/threatfeed-backend/shared"
)

const (
	// nvdMaxResultsPerPage caps a single fetch; requested limits are clamped
	// into [1, nvdMaxResultsPerPage].
	nvdMaxResultsPerPage = 200

	// nvdTimestampLayout matches the ISO-8601 form the NVD API accepts for
	// publish-date window parameters.
	nvdTimestampLayout = "2006-01-02T15:04:05.000Z"
)

type nvdDescription struct {
	Lang  string `json:"lang"`
	Value string `json:"value"`
}

// nvdCVE mirrors the subset of an NVD 2.0 record this service reads. Metrics
// stay an untyped map so the versioned, partially-present scoring sets can be
// retained verbatim and probed by ExtractCVSSBaseScore.
type nvdCVE struct {
	ID           string                 `json:"id"`
	Published    string                 `json:"published"`
	Descriptions []nvdDescription       `json:"descriptions"`
	Metrics      map[string]interface{} `json:"metrics"`
}

type nvdVulnerability struct {
	CVE nvdCVE `json:"cve"`
}

type nvdAPIResponse struct {
	ResultsPerPage  int                `json:"resultsPerPage"`
	TotalResults    int                `json:"totalResults"`
	Vulnerabilities []nvdVulnerability `json:"vulnerabilities"`
}

// NVDClient fetches recent vulnerability records from the NVD 2.0 REST API.
type NVDClient struct {
	baseURL    string
	windowDays int
	httpClient *http.Client
}

// NewNVDClient creates a client against the given base URL with a bounded
// request timeout. Failed requests are never retried here.
func NewNVDClient(baseURL string, timeout time.Duration) *NVDClient {
	defaults := shared.NewDefaultUnifiedConfiguration().Upstream
	if baseURL == "" {
		baseURL = defaults.BaseURL
	}

	factory := shared.NewHTTPClientFactory(defaults.HTTPRequestTimeout)

	return &NVDClient{
		baseURL:    baseURL,
		windowDays: defaults.WindowDays,
		httpClient: factory.CreateOptimizedHTTPClient(timeout),
	}
}

// FetchRecent requests up to limit records published within the trailing
// window and maps them into intermediate fetch results. Entries without a CVE
// ID or a parseable publish time are dropped. An empty result set is a valid
// success. All failures come back as *shared.UpstreamError.
func (c *NVDClient) FetchRecent(ctx context.Context, limit int) ([]models.FetchedCVE, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > nvdMaxResultsPerPage {
		limit = nvdMaxResultsPerPage
	}

	// NVD has no reliable "most recent first" ordering, so a trailing
	// publish-date window stands in for recency.
	now := time.Now().UTC()
	start := now.AddDate(0, 0, -c.windowDays)

	params := url.Values{}
	params.Set("resultsPerPage", strconv.Itoa(limit))
	params.Set("pubStartDate", start.Format(nvdTimestampLayout))
	params.Set("pubEndDate", now.Format(nvdTimestampLayout))

	requestURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, shared.NewUpstreamUnreachable(err)
	}
	shared.SetFeedRequestHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		upstreamErr := shared.NewUpstreamUnreachable(err)
		upstreamErr.LogError()
		return nil, upstreamErr
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		upstreamErr := shared.NewUpstreamRejected(resp.StatusCode)
		upstreamErr.LogError()
		return nil, upstreamErr
	}

	var payload nvdAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		upstreamErr := shared.NewUpstreamMalformed(err)
		upstreamErr.LogError()
		return nil, upstreamErr
	}

	items := make([]models.FetchedCVE, 0, len(payload.Vulnerabilities))
	dropped := 0

	for _, vuln := range payload.Vulnerabilities {
		cve := vuln.CVE

		cveID := strings.TrimSpace(cve.ID)
		if cveID == "" {
			dropped++
			continue
		}

		publishedAt, ok := parsePublished(cve.Published)
		if !ok {
			dropped++
			continue
		}

		metrics := cve.Metrics
		if metrics == nil {
			metrics = map[string]interface{}{}
		}

		items = append(items, models.FetchedCVE{
			CVEID:       cveID,
			PublishedAt: publishedAt,
			Description: pickDescription(cve.Descriptions),
			CVSSScore:   ExtractCVSSBaseScore(metrics),
			Metrics:     metrics,
		})
	}

	logrus.WithFields(logrus.Fields{
		"component":     "NVDClient",
		"total_results": payload.TotalResults,
		"mapped":        len(items),
		"dropped":       dropped,
	}).Debug("Fetched recent CVEs from NVD")

	return items, nil
}

// parsePublished parses the upstream publish timestamp. NVD emits zone-less
// timestamps like "2024-03-01T17:15:09.533"; dateparse absorbs those and plain
// RFC3339 alike. Absent or unparseable values invalidate the record.
func parsePublished(published string) (time.Time, bool) {
	trimmed := strings.TrimSpace(published)
	if trimmed == "" {
		return time.Time{}, false
	}

	parsed, err := dateparse.ParseAny(trimmed)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// pickDescription prefers the English entry, then any non-empty entry.
func pickDescription(descriptions []nvdDescription) string {
	for _, d := range descriptions {
		if d.Lang == "en" && d.Value != "" {
			return strings.TrimSpace(d.Value)
		}
	}
	for _, d := range descriptions {
		if d.Value != "" {
			return strings.TrimSpace(d.Value)
		}
	}
	return ""
}
