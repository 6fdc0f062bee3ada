package services

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/threatlens/threatfeed-backend/models"
)

// cvssMetricPreference lists the NVD metric-set keys newest-first. Records may
// carry several scoring-standard versions at once; the newest present wins.
var cvssMetricPreference = []string{
	"cvssMetricV40",
	"cvssMetricV31",
	"cvssMetricV30",
	"cvssMetricV2",
}

// SeverityFromScore maps a CVSS base score to its severity label. Callers must
// clamp the score to [0, 10] before storage; the comparisons themselves are
// total over all floats.
func SeverityFromScore(score float64) models.Severity {
	switch {
	case score >= 9.0:
		return models.SeverityCritical
	case score >= 7.0:
		return models.SeverityHigh
	case score >= 4.0:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// ExtractCVSSBaseScore selects a single base score from NVD's versioned metric
// sets. It walks the preference list newest to oldest, takes the first set with
// a non-empty array, and reads the first entry's cvssData.baseScore. Any shape
// deviation or non-finite value degrades to the next candidate; if nothing
// yields a finite score the result is 0.
func ExtractCVSSBaseScore(metrics map[string]interface{}) float64 {
	if metrics == nil {
		return 0
	}

	for _, key := range cvssMetricPreference {
		arr, ok := metrics[key].([]interface{})
		if !ok || len(arr) == 0 {
			continue
		}

		entry, ok := arr[0].(map[string]interface{})
		if !ok {
			continue
		}

		data, ok := entry["cvssData"].(map[string]interface{})
		if !ok {
			continue
		}

		if score, ok := safeNumber(data["baseScore"]); ok {
			return score
		}
	}

	return 0
}

// safeNumber coerces a decoded JSON value to a finite float64.
func safeNumber(v interface{}) (float64, bool) {
	var f float64

	switch n := v.(type) {
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case int:
		f = float64(n)
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
