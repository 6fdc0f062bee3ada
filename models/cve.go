package models

import (
	"encoding/json"
	"time"
)

// Severity is the coarse label derived from a CVSS base score.
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// PlaceholderDescription is stored when the upstream record carries no description.
const PlaceholderDescription = "No description provided."

// CVE is a cached vulnerability record. JSON field names match the wire format
// the dashboard consumes.
type CVE struct {
	ID string `json:"id"`

	// NVD CVE ID, e.g. "CVE-2026-12345". Unique within the cache.
	CVEID string `json:"cveId"`

	// CVSS base score (0.0 - 10.0) stored as integer * 10 to avoid float drift.
	CVSSScoreX10 int `json:"cvssScoreX10"`

	Severity Severity `json:"severity"`

	PublishedAt time.Time `json:"publishedAt"`

	Description string `json:"description"`

	// Raw NVD metrics payload, kept verbatim for traceability.
	Metrics json.RawMessage `json:"metrics"`
}

// FetchedCVE is the intermediate form produced by the upstream feed client.
// It only lives within a single fetch; normalization turns it into a CVE.
type FetchedCVE struct {
	CVEID       string                 `json:"cveId"`
	PublishedAt time.Time              `json:"publishedAt"`
	Description string                 `json:"description"`
	CVSSScore   float64                `json:"cvssScore"`
	Metrics     map[string]interface{} `json:"metrics"`
}

// UpsertResult reports how a batch upsert classified its records against the
// cache state observed before any writes.
type UpsertResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}
