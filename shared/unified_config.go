package shared

import "time"

// UnifiedConfiguration holds all default configuration parameters for the service
type UnifiedConfiguration struct {
	Upstream UpstreamConfig `json:"upstream"`
	Database DatabaseConfig `json:"database"`
	Logging  LoggingConfig  `json:"logging"`
}

// UpstreamConfig holds NVD feed client configuration
type UpstreamConfig struct {
	BaseURL            string        `json:"base_url"`
	HTTPRequestTimeout time.Duration `json:"http_timeout"`
	WindowDays         int           `json:"window_days"`
	SeedLimit          int           `json:"seed_limit"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	PingTimeout     time.Duration `json:"ping_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level       string `json:"level"`
	EnableJSON  bool   `json:"enable_json"`
	ServiceName string `json:"service_name"`
}

// NewDefaultUnifiedConfiguration returns production-ready default configuration
func NewDefaultUnifiedConfiguration() *UnifiedConfiguration {
	return &UnifiedConfiguration{
		Upstream: UpstreamConfig{
			BaseURL:            "https://services.nvd.nist.gov/rest/json/cves/2.0",
			HTTPRequestTimeout: 30 * time.Second,
			// Recency proxy: NVD has no reliable "most recent first" ordering,
			// so fetches are bounded to a trailing publish-date window.
			WindowDays: 14,
			SeedLimit:  25,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			PingTimeout:     5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:       "info",
			EnableJSON:  true,
			ServiceName: "threatfeed-backend",
		},
	}
}
