package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ServerPort        string
	DatabaseURL       string
	NVDBaseURL        string
	NVDTimeoutSeconds string
	LogLevel          string
	LogJSON           bool
}

// GetNVDTimeout returns the upstream request timeout from environment or default.
// There is deliberately no retry knob: upstream failures are never retried
// automatically, so the timeout is the only bound on a call.
func (c *Config) GetNVDTimeout() time.Duration {
	if c.NVDTimeoutSeconds == "" {
		return 30 * time.Second
	}

	seconds, err := strconv.Atoi(c.NVDTimeoutSeconds)
	if err != nil || seconds <= 0 {
		logrus.Warnf("Invalid NVD_TIMEOUT_SECONDS value: %s, using default 30 seconds", c.NVDTimeoutSeconds)
		return 30 * time.Second
	}

	return time.Duration(seconds) * time.Second
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		logrus.Warn("Error loading .env file, using system environment variables")
	}

	return &Config{
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		NVDBaseURL:        getEnv("NVD_API_URL", "https://services.nvd.nist.gov/rest/json/cves/2.0"),
		NVDTimeoutSeconds: getEnv("NVD_TIMEOUT_SECONDS", "30"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogJSON:           getEnv("LOG_FORMAT", "json") == "json",
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
