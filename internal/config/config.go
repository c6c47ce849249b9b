package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	defaultDataDir        = "."
	defaultListenAddress  = ":8080"
	defaultMaxRetries     = 5
	defaultWorkers        = 1
	defaultRequestsPerSec = 1.0
)

// Config holds the process configuration read from the environment. Values
// are kept loosely typed; the typed getters apply defaults.
type Config map[string]any

// ReadConfig builds the configuration from the data directory's .env file
// and the process environment.
func ReadConfig() Config {
	c := Config{}

	level := ParseLogLevel(os.Getenv("LOG_LEVEL"))
	SetLogLevel(level)
	c["log_level"] = level.String()

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	c["data_dir"] = dataDir

	if err := godotenv.Load(filepath.Join(dataDir, ".env")); err != nil {
		logrus.Debugf("no .env file in %s, reading from environment only", dataDir)
	}

	c["source_base_url"] = os.Getenv("SOURCE_BASE_URL")
	c["source_bearer_token"] = os.Getenv("SOURCE_BEARER_TOKEN")

	if s := os.Getenv("SOURCE_MAX_RETRIES"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			c["source_max_retries"] = v
		} else {
			logrus.Errorf("Invalid SOURCE_MAX_RETRIES %q, using default of %d", s, defaultMaxRetries)
		}
	}

	if s := os.Getenv("SOURCE_REQUESTS_PER_SECOND"); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil && v > 0 {
			c["source_requests_per_second"] = v
		} else {
			logrus.Errorf("Invalid SOURCE_REQUESTS_PER_SECOND %q, using default", s)
		}
	}

	if s := os.Getenv("EXECUTOR_WORKERS"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			c["executor_workers"] = v
		} else {
			logrus.Errorf("Invalid EXECUTOR_WORKERS %q, using default of %d", s, defaultWorkers)
		}
	}

	listenAddress := os.Getenv("LISTEN_ADDRESS")
	if listenAddress == "" {
		listenAddress = defaultListenAddress
	}
	c["listen_address"] = listenAddress

	return c
}

func (c Config) DataDir() string {
	return c.GetString("data_dir", defaultDataDir)
}

func (c Config) ListenAddress() string {
	return c.GetString("listen_address", defaultListenAddress)
}

func (c Config) SourceBaseURL() string {
	return c.GetString("source_base_url", "")
}

func (c Config) SourceBearerToken() string {
	return c.GetString("source_bearer_token", "")
}

func (c Config) SourceMaxRetries() int {
	return c.GetInt("source_max_retries", defaultMaxRetries)
}

func (c Config) SourceRequestsPerSecond() float64 {
	return c.GetFloat("source_requests_per_second", defaultRequestsPerSec)
}

func (c Config) ExecutorWorkers() int {
	return c.GetInt("executor_workers", defaultWorkers)
}

// GetInt safely extracts an int, with a default fallback.
func (c Config) GetInt(key string, def int) int {
	if v, ok := c[key]; ok {
		switch val := v.(type) {
		case int:
			return val
		case int64:
			return int(val)
		case float64:
			return int(val)
		}
	}
	return def
}

// GetFloat safely extracts a float64, with a default fallback.
func (c Config) GetFloat(key string, def float64) float64 {
	if v, ok := c[key]; ok {
		switch val := v.(type) {
		case float64:
			return val
		case int:
			return float64(val)
		}
	}
	return def
}

func (c Config) GetString(key string, def string) string {
	if v, ok := c[key]; ok {
		if val, ok := v.(string); ok && val != "" {
			return val
		}
	}
	return def
}

func (c Config) GetBool(key string, def bool) bool {
	if v, ok := c[key]; ok {
		if val, ok := v.(bool); ok {
			return val
		}
	}
	return def
}

// ParseLogLevel parses a string and returns the corresponding logrus.Level.
func ParseLogLevel(logLevel string) logrus.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return logrus.DebugLevel
	case "info", "":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		logrus.Errorf("Invalid log level %q, setting to %s", logLevel, logrus.InfoLevel)
		return logrus.InfoLevel
	}
}

// SetLogLevel sets the log level for the application.
func SetLogLevel(level logrus.Level) {
	logrus.SetLevel(level)
}
