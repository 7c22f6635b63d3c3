package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	appNameVar           = "APP_NAME"
	baseURLVar           = "API_BASE_URL"
	envVar               = "ENV"
	logLevelVar          = "LOG_LEVEL"
	sessionFileVar       = "SESSION_FILE"
	sessionPassphraseVar = "SESSION_PASSPHRASE"
	searchHistoryFileVar = "SEARCH_HISTORY_FILE"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "blogctl")
}

// GetBaseURL returns the REST backend root (e.g., "https://api.example.com/api/v1").
// Trailing slashes are removed so paths can be appended directly.
func (EnvVars) GetBaseURL() string {
	return strings.TrimRight(GetEnv(baseURLVar, "http://localhost:8080/api/v1"), "/")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv(envVar)
	if env == "" {
		return "DEV"
	}
	return env
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

func (EnvVars) GetSessionFile() string {
	return GetEnv(sessionFileVar, filepath.Join(userConfigDir(), "blogctl", "session"))
}

// GetSessionPassphrase returns the passphrase used to encrypt the session file.
// Empty means the session file is not written.
func (EnvVars) GetSessionPassphrase() string {
	return GetEnv(sessionPassphraseVar, "")
}

func (EnvVars) GetSearchHistoryFile() string {
	return GetEnv(searchHistoryFileVar, filepath.Join(userConfigDir(), "blogctl", "search_history.json"))
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvDuration parses a Go duration string ("30s", "2m") from the environment.
// Unparseable values fall back to the default.
func GetEnvDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func userConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return dir
}
