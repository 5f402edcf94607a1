// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// DatabaseConfig holds log store settings.
type DatabaseConfig struct {
	// Path is the SQLite database file. ":memory:" is accepted for tests.
	Path string
}

// LLMConfig holds text-generation backend settings.
type LLMConfig struct {
	APIKey   string
	Model    string
	Endpoint string
}

// MCPConfig holds the MCP server binaries.
type MCPConfig struct {
	WazuhServerPath   string
	TheHiveServerPath string
}

// IngestionConfig holds CSV ingestion settings.
type IngestionConfig struct {
	WatchDirectory string
	CSVSeparator   rune
}

// Config is the full application configuration.
type Config struct {
	Database  DatabaseConfig
	LLM       LLMConfig
	MCP       MCPConfig
	Ingestion IngestionConfig

	// MetricsAddr is the listen address for the Prometheus endpoint.
	MetricsAddr string
}

// Load reads configuration from the environment. It fails with one combined
// error naming every missing required variable.
func Load() (*Config, error) {
	required := map[string]string{
		"DATABASE_PATH":   "log store database file",
		"GEMINI_API_KEY":  "text generation API key",
		"WATCH_DIRECTORY": "CSV files watch directory",
	}

	var missing []string
	for name, description := range required {
		if os.Getenv(name) == "" {
			missing = append(missing, fmt.Sprintf("- %s (%s)", name, description))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables:\n%s", strings.Join(missing, "\n"))
	}

	sep, err := parseSeparator(getenv("CSV_SEPARATOR", ";"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Database: DatabaseConfig{
			Path: os.Getenv("DATABASE_PATH"),
		},
		LLM: LLMConfig{
			APIKey:   os.Getenv("GEMINI_API_KEY"),
			Model:    getenv("GEMINI_MODEL", "gemini-2.0-flash"),
			Endpoint: getenv("GEMINI_ENDPOINT", "https://generativelanguage.googleapis.com/v1beta"),
		},
		MCP: MCPConfig{
			WazuhServerPath:   getenv("WAZUH_MCP_SERVER", "./mcp-servers/mcp-server-wazuh-linux-amd64"),
			TheHiveServerPath: getenv("THEHIVE_MCP_SERVER", "./mcp-servers/mcp-server-thehive-linux-amd64"),
		},
		Ingestion: IngestionConfig{
			WatchDirectory: os.Getenv("WATCH_DIRECTORY"),
			CSVSeparator:   sep,
		},
		MetricsAddr: getenv("METRICS_ADDR", ":9090"),
	}, nil
}

// parseSeparator decodes CSV_SEPARATOR as exactly one rune. Multi-rune
// values are rejected rather than silently truncated to their first byte,
// which would mangle any multi-byte separator.
func parseSeparator(value string) (rune, error) {
	r, size := utf8.DecodeRuneInString(value)
	if r == utf8.RuneError || size != len(value) {
		return 0, fmt.Errorf("CSV_SEPARATOR must be a single character, got %q", value)
	}
	return r, nil
}

func getenv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
