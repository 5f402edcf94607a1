package config

import (
	"strings"
	"testing"
)

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("DATABASE_PATH", "")
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("WATCH_DIRECTORY", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing required variables")
	}
	if !strings.Contains(err.Error(), "DATABASE_PATH") {
		t.Errorf("error %q does not name DATABASE_PATH", err)
	}
	if !strings.Contains(err.Error(), "WATCH_DIRECTORY") {
		t.Errorf("error %q does not name WATCH_DIRECTORY", err)
	}
	if strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Errorf("error %q names a variable that is set", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_PATH", "/data/logs.db")
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("WATCH_DIRECTORY", "/data/watch")
	t.Setenv("GEMINI_MODEL", "")
	t.Setenv("CSV_SEPARATOR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LLM.Model != "gemini-2.0-flash" {
		t.Errorf("default model = %q", cfg.LLM.Model)
	}
	if cfg.Ingestion.CSVSeparator != ';' {
		t.Errorf("default separator = %q", cfg.Ingestion.CSVSeparator)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("default metrics addr = %q", cfg.MetricsAddr)
	}
}

func TestParseSeparator(t *testing.T) {
	tests := []struct {
		value   string
		want    rune
		wantErr bool
	}{
		{value: ";", want: ';'},
		{value: ",", want: ','},
		{value: "\t", want: '\t'},
		{value: "§", want: '§'},
		{value: ";;", wantErr: true},
		{value: "ab", wantErr: true},
		{value: "\xff", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseSeparator(tt.value)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseSeparator(%q) = %q, want error", tt.value, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseSeparator(%q): %v", tt.value, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseSeparator(%q) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestLoadMultiByteSeparatorRejected(t *testing.T) {
	t.Setenv("DATABASE_PATH", "/data/logs.db")
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("WATCH_DIRECTORY", "/data/watch")
	t.Setenv("CSV_SEPARATOR", "||")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for multi-character separator")
	}
}

func TestLoadSingleMultiByteSeparator(t *testing.T) {
	t.Setenv("DATABASE_PATH", "/data/logs.db")
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("WATCH_DIRECTORY", "/data/watch")
	t.Setenv("CSV_SEPARATOR", "§")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ingestion.CSVSeparator != '§' {
		t.Errorf("separator = %q, want '§'", cfg.Ingestion.CSVSeparator)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_PATH", "/data/logs.db")
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("WATCH_DIRECTORY", "/data/watch")
	t.Setenv("CSV_SEPARATOR", ",")
	t.Setenv("WAZUH_MCP_SERVER", "/opt/bin/wazuh-mcp")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Ingestion.CSVSeparator != ',' {
		t.Errorf("separator = %q, want ','", cfg.Ingestion.CSVSeparator)
	}
	if cfg.MCP.WazuhServerPath != "/opt/bin/wazuh-mcp" {
		t.Errorf("wazuh server path = %q", cfg.MCP.WazuhServerPath)
	}
}
