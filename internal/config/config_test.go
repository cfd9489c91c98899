package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/config"
)

func validConfigTOML() string {
	return `
[llm]
api_key = "llm-key"

[suno]
api_key = "suno-key"
callback_base_url = "https://cantalab.example"

[whatsapp]
base_url = "https://gateway.example"
api_key = "wa-key"

[storage]
bucket = "cantalab-clips"
`
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, validConfigTOML())
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected resolved path %q to exist, got %q exists=%v", path, resolved, exists)
	}
	if cfg.Pipeline.DeliveryDelayMins != 15 {
		t.Fatalf("expected default delivery delay 15, got %d", cfg.Pipeline.DeliveryDelayMins)
	}
	if cfg.Pipeline.ProcessingTimeoutMins != 10 {
		t.Fatalf("expected default processing timeout 10, got %d", cfg.Pipeline.ProcessingTimeoutMins)
	}
	if cfg.Media.ClipSeconds != 45 {
		t.Fatalf("expected default clip seconds 45, got %d", cfg.Media.ClipSeconds)
	}
	if cfg.WhatsApp.DefaultCountryCode != "52" {
		t.Fatalf("expected default country code 52, got %q", cfg.WhatsApp.DefaultCountryCode)
	}
}

func TestLoadRejectsMissingCredentials(t *testing.T) {
	cases := []struct {
		name     string
		strip    string
		fragment string
	}{
		{"llm key", "llm-key", "llm.api_key"},
		{"suno key", "suno-key", "suno.api_key"},
		{"whatsapp key", "wa-key", "whatsapp.api_key"},
		{"bucket", "cantalab-clips", "storage.bucket"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := strings.ReplaceAll(validConfigTOML(), tc.strip, "")
			path := writeConfig(t, body)
			_, _, _, err := config.Load(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.fragment) {
				t.Fatalf("expected error naming %q, got %v", tc.fragment, err)
			}
		})
	}
}

func TestLoadRejectsBadInterval(t *testing.T) {
	body := validConfigTOML() + "\n[pipeline]\nlaunch_interval = 0\n"
	path := writeConfig(t, body)
	if _, _, _, err := config.Load(path); err == nil || !strings.Contains(err.Error(), "pipeline.launch_interval") {
		t.Fatalf("expected launch_interval error, got %v", err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	path := writeConfig(t, validConfigTOML())
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	base := t.TempDir()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.StagingDir()} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s to exist: %v", dir, err)
		}
	}
}

func TestCreateSampleParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	// The sample omits credentials, so Load must fail validation but not parsing.
	_, _, _, err := config.Load(path)
	if err == nil {
		t.Fatal("expected validation error for sample config")
	}
	if strings.Contains(err.Error(), "parse config") {
		t.Fatalf("sample config failed to parse: %v", err)
	}
}
