package testsupport

import (
	"path/filepath"
	"testing"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.LLM.APIKey = "test"
	cfgVal.Suno.APIKey = "test"
	cfgVal.Suno.CallbackBaseURL = "http://127.0.0.1:0"
	cfgVal.WhatsApp.BaseURL = "http://127.0.0.1:0"
	cfgVal.WhatsApp.APIKey = "test"
	cfgVal.Storage.Bucket = "test-bucket"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithDeliveryDelay overrides the minimum delay before generated content may
// be delivered.
func WithDeliveryDelay(minutes int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.DeliveryDelayMins = minutes
	}
}

// WithMaxAttempts overrides the generation retry cap on the test config.
func WithMaxAttempts(attempts int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.MaxGenerationAttempts = attempts
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
