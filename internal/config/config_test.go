package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, 8, cfg.Supervisor.MaxActiveWorkers)
	assert.Equal(t, "reports", cfg.Report.OutputDir)
}

func TestLoadFromFile(t *testing.T) {
	ws := t.TempDir()
	content := []byte(`
llm:
  provider: openai
  model: gpt-4o-mini
supervisor:
  max_active_workers: 3
report:
  max_sections: 4
`)
	require.NoError(t, os.MkdirAll(filepath.Join(ws, ".scribe"), 0755))
	require.NoError(t, os.WriteFile(ConfigPath(ws), content, 0644))

	cfg, err := Load(ws)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 3, cfg.Supervisor.MaxActiveWorkers)
	assert.Equal(t, 4, cfg.Report.MaxSections)
	// Unset fields keep defaults.
	assert.Equal(t, "reports", cfg.Report.OutputDir)
}

func TestLoadMalformedFile(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(ws, ".scribe"), 0755))
	require.NoError(t, os.WriteFile(ConfigPath(ws), []byte("llm: ["), 0644))

	_, err := Load(ws)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SCRIBE_LLM_PROVIDER", "openai")
	t.Setenv("SCRIBE_LLM_MODEL", "gpt-4o")
	t.Setenv("SCRIBE_LLM_API_KEY", "sk-test")
	t.Setenv("SCRIBE_MAX_WORKERS", "2")
	t.Setenv("SCRIBE_OUTPUT_DIR", "/tmp/out")
	t.Setenv("SCRIBE_DEBUG", "true")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 2, cfg.Supervisor.MaxActiveWorkers)
	assert.Equal(t, "/tmp/out", cfg.Report.OutputDir)
	assert.True(t, cfg.Logging.DebugMode)
}

func TestGeminiKeyFallback(t *testing.T) {
	t.Setenv("SCRIBE_LLM_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "gk-fallback")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "gk-fallback", cfg.LLM.APIKey)
	assert.Equal(t, "gk-fallback", cfg.Embedding.APIKey)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.LLM.Provider = "llama-farm" }},
		{"empty provider", func(c *Config) { c.LLM.Provider = "" }},
		{"zero workers", func(c *Config) { c.Supervisor.MaxActiveWorkers = 0 }},
		{"zero concurrency", func(c *Config) { c.Supervisor.SectionConcurrency = 0 }},
		{"zero sections", func(c *Config) { c.Report.MaxSections = 0 }},
		{"bad worker timeout", func(c *Config) { c.Supervisor.WorkerTimeout = "ten minutes" }},
		{"bad llm timeout", func(c *Config) { c.LLM.Timeout = "soon" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	ws := t.TempDir()
	cfg := DefaultConfig()
	cfg.LLM.Model = "custom-model"
	require.NoError(t, cfg.Save(ws))

	loaded, err := Load(ws)
	require.NoError(t, err)
	assert.Equal(t, "custom-model", loaded.LLM.Model)
}

func TestTimeoutParsing(t *testing.T) {
	cfg := DefaultConfig()

	d, err := cfg.WorkerTimeout()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, d)

	cfg.Supervisor.WorkerTimeout = ""
	d, err = cfg.WorkerTimeout()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, d)

	cfg.Supervisor.DrainTimeout = "bogus"
	assert.Equal(t, 30*time.Second, cfg.DrainTimeout())
}
