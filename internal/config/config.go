package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all scribe configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Embedding engine configuration
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Persistence
	Store StoreConfig `yaml:"store"`

	// Supervisor/worker orchestration
	Supervisor SupervisorConfig `yaml:"supervisor"`

	// Report output
	Report ReportConfig `yaml:"report"`

	// Local notes corpus
	Corpus CorpusConfig `yaml:"corpus"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the LLM client.
type LLMConfig struct {
	Provider        string `yaml:"provider"` // gemini, openai
	APIKey          string `yaml:"api_key"`
	Model           string `yaml:"model"`
	BaseURL         string `yaml:"base_url"`
	Timeout         string `yaml:"timeout"`
	MaxOutputTokens int    `yaml:"max_output_tokens"`
	MaxRetries      int    `yaml:"max_retries"`
}

// EmbeddingConfig configures the embedding engine.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // genai, hash
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	TaskType string `yaml:"task_type"`
}

// StoreConfig configures SQLite persistence.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// SupervisorConfig configures orchestration limits.
type SupervisorConfig struct {
	MaxActiveWorkers   int    `yaml:"max_active_workers"`
	SectionConcurrency int    `yaml:"section_concurrency"`
	WorkerTimeout      string `yaml:"worker_timeout"`
	QueueSize          int    `yaml:"queue_size"`
	QueuePerPriority   int    `yaml:"queue_per_priority"`
	QueueWorkers       int    `yaml:"queue_workers"`
	DrainTimeout       string `yaml:"drain_timeout"`
}

// ReportConfig configures report assembly and export.
type ReportConfig struct {
	OutputDir   string `yaml:"output_dir"`
	MaxSections int    `yaml:"max_sections"`
	// Snippets recalled from the corpus per section brief
	RecallLimit int `yaml:"recall_limit"`
}

// CorpusConfig configures the local notes corpus.
type CorpusConfig struct {
	NotesDir string `yaml:"notes_dir"`
	Watch    bool   `yaml:"watch"`
	// Max characters per snippet chunk
	ChunkSize int `yaml:"chunk_size"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
	JSONFormat bool            `yaml:"json_format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "scribe",
		Version: "0.3.0",

		LLM: LLMConfig{
			Provider:        "gemini",
			Model:           "gemini-3-flash-preview",
			BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
			Timeout:         "120s",
			MaxOutputTokens: 65536,
			MaxRetries:      3,
		},

		Embedding: EmbeddingConfig{
			Provider: "genai",
			Model:    "gemini-embedding-001",
			TaskType: "RETRIEVAL_DOCUMENT",
		},

		Store: StoreConfig{
			DatabasePath: filepath.Join(".scribe", "scribe.db"),
		},

		Supervisor: SupervisorConfig{
			MaxActiveWorkers:   8,
			SectionConcurrency: 4,
			WorkerTimeout:      "10m",
			QueueSize:          100,
			QueuePerPriority:   30,
			QueueWorkers:       2,
			DrainTimeout:       "30s",
		},

		Report: ReportConfig{
			OutputDir:   "reports",
			MaxSections: 8,
			RecallLimit: 5,
		},

		Corpus: CorpusConfig{
			NotesDir:  "notes",
			Watch:     false,
			ChunkSize: 1600,
		},

		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// ConfigPath returns the config file path for a workspace.
func ConfigPath(workspace string) string {
	return filepath.Join(workspace, ".scribe", "config.yaml")
}

// Load reads configuration from .scribe/config.yaml in the workspace,
// falling back to defaults for anything unset, then applies environment
// variable overrides.
func Load(workspace string) (*Config, error) {
	cfg := DefaultConfig()

	path := ConfigPath(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config at %s: %w", path, err)
		}
		// Missing file is fine: defaults + env
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config at %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to .scribe/config.yaml in the workspace.
func (c *Config) Save(workspace string) error {
	path := ConfigPath(workspace)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies SCRIBE_* environment variable overrides.
// Well-known provider key vars are honored as API key fallbacks.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SCRIBE_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("SCRIBE_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("SCRIBE_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("SCRIBE_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("SCRIBE_DATABASE_PATH"); v != "" {
		c.Store.DatabasePath = v
	}
	if v := os.Getenv("SCRIBE_OUTPUT_DIR"); v != "" {
		c.Report.OutputDir = v
	}
	if v := os.Getenv("SCRIBE_NOTES_DIR"); v != "" {
		c.Corpus.NotesDir = v
	}
	if v := os.Getenv("SCRIBE_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Supervisor.MaxActiveWorkers = n
		}
	}
	if v := os.Getenv("SCRIBE_DEBUG"); v != "" {
		c.Logging.DebugMode = v == "1" || v == "true"
	}

	// Provider key fallbacks, lowest precedence
	if c.LLM.APIKey == "" {
		if v := os.Getenv("GEMINI_API_KEY"); v != "" {
			c.LLM.APIKey = v
		} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.LLM.Provider == "openai" {
			c.LLM.APIKey = v
		}
	}
	if c.Embedding.APIKey == "" {
		if v := os.Getenv("GEMINI_API_KEY"); v != "" {
			c.Embedding.APIKey = v
		}
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "gemini", "openai":
	case "":
		return fmt.Errorf("llm provider is required")
	default:
		return fmt.Errorf("unknown llm provider: %s", c.LLM.Provider)
	}

	if c.Supervisor.MaxActiveWorkers <= 0 {
		return fmt.Errorf("supervisor max_active_workers must be positive, got %d", c.Supervisor.MaxActiveWorkers)
	}
	if c.Supervisor.SectionConcurrency <= 0 {
		return fmt.Errorf("supervisor section_concurrency must be positive, got %d", c.Supervisor.SectionConcurrency)
	}
	if c.Report.MaxSections <= 0 {
		return fmt.Errorf("report max_sections must be positive, got %d", c.Report.MaxSections)
	}

	if _, err := c.WorkerTimeout(); err != nil {
		return fmt.Errorf("invalid worker_timeout: %w", err)
	}
	if _, err := c.LLMTimeout(); err != nil {
		return fmt.Errorf("invalid llm timeout: %w", err)
	}
	return nil
}

// WorkerTimeout parses the configured worker timeout.
func (c *Config) WorkerTimeout() (time.Duration, error) {
	if c.Supervisor.WorkerTimeout == "" {
		return 10 * time.Minute, nil
	}
	return time.ParseDuration(c.Supervisor.WorkerTimeout)
}

// LLMTimeout parses the configured LLM request timeout.
func (c *Config) LLMTimeout() (time.Duration, error) {
	if c.LLM.Timeout == "" {
		return 2 * time.Minute, nil
	}
	return time.ParseDuration(c.LLM.Timeout)
}

// DrainTimeout parses the configured queue drain timeout.
func (c *Config) DrainTimeout() time.Duration {
	d, err := time.ParseDuration(c.Supervisor.DrainTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}
