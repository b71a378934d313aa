package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model.
// It captures API credentials, the quota budget, collection and analysis
// tuning, storage, scheduling, and the metrics listener.
type Config struct {
	Credentials CredentialsConfig `yaml:"credentials"`
	Quota       QuotaConfig       `yaml:"quota"`
	Collection  CollectionConfig  `yaml:"collection"`
	Analysis    AnalysisConfig    `yaml:"analysis"`
	Storage     StorageConfig     `yaml:"storage"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

type CredentialsConfig struct {
	// SNS API bearer token. If empty, read from env SNS_API_TOKEN.
	APIToken string `yaml:"apiToken"`
}

// QuotaConfig describes the shared daily API call budget and the fraction
// of it each priority class may consume before admission is denied.
type QuotaConfig struct {
	DailyLimit  int64 `yaml:"dailyLimit"`
	WindowHours int   `yaml:"windowHours"`
	// Admission fractions per priority class, in [0,1].
	BatchFraction      float64 `yaml:"batchFraction"`
	RealTimeFraction   float64 `yaml:"realTimeFraction"`
	BackgroundFraction float64 `yaml:"backgroundFraction"`
}

type CollectionConfig struct {
	// Page size when walking stored accounts/posts.
	EntityPageSize int `yaml:"entityPageSize"`
	// Page size requested from the remote comment feed.
	CommentPageSize int `yaml:"commentPageSize"`
	// Stored comment text is truncated to this many runes.
	MaxCommentLength int `yaml:"maxCommentLength"`
}

type AnalysisConfig struct {
	// Sentiment analyzer endpoint; empty disables dispatch.
	Endpoint string `yaml:"endpoint"`
	// If empty, read from env ANALYZER_API_KEY.
	APIKey string `yaml:"apiKey"`
	// Fixed worker pool size and pending-task queue depth.
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queueSize"`
}

type StorageConfig struct {
	DBPath string `yaml:"dbPath"`
}

type ScheduleConfig struct {
	IntervalMinutes int `yaml:"intervalMinutes"`
	// Quiet hours (UTC) during which scheduled collection is deferred.
	QuietHours []int `yaml:"quietHours"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Credentials: CredentialsConfig{APIToken: ""},
		Quota: QuotaConfig{
			DailyLimit:         10000,
			WindowHours:        24,
			BatchFraction:      0.80,
			RealTimeFraction:   0.95,
			BackgroundFraction: 0.98,
		},
		Collection: CollectionConfig{
			EntityPageSize:   50,
			CommentPageSize:  100,
			MaxCommentLength: 1000,
		},
		Analysis: AnalysisConfig{Endpoint: "", APIKey: "", Workers: 4, QueueSize: 64},
		Storage:  StorageConfig{DBPath: "./socialpulse.db"},
		Schedule: ScheduleConfig{IntervalMinutes: 60, QuietHours: []int{0, 1, 2, 3, 4, 5}},
		Metrics:  MetricsConfig{Addr: ""},
	}
}

// ResolveEnv fills in config fields from environment variables if not set.
func (c *Config) ResolveEnv() {
	if c.Credentials.APIToken == "" {
		c.Credentials.APIToken = os.Getenv("SNS_API_TOKEN")
	}
	if c.Analysis.APIKey == "" {
		c.Analysis.APIKey = os.Getenv("ANALYZER_API_KEY")
	}
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
