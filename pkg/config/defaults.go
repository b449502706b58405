package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// GetDefaultConfig returns a Config populated entirely with defaults,
// suitable for a first run with no config file present.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills any zero-valued field with its default. Safe to
// call on a partially-populated Config from a config file.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.PublicBaseURL == "" {
		cfg.Server.PublicBaseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}

	if cfg.Documents.ProjectsRoot == "" {
		cfg.Documents.ProjectsRoot = "./data/projects"
	}
	if cfg.Documents.SpecRoot == "" {
		cfg.Documents.SpecRoot = "./data/specs"
	}
	if cfg.Documents.ManagementRoot == "" {
		cfg.Documents.ManagementRoot = "./data/management"
	}
	if len(cfg.Documents.AllowedFileTypes) == 0 {
		cfg.Documents.AllowedFileTypes = []string{
			"pdf", "doc", "docx", "xls", "xlsx", "txt", "md", "ofd", "ceb", "jpg", "jpeg", "png",
		}
	}

	if cfg.Index.StoreDriver == "" {
		cfg.Index.StoreDriver = "sqlite"
	}
	if cfg.Index.StorePath == "" {
		cfg.Index.StorePath = "./data/index/index.db"
	}
	if cfg.Index.Persist == "" {
		cfg.Index.Persist = "persist"
	}
	if cfg.Index.WatcherCooldown == 0 {
		cfg.Index.WatcherCooldown = 5 * time.Second
	}
	if cfg.Index.Postgres.Port == 0 {
		cfg.Index.Postgres.Port = 5432
	}
	if cfg.Index.Postgres.SSLMode == "" {
		cfg.Index.Postgres.SSLMode = "disable"
	}

	if cfg.Session.DownloadLinkValidity == 0 {
		cfg.Session.DownloadLinkValidity = 30 * time.Minute
	}
	if cfg.Session.CleanupInterval == 0 {
		cfg.Session.CleanupInterval = 60 * time.Second
	}
	if cfg.Session.OverallInactivityTimeout == 0 {
		cfg.Session.OverallInactivityTimeout = 30 * time.Minute
	}

	if cfg.Auth.UsersDBPath == "" {
		cfg.Auth.UsersDBPath = "./data/users.json"
	}

	if cfg.Chat.SystemPrompt == "" {
		cfg.Chat.SystemPrompt = "You are a helpful assistant for engineering document management. " +
			"Use the available tools to look up project files, specifications and management documents " +
			"before answering questions about their contents."
	}
	if cfg.Chat.OpenAIAPIBase == "" {
		cfg.Chat.OpenAIAPIBase = "https://api.openai.com/v1"
	}
	if cfg.Chat.OpenAIModel == "" {
		cfg.Chat.OpenAIModel = "gpt-4o"
	}
	if cfg.Chat.ModelContextWindow == 0 {
		cfg.Chat.ModelContextWindow = 32000
	}
	if cfg.Chat.HistoryRoot == "" {
		cfg.Chat.HistoryRoot = "./data/history"
	}
	if cfg.Chat.MaxToolCallDepth == 0 {
		cfg.Chat.MaxToolCallDepth = 5
	}

	if cfg.Embeddings.HealthCheckTimeout == 0 {
		cfg.Embeddings.HealthCheckTimeout = 5 * time.Second
	}

	if cfg.KnowledgeBase.TopK == 0 {
		cfg.KnowledgeBase.TopK = 5
	}

	if cfg.Review.TemplateRoot == "" {
		cfg.Review.TemplateRoot = "./data/review_template"
	}
	if cfg.Review.DefaultOutputRoot == "" {
		cfg.Review.DefaultOutputRoot = "./data/review_output"
	}

	if cfg.Backup.LocalDestDir == "" {
		cfg.Backup.LocalDestDir = "./data/backups"
	}

	if cfg.Preview.HTTPTimeout == 0 {
		cfg.Preview.HTTPTimeout = 30 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
	if len(cfg.Telemetry.Profiling.ProfileTypes) == 0 {
		cfg.Telemetry.Profiling.ProfileTypes = []string{"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines"}
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
}

// Validate runs struct-tag validation over the Config tree.
func Validate(cfg *Config) error {
	return validate.Struct(cfg)
}

// InitConfig writes a sample config file to the default location,
// returning the path written. It refuses to overwrite an existing file
// unless force is true.
func InitConfig(force bool) (string, error) {
	return InitConfigToPath(GetDefaultConfigPath(), force)
}

// InitConfigToPath writes a sample config file to path.
func InitConfigToPath(path string, force bool) (string, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := GetDefaultConfig()
	if err := SaveConfig(cfg, path); err != nil {
		return "", err
	}

	return path, nil
}
