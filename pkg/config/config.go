package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the docassistant server configuration.
//
// Configuration sources, as Load applies them:
//  1. Environment variables (DOCASSIST_*), for keys the config file sets
//  2. Configuration file (YAML)
//  3. Default values, for any field still zero
//
// No CLI flag is bound to a config key. When no config file is found,
// Load returns the defaults and reads no environment variables.
type Config struct {
	// Server controls the HTTP listener.
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Documents configures the three rooted file trees the index serves.
	Documents DocumentsConfig `mapstructure:"documents" yaml:"documents"`

	// Index configures IndexService/IndexStore.
	Index IndexConfig `mapstructure:"index" yaml:"index"`

	// Session configures SessionManager timeouts and token lifetimes.
	Session SessionConfig `mapstructure:"session" yaml:"session"`

	// Auth configures TokenAuth and the local credential store.
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`

	// Chat configures ChatOrchestrator's upstream and the legacy StreamProxy.
	Chat ChatConfig `mapstructure:"chat" yaml:"chat"`

	// Embeddings configures the embedding service used for vector re-rank.
	Embeddings EmbeddingsConfig `mapstructure:"embeddings" yaml:"embeddings"`

	// KnowledgeBase configures the external vector knowledge-base tool.
	KnowledgeBase KnowledgeBaseConfig `mapstructure:"knowledge_base" yaml:"knowledge_base"`

	// Preview configures the kkFileView preview reverse proxy.
	Preview PreviewConfig `mapstructure:"preview" yaml:"preview"`

	// Editor configures the OnlyOffice editor bridge.
	Editor EditorConfig `mapstructure:"editor" yaml:"editor"`

	// Backup configures optional S3 upload of FileService backups.
	Backup BackupConfig `mapstructure:"backup" yaml:"backup"`

	// Review configures the writeReviewDoc tool's template and default
	// output locations.
	Review ReviewConfig `mapstructure:"review" yaml:"review"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics contains Prometheus metrics server configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Telemetry controls OpenTelemetry distributed tracing.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// DebugEndpointsEnabled gates /debug/session-states. Off by default:
	// the route itself stays unauthenticated once enabled, matching the
	// original implementation, but a production deployment must opt in.
	DebugEndpointsEnabled bool `mapstructure:"debug_endpoints_enabled" yaml:"debug_endpoints_enabled"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" validate:"required,min=1,max=65535" yaml:"port"`

	// PublicBaseURL is this application's own externally reachable
	// origin, used to build the absolute download and callback URLs
	// handed to the OnlyOffice editor bridge.
	PublicBaseURL string `mapstructure:"public_base_url" validate:"required" yaml:"public_base_url"`
}

// DocumentsConfig configures the three rooted document trees.
type DocumentsConfig struct {
	// ProjectsRoot, SpecRoot and ManagementRoot are absolute filesystem
	// paths to the three DocumentRoot trees IndexService watches.
	ProjectsRoot   string `mapstructure:"projects_root" validate:"required" yaml:"projects_root"`
	SpecRoot       string `mapstructure:"spec_root" validate:"required" yaml:"spec_root"`
	ManagementRoot string `mapstructure:"management_root" validate:"required" yaml:"management_root"`

	// AllowedFileTypes is an extension list, defaulted by ApplyDefaults.
	// The upload handlers (upload-project, upload-standards,
	// upload-files) do not consult it; uploads are not filtered by
	// extension.
	AllowedFileTypes []string `mapstructure:"allowed_file_types" yaml:"allowed_file_types"`

	// SpecCategories are the top-level subdirectory names under SpecRoot
	// recognized as specification categories by openSpecificationFiles.
	SpecCategories []string `mapstructure:"spec_categories" yaml:"spec_categories"`
}

// IndexConfig configures IndexService and its IndexStore backend.
type IndexConfig struct {
	// StoreDriver selects the IndexStore backend.
	StoreDriver string `mapstructure:"store_driver" validate:"required,oneof=sqlite postgres" yaml:"store_driver"`

	// StorePath is the SQLite database file path when StoreDriver is sqlite.
	StorePath string `mapstructure:"store_path" yaml:"store_path"`

	// Postgres holds connection settings when StoreDriver is postgres.
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`

	// Persist selects whether the store is truncated and rebuilt from a
	// full walk at every start ("rescan") or opened as-is with only a
	// drift-resolving walk ("persist").
	Persist string `mapstructure:"persist" validate:"required,oneof=rescan persist" yaml:"persist"`

	// WatcherCooldown is the debounce window before a fs event results
	// in an upsert.
	WatcherCooldown time.Duration `mapstructure:"watcher_cooldown" yaml:"watcher_cooldown"`

	// ScanCronHour/ScanCronMinute are validated and handed to
	// index.Config, which does not read them: no periodic rescan is
	// scheduled, and the index changes only through the startup walk
	// and the live watcher.
	ScanCronHour   int `mapstructure:"scan_cron_hour" validate:"gte=0,lte=23" yaml:"scan_cron_hour"`
	ScanCronMinute int `mapstructure:"scan_cron_minute" validate:"gte=0,lte=59" yaml:"scan_cron_minute"`
}

// PostgresConfig holds IndexStore Postgres connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	Database string `mapstructure:"database" yaml:"database"`
	SSLMode  string `mapstructure:"ssl_mode" yaml:"ssl_mode"`
}

// SessionConfig configures SessionManager lifetimes.
type SessionConfig struct {
	// DownloadLinkValidity is how long a download/editing token remains
	// resolvable after minting.
	DownloadLinkValidity time.Duration `mapstructure:"download_link_validity" yaml:"download_link_validity"`

	// CleanupInterval is how often the idle-session sweeper runs. The
	// expired-token sweeper runs at twice this interval.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`

	// OverallInactivityTimeout is the idle window after which a session
	// both loses exclusive-login protection and is evicted by the
	// sweeper.
	OverallInactivityTimeout time.Duration `mapstructure:"overall_inactivity_timeout" yaml:"overall_inactivity_timeout"`
}

// AuthConfig configures TokenAuth and the local credential store.
type AuthConfig struct {
	// SessionSecret signs the HMAC session cookie.
	SessionSecret string `mapstructure:"session_secret" validate:"required" yaml:"session_secret"`

	// UsersDBPath is the local bcrypt credential file TokenAuth's login
	// handler consults.
	UsersDBPath string `mapstructure:"users_db_path" validate:"required" yaml:"users_db_path"`
}

// ChatConfig configures ChatOrchestrator and the legacy StreamProxy.
type ChatConfig struct {
	// SystemPrompt seeds every new conversation's history.
	SystemPrompt string `mapstructure:"system_prompt" yaml:"system_prompt"`

	// OpenAIAPIBase, OpenAIAPIKey, OpenAIModel address the
	// OpenAI-compatible streaming chat-completions upstream.
	OpenAIAPIBase string `mapstructure:"openai_api_base" validate:"required" yaml:"openai_api_base"`
	OpenAIAPIKey  string `mapstructure:"openai_api_key" yaml:"openai_api_key,omitempty"`
	OpenAIModel   string `mapstructure:"openai_model" validate:"required" yaml:"openai_model"`

	// ModelContextWindow bounds tool-result content before it is
	// injected back into conversation history.
	ModelContextWindow int `mapstructure:"model_context_window" validate:"required,gt=0" yaml:"model_context_window"`

	// HistoryRoot is where per-session chat history JSON is dumped on
	// disconnect.
	HistoryRoot string `mapstructure:"history_root" validate:"required" yaml:"history_root"`

	// UpstreamChatURL is the legacy Dify-style upstream StreamProxy
	// proxies to, when selected instead of ChatOrchestrator.
	UpstreamChatURL string `mapstructure:"upstream_chat_url" yaml:"upstream_chat_url,omitempty"`

	// MaxToolCallDepth bounds the recursive tool-calling loop.
	MaxToolCallDepth int `mapstructure:"max_tool_call_depth" validate:"required,gt=0" yaml:"max_tool_call_depth"`
}

// EmbeddingsConfig configures the embedding service used for vector
// re-rank in openSpecificationFiles and queryProjectFiles' fuzzy match.
type EmbeddingsConfig struct {
	URL   string `mapstructure:"url" yaml:"url"`
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Model string `mapstructure:"model" yaml:"model"`

	// HealthCheckTimeout bounds the startup probe AppKernel uses to set
	// the embeddingsAvailable feature flag.
	HealthCheckTimeout time.Duration `mapstructure:"health_check_timeout" yaml:"health_check_timeout"`
}

// ReviewConfig configures the writeReviewDoc tool.
type ReviewConfig struct {
	// TemplateRoot holds the per-template .docx files and their
	// instruction text files.
	TemplateRoot string `mapstructure:"template_root" yaml:"template_root"`

	// DefaultOutputRoot is used when the calling user has no known
	// working directory to write the rendered document under.
	DefaultOutputRoot string `mapstructure:"default_output_root" yaml:"default_output_root"`
}

// KnowledgeBaseConfig configures the external vector knowledge-base tool.
type KnowledgeBaseConfig struct {
	URL          string `mapstructure:"url" yaml:"url"`
	APIKey       string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	RerankModel  string `mapstructure:"rerank_model" yaml:"rerank_model,omitempty"`
	RerankEnable bool   `mapstructure:"rerank_enable" yaml:"rerank_enable"`
	TopK         int    `mapstructure:"top_k" validate:"omitempty,gt=0" yaml:"top_k"`
}

// PreviewConfig configures the kkFileView preview reverse proxy.
type PreviewConfig struct {
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout" yaml:"http_timeout"`
}

// EditorConfig configures the OnlyOffice collaborative editor bridge.
type EditorConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret,omitempty"`
	JWTEnable bool   `mapstructure:"jwt_enable" yaml:"jwt_enable"`
}

// BackupConfig configures optional S3 upload of FileService backups.
type BackupConfig struct {
	S3Bucket string `mapstructure:"s3_bucket" yaml:"s3_bucket,omitempty"`
	S3Region string `mapstructure:"s3_region" yaml:"s3_region,omitempty"`

	// LocalDestDir is where `docassistant backup create` writes the
	// timestamped .zip archive before the optional S3 upload.
	LocalDestDir string `mapstructure:"local_dest_dir" yaml:"local_dest_dir"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// MetricsConfig configures the Prometheus metrics HTTP endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string        `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool          `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64       `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
	Profiling  ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled      bool     `mapstructure:"enabled" yaml:"enabled"`
	Endpoint     string   `mapstructure:"endpoint" yaml:"endpoint"`
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the
// config file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  docassistant init\n\n"+
				"Or specify a custom config file:\n"+
				"  docassistant <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  docassistant init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML
// format, using restricted permissions because config may carry secrets.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variable and config file
// search settings.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("DOCASSIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. Returns
// (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns the combined mapstructure decode hook for
// time.Duration fields; viper/yaml otherwise leaves them as raw strings.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(durationDecodeHook())
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path, honoring
// XDG_CONFIG_HOME and falling back to ~/.config or the current directory.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "docassistant")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "docassistant")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the
// init command).
func GetConfigDir() string {
	return getConfigDir()
}
