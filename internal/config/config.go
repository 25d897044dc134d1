package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server" envconfig:"SERVER"`
	Logging      LoggingConfig      `yaml:"logging" envconfig:"LOGGING"`
	Paths        PathsConfig        `yaml:"paths" envconfig:"PATHS"`
	Upload       UploadConfig       `yaml:"upload" envconfig:"UPLOAD"`
	Collaborator CollaboratorConfig `yaml:"collaborator" envconfig:"COLLABORATOR"`
	Watchdog     WatchdogConfig     `yaml:"watchdog" envconfig:"WATCHDOG"`
	WebSocket    WebSocketConfig    `yaml:"websocket" envconfig:"WEBSOCKET"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	AllowedOrigins  []string      `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	// TempRoot is the root under which per-session directories live.
	TempRoot   string `yaml:"temp_root" envconfig:"TEMP_ROOT" default:"/tmp/docpulse"`
	PromptFile string `yaml:"prompt_file" envconfig:"PROMPT_FILE" default:"prompts/gallery.json"`
	LogsDir    string `yaml:"logs_dir" envconfig:"LOGS_DIR" default:"logs"`
}

// UploadConfig governs document upload validation
type UploadConfig struct {
	MaxSizeMB  int64    `yaml:"max_size_mb" envconfig:"MAX_SIZE_MB" default:"50"`
	Extensions []string `yaml:"extensions" envconfig:"EXTENSIONS" default:"pdf,txt,png,jpg,jpeg,docx,xlsx,csv,md,json,xml,html,py,js,ts,doc,xls,ppt,pptx"`
}

// CollaboratorConfig configures the external text-generation backend.
// Model ids and thinking budgets are passed through unmodified.
type CollaboratorConfig struct {
	APIKey string `yaml:"api_key" envconfig:"API_KEY"`

	ExtractorModel string `yaml:"extractor_model" envconfig:"EXTRACTOR_MODEL" default:"gemini-2.5-pro"`
	ArrangerModel  string `yaml:"arranger_model" envconfig:"ARRANGER_MODEL" default:"gemini-2.5-pro"`
	GeneratorModel string `yaml:"generator_model" envconfig:"GENERATOR_MODEL" default:"gemini-2.5-flash"`

	ExtractorThinkingBudget int `yaml:"extractor_thinking_budget" envconfig:"EXTRACTOR_THINKING_BUDGET" default:"2048"`
	ArrangerThinkingBudget  int `yaml:"arranger_thinking_budget" envconfig:"ARRANGER_THINKING_BUDGET" default:"2048"`
	GeneratorThinkingBudget int `yaml:"generator_thinking_budget" envconfig:"GENERATOR_THINKING_BUDGET" default:"-1"`
}

// WatchdogConfig configures the process-wide inactivity shutdown
type WatchdogConfig struct {
	Enabled       bool          `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	IdleTimeout   time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"15m"`
	CheckInterval time.Duration `yaml:"check_interval" envconfig:"CHECK_INTERVAL" default:"60s"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE" default:"1024"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE" default:"1024"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD" default:"30s"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT" default:"60s"`
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	var cfg Config

	// Environment variables take precedence over the config file
	if err := envconfig.Process("DOCPULSE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	configFile := getConfigFilePath()
	if configFile != "" {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if err := cfg.ensureDirectories(); err != nil {
		return nil, fmt.Errorf("path validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs merges file config with env config (env takes precedence)
func mergeConfigs(fileConfig, envConfig Config) Config {
	if envConfig.Server.Port == 0 {
		envConfig.Server.Port = fileConfig.Server.Port
	}
	if envConfig.Paths.TempRoot == "" {
		envConfig.Paths.TempRoot = fileConfig.Paths.TempRoot
	}
	if envConfig.Collaborator.APIKey == "" {
		envConfig.Collaborator.APIKey = fileConfig.Collaborator.APIKey
	}
	if envConfig.Collaborator.ExtractorModel == "" {
		envConfig.Collaborator.ExtractorModel = fileConfig.Collaborator.ExtractorModel
	}
	if envConfig.Collaborator.ArrangerModel == "" {
		envConfig.Collaborator.ArrangerModel = fileConfig.Collaborator.ArrangerModel
	}
	if envConfig.Collaborator.GeneratorModel == "" {
		envConfig.Collaborator.GeneratorModel = fileConfig.Collaborator.GeneratorModel
	}
	return envConfig
}

// ensureDirectories creates the temp root and logs dir if missing.
// Creation is idempotent.
func (c *Config) ensureDirectories() error {
	for _, dir := range []string{c.Paths.TempRoot, c.Paths.LogsDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Upload.MaxSizeMB <= 0 {
		return fmt.Errorf("upload max size must be positive")
	}

	if len(c.Upload.Extensions) == 0 {
		return fmt.Errorf("at least one allowed upload extension must be specified")
	}

	if c.Watchdog.Enabled && c.Watchdog.IdleTimeout <= 0 {
		return fmt.Errorf("watchdog idle timeout must be positive when enabled")
	}

	// Always JSON format, always dual output
	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output != "both" && c.Logging.Output != "file" && c.Logging.Output != "stdout" {
		c.Logging.Output = "both"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = filepath.Join(c.Paths.LogsDir, "app.log")
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"http://localhost:8080"},
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "both",
			FilePath: "logs/app.log",
		},
		Paths: PathsConfig{
			TempRoot:   "/tmp/docpulse",
			PromptFile: "prompts/gallery.json",
			LogsDir:    "logs",
		},
		Upload: UploadConfig{
			MaxSizeMB: 50,
			Extensions: []string{
				"pdf", "txt", "png", "jpg", "jpeg", "docx", "xlsx", "csv",
				"md", "json", "xml", "html", "py", "js", "ts", "doc", "xls",
				"ppt", "pptx",
			},
		},
		Collaborator: CollaboratorConfig{
			ExtractorModel:          "gemini-2.5-pro",
			ArrangerModel:           "gemini-2.5-pro",
			GeneratorModel:          "gemini-2.5-flash",
			ExtractorThinkingBudget: 2048,
			ArrangerThinkingBudget:  2048,
			GeneratorThinkingBudget: -1,
		},
		Watchdog: WatchdogConfig{
			Enabled:       true,
			IdleTimeout:   15 * time.Minute,
			CheckInterval: 60 * time.Second,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
	}
}
