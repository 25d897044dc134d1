package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, int64(50), cfg.Upload.MaxSizeMB)
	assert.Contains(t, cfg.Upload.Extensions, "pdf")
	assert.Contains(t, cfg.Upload.Extensions, "xlsx")
	assert.Equal(t, "gemini-2.5-pro", cfg.Collaborator.ExtractorModel)
	assert.Equal(t, "gemini-2.5-flash", cfg.Collaborator.GeneratorModel)
	assert.Equal(t, -1, cfg.Collaborator.GeneratorThinkingBudget)
	assert.True(t, cfg.Watchdog.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "default config is valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "negative upload size",
			mutate:  func(c *Config) { c.Upload.MaxSizeMB = -1 },
			wantErr: "upload max size must be positive",
		},
		{
			name:    "empty extension list",
			mutate:  func(c *Config) { c.Upload.Extensions = nil },
			wantErr: "at least one allowed upload extension",
		},
		{
			name:    "watchdog enabled without timeout",
			mutate:  func(c *Config) { c.Watchdog.IdleTimeout = 0 },
			wantErr: "watchdog idle timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateNormalizesLogging(t *testing.T) {
	cfg := Default()
	cfg.Logging.Format = "text"
	cfg.Logging.Output = "syslog"

	require.NoError(t, cfg.validate())
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "both", cfg.Logging.Output)
}

func TestMergeConfigsEnvPrecedence(t *testing.T) {
	fileCfg := *Default()
	fileCfg.Server.Port = 9999
	fileCfg.Collaborator.APIKey = "file-key"

	envCfg := Config{}
	envCfg.Server.Port = 8081
	envCfg.Collaborator.APIKey = "env-key"

	merged := mergeConfigs(fileCfg, envCfg)
	assert.Equal(t, 8081, merged.Server.Port)
	assert.Equal(t, "env-key", merged.Collaborator.APIKey)

	// file values fill gaps the environment left empty
	envCfg2 := Config{}
	merged2 := mergeConfigs(fileCfg, envCfg2)
	assert.Equal(t, 9999, merged2.Server.Port)
	assert.Equal(t, "file-key", merged2.Collaborator.APIKey)
}
