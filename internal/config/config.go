// Package config owns the configuration surface consumed by the core. The
// core reads it; ownership of the file stays with the operator.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/taskbridgehq/taskbridge/types"
)

const (
	// DirName is the per-project configuration directory.
	DirName = ".taskbridge"
	// FileName is the configuration file inside DirName.
	FileName = "config.yaml"
	// TasksFileName is the task document inside DirName.
	TasksFileName = "tasks.json"
	// LegacyTasksFileName is the pre-migration task document at the project
	// root, accepted read-only.
	LegacyTasksFileName = "tasks.json"
	// EnvPrefix is the environment override prefix.
	EnvPrefix = "TASKBRIDGE"
)

// Mode selects which backend(s) the router uses.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
	ModeHybrid Mode = "hybrid"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLocal, ModeRemote, ModeHybrid:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown persistence mode %q (want local, remote or hybrid)", s)
	}
}

// DataConfig holds local store paths, relative to the project root.
type DataConfig struct {
	File       string `mapstructure:"file" yaml:"file"`
	LegacyFile string `mapstructure:"legacyFile" yaml:"legacyFile"`
}

// RemoteConfig holds everything the remote client needs. CredentialRef names
// an environment variable; the credential value itself never lands on disk.
type RemoteConfig struct {
	Enabled           bool              `mapstructure:"enabled" yaml:"enabled"`
	BaseURL           string            `mapstructure:"baseUrl" yaml:"baseUrl"`
	BoardID           string            `mapstructure:"boardId" yaml:"boardId"`
	CredentialRef     string            `mapstructure:"credentialRef" yaml:"credentialRef"`
	ColumnMapping     map[string]string `mapstructure:"columnMapping" yaml:"columnMapping,omitempty"`
	RetryAttempts     int               `mapstructure:"retryAttempts" yaml:"retryAttempts" validate:"omitempty,min=1,max=10"`
	TimeoutMs         int               `mapstructure:"timeoutMs" yaml:"timeoutMs" validate:"omitempty,min=100"`
	BaseDelayMs       int               `mapstructure:"baseDelayMs" yaml:"baseDelayMs" validate:"omitempty,min=1"`
	MaxConcurrent     int               `mapstructure:"maxConcurrent" yaml:"maxConcurrent" validate:"omitempty,min=1"`
	MaxCostPerWindow  int               `mapstructure:"maxCostPerWindow" yaml:"maxCostPerWindow" validate:"omitempty,min=1"`
	CostWindowSeconds int               `mapstructure:"costWindowSeconds" yaml:"costWindowSeconds" validate:"omitempty,min=1"`
	MaxRequestsPerDay int               `mapstructure:"maxRequestsPerDay" yaml:"maxRequestsPerDay" validate:"omitempty,min=1"`
}

// Timeout returns the per-request timeout.
func (r RemoteConfig) Timeout() time.Duration { return time.Duration(r.TimeoutMs) * time.Millisecond }

// BaseDelay returns the backoff seed delay.
func (r RemoteConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMs) * time.Millisecond
}

// Config is the full configuration object read at initialize time.
type Config struct {
	Version         string       `mapstructure:"version" yaml:"version"`
	PersistenceMode Mode         `mapstructure:"persistenceMode" yaml:"persistenceMode" validate:"required,oneof=local remote hybrid"`
	AutoSync        bool         `mapstructure:"autoSync" yaml:"autoSync"`
	Data            DataConfig   `mapstructure:"data" yaml:"data"`
	Remote          RemoteConfig `mapstructure:"remote" yaml:"remote"`
}

// Default returns the zero-impact configuration the migrator writes: local
// mode, auto-sync off, remote integration disabled.
func Default() Config {
	return Config{
		Version:         "1",
		PersistenceMode: ModeLocal,
		AutoSync:        false,
		Data: DataConfig{
			File:       filepath.Join(DirName, TasksFileName),
			LegacyFile: LegacyTasksFileName,
		},
		Remote: RemoteConfig{
			Enabled:           false,
			RetryAttempts:     3,
			TimeoutMs:         30000,
			BaseDelayMs:       1000,
			MaxConcurrent:     4,
			MaxCostPerWindow:  100,
			CostWindowSeconds: 60,
			MaxRequestsPerDay: 5000,
			ColumnMapping:     DefaultColumnMapping(),
		},
	}
}

// DefaultColumnMapping maps internal task fields to remote column
// identifiers. Operators override it per board.
func DefaultColumnMapping() map[string]string {
	return map[string]string{
		"id":           "external_id",
		"title":        "name",
		"description":  "text_description",
		"status":       "status",
		"priority":     "priority",
		"dependencies": "text_dependencies",
		"details":      "text_details",
		"testStrategy": "text_test_strategy",
		"subtasks":     "json_subtasks",
	}
}

// Path returns the config file location under a project root.
func Path(root string) string {
	return filepath.Join(root, DirName, FileName)
}

// TasksPath returns the primary task document location under a project root.
func TasksPath(root string, cfg *Config) string {
	if cfg != nil && cfg.Data.File != "" {
		return filepath.Join(root, cfg.Data.File)
	}
	return filepath.Join(root, DirName, TasksFileName)
}

// LegacyTasksPath returns the read-only legacy task document location.
func LegacyTasksPath(root string, cfg *Config) string {
	if cfg != nil && cfg.Data.LegacyFile != "" {
		return filepath.Join(root, cfg.Data.LegacyFile)
	}
	return filepath.Join(root, LegacyTasksFileName)
}

var validate = validator.New()

// Load reads the project configuration with viper, applying defaults and
// TASKBRIDGE_* environment overrides. A missing file is a Configuration
// error; callers that can run unconfigured go through the classifier first.
func Load(root string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(Path(root))
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("version", def.Version)
	v.SetDefault("persistenceMode", string(def.PersistenceMode))
	v.SetDefault("autoSync", def.AutoSync)
	v.SetDefault("data.file", def.Data.File)
	v.SetDefault("data.legacyFile", def.Data.LegacyFile)
	v.SetDefault("remote.enabled", def.Remote.Enabled)
	v.SetDefault("remote.retryAttempts", def.Remote.RetryAttempts)
	v.SetDefault("remote.timeoutMs", def.Remote.TimeoutMs)
	v.SetDefault("remote.baseDelayMs", def.Remote.BaseDelayMs)
	v.SetDefault("remote.maxConcurrent", def.Remote.MaxConcurrent)
	v.SetDefault("remote.maxCostPerWindow", def.Remote.MaxCostPerWindow)
	v.SetDefault("remote.costWindowSeconds", def.Remote.CostWindowSeconds)
	v.SetDefault("remote.maxRequestsPerDay", def.Remote.MaxRequestsPerDay)

	if err := v.ReadInConfig(); err != nil {
		return nil, types.WrapError(types.KindConfiguration, err, fmt.Sprintf("cannot read %s", Path(root)))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, types.WrapError(types.KindConfiguration, err, "malformed configuration")
	}
	if len(cfg.Remote.ColumnMapping) == 0 {
		cfg.Remote.ColumnMapping = DefaultColumnMapping()
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, types.WrapError(types.KindConfiguration, err, "invalid configuration")
	}
	return &cfg, nil
}
