// Package config loads the server configuration from file, environment and defaults.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/go-homedir"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"remotefs/logging"
)

const EnvPrefix = "REMOTEFS"

type Config struct {
	Listen string `mapstructure:"listen" validate:"required"`

	// AllowedPaths defaults to the home directory of the user running the server.
	AllowedPaths []string `mapstructure:"allowed_paths" validate:"required,min=1,dive,required"`
	AllowWrite   bool     `mapstructure:"allow_write"`
	AllowDelete  bool     `mapstructure:"allow_delete"`
	// MaxFileSize accepts sizes such as "10MiB" or plain byte counts.
	MaxFileSize ByteSize `mapstructure:"max_file_size" validate:"gt=0"`
	// IdleTimeout closes connections that send nothing for this long. Zero disables it.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"gte=0"`

	Auth    AuthConfig     `mapstructure:"auth"`
	Backend BackendConfig  `mapstructure:"backend"`
	Log     logging.Config `mapstructure:"log"`
	Metrics MetricsConfig  `mapstructure:"metrics"`
}

type AuthConfig struct {
	// JWTSecret enables token authentication when set.
	JWTSecret string `mapstructure:"jwt_secret"`
}

type BackendConfig struct {
	Type string     `mapstructure:"type" validate:"oneof=local sftp"`
	SFTP SFTPConfig `mapstructure:"sftp"`
}

type SFTPConfig struct {
	Host       string `mapstructure:"host" validate:"required_if=Enabled true"`
	Port       int    `mapstructure:"port" validate:"min=1,max=65535"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	KeyFile    string `mapstructure:"key_file"`
	KnownHosts string `mapstructure:"known_hosts"`

	// Enabled is derived from backend.type.
	Enabled bool `mapstructure:"-"`
}

func (c SFTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ByteSize is a size in bytes that decodes from human readable strings.
type ByteSize int64

func (b ByteSize) String() string {
	return units.BytesSize(float64(b))
}

// Load reads configPath when it is not empty, then applies REMOTEFS_* environment
// overrides and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (REMOTEFS_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()
	if err := setDefaults(v); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("configuration file not found: %s", configPath)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) error {
	home, err := homedir.Dir()
	if err != nil {
		return fmt.Errorf("failed to determine home directory: %w", err)
	}

	v.SetDefault("listen", ":8080")
	v.SetDefault("allowed_paths", []string{home})
	v.SetDefault("allow_write", false)
	v.SetDefault("allow_delete", false)
	v.SetDefault("max_file_size", "10MiB")
	v.SetDefault("idle_timeout", "0s")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("backend.type", "local")
	v.SetDefault("backend.sftp.host", "")
	v.SetDefault("backend.sftp.port", 22)
	v.SetDefault("backend.sftp.user", "")
	v.SetDefault("backend.sftp.password", "")
	v.SetDefault("backend.sftp.key_file", "")
	v.SetDefault("backend.sftp.known_hosts", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("metrics.enabled", true)
	return nil
}

// normalize expands ~ in configured paths.
func (c *Config) normalize() error {
	for i, p := range c.AllowedPaths {
		expanded, err := homedir.Expand(strings.TrimSpace(p))
		if err != nil {
			return fmt.Errorf("invalid allowed path %q: %w", p, err)
		}
		c.AllowedPaths[i] = expanded
	}

	if c.Backend.SFTP.KeyFile != "" {
		expanded, err := homedir.Expand(c.Backend.SFTP.KeyFile)
		if err != nil {
			return fmt.Errorf("invalid key file %q: %w", c.Backend.SFTP.KeyFile, err)
		}
		c.Backend.SFTP.KeyFile = expanded
	}
	c.Backend.SFTP.Enabled = c.Backend.Type == "sftp"
	return nil
}

var validate = validator.New()

// Validate checks cfg against its struct constraints.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	if cfg.Backend.SFTP.Enabled && cfg.Backend.SFTP.Password == "" && cfg.Backend.SFTP.KeyFile == "" {
		return fmt.Errorf("backend.sftp needs a password or a key_file")
	}
	return nil
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// byteSizeDecodeHook converts strings like "10MiB" and plain numbers to ByteSize.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			n, err := units.RAMInBytes(v)
			if err != nil {
				return nil, fmt.Errorf("invalid size %q: %w", v, err)
			}
			return ByteSize(n), nil
		case int:
			return ByteSize(v), nil
		case int64:
			return ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return ByteSize(v), nil
		default:
			return data, nil
		}
	}
}
