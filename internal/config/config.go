// Package config loads thingpad settings from an optional YAML file and
// THINGPAD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Eval     EvalConfig     `mapstructure:"eval"`
	Surface  SurfaceConfig  `mapstructure:"surface"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// EvalConfig bounds widget evaluation.
type EvalConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// SurfaceConfig caps canvas dimensions.
type SurfaceConfig struct {
	MaxWidth  int `mapstructure:"max_width"`
	MaxHeight int `mapstructure:"max_height"`
}

// ServerConfig holds live server settings.
type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

// LogConfig selects log level and format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	return validation.Errors{
		"database": validation.ValidateStruct(&c.Database,
			validation.Field(&c.Database.Path, validation.Required),
		),
		"eval": validation.ValidateStruct(&c.Eval,
			validation.Field(&c.Eval.Timeout, validation.Min(time.Duration(0))),
		),
		"surface": validation.ValidateStruct(&c.Surface,
			validation.Field(&c.Surface.MaxWidth, validation.Required, validation.Min(1), validation.Max(16384)),
			validation.Field(&c.Surface.MaxHeight, validation.Required, validation.Min(1), validation.Max(16384)),
		),
		"server": validation.ValidateStruct(&c.Server,
			validation.Field(&c.Server.Addr, validation.Required),
			validation.Field(&c.Server.Namespace, validation.Required),
		),
		"log": validation.ValidateStruct(&c.Log,
			validation.Field(&c.Log.Level, validation.In("trace", "debug", "info", "warn", "error")),
			validation.Field(&c.Log.Format, validation.In("console", "json", "pretty")),
		),
	}.Filter()
}

// Load reads configuration from file and env. path wins over THINGPAD_CONFIG;
// with neither, thingpad.yaml is looked up in the working directory and the
// user config directory. A missing file is not an error unless it was named
// explicitly.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("database.path", "thingpad.db")
	v.SetDefault("eval.timeout", "5s")
	v.SetDefault("surface.max_width", 4096)
	v.SetDefault("surface.max_height", 4096)
	v.SetDefault("server.addr", "localhost:5000")
	v.SetDefault("server.namespace", "default")
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")

	v.SetConfigType("yaml")
	if path == "" {
		path = os.Getenv("THINGPAD_CONFIG")
	}
	explicit := path != ""
	if explicit {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("thingpad")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "thingpad"))
		}
	}

	v.SetEnvPrefix("THINGPAD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: read: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: invalid: %w", err)
	}
	return c, nil
}
