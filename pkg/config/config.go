// Package config loads graphcore's runtime configuration from
// environment variables and an optional YAML file using spf13/viper,
// then validates the result with go-playground/validator — the same
// two-step "bind, then validate" shape the rest of the corpus favors
// over hand-rolled flag parsing.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds every environment-tunable setting graphcored needs to
// start: where to listen, how to reach Postgres/Redis/NATS, and the
// worker-queue/workflow timing knobs.
type Config struct {
	HTTPAddr        string        `mapstructure:"http_addr" validate:"required"`
	DatabaseURI     string        `mapstructure:"database_uri" validate:"required"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	NATSURL         string        `mapstructure:"nats_url"`
	MetricsAddr     string        `mapstructure:"metrics_addr" validate:"required"`
	MaxQueuedTasks  int           `mapstructure:"max_queued_tasks" validate:"gte=0"`
	TaskTimeout     time.Duration `mapstructure:"task_timeout" validate:"required,gt=0"`
	MaxTaskAttempts int           `mapstructure:"max_task_attempts" validate:"required,gte=1"`
	LogLevel        string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
}

// Default returns a Config with production-sane defaults, mirroring
// the teacher's DATABASE_URL-plus-defaults pattern in main.go but
// routed through viper so every field can also come from GRAPHCORE_*
// env vars or a YAML file.
func Default() Config {
	return Config{
		HTTPAddr:        ":8080",
		MetricsAddr:     ":9090",
		MaxQueuedTasks:  1000,
		TaskTimeout:     30 * time.Second,
		MaxTaskAttempts: 3,
		LogLevel:        "info",
	}
}

// Load reads configuration from environment variables prefixed
// GRAPHCORE_ and, if configFile is non-empty, merges in a YAML file
// (YAML values lose to environment variables, matching viper's normal
// precedence). Precedence lowest to highest: Default() < file < env.
func Load(configFile string) (Config, error) {
	v := viper.New()
	d := Default()
	v.SetDefault("http_addr", d.HTTPAddr)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("max_queued_tasks", d.MaxQueuedTasks)
	v.SetDefault("task_timeout", d.TaskTimeout)
	v.SetDefault("max_task_attempts", d.MaxTaskAttempts)
	v.SetDefault("log_level", d.LogLevel)

	v.SetEnvPrefix("graphcore")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
