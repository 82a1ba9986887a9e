// Package config loads frameunion settings from a YAML file and FRAMEUNION_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EngineArrow  = "arrow"
	EngineDuckDB = "duckdb"
)

type Config struct {
	Name   string   `mapstructure:"name"`
	Engine string   `mapstructure:"engine"`
	Inputs []string `mapstructure:"inputs"`

	Output struct {
		Path    string `mapstructure:"path"`
		Format  string `mapstructure:"format"`
		MaxRows int    `mapstructure:"max_rows"`
	} `mapstructure:"output"`

	Kafka struct {
		Brokers string   `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
		KeyBy   []string `mapstructure:"key_by"`
	} `mapstructure:"kafka"`

	DuckDB struct {
		MemoryLimitMB int64 `mapstructure:"memory_limit_mb"`
	} `mapstructure:"duckdb"`

	BatchSize       int           `mapstructure:"batch_size"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Load reads the config file at path, if any, and applies environment
// overrides such as FRAMEUNION_ENGINE or FRAMEUNION_OUTPUT_PATH.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FRAMEUNION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("name", "frameunion")
	v.SetDefault("engine", EngineArrow)
	v.SetDefault("inputs", []string{})
	v.SetDefault("output.path", "")
	v.SetDefault("output.format", "")
	v.SetDefault("output.max_rows", 20)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "")
	v.SetDefault("kafka.key_by", []string{})
	v.SetDefault("duckdb.memory_limit_mb", 256)
	v.SetDefault("batch_size", 0)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("shutdown_timeout", 30*time.Second)
}

// Validate checks the settings a run depends on.
func (c *Config) Validate() error {
	switch c.Engine {
	case EngineArrow, EngineDuckDB:
	default:
		return fmt.Errorf("unknown engine %q (want %s or %s)", c.Engine, EngineArrow, EngineDuckDB)
	}
	if len(c.Inputs) < 2 {
		return fmt.Errorf("at least two inputs are required, got %d", len(c.Inputs))
	}
	if c.Output.MaxRows < 0 {
		return fmt.Errorf("output.max_rows must not be negative")
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("batch_size must not be negative")
	}
	if c.DuckDB.MemoryLimitMB < 0 {
		return fmt.Errorf("duckdb.memory_limit_mb must not be negative")
	}
	if c.Kafka.Topic != "" && c.Kafka.Brokers == "" {
		return fmt.Errorf("kafka.brokers is required when kafka.topic is set")
	}
	return nil
}
