/*
Package config holds runtime configuration and the process logger.

SOURCES (later wins):
  1. Built-in defaults
  2. Command-line flags
  3. Environment variables, after an optional .env file is loaded

FLAGS / ENVIRONMENT:
  -port            PORT                    HTTP server port (default: 8080)
  -db              DB_PATH                 SQLite database path (default: payroll.db)
  -log-level       LOG_LEVEL               logrus level (default: info)
  -log-format      LOG_FORMAT              json | text (default: json)
  -tasks           TASKS_FILE              task catalog, JSON or YAML (default: standard catalog)
  -coop-group      COOP_GROUP              group id subtotaled as the cooperative
  -retry-interval  CASCADE_RETRY_INTERVAL  cascade retry period, 0 disables (default: 5m)
*/
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          int
	DBPath        string
	LogLevel      string
	LogFormat     string
	TasksFile     string
	CoopGroup     string
	RetryInterval time.Duration
}

func Default() Config {
	return Config{
		Port:          8080,
		DBPath:        "payroll.db",
		LogLevel:      "info",
		LogFormat:     "json",
		RetryInterval: 5 * time.Minute,
	}
}

// Load parses args (without the program name), then overlays the
// environment. A missing .env file is not an error.
func Load(args []string) (Config, error) {
	return load(args, ".env")
}

func load(args []string, envFile string) (Config, error) {
	cfg := Default()

	fset := flag.NewFlagSet("server", flag.ContinueOnError)
	fset.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	fset.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path (\":memory:\" for in-memory)")
	fset.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fset.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: json or text")
	fset.StringVar(&cfg.TasksFile, "tasks", cfg.TasksFile, "task catalog file (JSON or YAML)")
	fset.StringVar(&cfg.CoopGroup, "coop-group", cfg.CoopGroup, "group id subtotaled as the cooperative")
	fset.DurationVar(&cfg.RetryInterval, "retry-interval", cfg.RetryInterval, "incomplete cascade retry interval (0 disables)")
	if err := fset.Parse(args); err != nil {
		return cfg, err
	}

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load %s: %w", envFile, err)
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("PORT: %w", err)
		}
		cfg.Port = port
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("TASKS_FILE"); v != "" {
		cfg.TasksFile = v
	}
	if v := os.Getenv("COOP_GROUP"); v != "" {
		cfg.CoopGroup = v
	}
	if v := os.Getenv("CASCADE_RETRY_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("CASCADE_RETRY_INTERVAL: %w", err)
		}
		cfg.RetryInterval = d
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("port %d out of range", cfg.Port)
	}
	return cfg, nil
}
