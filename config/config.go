/*
Package config loads server settings.

SOURCES (highest precedence first):
  1. Command-line flags
  2. Environment variables (OBLIGATION_*), including a .env file in the
     working directory
  3. YAML file given with --config
  4. Defaults

YAML keys are flag names, with dashes or underscores:

    port: 8080
    sweep_interval: 30m
    allowed_origins: [http://localhost:5173]
*/
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ConfigFile kong.ConfigFlag `name:"config" help:"YAML configuration file." type:"path"`

	Port           int           `help:"HTTP listen port." default:"8080" env:"OBLIGATION_PORT"`
	DB             string        `name:"db" help:"SQLite database path. Use :memory: for an ephemeral store." default:"./data/obligations.db" env:"OBLIGATION_DB"`
	RemoteDSN      string        `name:"remote-dsn" help:"Postgres DSN for remote backup. Empty disables sync." env:"OBLIGATION_REMOTE_DSN"`
	MemoryRemote   bool          `name:"memory-remote" help:"Use an in-process remote (development only)." env:"OBLIGATION_MEMORY_REMOTE"`
	JWTSecret      string        `name:"jwt-secret" help:"HS256 secret for bearer tokens. Empty means local-only." env:"OBLIGATION_JWT_SECRET"`
	AllowedOrigins []string      `name:"allowed-origins" help:"CORS allowed origins." default:"*" env:"OBLIGATION_ALLOWED_ORIGINS"`
	SweepInterval  time.Duration `name:"sweep-interval" help:"Catch-up sweep interval. 0 disables the scheduler." default:"1h" env:"OBLIGATION_SWEEP_INTERVAL"`
	AutoBackup     bool          `name:"auto-backup" help:"Back up after every mutating request." env:"OBLIGATION_AUTO_BACKUP"`
	Debug          bool          `help:"Enable debug logging." env:"OBLIGATION_DEBUG"`
	LogDir         string        `name:"log-dir" help:"Directory for rotating log files. Empty logs to stderr only." env:"OBLIGATION_LOG_DIR"`
	StaticDir      string        `name:"static-dir" help:"Built frontend to serve at /." default:"./web/dist" env:"OBLIGATION_STATIC_DIR"`
}

// Validate is called by kong after parsing.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.SweepInterval < 0 {
		return errors.New("sweep interval cannot be negative")
	}
	if c.RemoteDSN != "" && c.MemoryRemote {
		return errors.New("--remote-dsn and --memory-remote are mutually exclusive")
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Load parses args (without the program name).
func Load(args []string) (*Config, error) {
	// A missing .env file is fine
	_ = godotenv.Load()

	var cfg Config
	parser, err := kong.New(&cfg,
		kong.Name("obligation-engine"),
		kong.Description("Prayer and fasting debt tracker API."),
		kong.UsageOnError(),
		kong.Configuration(YAMLLoader),
	)
	if err != nil {
		return nil, err
	}
	if _, err := parser.Parse(args); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// YAMLLoader is a kong configuration loader for flat YAML files.
func YAMLLoader(r io.Reader) (kong.Resolver, error) {
	values := map[string]any{}
	if err := yaml.NewDecoder(r).Decode(&values); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	var resolver kong.ResolverFunc = func(_ *kong.Context, _ *kong.Path, flag *kong.Flag) (any, error) {
		for _, key := range []string{flag.Name, strings.ReplaceAll(flag.Name, "-", "_")} {
			if v, ok := values[key]; ok {
				return v, nil
			}
		}
		return nil, nil
	}
	return resolver, nil
}
