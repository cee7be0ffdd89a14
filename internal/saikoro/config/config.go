// Package config loads Saikoro's configuration.
//
// Values come from three layers, later ones winning: built-in defaults, an
// optional YAML file validated against an embedded JSON Schema, and
// SAIKORO_* environment variables.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/bdobrica/Saikoro/common/redact"
)

//go:embed config.schema.json
var schemaJSON []byte

const schemaURL = "config.schema.json"

// ErrInvalid wraps every configuration validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full runtime configuration.
type Config struct {
	LogLevel      string        `yaml:"log_level" env:"SAIKORO_LOG_LEVEL"`
	LogFormat     string        `yaml:"log_format" env:"SAIKORO_LOG_FORMAT"`
	DatabasePath  string        `yaml:"database_path" env:"SAIKORO_DATABASE_PATH"`
	HTTPAddr      string        `yaml:"http_addr" env:"SAIKORO_HTTP_ADDR"`
	SessionWindow time.Duration `yaml:"session_window" env:"SAIKORO_SESSION_WINDOW"`

	Matrix  MatrixConfig  `yaml:"matrix" envPrefix:"SAIKORO_MATRIX_"`
	Discord DiscordConfig `yaml:"discord" envPrefix:"SAIKORO_DISCORD_"`
}

// MatrixConfig configures the Matrix transport.
type MatrixConfig struct {
	Enabled     bool          `yaml:"enabled" env:"ENABLED"`
	Homeserver  string        `yaml:"homeserver" env:"HOMESERVER"`
	UserID      string        `yaml:"user_id" env:"USER_ID"`
	AccessToken redact.Secret `yaml:"access_token" env:"ACCESS_TOKEN"`
	DeviceID    string        `yaml:"device_id" env:"DEVICE_ID"`
	// Prefix starts every command, e.g. "!dice roll 2d6".
	Prefix string `yaml:"prefix" env:"PREFIX"`
	// AllowedRooms limits the rooms the bot answers in; empty means any
	// room it has joined.
	AllowedRooms []string `yaml:"allowed_rooms" env:"ALLOWED_ROOMS" envSeparator:","`
	// AuditRoom receives a notice for every finished roll when set.
	AuditRoom string `yaml:"audit_room" env:"AUDIT_ROOM"`
}

// DiscordConfig configures the Discord transport.
type DiscordConfig struct {
	Enabled bool          `yaml:"enabled" env:"ENABLED"`
	Token   redact.Secret `yaml:"token" env:"TOKEN"`
	// GuildID registers the slash command in one guild (instant update)
	// instead of globally.
	GuildID     string `yaml:"guild_id" env:"GUILD_ID"`
	CommandName string `yaml:"command_name" env:"COMMAND_NAME"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		LogLevel:      "info",
		LogFormat:     "text",
		DatabasePath:  "saikoro.db",
		SessionWindow: 60 * time.Second,
		Matrix: MatrixConfig{
			Prefix: "!dice",
		},
		Discord: DiscordConfig{
			CommandName: "roll",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and the process environment.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, nil)
}

// LoadWithEnv is Load with an explicit environment; nil means os.Environ.
func LoadWithEnv(path string, environ map[string]string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := decodeFile(data, cfg); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeFile validates raw YAML against the schema and decodes it onto cfg.
func decodeFile(data []byte, cfg *Config) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	if doc == nil {
		return nil // empty file
	}
	if err := validateSchema(doc); err != nil {
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

func compileSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("load config schema: %w", err)
	}
	return c.Compile(schemaURL)
}

// validateSchema checks a decoded YAML document against the embedded schema.
// The document goes through JSON first so numbers and maps have the shapes
// the validator expects.
func validateSchema(doc any) error {
	schema, err := compileSchema()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Validate checks cross-field rules the schema cannot express, after all
// layers are applied.
func (c *Config) Validate() error {
	var problems []string
	if c.SessionWindow <= 0 {
		problems = append(problems, "session_window must be positive")
	}
	if c.DatabasePath == "" {
		problems = append(problems, "database_path is required")
	}
	if !c.Matrix.Enabled && !c.Discord.Enabled {
		problems = append(problems, "enable at least one of matrix or discord")
	}
	if c.Matrix.Enabled {
		if c.Matrix.Homeserver == "" {
			problems = append(problems, "matrix.homeserver is required")
		}
		if c.Matrix.UserID == "" {
			problems = append(problems, "matrix.user_id is required")
		}
		if c.Matrix.AccessToken.IsZero() {
			problems = append(problems, "matrix.access_token is required")
		}
		if strings.TrimSpace(c.Matrix.Prefix) == "" || strings.ContainsAny(c.Matrix.Prefix, " \t") {
			problems = append(problems, "matrix.prefix must be a single word")
		}
	}
	if c.Discord.Enabled {
		if c.Discord.Token.IsZero() {
			problems = append(problems, "discord.token is required")
		}
		if c.Discord.CommandName == "" {
			problems = append(problems, "discord.command_name is required")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// LogValue implements slog.LogValuer with the non-secret settings.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("log_level", c.LogLevel),
		slog.String("database_path", c.DatabasePath),
		slog.String("http_addr", c.HTTPAddr),
		slog.Duration("session_window", c.SessionWindow),
		slog.Bool("matrix", c.Matrix.Enabled),
		slog.String("matrix_user", c.Matrix.UserID),
		slog.Bool("discord", c.Discord.Enabled),
		slog.String("discord_guild", c.Discord.GuildID),
	)
}
