// Package config loads the server configuration: defaults first, then the
// YAML file over them.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts "30s" style values in YAML; a bare integer is taken as
// seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std converts to the standard library type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Session SessionConfig `yaml:"session"`
	Limits  LimitsConfig  `yaml:"limits"`
	Log     LogConfig     `yaml:"log"`
	Chat    ChatConfig    `yaml:"chat"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// SessionConfig is the protocol behavior surface consumed by the session
// layer.
type SessionConfig struct {
	ActionField             string   `yaml:"action_field"`
	EventField              string   `yaml:"event_field"`
	SendAuthentication      bool     `yaml:"send_authentication"`
	SendCompletion          bool     `yaml:"send_completion"`
	SendBroadcastCompletion bool     `yaml:"send_broadcast_completion"`
	Camelize                bool     `yaml:"camelize"`
	LogExclude              []string `yaml:"log_exclude"`
}

type LimitsConfig struct {
	MaxMessageBytes int64    `yaml:"max_message_bytes"`
	SendBuffer      int      `yaml:"send_buffer"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	PongTimeout     Duration `yaml:"pong_timeout"`
	PingInterval    Duration `yaml:"ping_interval"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// ChatConfig feeds the demo chat domain: a static token table and the
// rooms that exist at startup.
type ChatConfig struct {
	Tokens map[string]ChatUser `yaml:"tokens"` // token -> user
	Rooms  []string            `yaml:"rooms"`
	Filter FilterConfig        `yaml:"filter"`
}

// FilterConfig tunes chat moderation. All fields default off.
type FilterConfig struct {
	MaskAuthors  bool     `yaml:"mask_authors"`
	BlockedWords []string `yaml:"blocked_words"`
	BlockedRooms []string `yaml:"blocked_rooms"` // glob patterns
}

type ChatUser struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Session: SessionConfig{
			ActionField:             "action",
			EventField:              "handler",
			SendAuthentication:      true,
			SendCompletion:          true,
			SendBroadcastCompletion: true,
			LogExclude:              []string{"ping", "pong"},
		},
		Limits: LimitsConfig{
			MaxMessageBytes: 64 * 1024,
			SendBuffer:      64,
			WriteTimeout:    Duration(10 * time.Second),
			PongTimeout:     Duration(60 * time.Second),
			PingInterval:    Duration(30 * time.Second),
		},
		Log: LogConfig{
			Level: "info",
		},
		Chat: ChatConfig{
			Rooms: []string{"lobby"},
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault returns pure defaults when the file does not exist. Other
// read or parse failures still error.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return defaultConfig(), nil
	}
	return cfg, err
}
