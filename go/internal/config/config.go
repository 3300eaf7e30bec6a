// Package config loads client and dev server settings from an optional YAML
// file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mcdev12/wordgame/go/internal/game"
	"github.com/mcdev12/wordgame/go/internal/history"
	"github.com/mcdev12/wordgame/go/internal/notify/natspub"
	"github.com/mcdev12/wordgame/go/internal/remote"
	"github.com/mcdev12/wordgame/go/internal/remote/memserver"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string          `yaml:"log_level"`
	Server   ServerConfig    `yaml:"server"`
	Account  AccountConfig   `yaml:"account"`
	Game     GameConfig      `yaml:"game"`
	NATS     NATSConfig      `yaml:"nats"`
	Bridge   BridgeConfig    `yaml:"bridge"`
	History  HistoryConfig   `yaml:"history"`
	Dev      DevServerConfig `yaml:"dev_server"`
}

type ServerConfig struct {
	URL            string        `yaml:"url"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	RetryCount     int           `yaml:"retry_count"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
}

type AccountConfig struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	AutoRegister bool   `yaml:"auto_register"`
}

type GameConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxGuesses      int           `yaml:"max_guesses"`
	WinThreshold    int           `yaml:"win_threshold"`
	TransitionDelay time.Duration `yaml:"transition_delay"`
	MaxInitAttempts int           `yaml:"max_init_attempts"`
	RoundDuration   time.Duration `yaml:"round_duration"`
	WaitTime        time.Duration `yaml:"wait_time"`
	Words           []string      `yaml:"words"`
}

type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Stream  string `yaml:"stream"`
}

type BridgeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type HistoryConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Database history.Config `yaml:"database"`
}

type DevServerConfig struct {
	Port      string        `yaml:"port"`
	WaitTime  time.Duration `yaml:"wait_time"`
	RoundTime time.Duration `yaml:"round_time"`
	Words     []string      `yaml:"words"`
}

// Default returns the built-in settings.
func Default() Config {
	mm := game.DefaultConfig("").Matchmaking
	rc := game.DefaultConfig("").Round
	client := remote.DefaultClientConfig("http://localhost:8080")
	js := natspub.DefaultJetStreamConfig()
	dev := memserver.DefaultConfig()

	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			URL:            client.BaseURL,
			ConnectTimeout: client.ConnectTimeout,
			CallTimeout:    client.CallTimeout,
			RetryCount:     client.RetryCount,
			RetryBaseDelay: client.RetryBackoff.Base,
		},
		Game: GameConfig{
			PollInterval:    mm.PollInterval,
			MaxGuesses:      rc.MaxGuesses,
			WinThreshold:    rc.WinThreshold,
			TransitionDelay: rc.TransitionDelay,
			MaxInitAttempts: mm.MaxInitAttempts,
			RoundDuration:   rc.DefaultRoundTime,
			WaitTime:        mm.DefaultWaitTime,
		},
		NATS: NATSConfig{
			URL:    js.URL,
			Stream: js.StreamName,
		},
		Bridge: BridgeConfig{
			Addr: "localhost:8090",
		},
		History: HistoryConfig{
			Database: history.Config{
				Host:     "localhost",
				Port:     5432,
				User:     "postgres",
				Password: "postgres",
				Database: "wordgame",
				SSLMode:  "disable",
			},
		},
		Dev: DevServerConfig{
			Port:      "8080",
			WaitTime:  time.Duration(dev.WaitTimeSec) * time.Second,
			RoundTime: time.Duration(dev.RoundTimeSec) * time.Second,
		},
	}
}

// Load reads the YAML file at path, if any, on top of the defaults and then
// applies environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.Server.URL = getEnv("WORDGAME_SERVER_URL", c.Server.URL)
	c.Server.ConnectTimeout = getEnvAsDuration("WORDGAME_CONNECT_TIMEOUT", c.Server.ConnectTimeout)
	c.Server.CallTimeout = getEnvAsDuration("WORDGAME_CALL_TIMEOUT", c.Server.CallTimeout)
	c.Server.RetryCount = getEnvAsInt("WORDGAME_RETRY_COUNT", c.Server.RetryCount)
	c.Server.RetryBaseDelay = getEnvAsDuration("WORDGAME_RETRY_BASE_DELAY", c.Server.RetryBaseDelay)

	c.Account.Username = getEnv("WORDGAME_USERNAME", c.Account.Username)
	c.Account.Password = getEnv("WORDGAME_PASSWORD", c.Account.Password)
	c.Account.AutoRegister = getEnvAsBool("WORDGAME_AUTO_REGISTER", c.Account.AutoRegister)

	c.Game.PollInterval = getEnvAsDuration("POLL_INTERVAL", c.Game.PollInterval)
	c.Game.MaxGuesses = getEnvAsInt("MAX_GUESSES", c.Game.MaxGuesses)
	c.Game.WinThreshold = getEnvAsInt("WIN_THRESHOLD", c.Game.WinThreshold)
	c.Game.TransitionDelay = getEnvAsDuration("TRANSITION_DELAY", c.Game.TransitionDelay)
	c.Game.MaxInitAttempts = getEnvAsInt("MAX_INIT_ATTEMPTS", c.Game.MaxInitAttempts)
	c.Game.RoundDuration = getEnvAsDuration("ROUND_DURATION", c.Game.RoundDuration)
	c.Game.WaitTime = getEnvAsDuration("WAIT_TIME", c.Game.WaitTime)

	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.Enabled = getEnvAsBool("NATS_ENABLED", c.NATS.Enabled)

	c.Bridge.Addr = getEnv("UI_BRIDGE_ADDR", c.Bridge.Addr)
	c.Bridge.Enabled = getEnvAsBool("UI_BRIDGE_ENABLED", c.Bridge.Enabled)

	c.History.Enabled = getEnvAsBool("HISTORY_ENABLED", c.History.Enabled)
	db := &c.History.Database
	db.Host = getEnv("DB_HOST", db.Host)
	db.Port = getEnvAsInt("DB_PORT", db.Port)
	db.User = getEnv("DB_USER", db.User)
	db.Password = getEnv("DB_PASSWORD", db.Password)
	db.Database = getEnv("DB_NAME", db.Database)
	db.SSLMode = getEnv("DB_SSLMODE", db.SSLMode)

	c.Dev.Port = getEnv("PORT", c.Dev.Port)
	c.Dev.WaitTime = getEnvAsDuration("DEV_WAIT_TIME", c.Dev.WaitTime)
	c.Dev.RoundTime = getEnvAsDuration("DEV_ROUND_TIME", c.Dev.RoundTime)
}

// Validate rejects settings the game cannot run with.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server url is required")
	}
	if c.Game.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Game.MaxGuesses <= 0 {
		return fmt.Errorf("max guesses must be positive")
	}
	if c.Game.WinThreshold <= 0 {
		return fmt.Errorf("win threshold must be positive")
	}
	if c.Game.MaxInitAttempts <= 0 {
		return fmt.Errorf("max init attempts must be positive")
	}
	if c.Server.RetryCount < 0 {
		return fmt.Errorf("retry count must not be negative")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

// Level returns the configured log level, defaulting to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// GameFor returns the facade settings for username.
func (c *Config) GameFor(username string) game.Config {
	gc := game.DefaultConfig(username)
	gc.Words = c.Game.Words

	gc.Matchmaking.PollInterval = c.Game.PollInterval
	gc.Matchmaking.MaxInitAttempts = c.Game.MaxInitAttempts
	gc.Matchmaking.DefaultWaitTime = c.Game.WaitTime
	gc.Matchmaking.DefaultRoundTime = c.Game.RoundDuration

	gc.Round.MaxGuesses = c.Game.MaxGuesses
	gc.Round.WinThreshold = c.Game.WinThreshold
	gc.Round.TransitionDelay = c.Game.TransitionDelay
	gc.Round.DefaultRoundTime = c.Game.RoundDuration
	gc.Round.GameStatePollInterval = c.Game.PollInterval
	return gc
}

// ClientConfig returns the transport policy for the remote client.
func (c *Config) ClientConfig() remote.ClientConfig {
	cc := remote.DefaultClientConfig(c.Server.URL)
	cc.ConnectTimeout = c.Server.ConnectTimeout
	cc.CallTimeout = c.Server.CallTimeout
	cc.RetryCount = c.Server.RetryCount
	if c.Server.RetryBaseDelay > 0 {
		cc.RetryBackoff.Base = c.Server.RetryBaseDelay
	}
	return cc
}

// JetStream returns the event publisher settings.
func (c *Config) JetStream() natspub.JetStreamConfig {
	js := natspub.DefaultJetStreamConfig()
	js.URL = c.NATS.URL
	if c.NATS.Stream != "" {
		js.StreamName = c.NATS.Stream
	}
	return js
}

// DevServer returns the in-memory server settings.
func (c *Config) DevServer() memserver.Config {
	mc := memserver.DefaultConfig()
	if c.Dev.WaitTime > 0 {
		mc.WaitTimeSec = int(c.Dev.WaitTime / time.Second)
	}
	if c.Dev.RoundTime > 0 {
		mc.RoundTimeSec = int(c.Dev.RoundTime / time.Second)
	}
	mc.MaxGuesses = c.Game.MaxGuesses
	if len(c.Dev.Words) > 0 {
		mc.Words = c.Dev.Words
	}
	return mc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("1500ms") or whole seconds ("30").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
