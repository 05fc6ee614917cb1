// Package config provides configuration management for the application
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// ServerConfig holds signaling relay and HTTP server configuration
type ServerConfig struct {
	Port            string
	MaxParticipants int // 0 means unlimited
	SendBufferSize  int // outbound frames queued per connection before it is dropped
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	MaxMessageSize  int64
	AllowedOrigins  []string // empty allows any origin
	// SessionIdleTimeout ends transcription sessions that stop sending chunks (0 disables)
	SessionIdleTimeout time.Duration
}

// RedisConfig holds Redis/Valkey configuration
type RedisConfig struct {
	Enabled bool
	// URI is prioritized if provided, otherwise individual connection parameters are used
	URI       string
	Host      string
	Port      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
	// TTL for transcription session records (0 means no expiration)
	SessionTTL time.Duration
}

// NATSConfig holds the analysis hand-off configuration
type NATSConfig struct {
	URL           string // empty disables NATS and utterances are logged instead
	SubjectPrefix string
	Name          string
}

// TranscriptionConfig holds default recognizer settings and restart policy
type TranscriptionConfig struct {
	SampleRate      int
	Language        string
	InterimResults  bool
	MaxAlternatives int
	RestartBackoff  time.Duration
}

// ClientConfig holds settings for commands talking to a running server
type ClientConfig struct {
	ServerURL string
	Timeout   time.Duration
}

// Config is the complete application configuration
type Config struct {
	Server        ServerConfig
	Redis         RedisConfig
	NATS          NATSConfig
	Transcription TranscriptionConfig
	Client        ClientConfig
}

// fileConfig mirrors the optional TOML file. Durations are strings like "300ms".
type fileConfig struct {
	Server struct {
		Port               string   `toml:"port"`
		MaxParticipants    *int     `toml:"max_participants"`
		SendBufferSize     int      `toml:"send_buffer_size"`
		PingPeriod         string   `toml:"ping_period"`
		PongWait           string   `toml:"pong_wait"`
		WriteWait          string   `toml:"write_wait"`
		MaxMessageSize     int64    `toml:"max_message_size"`
		AllowedOrigins     []string `toml:"allowed_origins"`
		SessionIdleTimeout string   `toml:"session_idle_timeout"`
	} `toml:"server"`
	Redis struct {
		Enabled   *bool  `toml:"enabled"`
		URI       string `toml:"uri"`
		Host      string `toml:"host"`
		Port      string `toml:"port"`
		KeyPrefix string `toml:"key_prefix"`
		DB        int    `toml:"db"`
	} `toml:"redis"`
	NATS struct {
		URL           string `toml:"url"`
		SubjectPrefix string `toml:"subject_prefix"`
	} `toml:"nats"`
	Transcription struct {
		SampleRate      int    `toml:"sample_rate"`
		Language        string `toml:"language"`
		InterimResults  *bool  `toml:"interim_results"`
		MaxAlternatives int    `toml:"max_alternatives"`
		RestartBackoff  string `toml:"restart_backoff"`
	} `toml:"transcription"`
	Client struct {
		ServerURL string `toml:"server_url"`
		Timeout   string `toml:"timeout"`
	} `toml:"client"`
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               "8080",
			MaxParticipants:    10,
			SendBufferSize:     64,
			WriteWait:          10 * time.Second,
			PongWait:           60 * time.Second,
			PingPeriod:         54 * time.Second,
			MaxMessageSize:     64 * 1024,
			SessionIdleTimeout: 30 * time.Minute,
		},
		Redis: RedisConfig{
			Host:       "localhost",
			Port:       "6379",
			KeyPrefix:  "meetcore:",
			SessionTTL: 24 * time.Hour,
		},
		NATS: NATSConfig{
			SubjectPrefix: "meetcore.transcript",
			Name:          "meetcore",
		},
		Transcription: TranscriptionConfig{
			SampleRate:      16000,
			Language:        "en-US",
			InterimResults:  true,
			MaxAlternatives: 1,
			RestartBackoff:  300 * time.Millisecond,
		},
		Client: ClientConfig{
			ServerURL: "http://localhost:8080",
			Timeout:   10 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, an optional .env file, an optional
// TOML file named by MEETCORE_CONFIG, and finally environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := Defaults()

	if path := os.Getenv("MEETCORE_CONFIG"); path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// LoadFile overlays the TOML file at path onto cfg
func LoadFile(cfg *Config, path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.Server.Port != "" {
		cfg.Server.Port = fc.Server.Port
	}
	if fc.Server.MaxParticipants != nil {
		cfg.Server.MaxParticipants = *fc.Server.MaxParticipants
	}
	if fc.Server.SendBufferSize > 0 {
		cfg.Server.SendBufferSize = fc.Server.SendBufferSize
	}
	if fc.Server.MaxMessageSize > 0 {
		cfg.Server.MaxMessageSize = fc.Server.MaxMessageSize
	}
	if len(fc.Server.AllowedOrigins) > 0 {
		cfg.Server.AllowedOrigins = fc.Server.AllowedOrigins
	}
	durations := []struct {
		raw    string
		target *time.Duration
		name   string
	}{
		{fc.Server.PingPeriod, &cfg.Server.PingPeriod, "server.ping_period"},
		{fc.Server.PongWait, &cfg.Server.PongWait, "server.pong_wait"},
		{fc.Server.WriteWait, &cfg.Server.WriteWait, "server.write_wait"},
		{fc.Server.SessionIdleTimeout, &cfg.Server.SessionIdleTimeout, "server.session_idle_timeout"},
		{fc.Transcription.RestartBackoff, &cfg.Transcription.RestartBackoff, "transcription.restart_backoff"},
		{fc.Client.Timeout, &cfg.Client.Timeout, "client.timeout"},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", d.name, err)
		}
		*d.target = parsed
	}

	if fc.Redis.Enabled != nil {
		cfg.Redis.Enabled = *fc.Redis.Enabled
	}
	if fc.Redis.URI != "" {
		cfg.Redis.URI = fc.Redis.URI
	}
	if fc.Redis.Host != "" {
		cfg.Redis.Host = fc.Redis.Host
	}
	if fc.Redis.Port != "" {
		cfg.Redis.Port = fc.Redis.Port
	}
	if fc.Redis.KeyPrefix != "" {
		cfg.Redis.KeyPrefix = fc.Redis.KeyPrefix
	}
	if fc.Redis.DB > 0 {
		cfg.Redis.DB = fc.Redis.DB
	}

	if fc.NATS.URL != "" {
		cfg.NATS.URL = fc.NATS.URL
	}
	if fc.NATS.SubjectPrefix != "" {
		cfg.NATS.SubjectPrefix = fc.NATS.SubjectPrefix
	}

	if fc.Transcription.SampleRate > 0 {
		cfg.Transcription.SampleRate = fc.Transcription.SampleRate
	}
	if fc.Transcription.Language != "" {
		cfg.Transcription.Language = fc.Transcription.Language
	}
	if fc.Transcription.InterimResults != nil {
		cfg.Transcription.InterimResults = *fc.Transcription.InterimResults
	}
	if fc.Transcription.MaxAlternatives > 0 {
		cfg.Transcription.MaxAlternatives = fc.Transcription.MaxAlternatives
	}

	if fc.Client.ServerURL != "" {
		cfg.Client.ServerURL = fc.Client.ServerURL
	}

	return nil
}

// applyEnv overrides cfg with environment variables; current values act as defaults
func applyEnv(cfg *Config) {
	s := &cfg.Server
	s.Port = getEnv("PORT", s.Port)
	s.MaxParticipants = getEnvInt("MEETCORE_MAX_PARTICIPANTS", s.MaxParticipants)
	s.SendBufferSize = getEnvInt("MEETCORE_SEND_BUFFER_SIZE", s.SendBufferSize)
	s.PingPeriod = getEnvDuration("MEETCORE_PING_PERIOD", s.PingPeriod)
	s.PongWait = getEnvDuration("MEETCORE_PONG_WAIT", s.PongWait)
	s.WriteWait = getEnvDuration("MEETCORE_WRITE_WAIT", s.WriteWait)
	s.SessionIdleTimeout = getEnvDuration("MEETCORE_SESSION_IDLE_TIMEOUT", s.SessionIdleTimeout)
	if origins := getEnv("MEETCORE_ALLOWED_ORIGINS", ""); origins != "" {
		s.AllowedOrigins = splitList(origins)
	}

	cfg.Redis = GetRedisConfig(cfg.Redis)

	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", cfg.NATS.SubjectPrefix)

	t := &cfg.Transcription
	t.SampleRate = getEnvInt("TRANSCRIPTION_SAMPLE_RATE", t.SampleRate)
	t.Language = getEnv("TRANSCRIPTION_LANGUAGE", t.Language)
	t.InterimResults = getEnvBool("TRANSCRIPTION_INTERIM_RESULTS", t.InterimResults)
	t.MaxAlternatives = getEnvInt("TRANSCRIPTION_MAX_ALTERNATIVES", t.MaxAlternatives)
	t.RestartBackoff = getEnvDuration("TRANSCRIPTION_RESTART_BACKOFF", t.RestartBackoff)

	cfg.Client.ServerURL = getEnv("MEETCORE_SERVER_URL", cfg.Client.ServerURL)
	cfg.Client.Timeout = getEnvDuration("MEETCORE_CLIENT_TIMEOUT", cfg.Client.Timeout)
}

// GetRedisConfig loads Redis/Valkey configuration from environment variables on top of base
func GetRedisConfig(base RedisConfig) RedisConfig {
	ttlHours := getEnvInt("REDIS_SESSION_TTL_HOURS", int(base.SessionTTL/time.Hour))

	return RedisConfig{
		Enabled:    getEnvBool("REDIS_ENABLED", base.Enabled),
		URI:        getEnv("REDIS_URI_MEETCORE", base.URI),
		Host:       getEnv("REDIS_HOST_MEETCORE", getEnv("REDIS_ADDRESS", base.Host)),
		Port:       getEnv("REDIS_PORT_MEETCORE", base.Port),
		Username:   getEnv("REDIS_USERNAME_MEETCORE", base.Username),
		Password:   getEnv("REDIS_PASSWORD_MEETCORE", getEnv("REDIS_PASSWORD", base.Password)),
		DB:         getEnvInt("REDIS_DB", base.DB),
		KeyPrefix:  getEnv("REDIS_KEY_PREFIX", base.KeyPrefix),
		SessionTTL: time.Duration(ttlHours) * time.Hour,
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvBool retrieves a boolean environment variable
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// getEnvDuration accepts Go duration strings ("300ms") or plain milliseconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
