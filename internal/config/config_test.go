package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 10, cfg.Server.MaxParticipants)
	assert.Less(t, cfg.Server.PingPeriod, cfg.Server.PongWait, "pings must be sent before the pong deadline")
	assert.Equal(t, 16000, cfg.Transcription.SampleRate)
	assert.Equal(t, "en-US", cfg.Transcription.Language)
	assert.True(t, cfg.Transcription.InterimResults)
	assert.Equal(t, 1, cfg.Transcription.MaxAlternatives)
	assert.Equal(t, 300*time.Millisecond, cfg.Transcription.RestartBackoff)
	assert.False(t, cfg.Redis.Enabled)
	assert.Empty(t, cfg.NATS.URL)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MEETCORE_MAX_PARTICIPANTS", "4")
	t.Setenv("MEETCORE_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("TRANSCRIPTION_LANGUAGE", "nb-NO")
	t.Setenv("TRANSCRIPTION_RESTART_BACKOFF", "250")
	t.Setenv("TRANSCRIPTION_INTERIM_RESULTS", "false")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_HOST_MEETCORE", "valkey")
	t.Setenv("NATS_URL", "nats://hermes:4222")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 4, cfg.Server.MaxParticipants)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "nb-NO", cfg.Transcription.Language)
	assert.Equal(t, 250*time.Millisecond, cfg.Transcription.RestartBackoff)
	assert.False(t, cfg.Transcription.InterimResults)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "valkey", cfg.Redis.Host)
	assert.Equal(t, "nats://hermes:4222", cfg.NATS.URL)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meetcore.toml")
	content := `
[server]
port = "7070"
max_participants = 0
ping_period = "20s"

[transcription]
language = "sv-SE"
interim_results = false
restart_backoff = "500ms"

[nats]
url = "nats://localhost:4222"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := Defaults()
	require.NoError(t, LoadFile(cfg, path))

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, 0, cfg.Server.MaxParticipants, "explicit zero disables the cap")
	assert.Equal(t, 20*time.Second, cfg.Server.PingPeriod)
	assert.Equal(t, "sv-SE", cfg.Transcription.Language)
	assert.False(t, cfg.Transcription.InterimResults)
	assert.Equal(t, 500*time.Millisecond, cfg.Transcription.RestartBackoff)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	// Untouched values keep their defaults
	assert.Equal(t, 16000, cfg.Transcription.SampleRate)
}

func TestLoadFileInvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nping_period = \"soon\"\n"), 0o600))

	err := LoadFile(Defaults(), path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.ping_period")
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "1m")
	assert.Equal(t, time.Minute, getEnvDuration("TEST_DURATION", time.Second))

	t.Setenv("TEST_DURATION", "1500")
	assert.Equal(t, 1500*time.Millisecond, getEnvDuration("TEST_DURATION", time.Second))

	t.Setenv("TEST_DURATION", "later")
	assert.Equal(t, time.Second, getEnvDuration("TEST_DURATION", time.Second))
}
