package repository

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navikt/meetcore/internal/config"
	"github.com/navikt/meetcore/internal/repository/memory"
	"github.com/navikt/meetcore/internal/repository/redis"
)

func TestNewRepositorySelectsBackend(t *testing.T) {
	repo, err := NewRepository(config.RedisConfig{})
	require.NoError(t, err)
	assert.IsType(t, &memory.Repository{}, repo)

	mr := miniredis.RunT(t)
	repo, err = NewRepository(config.RedisConfig{Enabled: true, Host: mr.Host(), Port: mr.Port(), KeyPrefix: "test:"})
	require.NoError(t, err)
	defer repo.Close()
	assert.IsType(t, &redis.Repository{}, repo)
	assert.NoError(t, repo.Ping(context.Background()))
}

func TestNewRepositoryUnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port := mr.Host(), mr.Port()
	mr.Close()

	_, err := NewRepository(config.RedisConfig{Enabled: true, Host: host, Port: port})
	assert.Error(t, err)
}
