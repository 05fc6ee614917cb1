package repository

import (
	"log"

	"github.com/navikt/meetcore/internal/config"
	"github.com/navikt/meetcore/internal/repository/memory"
	"github.com/navikt/meetcore/internal/repository/redis"
)

// NewRepository returns the Redis/Valkey repository when it is enabled and the
// in-memory repository otherwise
func NewRepository(cfg config.RedisConfig) (Repository, error) {
	if !cfg.Enabled {
		log.Println("Using in-memory repository")
		return memory.NewRepository(), nil
	}

	repo, err := redis.NewRepository(cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Using Redis/Valkey repository")
	return repo, nil
}
