package repositories

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hftl-ims-research/wonder/internal/core/ports"
	"github.com/hftl-ims-research/wonder/internal/infrastructure/repositories/memory"
	redisrepo "github.com/hftl-ims-research/wonder/internal/infrastructure/repositories/redis"
	"github.com/hftl-ims-research/wonder/pkg/config"
)

// RepositoryFactory creates repositories with Redis-to-memory fallback.
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory connects to Redis when enabled; a failed connection
// degrades to memory repositories instead of refusing to start.
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	return factory, nil
}

// CreateDirectoryRepository creates the identity directory store.
func (f *RepositoryFactory) CreateDirectoryRepository() ports.DirectoryRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewDirectoryRepository(f.redisClient)
	}
	return memory.NewDirectoryRepository()
}

// Close releases the Redis connection if one was opened.
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return f.redisClient.Close()
	}
	return nil
}
