package router

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/redis"

	"github.com/Abdullah2434/backend/internal/pkg/config"
)

// NewLimiterStorage shares rate limit counters between instances through
// the cache server, using database 1 (locks use DB 0).
func NewLimiterStorage(cfg config.Cache) (fiber.Storage, error) {
	port, err := strconv.Atoi(cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("cache port %q: %w", cfg.Port, err)
	}
	return redis.New(redis.Config{
		Host:     cfg.Host,
		Port:     port,
		Password: cfg.Password,
		Database: 1,
		Reset:    false,
	}), nil
}
