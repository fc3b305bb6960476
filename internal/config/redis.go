package config

import (
	"os"
	"strconv"
)

type RedisConfig struct {
	DB       int
	Url      string
	Password string
}

// Enabled reports whether a redis address was configured
func (c *RedisConfig) Enabled() bool {
	return c.Url != ""
}

func NewRedisConfig() *RedisConfig {
	db, err := strconv.Atoi(os.Getenv("REDIS_DB"))
	if err != nil {
		db = 0
	}
	return &RedisConfig{
		DB:       db,
		Url:      os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
	}
}
