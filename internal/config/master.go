package config

import (
	"os"
	"strconv"
)

type AppConfig struct {
	DebugMode      bool
	LogLevel       string
	AdminPort      int
	DelegatorCfg   *DelegatorCfg
	RedisConfig    *RedisConfig
	PostgresConfig *PostgresConfig
	MqttConfig     *MqttConfig
	JwtConfig      *JwtConfig
}

func NewSystemConfig() *AppConfig {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	adminPort, err := strconv.Atoi(os.Getenv("ADMIN_PORT"))
	if err != nil {
		adminPort = 0
	}

	return &AppConfig{
		DebugMode:      os.Getenv("DEBUG_MODE") == "true",
		LogLevel:       level,
		AdminPort:      adminPort,
		DelegatorCfg:   NewDelegatorCfg(),
		RedisConfig:    NewRedisConfig(),
		PostgresConfig: NewPostgresConfig(),
		MqttConfig:     NewMqttConfig(),
		JwtConfig:      NewJwtConfig(),
	}
}
