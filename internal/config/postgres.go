package config

import "os"

type PostgresConfig struct {
	Url string
}

// Enabled reports whether a database URL was configured
func (c *PostgresConfig) Enabled() bool {
	return c.Url != ""
}

func NewPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Url: os.Getenv("DATABASE_URL"),
	}
}
