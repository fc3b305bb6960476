package config

import "os"

type JwtConfig struct {
	Secret string
}

// Enabled reports whether the admin API should require bearer tokens
func (c *JwtConfig) Enabled() bool {
	return c.Secret != ""
}

func NewJwtConfig() *JwtConfig {
	return &JwtConfig{
		Secret: os.Getenv("JWT_SECRET"),
	}
}
