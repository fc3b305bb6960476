package config

import (
	"fmt"

	"github.com/joho/godotenv"
)

// LoadEnvFile loads <environment>.env into the process environment. An empty
// environment name loads nothing.
func LoadEnvFile(environment string) error {
	if environment == "" {
		return nil
	}
	if err := godotenv.Load(environment + ".env"); err != nil {
		return fmt.Errorf("error loading %s.env file: %w", environment, err)
	}
	return nil
}
