package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	CorsConfig
	CognitoConfig
	DojoConfig
	AuthConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetDatabaseURL() string
	GetRedisURL() string
	GetDataFolder() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Cognito
	Dojo
	Auth
	Security
}

func New() Config {
	return mainConfig{}
}

// LoadDotEnv loads a .env file into the process environment before any Config
// value is read. Missing files are fine outside local development, where the
// environment is injected by the deployment instead.
func LoadDotEnv() {
	envFile := os.Getenv("ENV_FILE_PATH")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		fmt.Printf("Note: .env file not found at %s. Using system environment variables.\n", envFile)
	}
}
