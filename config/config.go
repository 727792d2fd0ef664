package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerHost   string
	ServerPort   string
	DatabasePath string
	APIUsername  string
	APIPassword  string
	HTTPTimeout  time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	host := os.Getenv("SERVER_HOST")
	if host == "" {
		host = "0.0.0.0"
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/calsync.db"
	}

	timeout := 30 * time.Second
	if v := os.Getenv("HTTP_TIMEOUT_SECS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("invalid HTTP_TIMEOUT_SECS: %q", v)
		}
		timeout = time.Duration(secs) * time.Second
	}

	return &Config{
		ServerHost:   host,
		ServerPort:   port,
		DatabasePath: dbPath,
		APIUsername:  os.Getenv("API_USERNAME"),
		APIPassword:  os.Getenv("API_PASSWORD"),
		HTTPTimeout:  timeout,
	}, nil
}

// AuthEnabled reports whether the API and private feed routes require
// HTTP Basic authentication.
func (c *Config) AuthEnabled() bool {
	return c.APIUsername != "" && c.APIPassword != ""
}
