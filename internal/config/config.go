// Package config loads application configuration from environment variables.
package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	GitHubToken    string
	GitHubUsername string
	ListenAddr     string
	DBPath         string
}

// HasGitHubCredentials returns true when both GitHubToken and GitHubUsername
// are non-empty. The composition root initializes the session only when both
// are present; otherwise the app starts with fetches inactive.
func (c *Config) HasGitHubCredentials() bool {
	return c.GitHubToken != "" && c.GitHubUsername != ""
}

// Load reads configuration from the environment, after loading a .env file if
// one exists. GitHub credentials (NBCRHUB_GITHUB_TOKEN,
// NBCRHUB_GITHUB_USERNAME) are optional; without them the app starts but
// every fetch is a no-op. Optional variables with defaults:
// NBCRHUB_LISTEN_ADDR (127.0.0.1:8080), NBCRHUB_DB_PATH (nbcrhub.db).
func Load() *Config {
	_ = godotenv.Load()

	listenAddr := "127.0.0.1:8080"
	if v, ok := os.LookupEnv("NBCRHUB_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	dbPath := "nbcrhub.db"
	if v, ok := os.LookupEnv("NBCRHUB_DB_PATH"); ok {
		dbPath = v
	}

	return &Config{
		GitHubToken:    os.Getenv("NBCRHUB_GITHUB_TOKEN"),
		GitHubUsername: os.Getenv("NBCRHUB_GITHUB_USERNAME"),
		ListenAddr:     listenAddr,
		DBPath:         dbPath,
	}
}
