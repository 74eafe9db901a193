package config

import (
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"runtime"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for the server.
type Config struct {
	// TokenPath is where the OAuth token record is persisted.
	TokenPath string `env:"GCHAT_TOKEN_PATH" envDefault:"token.json"`

	// CredentialsPath is the Google client secrets JSON file downloaded
	// from the Cloud Console.
	CredentialsPath string `env:"GCHAT_CREDENTIALS_PATH" envDefault:"credentials.json"`

	// ListenAddr is the HTTP listen address for the auth callback server
	// and the MCP endpoint.
	ListenAddr string `env:"GCHAT_LISTEN_ADDR" envDefault:":8000"`

	// RedirectURI overrides the OAuth redirect URI. When empty it is
	// derived from ListenAddr as http://localhost:<port>/auth/callback.
	RedirectURI string `env:"GCHAT_REDIRECT_URI"`

	// CompactMessages controls whether list_space_messages reshapes
	// results down to sender, time, text, and thread. Defaults to on.
	CompactMessages bool `env:"GCHAT_COMPACT_MESSAGES" envDefault:"true"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// LogLevel is the minimum slog level (debug, info, warn, error).
	LogLevel string `env:"GCHAT_LOG_LEVEL" envDefault:"info"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	// Resolve the token path to an absolute path at startup so later
	// chdir calls (or tools launched from other directories) cannot make
	// reads and writes go to different files.
	absToken, err := filepath.Abs(cfg.TokenPath)
	if err != nil {
		return nil, fmt.Errorf("resolving token path: %w", err)
	}
	cfg.TokenPath = absToken

	return cfg, nil
}

func (c *Config) validate() error {
	if c.TokenPath == "" {
		return fmt.Errorf("GCHAT_TOKEN_PATH must not be empty")
	}

	if c.CredentialsPath == "" {
		return fmt.Errorf("GCHAT_CREDENTIALS_PATH must not be empty")
	}

	if c.RedirectURI != "" {
		u, err := url.Parse(c.RedirectURI)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("GCHAT_REDIRECT_URI must be an absolute URL")
		}
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// DefaultRedirectURI derives the local callback URI from the listen
// address. A bare ":8000" listen address maps to localhost:8000.
func (c *Config) DefaultRedirectURI() string {
	if c.RedirectURI != "" {
		return c.RedirectURI
	}

	host, port, err := net.SplitHostPort(c.ListenAddr)
	if err != nil {
		return "http://localhost:8000/auth/callback"
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}

	return fmt.Sprintf("http://%s/auth/callback", net.JoinHostPort(host, port))
}
