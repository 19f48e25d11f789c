package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration values.
type Config struct {
	// APIBaseURL is the external pharmacy API the dashboard talks to.
	APIBaseURL     string
	HTTPPort       string
	APIHTTPPort    string
	Secret         string
	DatabaseDSN    string
	SeedCSV        string
	SessionCookie  string
	RequestTimeout time.Duration

	MedicationsPath string
	ClientsPath     string
	SalesPath       string
	LoginPath       string

	BootstrapEmail    string
	BootstrapPassword string
}

// Load reads configuration from environment variables with reasonable defaults.
func Load() Config {
	cfg := Config{
		APIBaseURL:        strings.TrimRight(getenv("API_BASE_URL", "http://localhost:8081"), "/"),
		HTTPPort:          port("HTTP_PORT", "8080"),
		APIHTTPPort:       port("API_HTTP_PORT", "8081"),
		Secret:            getenv("SECRET", "dev_secret"),
		DatabaseDSN:       getenv("DATABASE_DSN", "file:farmacia.db?_pragma=foreign_keys(1)"),
		SeedCSV:           getenv("SEED_CSV", "assets/medicamentos.csv"),
		SessionCookie:     getenv("SESSION_COOKIE", "farmacia_session"),
		RequestTimeout:    10 * time.Second,
		MedicationsPath:   getenv("MEDICATIONS_PATH", "/medicamentos"),
		ClientsPath:       getenv("CLIENTS_PATH", "/clientes"),
		SalesPath:         getenv("SALES_PATH", "/ventas"),
		LoginPath:         getenv("LOGIN_PATH", "/auth/login"),
		BootstrapEmail:    os.Getenv("BOOTSTRAP_EMAIL"),
		BootstrapPassword: os.Getenv("BOOTSTRAP_PASSWORD"),
	}

	if raw := os.Getenv("REQUEST_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			log.Printf("invalid REQUEST_TIMEOUT value %q, defaulting to %s", raw, cfg.RequestTimeout)
		} else {
			cfg.RequestTimeout = d
		}
	}

	return cfg
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// port validates that the value is numeric.
func port(key, fallback string) string {
	p := getenv(key, fallback)
	if _, err := strconv.Atoi(p); err != nil {
		log.Printf("invalid %s value %q, defaulting to %s", key, p, fallback)
		return fallback
	}
	return p
}
