package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds everything the server reads from the environment.
type Config struct {
	Port        string
	DatabaseURL string
	CORSOrigin  string
	JWTSecret   string

	// Activity feed tunables.
	FeedWindow    time.Duration // recency window per source
	FeedSourceCap int           // max rows fetched per source before merging
}

// Load reads configuration from environment variables, falling back to
// sensible local-dev defaults. godotenv must already have been loaded
// by main before this is called.
func Load() *Config {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		CORSOrigin:    getEnv("CORS_ORIGIN", "*"),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		FeedWindow:    7 * 24 * time.Hour,
		FeedSourceCap: 50,
	}

	if days, err := strconv.Atoi(getEnv("FEED_WINDOW_DAYS", "7")); err == nil && days > 0 {
		cfg.FeedWindow = time.Duration(days) * 24 * time.Hour
	} else if err != nil {
		log.Printf("WARNING: invalid FEED_WINDOW_DAYS, using default 7: %v", err)
	}
	if n, err := strconv.Atoi(getEnv("FEED_SOURCE_CAP", "50")); err == nil && n > 0 {
		cfg.FeedSourceCap = n
	} else if err != nil {
		log.Printf("WARNING: invalid FEED_SOURCE_CAP, using default 50: %v", err)
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
