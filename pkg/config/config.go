package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration.
type Config struct {
	LogLevel string

	// File interfaces.
	URLFile      string
	OutputFile   string
	LedgerFile   string
	ProgressFile string
	StatsFile    string
	DebugDir     string

	// Orchestration.
	Workers         int
	BatchSize       int
	MinWorkers      int
	MinBatchSize    int
	MaxAttempts     int
	RateLimitLimit  int // per-batch hits before halving concurrency
	AdjustPause     time.Duration
	PageLoadTimeout time.Duration
	RevealSettle    time.Duration

	// Adaptive delay.
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	DecayFactor   float64

	// Browser.
	Headless        bool
	EvadeFocusSteal bool
	UserAgent       string

	// CAPTCHA solver.
	SolverAPIKey    string
	SolverBaseURL   string
	SolverMaxPolls  int
	SolverPollDelay time.Duration

	// Finder.
	SearchURL   string
	MaxPages    int
	PagesPerMin int

	// Optional status/metrics endpoint; empty disables it.
	StatusAddr string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),

		URLFile:      getEnv("URL_FILE", "profile_urls.txt"),
		OutputFile:   getEnv("OUTPUT_FILE", "profile_data.csv"),
		LedgerFile:   getEnv("LEDGER_FILE", "scraped_urls.txt"),
		ProgressFile: getEnv("PROGRESS_FILE", "scraping_progress.json"),
		StatsFile:    getEnv("STATS_FILE", "scraper_stats.json"),
		DebugDir:     getEnv("DEBUG_DIR", ""),

		Workers:         getEnvAsInt("WORKERS", 4),
		BatchSize:       getEnvAsInt("BATCH_SIZE", 50),
		MinWorkers:      getEnvAsInt("MIN_WORKERS", 1),
		MinBatchSize:    getEnvAsInt("MIN_BATCH_SIZE", 5),
		MaxAttempts:     getEnvAsInt("MAX_ATTEMPTS", 3),
		RateLimitLimit:  getEnvAsInt("RATE_LIMIT_THRESHOLD", 5),
		AdjustPause:     getEnvAsDuration("ADJUST_PAUSE_SECONDS", 30) * time.Second,
		PageLoadTimeout: getEnvAsDuration("PAGE_LOAD_TIMEOUT_SECONDS", 60) * time.Second,
		RevealSettle:    getEnvAsDuration("REVEAL_SETTLE_MS", 500) * time.Millisecond,

		BaseDelay:     getEnvAsDuration("BASE_DELAY_MS", 2000) * time.Millisecond,
		MaxDelay:      getEnvAsDuration("MAX_DELAY_MS", 60000) * time.Millisecond,
		BackoffFactor: getEnvAsFloat("BACKOFF_FACTOR", 1.5),
		DecayFactor:   getEnvAsFloat("DECAY_FACTOR", 0.9),

		Headless:        getEnvAsBool("HEADLESS", true),
		EvadeFocusSteal: getEnvAsBool("EVADE_FOCUS_STEAL", true),
		UserAgent: getEnv("USER_AGENT",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),

		SolverAPIKey:    getEnv("SOLVER_API_KEY", ""),
		SolverBaseURL:   getEnv("SOLVER_BASE_URL", "https://api.2captcha.com"),
		SolverMaxPolls:  getEnvAsInt("SOLVER_MAX_POLLS", 15),
		SolverPollDelay: getEnvAsDuration("SOLVER_POLL_DELAY_SECONDS", 3) * time.Second,

		SearchURL:   getEnv("SEARCH_URL", ""),
		MaxPages:    getEnvAsInt("MAX_PAGES", 0),
		PagesPerMin: getEnvAsInt("PAGES_PER_MINUTE", 12),

		StatusAddr: getEnv("STATUS_ADDR", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback int) time.Duration {
	return time.Duration(getEnvAsInt(key, fallback))
}
