package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerAddr     string
	DatabasePath   string
	AllowedOrigins []string

	// Stop detection policy. The window doubles as the dedup interval.
	StopWindowMinutes      int
	StopMinSamples         int
	StopMaxDistanceKM      float64
	StopMinDurationMinutes int

	// Default trailing window for stats, history and export queries.
	StatsDefaultHours int
}

func Load(envPath string) (Config, error) {
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	cfg := Config{
		ServerAddr:             ":8080",
		DatabasePath:           "tracker.db",
		AllowedOrigins:         []string{"*"},
		StopWindowMinutes:      10,
		StopMinSamples:         5,
		StopMaxDistanceKM:      0.05,
		StopMinDurationMinutes: 5,
		StatsDefaultHours:      24,
	}

	cfg.ServerAddr = getenv("SERVER_ADDR", cfg.ServerAddr)
	cfg.DatabasePath = getenv("DATABASE_PATH", cfg.DatabasePath)
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitAndTrim(v)
	}

	if v := os.Getenv("STOP_WINDOW_MINUTES"); v != "" {
		if err := parseInt(&cfg.StopWindowMinutes, v); err != nil {
			return Config{}, fmt.Errorf("STOP_WINDOW_MINUTES: %w", err)
		}
	}
	if v := os.Getenv("STOP_MIN_SAMPLES"); v != "" {
		if err := parseInt(&cfg.StopMinSamples, v); err != nil {
			return Config{}, fmt.Errorf("STOP_MIN_SAMPLES: %w", err)
		}
	}
	if v := os.Getenv("STOP_MAX_DISTANCE_KM"); v != "" {
		if err := parseFloat(&cfg.StopMaxDistanceKM, v); err != nil {
			return Config{}, fmt.Errorf("STOP_MAX_DISTANCE_KM: %w", err)
		}
	}
	if v := os.Getenv("STOP_MIN_DURATION_MINUTES"); v != "" {
		if err := parseInt(&cfg.StopMinDurationMinutes, v); err != nil {
			return Config{}, fmt.Errorf("STOP_MIN_DURATION_MINUTES: %w", err)
		}
	}
	if v := os.Getenv("STATS_DEFAULT_HOURS"); v != "" {
		if err := parseInt(&cfg.StatsDefaultHours, v); err != nil {
			return Config{}, fmt.Errorf("STATS_DEFAULT_HOURS: %w", err)
		}
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseInt(target *int, value string) error {
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	*target = parsed
	return nil
}

func parseFloat(target *float64, value string) error {
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return err
	}
	*target = parsed
	return nil
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	var out []string
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
