package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port                    string
	SwapDBHost              string
	SwapDBPort              string
	TargetingDBHost         string
	TargetingDBPort         string
	TargetingDBUser         string
	TargetingDBPass         string
	CacheHost               string
	CachePort               string
	JaegerAddress           string
	NotarizationEndpoint    string
	TransferEndpoint        string
	NotificationEndpoint    string
	SweeperInterval         time.Duration
	CompatibilityThreshold  float64
	NotarizationMaxAttempts int
}

func NewConfig() *Config {
	return &Config{
		Port:                    os.Getenv("SWAP_SERVICE_PORT"),
		SwapDBHost:              os.Getenv("SWAP_DB_HOST"),
		SwapDBPort:              os.Getenv("SWAP_DB_PORT"),
		TargetingDBHost:         os.Getenv("TARGETING_DB_HOST"),
		TargetingDBPort:         os.Getenv("TARGETING_DB_PORT"),
		TargetingDBUser:         os.Getenv("TARGETING_DB_USER"),
		TargetingDBPass:         os.Getenv("TARGETING_DB_PASS"),
		CacheHost:               os.Getenv("SWAP_CACHE_HOST"),
		CachePort:               os.Getenv("SWAP_CACHE_PORT"),
		JaegerAddress:           os.Getenv("JAEGER_ADDRESS"),
		NotarizationEndpoint:    os.Getenv("NOTARIZATION_SERVICE_ENDPOINT"),
		TransferEndpoint:        os.Getenv("TRANSFER_SERVICE_ENDPOINT"),
		NotificationEndpoint:    os.Getenv("NOTIFICATION_SERVICE_ENDPOINT"),
		SweeperInterval:         durationFromEnv("SWEEPER_INTERVAL_SECONDS", 5*time.Minute),
		CompatibilityThreshold:  floatFromEnv("COMPATIBILITY_THRESHOLD", 40),
		NotarizationMaxAttempts: intFromEnv("NOTARIZATION_MAX_ATTEMPTS", 3),
	}
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func floatFromEnv(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func intFromEnv(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
