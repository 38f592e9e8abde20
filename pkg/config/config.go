package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort      string
	FirebaseProject string
	Environment     string

	// Broadcast layer: "memory" keeps fan-out in-process, "redis" goes
	// through Redis Pub/Sub so multiple API processes share one channel.
	BroadcastDriver string
	RedisAddr       string

	// A participant with no conversation activity inside this window is
	// treated as offline and gets an email notification on new messages.
	OfflineThreshold time.Duration

	TypingDebounce time.Duration
	TypingExpiry   time.Duration
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		FirebaseProject:  getEnv("FIREBASE_PROJECT_ID", ""),
		Environment:      getEnv("ENVIRONMENT", "development"),
		BroadcastDriver:  getEnv("BROADCAST_DRIVER", "memory"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		OfflineThreshold: time.Duration(getEnvAsInt64("OFFLINE_THRESHOLD_MINUTES", 5)) * time.Minute,
		TypingDebounce:   time.Duration(getEnvAsInt64("TYPING_DEBOUNCE_MS", 500)) * time.Millisecond,
		TypingExpiry:     time.Duration(getEnvAsInt64("TYPING_EXPIRY_SECONDS", 3)) * time.Second,
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}
