package helper

import (
	"os"
	"strconv"
)

// GetEnvAsInt reads an integer env var with a fallback default.
func GetEnvAsInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}
