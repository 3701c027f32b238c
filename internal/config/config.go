package config

import (
	"os"
	"time"
)

type Config struct {
	DB_USERNAME string
	DB_PASSWORD string
	DB_HOST     string
	DB_PORT     string
	DB_NAME     string
	DISABLE_TLS string

	HTTP_ADDR string

	// Secret used to sign first-party access tokens.
	JWT_SECRET string

	// Base URL used when building password-reset / first-access links.
	BASE_URL string

	// AMQP broker for outbound notifications. Empty disables dispatch.
	AMQP_URL       string
	NOTIFY_ROUTING string

	PASSWORD_RESET_TTL time.Duration
	FIRST_ACCESS_TTL   time.Duration
}

func ReadConfig() *Config {
	return &Config{
		DB_USERNAME: os.Getenv("DB_USERNAME"),
		DB_PASSWORD: os.Getenv("DB_PASSWORD"),
		DB_HOST:     os.Getenv("DB_HOST"),
		DB_PORT:     os.Getenv("DB_PORT"),
		DB_NAME:     os.Getenv("DB_NAME"),
		DISABLE_TLS: os.Getenv("DISABLE_TLS"),

		HTTP_ADDR: GetEnvOrDefault("HTTP_ADDR", "0.0.0.0:6060"),

		JWT_SECRET: os.Getenv("JWT_SECRET"),

		BASE_URL: GetEnvOrDefault("BASE_URL", "http://localhost:3000"),

		AMQP_URL:       os.Getenv("AMQP_URL"),
		NOTIFY_ROUTING: GetEnvOrDefault("NOTIFY_ROUTING", "backoffice.notifications"),

		PASSWORD_RESET_TTL: getDurationOrDefault("PASSWORD_RESET_TTL", time.Hour),
		FIRST_ACCESS_TTL:   getDurationOrDefault("FIRST_ACCESS_TTL", 7*24*time.Hour),
	}
}

func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
