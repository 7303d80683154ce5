// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // Lambda images may ship without zoneinfo

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the application.
type Config struct {
	// AWS
	AWSRegion string
	S3Bucket  string

	// Database
	DatabaseURLOverride string
	DBHost              string
	DBPort              int
	DBName              string
	DBUser              string
	DBPassword          string

	// Redis geo index (optional)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// SES
	SESSenderEmail string
	SupportEmail   string

	// Geocoding
	PhotonURL           string
	NominatimURL        string
	GeocoderCountry     string
	GeocoderCountryCode string
	GeocoderAgent       string
	GeocoderTimeout     time.Duration
	GeocoderFallback    time.Duration

	// Matching
	DefaultRadiusKm   float64
	MaxResults        int
	Timezone          string
	IncludeIneligible bool
	ScoringPolicyFile string

	// HTTP server
	Port        string
	CORSOrigins []string

	// Application
	Stage    string
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	_ = godotenv.Load()

	cfg := &Config{
		// AWS
		AWSRegion: getEnv("AWS_REGION", "ap-southeast-1"),
		S3Bucket:  getEnv("S3_BUCKET", "blood-alert-donors-dev"),

		// Database
		DatabaseURLOverride: getEnv("DATABASE_URL", ""),
		DBHost:              getEnv("DB_HOST", "localhost"),
		DBPort:              getEnvInt("DB_PORT", 5432),
		DBName:              getEnv("DB_NAME", "blood_alert"),
		DBUser:              getEnv("DB_USER", "postgres"),
		DBPassword:          getEnv("DB_PASSWORD", ""),

		// Redis
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		// SES
		SESSenderEmail: getEnv("SES_SENDER_EMAIL", ""),
		SupportEmail:   getEnv("SUPPORT_EMAIL", getEnv("SES_SENDER_EMAIL", "")),

		// Geocoding
		PhotonURL:           getEnv("PHOTON_URL", "https://photon.komoot.io/api/"),
		NominatimURL:        getEnv("NOMINATIM_URL", "https://nominatim.openstreetmap.org/search"),
		GeocoderCountry:     getEnv("GEOCODER_COUNTRY", "Vietnam"),
		GeocoderCountryCode: getEnv("GEOCODER_COUNTRY_CODE", "vn"),
		GeocoderAgent:       getEnv("GEOCODER_USER_AGENT", "BloodAlertEngine/1.0"),
		GeocoderTimeout:     getEnvDuration("GEOCODER_TIMEOUT", 10*time.Second),
		GeocoderFallback:    getEnvDuration("GEOCODER_FALLBACK_DELAY", time.Second),

		// Matching
		DefaultRadiusKm:   getEnvFloat("DEFAULT_RADIUS_KM", 10),
		MaxResults:        getEnvInt("MAX_RESULTS", 50),
		Timezone:          getEnv("TIMEZONE", "Asia/Ho_Chi_Minh"),
		IncludeIneligible: getEnvBool("INCLUDE_INELIGIBLE", true),
		ScoringPolicyFile: getEnv("SCORING_POLICY_FILE", ""),

		// HTTP server
		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"*"}),

		// Application
		Stage:    getEnv("STAGE", "dev"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if cfg.DefaultRadiusKm <= 0 {
		return nil, fmt.Errorf("DEFAULT_RADIUS_KM must be greater than zero, got %g", cfg.DefaultRadiusKm)
	}
	if cfg.MaxResults <= 0 {
		return nil, fmt.Errorf("MAX_RESULTS must be greater than zero, got %d", cfg.MaxResults)
	}

	return cfg, nil
}

// DatabaseURL returns the PostgreSQL connection string.
func (c *Config) DatabaseURL() string {
	if c.DatabaseURLOverride != "" {
		return c.DatabaseURLOverride
	}
	sslMode := "require" // Use SSL for RDS
	if c.DBHost == "localhost" || c.DBHost == "127.0.0.1" {
		sslMode = "disable" // Disable SSL for local development
	}
	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + strconv.Itoa(c.DBPort) + "/" + c.DBName + "?sslmode=" + sslMode
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as int or returns a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty entries.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
