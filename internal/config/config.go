package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration values.
type Config struct {
	Secret      string
	DatabaseDSN string
	HTTPPort    string

	LogLevel  string
	LogFormat string

	KafkaBrokers []string
	KafkaTopic   string

	OtelEndpoint string

	MedicineCSV    string
	InteractionCSV string
}

// Load reads configuration from environment variables with reasonable
// defaults. A .env file in the working directory is applied first if present;
// real environment variables win over it.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Secret:         getEnv("SECRET", "dev_secret"),
		DatabaseDSN:    getEnv("DATABASE_DSN", "medeasy.db"),
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "prescription-events"),
		OtelEndpoint:   os.Getenv("OTEL_ENDPOINT"),
		MedicineCSV:    getEnv("MEDICINE_CSV", "assets/medicine.csv"),
		InteractionCSV: getEnv("INTERACTION_CSV", "assets/interactions.csv"),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	// Validate that port is numeric.
	if _, err := strconv.Atoi(cfg.HTTPPort); err != nil {
		cfg.HTTPPort = "8080"
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
