package config

import (
	"os"
	"strconv"
	"time"
)

type ShopConfig struct {
	AdminPort          int
	MinPort            int
	MaxPort            int
	DefaultDebtLimit   int64
	DisplayWriteWait   time.Duration
	AuditTimeout       time.Duration
	IdempotencyTTL     time.Duration
	PaybackQRTTL       time.Duration
	AuditSink          string
	MongoDatabase      string
	BootstrapAdminUser string
	BootstrapAdminPass string
}

func LoadShopConfig() *ShopConfig {
	return &ShopConfig{
		AdminPort:          getEnvAsInt("SHOP_ADMIN_PORT", 5),
		MinPort:            getEnvAsInt("SHOP_MIN_PORT", 1),
		MaxPort:            getEnvAsInt("SHOP_MAX_PORT", 7),
		DefaultDebtLimit:   int64(getEnvAsInt("SHOP_DEFAULT_DEBT_LIMIT", 2000)),
		DisplayWriteWait:   getEnvAsDuration("DISPLAY_WRITE_WAIT", 5*time.Second),
		AuditTimeout:       getEnvAsDuration("AUDIT_TIMEOUT", 5*time.Second),
		IdempotencyTTL:     getEnvAsDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		PaybackQRTTL:       getEnvAsDuration("PAYBACK_QR_TTL", 5*time.Minute),
		AuditSink:          getEnv("AUDIT_SINK", "postgres"),
		MongoDatabase:      getEnv("MONGO_DATABASE", "tapshop"),
		BootstrapAdminUser: getEnv("BOOTSTRAP_ADMIN_USERNAME", ""),
		BootstrapAdminPass: getEnv("BOOTSTRAP_ADMIN_PASSWORD", ""),
	}
}

// IsAdminPort reports whether a scan on port should capture cards
func (c *ShopConfig) IsAdminPort(port *int) bool {
	return port != nil && *port == c.AdminPort
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
