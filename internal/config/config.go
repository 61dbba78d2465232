package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"dukaanpos/backend/internal/domain"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	StoreID               string
	BillPrefix            string
	ReceiptWidth          int
	ReceiptCacheTTLSecs   int
	PointValue            float64
	EarnRate              float64
	AuthSecret            string
	AccessTokenTTLMinutes int
	Store                 domain.StoreDetails
}

func Load() Config {
	// A .env beside the binary is a convenience for development; in
	// production everything comes from real environment variables.
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	receiptWidth, err := strconv.Atoi(getEnv("RECEIPT_WIDTH", "42"))
	if err != nil || receiptWidth < 32 {
		receiptWidth = 42
	}
	cacheTTL, err := strconv.Atoi(getEnv("RECEIPT_CACHE_TTL_SECONDS", "3600"))
	if err != nil || cacheTTL < 1 {
		cacheTTL = 3600
	}
	pointValue := getEnvFloat("LOYALTY_POINT_VALUE", 5)
	earnRate := getEnvFloat("LOYALTY_EARN_RATE", 100)

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		StoreID:               getEnv("DEFAULT_STORE_ID", "main-store"),
		BillPrefix:            getEnv("BILL_PREFIX", "BILL"),
		ReceiptWidth:          receiptWidth,
		ReceiptCacheTTLSecs:   cacheTTL,
		PointValue:            pointValue,
		EarnRate:              earnRate,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		Store: domain.StoreDetails{
			Name:    getEnv("STORE_NAME", "Dukaan POS"),
			Address: getEnv("STORE_ADDRESS", ""),
			Phone:   getEnv("STORE_PHONE", ""),
			GSTIN:   getEnv("STORE_GSTIN", ""),
			Footer:  getEnv("RECEIPT_FOOTER", "Thank you, visit again!"),
		},
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getEnvFloat(key string, fallback float64) float64 {
	val, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || val <= 0 {
		return fallback
	}
	return val
}
