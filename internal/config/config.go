package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	CompanyID             string
	StoreID               string
	SaleMode              string
	ReconcileHour         int
	ReconcileTimezone     string
	ReconcileLimit        int
	OfflineJournalPath    string
	AuthSecret            string
	AccessTokenTTLMinutes int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	reconcileHour, err := strconv.Atoi(getEnv("RECONCILE_HOUR", "2"))
	if err != nil || reconcileHour < 0 || reconcileHour > 23 {
		reconcileHour = 2
	}
	reconcileLimit, err := strconv.Atoi(getEnv("RECONCILE_LIMIT", "500"))
	if err != nil || reconcileLimit < 1 {
		reconcileLimit = 500
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		CompanyID:             getEnv("DEFAULT_COMPANY_ID", "main-company"),
		StoreID:               getEnv("DEFAULT_STORE_ID", "main-store"),
		SaleMode:              strings.ToLower(getEnv("SALE_MODE", "reconcile")),
		ReconcileHour:         reconcileHour,
		ReconcileTimezone:     getEnv("RECONCILE_TIMEZONE", "Asia/Jakarta"),
		ReconcileLimit:        reconcileLimit,
		OfflineJournalPath:    getEnv("OFFLINE_JOURNAL_PATH", "offline-queue.jsonl"),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
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
