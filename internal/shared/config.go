package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	PayBase     string
	PayKey      string
	AuthBase    string
	AuthKey     string
	JWTSecret   string
	JWTTTL      time.Duration
	Currency    string
	SeedWorkers int
	CacheTTL    time.Duration
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		// clientFoundRows makes no-op merges report matched rows, so a merge
		// against a missing id is distinguishable from an unchanged document.
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/staybook?parseTime=true&clientFoundRows=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisPass:   env("REDIS_PASSWORD", ""),
		RedisDB:     atoi("REDIS_DB", 0),
		PayBase:     env("PAY_BASE_URL", "https://api.payments.example.com/v1"),
		PayKey:      env("PAY_SECRET_KEY", ""),
		AuthBase:    env("AUTH_BASE_URL", "https://identity.example.com/v1"),
		AuthKey:     env("AUTH_API_KEY", ""),
		JWTSecret:   env("JWT_SECRET", ""),
		JWTTTL:      time.Duration(atoi("JWT_TTL_MINUTES", 720)) * time.Minute,
		Currency:    env("CURRENCY", "zar"),
		SeedWorkers: atoi("SEED_WORKERS", 8),
		CacheTTL:    time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,
	}
	if c.PayKey == "" {
		log.Warn().Msg("PAY_SECRET_KEY is empty")
	}
	if c.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET is empty")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
