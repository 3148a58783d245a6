package shared

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	LogLevel    string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	CacheNS     string

	TBOBase     string
	TBOUser     string
	TBOPass     string
	TBORPS      int
	TBOAttempts int

	CardInfoBatchSize     int
	CardInfoBatchInterval time.Duration
	CacheWriteQueue       int
	CacheWriteWorkers     int

	SearchChunkSize  int
	SearchSessionTTL time.Duration

	RazorpayBase   string
	RazorpayKeyID  string
	RazorpaySecret string
	Currency       string

	CORSOrigins []string
	AdminKey    string
	WarmWorkers int
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real env vars take precedence.
func Load() Config {
	_ = godotenv.Load()

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
		LogLevel:    env("LOG_LEVEL", "info"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/hotels?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisPass:   env("REDIS_PASSWORD", ""),
		RedisDB:     atoi("REDIS_DB", 0),
		CacheNS:     env("CACHE_NAMESPACE", "tbo"),

		TBOBase:     env("TBO_BASE_URL", "http://api.tbotechnology.in/TBOHolidays_HotelAPI"),
		TBOUser:     env("TBO_USERNAME", ""),
		TBOPass:     env("TBO_PASSWORD", ""),
		TBORPS:      atoi("TBO_RPS", 10),
		TBOAttempts: atoi("TBO_MAX_ATTEMPTS", 1),

		CardInfoBatchSize:     atoi("CARDINFO_BATCH_SIZE", 5),
		CardInfoBatchInterval: time.Duration(atoi("CARDINFO_BATCH_INTERVAL_MS", 100)) * time.Millisecond,
		CacheWriteQueue:       atoi("CACHE_WRITE_QUEUE", 256),
		CacheWriteWorkers:     atoi("CACHE_WRITE_WORKERS", 2),

		SearchChunkSize:  atoi("SEARCH_CHUNK_SIZE", 100),
		SearchSessionTTL: time.Duration(atoi("SEARCH_SESSION_TTL_SECONDS", 1800)) * time.Second,

		RazorpayBase:   env("RAZORPAY_BASE_URL", "https://api.razorpay.com/v1"),
		RazorpayKeyID:  env("RAZORPAY_KEY_ID", ""),
		RazorpaySecret: env("RAZORPAY_KEY_SECRET", ""),
		Currency:       env("PAYMENT_CURRENCY", "INR"),

		CORSOrigins: splitList(env("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		AdminKey:    env("ADMIN_API_KEY", ""),
		WarmWorkers: atoi("WARM_WORKERS", 4),
	}
	if c.TBOUser == "" || c.TBOPass == "" {
		log.Warn().Msg("TBO_USERNAME or TBO_PASSWORD is empty")
	}
	if c.RazorpaySecret == "" {
		log.Warn().Msg("RAZORPAY_KEY_SECRET is empty; payment verification will reject every callback")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
