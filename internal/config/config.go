package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/dotsite/internal/database"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string
	DBPool      database.PoolConfig

	// Server
	ServerPort string
	BaseURL    string
	SiteTitle  string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// Page activation
	ActivationTTL time.Duration

	// Preview
	PreviewCount int

	// Image probe
	ImageProbeEnabled bool
	ImageProbeTimeout time.Duration
	ImageProbeTTL     time.Duration

	// Learning of the day
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	LearningModel     string
	LearningTimeout   time.Duration

	// Rate Limit
	RateLimitSubmit int

	// Worker
	EventStatusInterval time.Duration
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	pool := database.DefaultPoolConfig()
	cfg.DBPool = database.PoolConfig{
		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", pool.MaxOpenConns),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", pool.MaxIdleConns),
		ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", pool.ConnMaxLifetime),
	}
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.SiteTitle = getEnvString("SITE_TITLE", "Developers Of Tomorrow")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.ActivationTTL = getEnvDuration("ACTIVATION_TTL", 30*time.Minute)
	cfg.PreviewCount = getEnvInt("PREVIEW_COUNT", 3)
	cfg.ImageProbeEnabled = getEnvBool("IMAGE_PROBE_ENABLED", true)
	cfg.ImageProbeTimeout = getEnvDuration("IMAGE_PROBE_TIMEOUT", 3*time.Second)
	cfg.ImageProbeTTL = getEnvDuration("IMAGE_PROBE_TTL", time.Hour)
	// APIキー未設定は起動エラーにせず、ウィジェット側でエラー表示する
	cfg.OpenRouterAPIKey = os.Getenv("OPENROUTER_API_KEY")
	cfg.OpenRouterBaseURL = getEnvString("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1")
	cfg.LearningModel = getEnvString("LEARNING_MODEL", "meta-llama/llama-3.3-8b-instruct:free")
	cfg.LearningTimeout = getEnvDuration("LEARNING_TIMEOUT", 30*time.Second)
	cfg.RateLimitSubmit = getEnvInt("RATE_LIMIT_SUBMIT", 30)
	cfg.EventStatusInterval = getEnvDuration("EVENT_STATUS_INTERVAL", time.Hour)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
