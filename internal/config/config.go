package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ストアドライバー
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
)

// DefaultAdminEmail は管理者メールアドレスのデフォルト値。
const DefaultAdminEmail = "italiacrafts@gmail.com"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Store
	StoreDriver   string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string

	// Redis（セッション、確認トークン）
	RedisURL string

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Session
	SessionMaxAge int

	// Admin
	AdminEmail string
	ConfirmTTL time.Duration

	// Blob storage
	CloudinaryURL    string
	CloudinaryFolder string

	// Feed / Profile
	FeedMaxLimit      int
	ProfilePostsLimit int

	// Rate Limit（req/min）
	RateLimitGeneral    int
	RateLimitPostCreate int

	// Logging
	LogLevel slog.Level

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// LoadDotEnv はカレントディレクトリの.envを読み込む。
// ファイルがない場合は何もしない。既に設定済みの環境変数は上書きしない。
func LoadDotEnv(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	var existing []string
	for _, f := range filenames {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load %v: %w", existing, err)
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string
	require := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.StoreDriver = strings.ToLower(getEnvString("STORE_DRIVER", StoreDriverPostgres))
	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		cfg.DatabaseURL = require("DATABASE_URL")
	case StoreDriverMongo:
		cfg.MongoURI = require("MONGODB_URI")
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER: %q (want %s or %s)", cfg.StoreDriver, StoreDriverPostgres, StoreDriverMongo)
	}

	cfg.RedisURL = require("REDIS_URL")
	cfg.GoogleClientID = require("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = require("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRedirectURL = require("GOOGLE_REDIRECT_URL")
	cfg.BaseURL = require("BASE_URL")

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.MongoDatabase = getEnvString("MONGODB_DATABASE", "farmchef")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.AdminEmail = getEnvString("ADMIN_EMAIL", DefaultAdminEmail)
	cfg.ConfirmTTL = getEnvDuration("CONFIRM_TTL", 5*time.Minute)
	cfg.CloudinaryURL = getEnvString("CLOUDINARY_URL", "")
	cfg.CloudinaryFolder = getEnvString("CLOUDINARY_FOLDER", "farmchef")
	cfg.FeedMaxLimit = getEnvInt("FEED_MAX_LIMIT", 50)
	cfg.ProfilePostsLimit = getEnvInt("PROFILE_POSTS_LIMIT", 20)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitPostCreate = getEnvInt("RATE_LIMIT_POST_CREATE", 10)
	cfg.LogLevel = getEnvLogLevel("LOG_LEVEL", slog.LevelInfo)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
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
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func getEnvLogLevel(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return defaultVal
	}
	return level
}
