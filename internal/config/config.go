package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Remote API
	APIBaseURL     string
	RequestTimeout time.Duration
	APIRateLimit   int // ストーリーサービスへの呼び出しレート（req/sec）
	APIRateBurst   int

	// Credential storage
	CredentialsFile string

	// Rate Limit (ローカルUI)
	RateLimitGeneral int

	// Favicon
	FaviconTTL     time.Duration
	FaviconTimeout time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.APIBaseURL = os.Getenv("STORY_API_BASE_URL")
	if cfg.APIBaseURL == "" {
		missing = append(missing, "STORY_API_BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// 末尾スラッシュはパス結合時に二重になるため取り除く
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	// Optional fields with defaults
	cfg.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", 10*time.Second)
	cfg.APIRateLimit = getEnvInt("API_RATE_LIMIT", 5)
	cfg.APIRateBurst = getEnvInt("API_RATE_BURST", 10)
	cfg.CredentialsFile = getEnvString("CREDENTIALS_FILE", defaultCredentialsFile())
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.FaviconTTL = getEnvDuration("FAVICON_TTL", 24*time.Hour)
	cfg.FaviconTimeout = getEnvDuration("FAVICON_TIMEOUT", 5*time.Second)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

// defaultCredentialsFile は資格情報ファイルのデフォルトパスを返す。
// ユーザー設定ディレクトリが取得できない場合はカレントディレクトリ配下に置く。
func defaultCredentialsFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "storyman-credentials.json"
	}
	return filepath.Join(dir, "storyman", "credentials.json")
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
