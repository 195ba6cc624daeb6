package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// API
	BaseURL     string
	UserAgent   string
	HTTPTimeout time.Duration

	// Credentials（CLIの認証が必要なコマンドで使用。未設定なら匿名）
	Identifier string
	Password   string

	// Logging
	LogLevel string // "debug", "info", "warn", "error"

	// Metrics
	MetricsPort int // 0なら公開しない
}

// Load は環境変数からConfigを読み込む。
// ITMS_BASE_URLは必須で、http/httpsの絶対URLでなければならない。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.BaseURL = os.Getenv("ITMS_BASE_URL")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("required environment variable is not set: ITMS_BASE_URL")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("ITMS_BASE_URL must be an absolute http/https URL: %s", cfg.BaseURL)
	}

	// Optional fields with defaults
	cfg.UserAgent = getEnvString("ITMS_USER_AGENT", "")
	cfg.HTTPTimeout = getEnvDuration("ITMS_HTTP_TIMEOUT", 30*time.Second)
	cfg.Identifier = getEnvString("ITMS_IDENTIFIER", "")
	cfg.Password = getEnvString("ITMS_PASSWORD", "")
	cfg.LogLevel = getEnvString("ITMS_LOG_LEVEL", "info")
	cfg.MetricsPort = getEnvInt("ITMS_METRICS_PORT", 0)

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
