// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Host    string // APIサーバーのバインドアドレス
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ダウンロード設定
	DownloadsDir   string // 成果物を保存するディレクトリ
	YtdlpPath      string // yt-dlp実行ファイルのパス
	FfmpegPath     string // ffmpeg実行ファイルのパス
	CookiesFile    string // yt-dlpに渡すクッキーファイル（省略可）
	YtdlpExtraArgs string // yt-dlp呼び出しに毎回追加する引数（空白区切り、省略可）

	// クリップ制限
	MaxClipSeconds int // クリップの最大秒数

	// 掃除（スイープ）設定
	CleanupMaxAge   time.Duration // この経過時間を超えた成果物を削除する
	CleanupInterval time.Duration // 定期スイープの実行間隔
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Host:    getEnv("HOST", "0.0.0.0"),
		Port:    getEnv("PORT", "3001"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		// ダウンロード設定
		DownloadsDir:   getEnv("DOWNLOADS_DIR", "./downloads"),
		YtdlpPath:      getEnv("YTDLP_PATH", "yt-dlp"),
		FfmpegPath:     getEnv("FFMPEG_PATH", "ffmpeg"),
		CookiesFile:    getEnv("COOKIES_FILE", ""),
		YtdlpExtraArgs: getEnv("YTDLP_EXTRA_ARGS", ""),

		// クリップ制限
		MaxClipSeconds: getEnvAsInt("MAX_CLIP_SECONDS", 600),

		// 掃除設定
		CleanupMaxAge:   time.Duration(getEnvAsInt("CLEANUP_MAX_AGE_MINUTES", 60)) * time.Minute,
		CleanupInterval: time.Duration(getEnvAsInt("CLEANUP_INTERVAL_MINUTES", 30)) * time.Minute,
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.DownloadsDir == "" {
		return fmt.Errorf("DOWNLOADS_DIR is required")
	}
	if c.YtdlpPath == "" {
		return fmt.Errorf("YTDLP_PATH is required")
	}
	if c.FfmpegPath == "" {
		return fmt.Errorf("FFMPEG_PATH is required")
	}
	if c.MaxClipSeconds <= 0 {
		return fmt.Errorf("MAX_CLIP_SECONDS must be positive")
	}
	if c.CookiesFile != "" {
		if _, err := os.Stat(c.CookiesFile); err != nil {
			return fmt.Errorf("COOKIES_FILE is not readable: %w", err)
		}
	}
	return nil
}

// Addr はサーバーのリッスンアドレスを返します。
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
