// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/clip-forge/internal/config"
	"github.com/yourusername/clip-forge/internal/jobs"
	"github.com/yourusername/clip-forge/internal/runner"
	"github.com/yourusername/clip-forge/internal/sweep"
	"github.com/yourusername/clip-forge/internal/video"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// ダウンロードディレクトリの用意
	if err := os.MkdirAll(cfg.DownloadsDir, 0o755); err != nil {
		log.Fatalf("Failed to create downloads dir: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// CORSミドルウェアの設定（カンマ区切りの文字列を配列に変換）
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	router.Use(cors.New(corsConfig))

	// ジョブ状態テーブルとファンアウトの初期化
	store := jobs.NewStore()
	hub := jobs.NewHub(store)

	service, err := video.NewService(cfg, store, hub, runner.Local{}, log.Default())
	if err != nil {
		log.Fatalf("Failed to build video service: %v", err)
	}

	// 成果物スイープ: 定期実行 + クリップ完了毎の即時実行
	sweeper := sweep.New(cfg.DownloadsDir, cfg.CleanupMaxAge, log.Default())
	service.SetSweepTrigger(sweeper.RunOnce)
	cronScheduler := sweeper.Schedule(cfg.CleanupInterval)
	defer cronScheduler.Stop()

	// ルーティングの設定
	setupRoutes(router, cfg, store, hub, service)

	// サーバーの起動
	addr := cfg.Addr()
	log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "clip-forge-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループと WebSocket の配線を行います。
func setupRoutes(router *gin.Engine, cfg *config.Config, store *jobs.Store, hub *jobs.Hub, service *video.Service) {
	router.GET("/health", handleHealth)

	api := router.Group("/api")
	{
		api.GET("/video-info", video.VideoInfoHandler(service))
		api.POST("/download", video.DownloadHandler(service))
		api.GET("/progress/:id", video.ProgressHandler(store))
		api.GET("/download-file/:name", video.DownloadFileHandler(cfg.DownloadsDir))
		api.GET("/subtitles", video.SubtitlesHandler(service))
		api.POST("/download-subtitle", video.DownloadSubtitleHandler(service))
	}

	router.GET("/ws/progress", video.ProgressSocketHandler(hub, log.Default()))
}
