package video

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/clip-forge/internal/jobs"
)

// ClipService はクリップジョブの受付を提供します。
type ClipService interface {
	StartClip(ctx context.Context, req ClipRequest) (*ClipJob, error)
}

// InfoService は動画メタデータの取得を提供します。
type InfoService interface {
	FetchVideoInfo(ctx context.Context, rawURL string) (*VideoInfo, error)
}

// SubtitleService は字幕の列挙と取得を提供します。
type SubtitleService interface {
	ListSubtitles(ctx context.Context, rawURL string) (*SubtitleList, error)
	DownloadSubtitle(ctx context.Context, req SubtitleRequest) (*SubtitleFile, error)
}

// DownloadHandler は POST /api/download のハンドラーを返します。
// ジョブを受け付けて即時にIDを返し、パイプライン自体は非同期で進みます。
func DownloadHandler(svc ClipService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ClipRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		job, err := svc.StartClip(c.Request.Context(), req)
		if err != nil {
			respondWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"download_id":  job.ID,
			"filename":     job.Filename,
			"download_url": job.DownloadURL,
		})
	}
}

// ProgressHandler は GET /api/progress/:id のハンドラーを返します。
func ProgressHandler(store *jobs.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Param("id"))
		record, ok := store.Get(jobID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Download not found"})
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

// VideoInfoHandler は GET /api/video-info のハンドラーを返します。
// メタデータ取得の失敗は診断テキスト付きの 400 として返します。
func VideoInfoHandler(svc InfoService) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawURL := c.Query("url")
		info, err := svc.FetchVideoInfo(c.Request.Context(), rawURL)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errorMessage(err)})
			return
		}
		c.JSON(http.StatusOK, info)
	}
}

// SubtitlesHandler は GET /api/subtitles のハンドラーを返します。
func SubtitlesHandler(svc SubtitleService) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawURL := c.Query("url")
		list, err := svc.ListSubtitles(c.Request.Context(), rawURL)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// DownloadSubtitleHandler は POST /api/download-subtitle のハンドラーを返します。
func DownloadSubtitleHandler(svc SubtitleService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SubtitleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		file, err := svc.DownloadSubtitle(c.Request.Context(), req)
		if err != nil {
			respondWithError(c, err)
			return
		}

		c.Header("Content-Disposition", attachmentDisposition(file.Filename))
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, file.ContentType, file.Data)
	}
}

// DownloadFileHandler は GET /api/download-file/:name のハンドラーを返します。
func DownloadFileHandler(downloadsDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		// ID由来のファイル名のみ許可し、パス区切りを含む名前は拒否する
		if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		}

		path := filepath.Join(downloadsDir, name)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		}

		contentType := "application/octet-stream"
		if detected, err := mimetype.DetectFile(path); err == nil {
			contentType = detected.String()
		}

		file, err := os.Open(path)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open file"})
			return
		}
		defer file.Close()

		c.Header("Content-Disposition", attachmentDisposition(name))
		c.Header("Cache-Control", "no-store")
		c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
	}
}

// attachmentDisposition は Content-Disposition の値を構築します。
// 引用形式のファイル名はヘッダーを壊す文字を落とし、正確な名前は
// filename* のエンコード形式で伝えます。
func attachmentDisposition(name string) string {
	quoted := strings.NewReplacer("\"", "", "\\", "", "\r", "", "\n", "").Replace(name)
	return fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", quoted, url.PathEscape(name))
}

func respondWithError(c *gin.Context, err error) {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		status := http.StatusInternalServerError
		switch apiErr.Code {
		case CodeInvalidInput:
			status = http.StatusBadRequest
		case CodeNotFound, CodeSubtitleNotFound:
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": apiErr.Message})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{"error": "Request canceled"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func errorMessage(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
