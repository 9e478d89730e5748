package video

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/yourusername/clip-forge/internal/jobs"
)

// ClipRequest はクリップ生成リクエストのボディです。
type ClipRequest struct {
	URL       string `json:"url"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// ClipJob はジョブ受付時にクライアントへ即時返却する情報です。
type ClipJob struct {
	ID          string
	Filename    string
	DownloadURL string
}

// StartClip はリクエストを検証し、ジョブIDを払い出してパイプラインを
// バックグラウンドで起動します。検証エラーはジョブ生成前に同期で返します。
func (s *Service) StartClip(ctx context.Context, req ClipRequest) (*ClipJob, error) {
	startSec, endSec, err := s.validateClipRequest(req)
	if err != nil {
		return nil, err
	}

	jobID := newJobID()
	filename := jobID + ".mp4"
	job := &ClipJob{
		ID:          jobID,
		Filename:    filename,
		DownloadURL: "/api/download-file/" + filename,
	}

	s.store.Set(jobID, jobs.Record{
		Status:   jobs.StatusDownloading,
		Progress: 0,
		Message:  "Starting download...",
	})

	// パイプラインはリクエストのライフサイクルから切り離して実行する
	go s.runClipPipeline(jobID, req.URL, startSec, endSec-startSec, filename)

	return job, nil
}

func (s *Service) validateClipRequest(req ClipRequest) (startSec, endSec int, err error) {
	if err := validateMediaURL(req.URL); err != nil {
		return 0, 0, err
	}

	startSec, perr := ParseTimecode(req.StartTime)
	if perr != nil {
		return 0, 0, newError(CodeInvalidInput, fmt.Sprintf("Invalid start_time: %v", perr), perr)
	}
	endSec, perr = ParseTimecode(req.EndTime)
	if perr != nil {
		return 0, 0, newError(CodeInvalidInput, fmt.Sprintf("Invalid end_time: %v", perr), perr)
	}

	if startSec >= endSec {
		return 0, 0, newError(CodeInvalidInput, "Start time must be before end time", nil)
	}
	if endSec-startSec > s.cfg.MaxClipSeconds {
		return 0, 0, newError(CodeInvalidInput,
			fmt.Sprintf("Clip duration cannot exceed %d seconds", s.cfg.MaxClipSeconds), nil)
	}
	return startSec, endSec, nil
}

func validateMediaURL(rawURL string) error {
	if rawURL == "" {
		return newError(CodeInvalidInput, "URL is required", nil)
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return newError(CodeInvalidInput, "Invalid URL", err)
	}
	return nil
}

// runClipPipeline は ダウンロード -> 切り出し -> 後始末 を逐次実行します。
// ステージ遷移ごとに Store を更新し Hub へ配信します。失敗はレコードに
// 吸収し、HTTP呼び出し元へは伝播しません。
func (s *Service) runClipPipeline(jobID, rawURL string, startSec, durationSec int, filename string) {
	ctx := context.Background()

	tempPath := filepath.Join(s.cfg.DownloadsDir, jobID+"_full.mp4")
	outputPath := filepath.Join(s.cfg.DownloadsDir, filename)

	// ダウンロード段階: 報告値は 0..50 に圧縮する。yt-dlp はフラグメント毎に
	// パーセントが巻き戻ることがあるため、公開する進捗は単調非減少に揃える。
	lastPercent := 0
	err := s.download(ctx, rawURL, tempPath, func(percent float64, line string) {
		scaled := int(percent * 0.5)
		if scaled > 50 {
			scaled = 50
		}
		if scaled < lastPercent {
			return
		}
		lastPercent = scaled
		s.publishProgress(jobID, jobs.Record{
			Status:   jobs.StatusDownloading,
			Progress: scaled,
			Message:  fmt.Sprintf("Downloading... %.1f%%", percent),
		})
	})
	if err != nil {
		_ = os.Remove(tempPath)
		s.failJob(jobID, err)
		return
	}

	s.publishProgress(jobID, jobs.Record{
		Status:   jobs.StatusProcessing,
		Progress: 50,
		Message:  "Processing video...",
	})

	if err := s.cut(ctx, tempPath, outputPath, startSec, durationSec); err != nil {
		// 予告済みのファイル名で配信されうるため、書きかけの成果物は残さない
		_ = os.Remove(tempPath)
		_ = os.Remove(outputPath)
		s.failJob(jobID, err)
		return
	}

	// 中間ファイルの削除は best-effort。本来の結果を覆い隠してはならない。
	_ = os.Remove(tempPath)

	s.publishProgress(jobID, jobs.Record{
		Status:      jobs.StatusCompleted,
		Progress:    100,
		Message:     "Done!",
		Filename:    filename,
		DownloadURL: "/api/download-file/" + filename,
	})
	s.logger.Printf("clip job completed: id=%s file=%s", jobID, filename)

	if s.sweepTrigger != nil {
		s.sweepTrigger()
	}
}

func (s *Service) publishProgress(jobID string, record jobs.Record) {
	s.store.Set(jobID, record)
	s.hub.Publish(jobID)
}

func (s *Service) failJob(jobID string, err error) {
	s.logger.Printf("clip job failed: id=%s err=%v", jobID, err)
	s.publishProgress(jobID, jobs.Record{
		Status:   jobs.StatusError,
		Progress: 0,
		Message:  err.Error(),
	})
}
