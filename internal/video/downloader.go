package video

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/yourusername/clip-forge/internal/runner"
)

// formatSelector は 1080p 以下の MP4 映像+音声を優先し、なければ最良のものへ
// フォールバックします。
const formatSelector = "bestvideo[height<=1080][ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"

// ytdlpInfo は yt-dlp -J の出力のうち、この層で使用するフィールドです。
type ytdlpInfo struct {
	ID                string                     `json:"id"`
	Title             string                     `json:"title"`
	Duration          float64                    `json:"duration"`
	DurationString    string                     `json:"duration_string"`
	Thumbnail         string                     `json:"thumbnail"`
	Uploader          string                     `json:"uploader"`
	Formats           []ytdlpFormat              `json:"formats"`
	Subtitles         map[string][]ytdlpSubTrack `json:"subtitles"`
	AutomaticCaptions map[string][]ytdlpSubTrack `json:"automatic_captions"`
}

type ytdlpFormat struct {
	FormatID   string  `json:"format_id"`
	Ext        string  `json:"ext"`
	Resolution string  `json:"resolution"`
	FPS        float64 `json:"fps"`
	Filesize   int64   `json:"filesize"`
	FormatNote string  `json:"format_note"`
}

type ytdlpSubTrack struct {
	Ext  string `json:"ext"`
	URL  string `json:"url"`
	Name string `json:"name"`
}

// commonYtdlpArgs は全ての yt-dlp 呼び出しに共通する引数を返します。
// 引数ベクトルにのみ追加し、シェル文字列は組み立てません。
func (s *Service) commonYtdlpArgs() []string {
	var args []string
	if s.cfg.CookiesFile != "" {
		args = append(args, "--cookies", s.cfg.CookiesFile)
	}
	if extra := strings.Fields(s.cfg.YtdlpExtraArgs); len(extra) > 0 {
		args = append(args, extra...)
	}
	return args
}

func (s *Service) downloadArgs(rawURL, outputPath string) []string {
	args := []string{
		"-f", formatSelector,
		"-o", outputPath,
		"--newline",
		"--no-playlist",
	}
	args = append(args, s.commonYtdlpArgs()...)
	return append(args, rawURL)
}

// download は外部ダウンローダをストリーミングモードで起動します。
func (s *Service) download(ctx context.Context, rawURL, outputPath string, sink runner.ProgressFunc) error {
	return s.runner.RunProgress(ctx, sink, s.cfg.YtdlpPath, s.downloadArgs(rawURL, outputPath)...)
}

// fetchMetadata は動画のメタデータJSONを取得して解析します。
func (s *Service) fetchMetadata(ctx context.Context, rawURL string) (*ytdlpInfo, error) {
	args := []string{"-J", "--no-playlist", "--no-warnings"}
	args = append(args, s.commonYtdlpArgs()...)
	args = append(args, rawURL)

	out, err := s.runner.Run(ctx, s.cfg.YtdlpPath, args...)
	if err != nil {
		return nil, newError(CodeToolFailed, err.Error(), err)
	}

	var info ytdlpInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		return nil, newError(CodeToolFailed, "Failed to parse video metadata", err)
	}
	return &info, nil
}
