package video

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// 受け付ける字幕フォーマット。txt は srt を取得してテキスト変換します。
var subtitleFormats = map[string]string{
	"srt": "application/x-subrip",
	"vtt": "text/vtt",
	"txt": "text/plain; charset=utf-8",
}

const (
	defaultSubtitleLang   = "en"
	defaultSubtitleFormat = "srt"
)

// SubtitleRequest は字幕取得リクエストのボディです。
type SubtitleRequest struct {
	URL    string `json:"url"`
	Lang   string `json:"lang"`
	Format string `json:"format"`
}

// SubtitleTrack は1言語分の字幕トラックの要約です。
type SubtitleTrack struct {
	Type string `json:"type"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// SubtitleList は /api/subtitles のレスポンスです。
type SubtitleList struct {
	VideoID            string                   `json:"video_id"`
	Title              string                   `json:"title"`
	AvailableSubtitles map[string]SubtitleTrack `json:"available_subtitles"`
}

// SubtitleFile は取得済みの字幕成果物です。
type SubtitleFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ListSubtitles は動画の利用可能な字幕トラックを列挙します。
// 同一言語では手動字幕が自動字幕より優先されます。
func (s *Service) ListSubtitles(ctx context.Context, rawURL string) (*SubtitleList, error) {
	if err := validateMediaURL(rawURL); err != nil {
		return nil, err
	}

	meta, err := s.fetchMetadata(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	available := make(map[string]SubtitleTrack)
	for lang, tracks := range meta.Subtitles {
		available[lang] = SubtitleTrack{
			Type: "manual",
			Name: trackName(tracks, lang),
			URL:  trackURL(tracks),
		}
	}
	for lang, tracks := range meta.AutomaticCaptions {
		if _, exists := available[lang]; exists {
			continue
		}
		available[lang] = SubtitleTrack{
			Type: "auto",
			Name: trackName(tracks, lang),
			URL:  trackURL(tracks),
		}
	}

	return &SubtitleList{
		VideoID:            meta.ID,
		Title:              meta.Title,
		AvailableSubtitles: available,
	}, nil
}

// DownloadSubtitle は字幕を取得して返します。クリップと異なり同期フローで、
// レスポンスは完了まで保留されます。
func (s *Service) DownloadSubtitle(ctx context.Context, req SubtitleRequest) (*SubtitleFile, error) {
	if err := validateMediaURL(req.URL); err != nil {
		return nil, err
	}

	lang := req.Lang
	if lang == "" {
		lang = defaultSubtitleLang
	}
	format := req.Format
	if format == "" {
		format = defaultSubtitleFormat
	}
	if _, ok := subtitleFormats[format]; !ok {
		return nil, newError(CodeInvalidInput,
			fmt.Sprintf("Invalid format: %s (expected srt, vtt or txt)", format), nil)
	}

	// 表示タイトル取得のためメタデータを先に引く
	meta, err := s.fetchMetadata(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	// txt はテキスト変換の元として srt を取得する
	fetchFormat := format
	if format == "txt" {
		fetchFormat = "srt"
	}

	outputBase := filepath.Join(s.cfg.DownloadsDir, "sub_"+newJobID())
	args := []string{
		"--skip-download",
		"--write-subs",
		"--write-auto-subs",
		"--sub-langs", lang,
		"--convert-subs", fetchFormat,
		"-o", outputBase,
	}
	args = append(args, s.commonYtdlpArgs()...)
	args = append(args, req.URL)

	if _, err := s.runner.Run(ctx, s.cfg.YtdlpPath, args...); err != nil {
		return nil, newError(CodeToolFailed, err.Error(), err)
	}

	// ツールが選ぶ出力名は完全には予測できないため、候補を順に探す
	candidates := subtitleCandidates(outputBase, lang, fetchFormat)
	defer removeFiles(candidates)

	foundPath := ""
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			foundPath = candidate
			break
		}
	}
	if foundPath == "" {
		return nil, newError(CodeSubtitleNotFound,
			fmt.Sprintf("Subtitle not available for language: %s", lang), nil)
	}

	data, err := os.ReadFile(foundPath)
	if err != nil {
		return nil, newError(CodeToolFailed, "Failed to read subtitle file", err)
	}

	if format == "txt" {
		data = []byte(SubtitleToText(string(data)))
	}

	return &SubtitleFile{
		Filename:    fmt.Sprintf("%s.%s.%s", sanitizeTitle(meta.Title), lang, format),
		ContentType: subtitleFormats[format],
		Data:        data,
	}, nil
}

// subtitleCandidates は yt-dlp が書き出しうるファイル名の候補を優先順で返します。
func subtitleCandidates(base, lang, format string) []string {
	exts := []string{format}
	for _, ext := range []string{"vtt", "srt"} {
		if ext != format {
			exts = append(exts, ext)
		}
	}

	var candidates []string
	for _, ext := range exts {
		candidates = append(candidates,
			fmt.Sprintf("%s.%s.%s", base, lang, ext),
			fmt.Sprintf("%s.%s-orig.%s", base, lang, ext),
		)
	}
	return candidates
}

func removeFiles(paths []string) {
	for _, path := range paths {
		_ = os.Remove(path)
	}
}

func trackName(tracks []ytdlpSubTrack, lang string) string {
	for _, t := range tracks {
		if t.Name != "" {
			return t.Name
		}
	}
	return lang
}

func trackURL(tracks []ytdlpSubTrack) string {
	if len(tracks) == 0 {
		return ""
	}
	return tracks[0].URL
}
