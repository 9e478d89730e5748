package video

import "context"

const maxFormatEntries = 10

// VideoInfo は /api/video-info のレスポンスです。
type VideoInfo struct {
	Title          string       `json:"title"`
	Duration       int          `json:"duration"`
	DurationString string       `json:"duration_string"`
	Thumbnail      string       `json:"thumbnail"`
	Uploader       string       `json:"uploader"`
	Formats        []FormatInfo `json:"formats"`
}

// FormatInfo は利用可能なフォーマットの要約です。
type FormatInfo struct {
	FormatID   string  `json:"format_id"`
	Ext        string  `json:"ext"`
	Resolution string  `json:"resolution"`
	FPS        float64 `json:"fps,omitempty"`
	Filesize   int64   `json:"filesize,omitempty"`
	FormatNote string  `json:"format_note,omitempty"`
}

// FetchVideoInfo は動画のメタデータを取得します。
func (s *Service) FetchVideoInfo(ctx context.Context, rawURL string) (*VideoInfo, error) {
	if err := validateMediaURL(rawURL); err != nil {
		return nil, err
	}

	meta, err := s.fetchMetadata(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	// yt-dlp は品質昇順で列挙するため、末尾側の最大10件を返す
	formats := meta.Formats
	if len(formats) > maxFormatEntries {
		formats = formats[len(formats)-maxFormatEntries:]
	}
	summarized := make([]FormatInfo, 0, len(formats))
	for _, f := range formats {
		summarized = append(summarized, FormatInfo{
			FormatID:   f.FormatID,
			Ext:        f.Ext,
			Resolution: f.Resolution,
			FPS:        f.FPS,
			Filesize:   f.Filesize,
			FormatNote: f.FormatNote,
		})
	}

	return &VideoInfo{
		Title:          meta.Title,
		Duration:       int(meta.Duration),
		DurationString: meta.DurationString,
		Thumbnail:      meta.Thumbnail,
		Uploader:       meta.Uploader,
		Formats:        summarized,
	}, nil
}
