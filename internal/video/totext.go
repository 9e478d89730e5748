package video

import (
	"regexp"
	"strings"
)

var (
	cueNumberLine = regexp.MustCompile(`^\d+$`)
	markupTags    = regexp.MustCompile(`<[^>]*>`)
)

// SubtitleToText は srt/vtt 字幕をプレーンテキストへ変換します。
// 連番行・タイミング行・マークアップタグを取り除き、直後に繰り返される
// 同一行を1つにまとめます。それ以外の行の出現順は維持します。
func SubtitleToText(src string) string {
	var lines []string
	lastLine := ""

	for _, raw := range strings.Split(src, "\n") {
		line := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
		if line == "" {
			continue
		}
		if cueNumberLine.MatchString(line) {
			continue
		}
		if strings.Contains(line, "-->") {
			continue
		}
		if line == "WEBVTT" || strings.HasPrefix(line, "Kind:") || strings.HasPrefix(line, "Language:") {
			continue
		}

		line = strings.TrimSpace(markupTags.ReplaceAllString(line, ""))
		if line == "" || line == lastLine {
			continue
		}
		lastLine = line
		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}
