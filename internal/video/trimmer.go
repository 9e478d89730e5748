package video

import (
	"context"
	"strconv"
)

// cutArgs は ffmpeg の引数を構築します。reencode が false の場合はストリーム
// コピーの高速パス、true の場合は明示的な再エンコードです。
func (s *Service) cutArgs(inputPath, outputPath string, startSec, durationSec int, reencode bool) []string {
	args := []string{
		"-y",
		"-ss", strconv.Itoa(startSec),
		"-i", inputPath,
		"-t", strconv.Itoa(durationSec),
	}
	if reencode {
		args = append(args, "-c:v", "libx264", "-c:a", "aac", "-preset", "fast")
	} else {
		args = append(args, "-c", "copy", "-avoid_negative_ts", "make_zero")
	}
	return append(args, outputPath)
}

// cut は外部トリマーで切り出しを行います。高速パスが失敗した場合は
// 一度だけ再エンコードで再試行します。それ以上のリトライはしません。
func (s *Service) cut(ctx context.Context, inputPath, outputPath string, startSec, durationSec int) error {
	_, err := s.runner.Run(ctx, s.cfg.FfmpegPath, s.cutArgs(inputPath, outputPath, startSec, durationSec, false)...)
	if err == nil {
		return nil
	}

	s.logger.Printf("stream copy failed, retrying with re-encode: %v", err)
	_, err = s.runner.Run(ctx, s.cfg.FfmpegPath, s.cutArgs(inputPath, outputPath, startSec, durationSec, true)...)
	return err
}
