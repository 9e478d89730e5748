// Package video はクリップ生成と字幕取得のジョブオーケストレーションを提供します。
package video

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/clip-forge/internal/config"
	"github.com/yourusername/clip-forge/internal/jobs"
	"github.com/yourusername/clip-forge/internal/runner"
)

// Error はAPIへ返す分類済みエラーです。
type Error struct {
	Code    string
	Message string
	cause   error
}

// Error はログ向けの文字列表現を返します。
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap は原因エラーを公開します。
func (e *Error) Unwrap() error {
	return e.cause
}

func newError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// エラーコード。respondWithError でHTTPステータスへ対応付けます。
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeNotFound         = "NOT_FOUND"
	CodeSubtitleNotFound = "SUBTITLE_NOT_FOUND"
	CodeToolFailed       = "TOOL_FAILED"
)

// Service はクリップ・字幕パイプラインの実行と進捗管理を担います。
type Service struct {
	cfg    *config.Config
	store  *jobs.Store
	hub    *jobs.Hub
	runner runner.Runner
	logger *log.Logger

	// 完了したクリップごとに起動する成果物スイープ。未設定なら何もしません。
	sweepTrigger func()
}

// NewService は Service を初期化します。
func NewService(cfg *config.Config, store *jobs.Store, hub *jobs.Hub, run runner.Runner, logger *log.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if hub == nil {
		return nil, errors.New("hub is nil")
	}
	if run == nil {
		run = runner.Local{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		cfg:    cfg,
		store:  store,
		hub:    hub,
		runner: run,
		logger: logger,
	}, nil
}

// SetSweepTrigger はクリップ完了時に実行するスイープ処理を登録します。
func (s *Service) SetSweepTrigger(fn func()) {
	s.sweepTrigger = fn
}

// newJobID はジョブIDを生成します。タイムスタンプは運用時の識別用で、
// 一意性はUUID由来のサフィックスが保証します。
func newJobID() string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%d_%s", time.Now().UnixMilli(), suffix)
}

var (
	unsafeTitleChars = regexp.MustCompile(`[^\w\s-]`)
	titleWhitespace  = regexp.MustCompile(`\s+`)
)

// sanitizeTitle は動画タイトルをファイル名として安全な形に変換します。
func sanitizeTitle(title string) string {
	cleaned := unsafeTitleChars.ReplaceAllString(title, "")
	cleaned = titleWhitespace.ReplaceAllString(strings.TrimSpace(cleaned), "_")
	if len(cleaned) > 80 {
		cleaned = cleaned[:80]
	}
	if cleaned == "" {
		return "subtitle"
	}
	return cleaned
}
