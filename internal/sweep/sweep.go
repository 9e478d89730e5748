// Package sweep はダウンロードディレクトリの経過時間ベースの掃除を提供します。
package sweep

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper は更新時刻が maxAge より古いファイルを削除します。
// ジョブ状態は参照せず、ファイルの更新時刻のみを判断材料にします。
// 削除できないファイルは無視します。
type Sweeper struct {
	dir    string
	maxAge time.Duration
	logger *log.Logger
}

// New は Sweeper を作成します。
func New(dir string, maxAge time.Duration, logger *log.Logger) *Sweeper {
	if logger == nil {
		logger = log.Default()
	}
	return &Sweeper{
		dir:    dir,
		maxAge: maxAge,
		logger: logger,
	}
}

// RunOnce は1回の掃除パスを実行します。
func (s *Sweeper) RunOnce() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Printf("sweep: cannot read %s: %v", s.dir, err)
		return
	}

	now := time.Now()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= s.maxAge {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			continue
		}
		s.logger.Printf("sweep: removed expired artifact %s", path)
	}
}

// Schedule は定期実行を登録して開始済みの cron を返します。
func (s *Sweeper) Schedule(interval time.Duration) *cron.Cron {
	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), s.RunOnce); err != nil {
		s.logger.Printf("sweep: failed to schedule: %v", err)
		return c
	}
	c.Start()
	return c
}
