// Package jobs はジョブ状態の保持と進捗の配信を提供します。
package jobs

import "sync"

// Store はジョブID -> 進捗レコードのプロセス内テーブルです。
// ジョブ状態の唯一の情報源で、レコードはプロセス終了まで保持されます。
type Store struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewStore は空の Store を作成します。
func NewStore() *Store {
	return &Store{
		records: make(map[string]Record),
	}
}

// Set はレコードを無条件に上書きします。
// 同一ジョブへの書き込みは所有パイプラインのみが行うため、順序は呼び出し側で保証されます。
func (s *Store) Set(jobID string, record Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[jobID] = record
}

// Get は現在のレコードを返します。存在しない場合は ok=false です。
func (s *Store) Get(jobID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[jobID]
	return record, ok
}

// Len は保持しているレコード数を返します。
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
