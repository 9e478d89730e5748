package jobs

import "sync"

// Observer はあるジョブの進捗プッシュを受け取る接続です。
// Send が失敗した接続は配信時にスキップされます。
type Observer interface {
	Send(msg ProgressMessage) error
}

// ProgressMessage は観測者へプッシュされるメッセージです。
type ProgressMessage struct {
	Type       string `json:"type"`
	DownloadID string `json:"download_id"`
	Data       Record `json:"data"`
}

// Hub はジョブID -> 観測者集合のファンアウトテーブルです。
// 観測者への参照は所有せず、切断時に Detach されることを前提とします。
type Hub struct {
	store *Store

	mu        sync.RWMutex
	observers map[string]map[Observer]struct{}
}

// NewHub は Store を参照する Hub を作成します。
func NewHub(store *Store) *Hub {
	return &Hub{
		store:     store,
		observers: make(map[string]map[Observer]struct{}),
	}
}

// Attach は観測者をジョブIDの集合に追加します。集合がなければ作成します。
func (h *Hub) Attach(jobID string, obs Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.observers[jobID]
	if !ok {
		set = make(map[Observer]struct{})
		h.observers[jobID] = set
	}
	set[obs] = struct{}{}
}

// Detach は観測者を集合から取り除きます。空になった集合は削除します。
func (h *Hub) Detach(jobID string, obs Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.observers[jobID]
	if !ok {
		return
	}
	delete(set, obs)
	if len(set) == 0 {
		delete(h.observers, jobID)
	}
}

// Publish は Store の現在レコードを読み、そのジョブの全観測者へ配信します。
// 観測者がいない場合は何もしません。配信は at-most-once で、失敗した観測者は無言でスキップします。
func (h *Hub) Publish(jobID string) {
	record, ok := h.store.Get(jobID)
	if !ok {
		return
	}

	h.mu.RLock()
	set := h.observers[jobID]
	targets := make([]Observer, 0, len(set))
	for obs := range set {
		targets = append(targets, obs)
	}
	h.mu.RUnlock()

	msg := ProgressMessage{
		Type:       "progress",
		DownloadID: jobID,
		Data:       record,
	}
	for _, obs := range targets {
		_ = obs.Send(msg)
	}
}

// ObserverCount は現在アタッチされている観測者数を返します。
func (h *Hub) ObserverCount(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers[jobID])
}
