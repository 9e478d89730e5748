package jobs

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusDownloading Status = "downloading"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
)

// Terminal は終端状態かどうかを返します。終端状態からの遷移はありません。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Record はジョブの現在状態のスナップショットを表します。
// 書き込むのはそのジョブを所有するパイプラインだけで、他からは読み取り専用です。
type Record struct {
	Status      Status `json:"status"`
	Progress    int    `json:"progress"`
	Message     string `json:"message"`
	Filename    string `json:"filename,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}
