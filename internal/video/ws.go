package video

import (
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yourusername/clip-forge/internal/jobs"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsObserver は1本のWebSocket接続を Hub の観測者として包みます。
// gorilla/websocket は並行書き込みを許さないため、書き込みを直列化します。
type wsObserver struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Send は進捗メッセージをJSONで送信します。
func (o *wsObserver) Send(msg jobs.ProgressMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conn.WriteJSON(msg)
}

// ProgressSocketHandler は GET /ws/progress?id=:id のハンドラーを返します。
// 接続はクエリパラメータで指定された1つのジョブIDにのみ結び付きます。
// 切断しても対象のパイプラインには影響せず、プッシュが止まるだけです。
func ProgressSocketHandler(hub *jobs.Hub, logger *log.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = log.Default()
	}
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Query("id"))
		if jobID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id query parameter is required"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Printf("websocket upgrade failed: %v", err)
			return
		}

		obs := &wsObserver{conn: conn}
		hub.Attach(jobID, obs)
		defer func() {
			hub.Detach(jobID, obs)
			conn.Close()
		}()

		// 読み取りポンプ。クライアントは何も送らない想定だが、
		// 切断検知のために読み続ける必要がある。
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}
