package hub

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/nao1215/feedhub/pkg/middleware"
)

const (
	// writeWait は1メッセージの書き込みに許す時間。
	writeWait = 10 * time.Second
	// pongWait はクライアントからのpong応答を待つ時間。
	pongWait = 60 * time.Second
	// pingPeriod はpingの送信間隔。pongWaitより短くする。
	pingPeriod = 50 * time.Second
)

// Server はWebSocketエンドポイントのHTTPハンドラ。
// 接続をハブの購読に変換し、切断を購読解除に変換する。
type Server struct {
	// hub は配送元のブロードキャストハブ。
	hub *Hub
	// jwtSecret はJWT検証用の秘密鍵。
	jwtSecret string
	// upgrader はHTTP接続をWebSocketへアップグレードする。
	upgrader websocket.Upgrader
}

// NewServer は新しいWebSocketサーバーを生成する。
func NewServer(h *Hub, jwtSecret string) *Server {
	return &Server{
		hub:       h,
		jwtSecret: jwtSecret,
		upgrader: websocket.Upgrader{
			// オリジン検証はCORSミドルウェアと同様にフロントエンドに開く。
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// HandleWS はWebSocket接続を処理するハンドラ。
// ブラウザのWebSocket APIはリクエストヘッダを設定できないため、
// 認証トークンはクエリパラメータで受け取る。
func (s *Server) HandleWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "tokenクエリパラメータが必要です"})
		return
	}
	claims, err := middleware.ParseToken(s.jwtSecret, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "トークンが無効です"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgradeが失敗した時点でレスポンスは書き込み済み。
		log.Printf("WebSocketへのアップグレードに失敗: %v", err)
		return
	}

	sub := s.hub.Subscribe()
	log.Printf("WebSocket接続を開始: user=%s remote=%s", claims.UserID, conn.RemoteAddr())

	// 読み取りループ。クライアントからのメッセージは扱わないが、
	// 切断とpong応答の検出のために必要。読み取りエラーで購読を解除する。
	go func() {
		defer s.hub.Unsubscribe(sub)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.writeLoop(conn, sub, claims.UserID)
}

// writeLoop は購読チャネルのメッセージを接続へ書き込み続ける。
// 書き込みエラーまたは購読解除で終了し、接続を閉じる。
// ひとつの接続の失敗は他の接続にも発行元にも影響しない。
func (s *Server) writeLoop(conn *websocket.Conn, sub *Subscription, userID string) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.hub.Unsubscribe(sub)
		if err := conn.Close(); err != nil {
			log.Printf("WebSocket接続のクローズに失敗: %v", err)
		}
		log.Printf("WebSocket接続を終了: user=%s", userID)
	}()

	for {
		select {
		case env, ok := <-sub.C():
			if !ok {
				// 購読解除済み。クローズフレームを送って終了する。
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
