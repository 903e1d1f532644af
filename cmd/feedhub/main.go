// feedhubのエントリポイント。
// 投稿・いいね・コメント・通知を持つソーシャルフィードサーバーを起動し、
// すべての変更をWebSocket経由で接続中のクライアントへリアルタイム配信する。
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/feedhub/internal/auth"
	"github.com/nao1215/feedhub/internal/feed"
	"github.com/nao1215/feedhub/internal/hub"
	"github.com/nao1215/feedhub/internal/notification"
	"github.com/nao1215/feedhub/internal/store"
	"github.com/nao1215/feedhub/pkg/blob"
	"github.com/nao1215/feedhub/pkg/middleware"
)

func main() {
	port := getEnvOr("PORT", "8080")
	jwtSecret := getEnvOr("JWT_SECRET", "dev-secret-key")
	dbPath := getEnvOr("DB_PATH", "/data/feedhub.db")
	uploadDir := getEnvOr("UPLOAD_DIR", "/data/uploads")
	frontendURL := getEnvOr("FRONTEND_URL", "http://localhost:3000")

	st, err := store.Open(dbPath)
	if err != nil {
		log.Fatalf("ストアの初期化に失敗: %v", err)
	}
	defer st.Close()

	blobs, err := blob.New(uploadDir)
	if err != nil {
		log.Fatalf("画像ストレージの初期化に失敗: %v", err)
	}

	broadcastHub := hub.New()
	notificationService := notification.NewService(st)
	feedService := feed.NewService(st, notificationService, broadcastHub)

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS([]string{frontendURL}))

	api := router.Group("/api/v1")
	authed := router.Group("/api/v1")
	authed.Use(middleware.JWTAuth(jwtSecret))

	feed.NewServer(feedService, blobs).RegisterRoutes(api, authed)
	notification.NewServer(notificationService).RegisterRoutes(authed)
	auth.NewServer(st, feedService, jwtSecret).RegisterRoutes(api, authed)

	// ブロードキャストチャネル。認証はクエリパラメータのトークンで行う。
	wsServer := hub.NewServer(broadcastHub, jwtSecret)
	api.GET("/ws", wsServer.HandleWS)

	// アップロードされた画像の静的配信
	router.Static("/uploads", blobs.Dir())

	// ヘルスチェック
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "feedhub"})
	})

	log.Printf("feedhubを起動します: :%s", port)
	if err := router.Run(fmt.Sprintf(":%s", port)); err != nil {
		log.Fatalf("feedhubの起動に失敗: %v", err)
	}
}

// getEnvOr は環境変数の値を返す。未設定の場合はフォールバック値を返す。
func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
