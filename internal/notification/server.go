package notification

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/feedhub/internal/store"
	"github.com/nao1215/feedhub/pkg/middleware"
)

// Server は通知APIのHTTPハンドラ群。
type Server struct {
	// service は通知のビジネスロジック。
	service *Service
}

// NewServer は新しい通知サーバーを生成する。
func NewServer(service *Service) *Server {
	return &Server{service: service}
}

// RegisterRoutes は認証必須グループに通知APIのルーティングを設定する。
func (s *Server) RegisterRoutes(authed *gin.RouterGroup) {
	notifications := authed.Group("/notifications")
	{
		// 通知一覧取得
		notifications.GET("", s.handleList())
		// 未読通知数取得
		notifications.GET("/unread-count", s.handleUnreadCount())
		// 通知を既読にする
		notifications.PUT("/:id/read", s.handleMarkRead())
		// 全通知を既読にする
		notifications.PUT("/read-all", s.handleMarkAllRead())
	}
}

// notificationResponse は通知のJSONレスポンス構造。
type notificationResponse struct {
	// ID は通知の一意識別子。
	ID string `json:"id"`
	// RecipientID は通知の受信者のユーザーID。
	RecipientID string `json:"recipientId"`
	// SenderID は通知を発生させたユーザーのID。
	SenderID string `json:"senderId"`
	// SenderUsername は送信者のユーザー名スナップショット。
	SenderUsername string `json:"senderUsername"`
	// Type は通知の種類（like または comment）。
	Type string `json:"type"`
	// PostID は対象投稿のID。投稿が削除済みの場合は参照切れになる。
	PostID string `json:"postId"`
	// PostText は投稿本文の抜粋。参照切れでも表示にはこれを使う。
	PostText string `json:"postText"`
	// CommentText はコメント本文の抜粋（comment通知のみ）。
	CommentText string `json:"commentText,omitempty"`
	// IsRead は既読状態。
	IsRead bool `json:"isRead"`
	// CreatedAt は作成日時（RFC3339形式）。
	CreatedAt string `json:"createdAt"`
}

// toNotificationResponse はストアのレコードをJSONレスポンスに変換する。
func toNotificationResponse(n store.Notification) notificationResponse {
	return notificationResponse{
		ID:             n.ID,
		RecipientID:    n.RecipientID,
		SenderID:       n.SenderID,
		SenderUsername: n.SenderUsername,
		Type:           string(n.Type),
		PostID:         n.PostID,
		PostText:       n.PostText,
		CommentText:    n.CommentText,
		IsRead:         n.IsRead,
		CreatedAt:      n.CreatedAt.Format(time.RFC3339),
	}
}

// handleList は認証済みユーザーの通知一覧を返すハンドラ。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		notifications, err := s.service.ListForUser(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知一覧の取得に失敗しました"})
			log.Printf("通知一覧取得エラー: %v", err)
			return
		}

		responses := make([]notificationResponse, 0, len(notifications))
		for _, n := range notifications {
			responses = append(responses, toNotificationResponse(n))
		}
		c.JSON(http.StatusOK, responses)
	}
}

// handleUnreadCount は認証済みユーザーの未読通知数を返すハンドラ。
// newNotificationイベントを受け取ったクライアントがここを再取得する。
func (s *Server) handleUnreadCount() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		count, err := s.service.UnreadCount(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "未読通知数の取得に失敗しました"})
			log.Printf("未読通知数取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"count": count})
	}
}

// handleMarkRead は指定された通知を既読にするハンドラ。
func (s *Server) handleMarkRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		notificationID := c.Param("id")
		if notificationID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "通知IDが必要です"})
			return
		}

		n, err := s.service.MarkRead(c.Request.Context(), notificationID, userID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "通知が見つかりません"})
			return
		case errors.Is(err, store.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "この通知を操作する権限がありません"})
			return
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の既読処理に失敗しました"})
			log.Printf("通知既読処理エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toNotificationResponse(*n))
	}
}

// handleMarkAllRead は認証済みユーザーの全通知を既読にするハンドラ。
func (s *Server) handleMarkAllRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		updated, err := s.service.MarkAllRead(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "全通知の既読処理に失敗しました"})
			log.Printf("全通知既読処理エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"updated": updated})
	}
}
