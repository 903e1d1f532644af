package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nao1215/feedhub/internal/store"
)

// Service は通知のビジネスロジック。呼び出しの間に状態を持たない。
type Service struct {
	// store は永続化層。
	store *store.Store
}

// NewService は新しい通知サービスを生成する。
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// CreateParams はCreateの引数。
type CreateParams struct {
	// RecipientID は通知の受信者のユーザーID。
	RecipientID string
	// SenderID は通知を発生させたユーザーのID。
	SenderID string
	// SenderUsername は送信者のユーザー名。
	SenderUsername string
	// Type は通知の種類。
	Type store.NotificationType
	// PostID は対象投稿のID。
	PostID string
	// PostText は投稿本文の抜粋。
	PostText string
	// CommentText はコメント本文の抜粋（comment通知のみ）。
	CommentText string
}

// Create は通知を作成して永続化する。黙って何もしないことは許されない。
// 受信者と送信者が同一の場合の抑止チェックは呼び出し側が済ませていること。
func (s *Service) Create(ctx context.Context, params CreateParams) error {
	return s.store.CreateNotification(ctx, store.CreateNotificationParams{
		ID:             uuid.New().String(),
		RecipientID:    params.RecipientID,
		SenderID:       params.SenderID,
		SenderUsername: params.SenderUsername,
		Type:           params.Type,
		PostID:         params.PostID,
		PostText:       params.PostText,
		CommentText:    params.CommentText,
	})
}

// DeleteLikeNotification は (受信者, 送信者, 投稿) に一致するlike通知を最大1件削除する。
// 既に存在しない場合（既読後に消されている等）もエラーにしない。
func (s *Service) DeleteLikeNotification(ctx context.Context, recipientID, senderID, postID string) error {
	return s.store.DeleteLikeNotification(ctx, recipientID, senderID, postID)
}

// ListForUser はユーザーの通知を作成日時の降順で返す。
func (s *Service) ListForUser(ctx context.Context, userID string) ([]store.Notification, error) {
	return s.store.ListNotificationsByRecipient(ctx, userID)
}

// UnreadCount はユーザーの未読通知数を返す。
func (s *Service) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.store.CountUnreadNotifications(ctx, userID)
}

// MarkRead は通知を既読にし、更新後のレコードを返す。
// 通知が存在しない場合はErrNotFound、受信者がuserIDでない場合はErrForbiddenを返す。
func (s *Service) MarkRead(ctx context.Context, notificationID, userID string) (*store.Notification, error) {
	n, err := s.store.GetNotificationByID(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n.RecipientID != userID {
		return nil, fmt.Errorf("通知の既読化: %w", store.ErrForbidden)
	}

	if err := s.store.MarkNotificationRead(ctx, notificationID); err != nil {
		return nil, err
	}
	n.IsRead = true
	return n, nil
}

// MarkAllRead はユーザーの全未読通知を既読にし、更新件数を返す。
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.store.MarkAllNotificationsRead(ctx, userID)
}
