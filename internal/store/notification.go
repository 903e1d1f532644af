package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// NotificationType は通知の種類。
type NotificationType string

const (
	// NotificationTypeLike はいいねによる通知。いいね解除で削除される。
	NotificationTypeLike NotificationType = "like"
	// NotificationTypeComment はコメントによる通知。後続の操作で削除されることはない。
	NotificationTypeComment NotificationType = "comment"
)

// Notification は通知レコード。
type Notification struct {
	// ID は通知の一意識別子（UUID）。
	ID string
	// RecipientID は通知の受信者のユーザーID。
	RecipientID string
	// SenderID は通知を発生させたユーザーのID。
	SenderID string
	// SenderUsername は通知発生時点の送信者ユーザー名スナップショット。
	SenderUsername string
	// Type は通知の種類。
	Type NotificationType
	// PostID は対象投稿のID。投稿削除後も残る。
	PostID string
	// PostText は投稿本文の抜粋。
	PostText string
	// CommentText はコメント本文の抜粋（comment通知のみ）。
	CommentText string
	// IsRead は既読状態。
	IsRead bool
	// CreatedAt は作成日時。
	CreatedAt time.Time
}

// CreateNotificationParams はCreateNotificationの引数。
type CreateNotificationParams struct {
	// ID は通知の一意識別子（UUID）。
	ID string
	// RecipientID は通知の受信者のユーザーID。
	RecipientID string
	// SenderID は通知を発生させたユーザーのID。
	SenderID string
	// SenderUsername は送信者のユーザー名。
	SenderUsername string
	// Type は通知の種類。
	Type NotificationType
	// PostID は対象投稿のID。
	PostID string
	// PostText は投稿本文の抜粋。
	PostText string
	// CommentText はコメント本文の抜粋（comment通知のみ）。
	CommentText string
}

// CreateNotification は通知を作成する。常に永続化する。
// 自分自身の操作に対する通知の抑止は呼び出し側（FeedService）の責務。
func (s *Store) CreateNotification(ctx context.Context, params CreateNotificationParams) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications
		 (id, recipient_id, sender_id, sender_username, type, post_id, post_text, comment_text, is_read, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		params.ID, params.RecipientID, params.SenderID, params.SenderUsername,
		string(params.Type), params.PostID, params.PostText, params.CommentText, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("通知の作成に失敗: %w", err)
	}
	return nil
}

// DeleteLikeNotification は (受信者, 送信者, 投稿) に一致するlike通知を最大1件削除する。
// 一致する通知が存在しない場合もエラーにしない。いいね解除時のベストエフォート削除に使う。
func (s *Store) DeleteLikeNotification(ctx context.Context, recipientID, senderID, postID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE id = (
		   SELECT id FROM notifications
		   WHERE recipient_id = ? AND sender_id = ? AND post_id = ? AND type = ?
		   LIMIT 1
		 )`,
		recipientID, senderID, postID, string(NotificationTypeLike),
	)
	if err != nil {
		return fmt.Errorf("like通知の削除に失敗: %w", err)
	}
	return nil
}

// ListNotificationsByRecipient は受信者の通知を作成日時の降順で返す。
func (s *Store) ListNotificationsByRecipient(ctx context.Context, recipientID string) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recipient_id, sender_id, sender_username, type, post_id, post_text, comment_text, is_read, created_at
		 FROM notifications WHERE recipient_id = ? ORDER BY created_at DESC, rowid DESC`,
		recipientID,
	)
	if err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	notifications := []Notification{}
	for rows.Next() {
		var n Notification
		var typ string
		var isRead int
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.SenderID, &n.SenderUsername,
			&typ, &n.PostID, &n.PostText, &n.CommentText, &isRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("通知一覧の読み出しに失敗: %w", err)
		}
		n.Type = NotificationType(typ)
		n.IsRead = isRead != 0
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("通知一覧の読み出しに失敗: %w", err)
	}
	return notifications, nil
}

// CountUnreadNotifications は受信者の未読通知数を返す。
func (s *Store) CountUnreadNotifications(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND is_read = 0`, recipientID).
		Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("未読通知数の取得に失敗: %w", err)
	}
	return count, nil
}

// GetNotificationByID はIDで通知を1件取得する。存在しない場合はErrNotFoundを返す。
func (s *Store) GetNotificationByID(ctx context.Context, id string) (*Notification, error) {
	var n Notification
	var typ string
	var isRead int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, recipient_id, sender_id, sender_username, type, post_id, post_text, comment_text, is_read, created_at
		 FROM notifications WHERE id = ?`, id).
		Scan(&n.ID, &n.RecipientID, &n.SenderID, &n.SenderUsername,
			&typ, &n.PostID, &n.PostText, &n.CommentText, &isRead, &n.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("通知: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("通知の取得に失敗: %w", err)
	}
	n.Type = NotificationType(typ)
	n.IsRead = isRead != 0
	return &n, nil
}

// MarkNotificationRead は通知を既読にする。
func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("通知の既読化に失敗: %w", err)
	}
	return nil
}

// MarkAllNotificationsRead は受信者の全未読通知を既読にし、更新件数を返す。
func (s *Store) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE recipient_id = ? AND is_read = 0`, recipientID)
	if err != nil {
		return 0, fmt.Errorf("全通知の既読化に失敗: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	return affected, nil
}
