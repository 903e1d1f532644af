package feed

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/feedhub/internal/notification"
	"github.com/nao1215/feedhub/internal/store"
	"github.com/nao1215/feedhub/pkg/event"
)

const (
	// maxPostTextLen は投稿本文の最大文字数。
	maxPostTextLen = 1000
	// defaultPageSize はフィードの1ページあたりの既定件数。
	defaultPageSize = 20
	// postExcerptLen は通知に埋め込む投稿本文の抜粋の最大文字数。
	postExcerptLen = 50
	// commentExcerptLen は通知に埋め込むコメント本文の抜粋の最大文字数。
	commentExcerptLen = 100
	// imageOnlyExcerpt は画像のみの投稿の抜粋に使うプレースホルダ。
	imageOnlyExcerpt = "[Image]"
)

// Publisher はコミット済みの変更をブロードキャストする出口。
// 実体はinternal/hubのHub。発行は呼び出し側から見て非ブロッキングであること。
type Publisher interface {
	Publish(eventType event.Type, data any)
}

// Service はフィードのビジネスロジック。呼び出しの間に状態を持たず、
// 投稿ごとの並行制御はストアのトランザクションとpostLocksで行う。
type Service struct {
	// store は永続化層。
	store *store.Store
	// notifications は通知サービス。
	notifications *notification.Service
	// publisher はドメインイベントの発行先。
	publisher Publisher
	// postLocks は投稿IDごとのロック。ストアのコミットとイベント発行を
	// ひとまとまりにし、同一投稿のイベントがコミット順で発行されることを保証する。
	postLocks sync.Map
}

// NewService は新しいフィードサービスを生成する。
func NewService(st *store.Store, notifications *notification.Service, publisher Publisher) *Service {
	return &Service{
		store:         st,
		notifications: notifications,
		publisher:     publisher,
	}
}

// lockPost は投稿IDに対応するロックを返す。
func (s *Service) lockPost(postID string) *sync.Mutex {
	mu, _ := s.postLocks.LoadOrStore(postID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// CreatePost は新しい投稿を作成し、postCreatedイベントを発行する。
// 本文と画像の両方が空の場合はErrValidationを返す。
func (s *Service) CreatePost(ctx context.Context, authorID, authorUsername, text, imageRef string) (*event.Post, error) {
	text = strings.TrimSpace(text)
	if text == "" && imageRef == "" {
		return nil, fmt.Errorf("本文または画像のいずれかが必要です: %w", store.ErrValidation)
	}
	if len([]rune(text)) > maxPostTextLen {
		return nil, fmt.Errorf("本文は%d文字以内で入力してください: %w", maxPostTextLen, store.ErrValidation)
	}

	post, err := s.store.CreatePost(ctx, store.CreatePostParams{
		ID:             uuid.New().String(),
		AuthorID:       authorID,
		AuthorUsername: authorUsername,
		Text:           text,
		ImageRef:       imageRef,
	})
	if err != nil {
		return nil, err
	}

	wire := toWirePost(post)
	s.publisher.Publish(event.TypePostCreated, wire)
	return wire, nil
}

// GetPost はIDで投稿を1件取得する。
func (s *Service) GetPost(ctx context.Context, postID string) (*event.Post, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	return toWirePost(post), nil
}

// ListPosts は投稿を作成日時の降順でページングして返す。副作用はない。
// pageは1以上、pageSizeは1以上（0以下なら既定値）。
func (s *Service) ListPosts(ctx context.Context, page, pageSize int) ([]*event.Post, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}

	posts, total, err := s.store.ListPosts(ctx, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	wires := make([]*event.Post, 0, len(posts))
	for _, p := range posts {
		wires = append(wires, toWirePost(p))
	}
	return wires, total, nil
}

// ToggleLike は投稿へのいいねをトグルし、postLikedイベントを発行する。
// いいね側では作成者への通知を作成し（自分の投稿を除く）、解除側では対応する
// like通知をベストエフォートで削除する。通知の成否にかかわらずpostLikedは発行される。
// 戻り値はトグル後のいいねユーザーID列・ユーザー名列・操作者のいいね状態。
func (s *Service) ToggleLike(ctx context.Context, postID, userID, username string) (*event.PostLikedData, error) {
	mu := s.lockPost(postID)
	mu.Lock()
	defer mu.Unlock()

	result, err := s.store.ToggleLike(ctx, postID, userID, username)
	if err != nil {
		return nil, err
	}

	if result.Liked {
		// いいね通知は自分の投稿へのいいねでは作らない。
		if result.PostAuthorID != userID {
			err := s.notifications.Create(ctx, notification.CreateParams{
				RecipientID:    result.PostAuthorID,
				SenderID:       userID,
				SenderUsername: username,
				Type:           store.NotificationTypeLike,
				PostID:         postID,
				PostText:       postExcerpt(result.PostText, result.PostImageRef),
			})
			if err != nil {
				// 通知の失敗でいいね自体を失敗にはしない。コミット済みの変更は配送する。
				log.Printf("like通知の作成に失敗: %v", err)
			} else {
				s.publisher.Publish(event.TypeNewNotification, event.NewNotificationData{
					UserID:           result.PostAuthorID,
					NotificationType: string(store.NotificationTypeLike),
				})
			}
		}
	} else {
		// いいね解除では対応するlike通知を削除する。通知の存在は現在のいいね状態を
		// 映す鏡であり、操作履歴のログではない。既に消えていても問題ない。
		if err := s.notifications.DeleteLikeNotification(ctx, result.PostAuthorID, userID, postID); err != nil {
			log.Printf("like通知の削除に失敗: %v", err)
		}
	}

	ids, usernames := projectLikers(result.Likers)
	data := &event.PostLikedData{
		PostID:         postID,
		Likes:          ids,
		LikesCount:     len(ids),
		LikesUsernames: usernames,
		IsLiked:        result.Liked,
	}
	s.publisher.Publish(event.TypePostLiked, *data)
	return data, nil
}

// AddComment は投稿にコメントを追記し、postCommentedイベントを発行する。
// 本文が空白のみの場合はErrValidationを返す。投稿作成者以外のコメントでは
// comment通知を作成する。comment通知は追記専用で、後から削除されることはない。
func (s *Service) AddComment(ctx context.Context, postID, authorID, authorUsername, text string) (*event.PostCommentedData, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("コメント本文は必須です: %w", store.ErrValidation)
	}

	mu := s.lockPost(postID)
	mu.Lock()
	defer mu.Unlock()

	result, err := s.store.AddComment(ctx, store.AddCommentParams{
		ID:             uuid.New().String(),
		PostID:         postID,
		AuthorID:       authorID,
		AuthorUsername: authorUsername,
		Text:           text,
	})
	if err != nil {
		return nil, err
	}

	if result.PostAuthorID != authorID {
		err := s.notifications.Create(ctx, notification.CreateParams{
			RecipientID:    result.PostAuthorID,
			SenderID:       authorID,
			SenderUsername: authorUsername,
			Type:           store.NotificationTypeComment,
			PostID:         postID,
			PostText:       postExcerpt(result.PostText, result.PostImageRef),
			CommentText:    truncateRunes(text, commentExcerptLen),
		})
		if err != nil {
			log.Printf("comment通知の作成に失敗: %v", err)
		} else {
			s.publisher.Publish(event.TypeNewNotification, event.NewNotificationData{
				UserID:           result.PostAuthorID,
				NotificationType: string(store.NotificationTypeComment),
			})
		}
	}

	data := &event.PostCommentedData{
		PostID:        postID,
		Comments:      toWireComments(result.Comments),
		CommentsCount: len(result.Comments),
	}
	s.publisher.Publish(event.TypePostCommented, *data)
	return data, nil
}

// DeletePost は投稿を削除し、postDeletedイベントを発行する。
// 作成者以外が要求した場合はErrForbiddenを返す。配下のコメントは投稿とともに
// 消えるが、通知のカスケード削除は行わない。
func (s *Service) DeletePost(ctx context.Context, postID, requesterID string) error {
	mu := s.lockPost(postID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.store.DeletePost(ctx, postID, requesterID); err != nil {
		return err
	}

	s.publisher.Publish(event.TypePostDeleted, event.PostDeletedData{PostID: postID})
	return nil
}

// RenameAuthor はユーザー名の変更を全投稿・全コメントのスナップショットへ反映し、
// 反映完了後にusernameChangedイベントを発行する。反映はユーザーレコード本体の
// 更新とは別トランザクションであり、結果整合でよい。
func (s *Service) RenameAuthor(ctx context.Context, userID, oldUsername, newUsername string) error {
	if err := s.store.RenameAuthor(ctx, userID, newUsername); err != nil {
		return err
	}

	s.publisher.Publish(event.TypeUsernameChanged, event.UsernameChangedData{
		UserID:      userID,
		OldUsername: oldUsername,
		NewUsername: newUsername,
	})
	return nil
}

// postExcerpt は通知用の投稿本文抜粋を作る。画像のみの投稿ではプレースホルダを返す。
func postExcerpt(text, imageRef string) string {
	if text == "" && imageRef != "" {
		return imageOnlyExcerpt
	}
	return truncateRunes(text, postExcerptLen)
}

// truncateRunes は文字列を先頭limit文字に切り詰める。マルチバイト文字を壊さない。
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// projectLikers はいいねユーザーのペア列をワイヤ上の2本の平行配列へ射影する。
// 両者は常に同じ長さ・同じ順序になる。
func projectLikers(likers []store.Liker) (ids, usernames []string) {
	ids = make([]string, 0, len(likers))
	usernames = make([]string, 0, len(likers))
	for _, l := range likers {
		ids = append(ids, l.UserID)
		usernames = append(usernames, l.Username)
	}
	return ids, usernames
}

// toWireComments はコメントレコード列をワイヤ表現へ変換する。
func toWireComments(comments []store.Comment) []event.Comment {
	wires := make([]event.Comment, 0, len(comments))
	for _, c := range comments {
		wires = append(wires, event.Comment{
			ID:        c.ID,
			UserID:    c.AuthorID,
			Username:  c.AuthorUsername,
			Text:      c.Text,
			CreatedAt: c.CreatedAt.Format(time.RFC3339),
		})
	}
	return wires
}

// toWirePost は投稿レコードをワイヤ表現へ変換する。
func toWirePost(p *store.Post) *event.Post {
	ids, usernames := projectLikers(p.Likers)
	return &event.Post{
		ID:             p.ID,
		UserID:         p.AuthorID,
		Username:       p.AuthorUsername,
		Text:           p.Text,
		Image:          p.ImageRef,
		Likes:          ids,
		LikesUsernames: usernames,
		LikesCount:     len(ids),
		Comments:       toWireComments(p.Comments),
		CommentsCount:  len(p.Comments),
		CreatedAt:      p.CreatedAt.Format(time.RFC3339),
	}
}
