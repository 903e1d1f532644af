package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Liker は投稿にいいねしたユーザー。IDとユーザー名を1レコードで対にして保持し、
// 2本の平行配列の位置ずれをデータモデル上で起こせないようにしている。
type Liker struct {
	// UserID はいいねしたユーザーのID。
	UserID string
	// Username はいいね時点のユーザー名スナップショット。
	Username string
}

// Comment はコメントレコード。投稿の外では存在しない。
type Comment struct {
	// ID はコメントの一意識別子（UUID）。
	ID string
	// AuthorID はコメント作成者のユーザーID。
	AuthorID string
	// AuthorUsername はコメント作成時点のユーザー名スナップショット。
	AuthorUsername string
	// Text はコメント本文。
	Text string
	// CreatedAt は作成日時。
	CreatedAt time.Time
}

// Post は投稿レコード。いいねとコメントは子テーブルから位置順に復元される。
type Post struct {
	// ID は投稿の一意識別子（UUID）。
	ID string
	// AuthorID は投稿作成者のユーザーID。
	AuthorID string
	// AuthorUsername は投稿作成時点のユーザー名スナップショット。
	AuthorUsername string
	// Text は投稿本文。画像のみの投稿では空文字列。
	Text string
	// ImageRef は画像参照。画像なしの投稿では空文字列。
	ImageRef string
	// Likers はいいねしたユーザーの列（いいねした順）。
	Likers []Liker
	// Comments はコメントの列（追加順）。
	Comments []Comment
	// CreatedAt は作成日時。
	CreatedAt time.Time
}

// CreatePostParams はCreatePostの引数。
type CreatePostParams struct {
	// ID は投稿の一意識別子（UUID）。
	ID string
	// AuthorID は投稿作成者のユーザーID。
	AuthorID string
	// AuthorUsername は投稿作成者のユーザー名。
	AuthorUsername string
	// Text は投稿本文。省略可。
	Text string
	// ImageRef は画像参照。省略可。
	ImageRef string
}

// CreatePost は新しい投稿を作成する。本文と画像の両方が空の場合の検証は
// 呼び出し側（FeedService）が行う。
func (s *Store) CreatePost(ctx context.Context, params CreatePostParams) (*Post, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO posts (id, author_id, author_username, text, image_ref, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		params.ID, params.AuthorID, params.AuthorUsername, params.Text, params.ImageRef, now,
	)
	if err != nil {
		return nil, fmt.Errorf("投稿の作成に失敗: %w", err)
	}

	return &Post{
		ID:             params.ID,
		AuthorID:       params.AuthorID,
		AuthorUsername: params.AuthorUsername,
		Text:           params.Text,
		ImageRef:       params.ImageRef,
		Likers:         []Liker{},
		Comments:       []Comment{},
		CreatedAt:      now,
	}, nil
}

// GetPost はIDで投稿を1件取得する。存在しない場合はErrNotFoundを返す。
func (s *Store) GetPost(ctx context.Context, id string) (*Post, error) {
	post, err := scanPost(s.db.QueryRowContext(ctx,
		`SELECT id, author_id, author_username, text, image_ref, created_at FROM posts WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if err := s.loadPostChildren(ctx, s.db, post); err != nil {
		return nil, err
	}
	return post, nil
}

// ListPosts は投稿を作成日時の降順でページングして返す。
// 戻り値の2番目は全投稿数。
func (s *Store) ListPosts(ctx context.Context, page, limit int) ([]*Post, int64, error) {
	offset := (page - 1) * limit

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, author_id, author_username, text, image_ref, created_at
		 FROM posts ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("投稿一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	posts := make([]*Post, 0, limit)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, 0, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("投稿一覧の読み出しに失敗: %w", err)
	}

	for _, post := range posts {
		if err := s.loadPostChildren(ctx, s.db, post); err != nil {
			return nil, 0, err
		}
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("投稿数の取得に失敗: %w", err)
	}

	return posts, total, nil
}

// ToggleLikeResult はToggleLikeの結果。
type ToggleLikeResult struct {
	// PostAuthorID は対象投稿の作成者のユーザーID。通知の宛先判定に使う。
	PostAuthorID string
	// PostText は対象投稿の本文。通知の抜粋生成に使う。
	PostText string
	// PostImageRef は対象投稿の画像参照。
	PostImageRef string
	// Likers はトグル後のいいねユーザー列（いいねした順）。
	Likers []Liker
	// Liked は操作したユーザーがいいねした状態になったかどうか。
	// falseはいいね解除を意味する。
	Liked bool
}

// ToggleLike は投稿へのいいねをトグルする。
// 既にいいねしていれば解除し、していなければ末尾に追加する。
// 読み出しから書き込みまでを単一トランザクションで行い、同一投稿への
// 並行トグルが互いの変更を失わないことを保証する。
// 投稿が存在しない場合はErrNotFoundを返す。
func (s *Store) ToggleLike(ctx context.Context, postID, userID, username string) (*ToggleLikeResult, error) {
	var result *ToggleLikeResult
	err := s.execTx(ctx, func(tx *sql.Tx) error {
		var authorID, text, imageRef string
		err := tx.QueryRowContext(ctx,
			`SELECT author_id, text, image_ref FROM posts WHERE id = ?`, postID).
			Scan(&authorID, &text, &imageRef)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("投稿: %w", ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("投稿の取得に失敗: %w", err)
		}

		var exists int
		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM post_likes WHERE post_id = ? AND user_id = ?`, postID, userID).
			Scan(&exists)
		if err != nil {
			return fmt.Errorf("いいね状態の取得に失敗: %w", err)
		}

		liked := exists == 0
		if liked {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO post_likes (post_id, user_id, username, position)
				 VALUES (?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM post_likes WHERE post_id = ?))`,
				postID, userID, username, postID,
			)
			if err != nil {
				return fmt.Errorf("いいねの追加に失敗: %w", err)
			}
		} else {
			_, err = tx.ExecContext(ctx,
				`DELETE FROM post_likes WHERE post_id = ? AND user_id = ?`, postID, userID)
			if err != nil {
				return fmt.Errorf("いいねの解除に失敗: %w", err)
			}
		}

		likers, err := loadLikers(ctx, tx, postID)
		if err != nil {
			return err
		}

		result = &ToggleLikeResult{
			PostAuthorID: authorID,
			PostText:     text,
			PostImageRef: imageRef,
			Likers:       likers,
			Liked:        liked,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AddCommentParams はAddCommentの引数。
type AddCommentParams struct {
	// ID はコメントの一意識別子（UUID）。
	ID string
	// PostID は対象投稿のID。
	PostID string
	// AuthorID はコメント作成者のユーザーID。
	AuthorID string
	// AuthorUsername はコメント作成者のユーザー名。
	AuthorUsername string
	// Text はコメント本文。空でないことの検証は呼び出し側が行う。
	Text string
}

// AddCommentResult はAddCommentの結果。
type AddCommentResult struct {
	// PostAuthorID は対象投稿の作成者のユーザーID。
	PostAuthorID string
	// PostText は対象投稿の本文。
	PostText string
	// PostImageRef は対象投稿の画像参照。
	PostImageRef string
	// Created は追加されたコメント。
	Created Comment
	// Comments は追加後の全コメント（追加順）。
	Comments []Comment
}

// AddComment は投稿の末尾にコメントを追記する。並び替えも重複排除も行わず、
// 同一ユーザーによる同一本文のコメントもすべて保持する。
// 投稿が存在しない場合はErrNotFoundを返す。
func (s *Store) AddComment(ctx context.Context, params AddCommentParams) (*AddCommentResult, error) {
	var result *AddCommentResult
	err := s.execTx(ctx, func(tx *sql.Tx) error {
		var authorID, text, imageRef string
		err := tx.QueryRowContext(ctx,
			`SELECT author_id, text, image_ref FROM posts WHERE id = ?`, params.PostID).
			Scan(&authorID, &text, &imageRef)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("投稿: %w", ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("投稿の取得に失敗: %w", err)
		}

		now := time.Now().UTC()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO post_comments (id, post_id, author_id, author_username, text, position, created_at)
			 VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM post_comments WHERE post_id = ?), ?)`,
			params.ID, params.PostID, params.AuthorID, params.AuthorUsername, params.Text, params.PostID, now,
		)
		if err != nil {
			return fmt.Errorf("コメントの追加に失敗: %w", err)
		}

		comments, err := loadComments(ctx, tx, params.PostID)
		if err != nil {
			return err
		}

		result = &AddCommentResult{
			PostAuthorID: authorID,
			PostText:     text,
			PostImageRef: imageRef,
			Created: Comment{
				ID:             params.ID,
				AuthorID:       params.AuthorID,
				AuthorUsername: params.AuthorUsername,
				Text:           params.Text,
				CreatedAt:      now,
			},
			Comments: comments,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeletePost は投稿とその配下のいいね・コメントを削除する。
// 投稿が存在しない場合はErrNotFound、requesterが作成者でない場合はErrForbiddenを返す。
// 通知は削除しない。参照切れの通知は抜粋だけで表示できるため許容される。
func (s *Store) DeletePost(ctx context.Context, postID, requesterID string) error {
	return s.execTx(ctx, func(tx *sql.Tx) error {
		var authorID string
		err := tx.QueryRowContext(ctx, `SELECT author_id FROM posts WHERE id = ?`, postID).Scan(&authorID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("投稿: %w", ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("投稿の取得に失敗: %w", err)
		}

		if authorID != requesterID {
			return fmt.Errorf("投稿の削除: %w", ErrForbidden)
		}

		for _, q := range []string{
			`DELETE FROM post_likes WHERE post_id = ?`,
			`DELETE FROM post_comments WHERE post_id = ?`,
			`DELETE FROM posts WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, postID); err != nil {
				return fmt.Errorf("投稿の削除に失敗: %w", err)
			}
		}
		return nil
	})
}

// RenameAuthor はユーザー名の変更を非正規化されたスナップショットへ一括反映する。
// 対象はそのユーザーが作成した全投稿のauthor_usernameと全コメントのauthor_username。
// ユーザーレコード本体の更新（UpdateUserProfile）とは別トランザクションでよいが、
// 対応するブロードキャストより前に完了している必要がある。
func (s *Store) RenameAuthor(ctx context.Context, userID, newUsername string) error {
	return s.execTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE posts SET author_username = ? WHERE author_id = ?`, newUsername, userID); err != nil {
			return fmt.Errorf("投稿へのユーザー名反映に失敗: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE post_comments SET author_username = ? WHERE author_id = ?`, newUsername, userID); err != nil {
			return fmt.Errorf("コメントへのユーザー名反映に失敗: %w", err)
		}
		return nil
	})
}

// rowScanner は*sql.Rowと*sql.Rowsの共通部分。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanPost は投稿1行を読み出す。子テーブルは読み出さない。
func scanPost(row rowScanner) (*Post, error) {
	var p Post
	err := row.Scan(&p.ID, &p.AuthorID, &p.AuthorUsername, &p.Text, &p.ImageRef, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("投稿: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("投稿の読み出しに失敗: %w", err)
	}
	return &p, nil
}

// loadPostChildren は投稿のいいねとコメントを読み出して埋める。
func (s *Store) loadPostChildren(ctx context.Context, q queryer, post *Post) error {
	likers, err := loadLikers(ctx, q, post.ID)
	if err != nil {
		return err
	}
	comments, err := loadComments(ctx, q, post.ID)
	if err != nil {
		return err
	}
	post.Likers = likers
	post.Comments = comments
	return nil
}

// loadLikers は投稿のいいねユーザー列を位置順に読み出す。
func loadLikers(ctx context.Context, q queryer, postID string) ([]Liker, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT user_id, username FROM post_likes WHERE post_id = ? ORDER BY position`, postID)
	if err != nil {
		return nil, fmt.Errorf("いいね一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	likers := []Liker{}
	for rows.Next() {
		var l Liker
		if err := rows.Scan(&l.UserID, &l.Username); err != nil {
			return nil, fmt.Errorf("いいね一覧の読み出しに失敗: %w", err)
		}
		likers = append(likers, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("いいね一覧の読み出しに失敗: %w", err)
	}
	return likers, nil
}

// loadComments は投稿のコメント列を位置順に読み出す。
func loadComments(ctx context.Context, q queryer, postID string) ([]Comment, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, author_id, author_username, text, created_at
		 FROM post_comments WHERE post_id = ? ORDER BY position`, postID)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	comments := []Comment{}
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.AuthorID, &c.AuthorUsername, &c.Text, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("コメント一覧の読み出しに失敗: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("コメント一覧の読み出しに失敗: %w", err)
	}
	return comments, nil
}
