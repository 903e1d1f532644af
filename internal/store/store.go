package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// スキーマ定義。いいねとコメントは投稿の子テーブルとして位置順に保持する。
// いいねは (ユーザーID, ユーザー名) のペアを1行で持ち、ワイヤ上の
// 2本の平行配列はAPI境界で射影する。
const schema = `
CREATE TABLE IF NOT EXISTS users (
    -- ユーザーの一意識別子（UUID）
    id TEXT PRIMARY KEY,
    -- ユーザー名（表示名。投稿・コメント・通知にスナップショットされる）
    username TEXT NOT NULL UNIQUE,
    -- メールアドレス
    email TEXT NOT NULL UNIQUE,
    -- bcryptでハッシュ化されたパスワード
    password_hash TEXT NOT NULL,
    -- 作成日時
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS posts (
    -- 投稿の一意識別子（UUID）
    id TEXT PRIMARY KEY,
    -- 投稿作成者のユーザーID
    author_id TEXT NOT NULL,
    -- 投稿作成時点のユーザー名スナップショット。名前変更時に一括更新される
    author_username TEXT NOT NULL,
    -- 投稿本文。画像のみの投稿では空文字列
    text TEXT NOT NULL DEFAULT '',
    -- 画像参照。画像なしの投稿では空文字列
    image_ref TEXT NOT NULL DEFAULT '',
    -- 作成日時
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS post_likes (
    -- 対象投稿のID
    post_id TEXT NOT NULL,
    -- いいねしたユーザーのID
    user_id TEXT NOT NULL,
    -- いいね時点のユーザー名スナップショット
    username TEXT NOT NULL,
    -- 投稿内での表示順。追加のたびに末尾の次の値を振る
    position INTEGER NOT NULL,
    PRIMARY KEY (post_id, user_id)
);

CREATE TABLE IF NOT EXISTS post_comments (
    -- コメントの一意識別子（UUID）
    id TEXT PRIMARY KEY,
    -- 対象投稿のID
    post_id TEXT NOT NULL,
    -- コメント作成者のユーザーID
    author_id TEXT NOT NULL,
    -- コメント作成時点のユーザー名スナップショット。名前変更時に一括更新される
    author_username TEXT NOT NULL,
    -- コメント本文
    text TEXT NOT NULL,
    -- 投稿内での表示順。追記専用で並び替えは行わない
    position INTEGER NOT NULL,
    -- 作成日時
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
    -- 通知の一意識別子（UUID）
    id TEXT PRIMARY KEY,
    -- 通知の受信者のユーザーID
    recipient_id TEXT NOT NULL,
    -- 通知を発生させたユーザーのID
    sender_id TEXT NOT NULL,
    -- 通知発生時点の送信者ユーザー名スナップショット
    sender_username TEXT NOT NULL,
    -- 通知の種類（like または comment）
    type TEXT NOT NULL,
    -- 対象投稿のID。投稿削除後も残る（参照切れは許容される）
    post_id TEXT NOT NULL,
    -- 投稿本文の抜粋（先頭50文字。画像のみの投稿ではプレースホルダ）
    post_text TEXT NOT NULL DEFAULT '',
    -- コメント本文の抜粋（先頭100文字。comment通知のみ）
    comment_text TEXT NOT NULL DEFAULT '',
    -- 既読状態
    is_read INTEGER NOT NULL DEFAULT 0,
    -- 作成日時
    created_at DATETIME NOT NULL
);

-- フィードの新着順取得を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_posts_created_at
    ON posts(created_at DESC);

-- 名前変更の一括反映を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_posts_author_id
    ON posts(author_id);
CREATE INDEX IF NOT EXISTS idx_post_comments_author_id
    ON post_comments(author_id);

-- 投稿配下のコメント取得を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_post_comments_post_id
    ON post_comments(post_id);

-- 受信者での通知検索を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_notifications_recipient_id
    ON notifications(recipient_id);

-- 未読通知の検索を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_notifications_unread
    ON notifications(recipient_id, is_read) WHERE is_read = 0;
`

// Store はSQLiteを使った永続化層。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// Open は指定パスのSQLiteデータベースを開き、スキーマを適用したStoreを返す。
// pathに ":memory:" を渡すとインメモリデータベースを使用する（テスト用）。
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	// SQLiteは単一ライタなので接続は1本に固定する。インメモリDBでは
	// 接続ごとに別のデータベースが作られるため、この設定は必須でもある。
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// queryer はdatabase/sqlの*sql.DBと*sql.Txの共通部分。
// 子テーブルの読み出しをトランザクション内外の両方から使えるようにする。
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// txMaxRetries は混雑時にトランザクションをやり直す最大回数。
// リトライは単一トランザクションに限定され、リクエスト全体には及ばない。
const txMaxRetries = 3

// execTx はfnを単一トランザクション内で実行する。
// SQLITE_BUSYで失敗した場合はそのトランザクションだけを限定回数やり直し、
// それでも解消しなければErrBusyを返す。fnがエラーを返した場合はロールバックする。
func (s *Store) execTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var err error
	for attempt := 0; attempt < txMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 10 * time.Millisecond):
			}
		}

		err = s.runTx(ctx, fn)
		if err == nil || !isBusy(err) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrBusy, err)
}

// runTx はトランザクションを1回実行する。コミットまたはロールバックのどちらかで
// 必ず終端し、部分適用の状態を残さない。
func (s *Store) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("ロールバックに失敗: %v（元のエラー: %w）", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	return nil
}

// isBusy はエラーがSQLiteのロック競合によるものかどうかを判定する。
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
