package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// User はユーザーレコード。
type User struct {
	// ID はユーザーの一意識別子（UUID）。
	ID string
	// Username はユーザー名（一意）。
	Username string
	// Email はメールアドレス（一意）。
	Email string
	// PasswordHash はbcryptでハッシュ化されたパスワード。
	PasswordHash string
	// CreatedAt は作成日時。
	CreatedAt time.Time
}

// CreateUserParams はCreateUserの引数。
type CreateUserParams struct {
	// ID はユーザーの一意識別子（UUID）。
	ID string
	// Username はユーザー名。
	Username string
	// Email はメールアドレス。
	Email string
	// PasswordHash はbcryptでハッシュ化されたパスワード。
	PasswordHash string
}

// CreateUser は新しいユーザーを作成する。
// ユーザー名またはメールアドレスが既に使われている場合はErrConflictを返す。
func (s *Store) CreateUser(ctx context.Context, params CreateUserParams) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		params.ID, params.Username, params.Email, params.PasswordHash, time.Now().UTC(),
	)
	if err != nil {
		if field, ok := uniqueViolation(err); ok {
			return fmt.Errorf("%s: %w", field, ErrConflict)
		}
		return fmt.Errorf("ユーザーの作成に失敗: %w", err)
	}
	return nil
}

// GetUserByID はIDでユーザーを取得する。存在しない場合はErrNotFoundを返す。
func (s *Store) GetUserByID(ctx context.Context, id string) (*User, error) {
	return s.getUser(ctx, `SELECT id, username, email, password_hash, created_at FROM users WHERE id = ?`, id)
}

// GetUserByEmail はメールアドレスでユーザーを取得する。存在しない場合はErrNotFoundを返す。
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUser(ctx, `SELECT id, username, email, password_hash, created_at FROM users WHERE email = ?`, email)
}

// GetUserByUsername はユーザー名でユーザーを取得する。存在しない場合はErrNotFoundを返す。
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.getUser(ctx, `SELECT id, username, email, password_hash, created_at FROM users WHERE username = ?`, username)
}

// getUser は1件のユーザーを読み出す共通処理。
func (s *Store) getUser(ctx context.Context, query string, arg any) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, query, arg).
		Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ユーザー: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	return &u, nil
}

// UpdateUserProfile はユーザー名とメールアドレスを更新する。
// 他のユーザーが使用中の値を指定した場合はErrConflictを返す。
// 投稿・コメントへのスナップショットの反映はRenameAuthorが別途行う。
func (s *Store) UpdateUserProfile(ctx context.Context, id, username, email string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET username = ?, email = ? WHERE id = ?`,
		username, email, id,
	)
	if err != nil {
		if field, ok := uniqueViolation(err); ok {
			return fmt.Errorf("%s: %w", field, ErrConflict)
		}
		return fmt.Errorf("プロフィールの更新に失敗: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("ユーザー: %w", ErrNotFound)
	}
	return nil
}

// uniqueViolation はエラーがusersテーブルの一意制約違反かどうかを判定し、
// 違反したフィールドの表示名を返す。
func uniqueViolation(err error) (string, bool) {
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") && !strings.Contains(msg, "SQLITE_CONSTRAINT") {
		return "", false
	}
	if strings.Contains(msg, "users.email") {
		return "メールアドレス", true
	}
	if strings.Contains(msg, "users.username") {
		return "ユーザー名", true
	}
	return "指定された値", true
}
