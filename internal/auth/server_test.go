package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/feedhub/internal/feed"
	"github.com/nao1215/feedhub/internal/notification"
	"github.com/nao1215/feedhub/internal/store"
	"github.com/nao1215/feedhub/pkg/event"
	"github.com/nao1215/feedhub/pkg/middleware"
)

// testJWTSecret はテスト用のJWT秘密鍵。
const testJWTSecret = "test-secret-key"

func init() {
	gin.SetMode(gin.TestMode)
}

// nopPublisher はイベントを破棄するPublisher実装。
type nopPublisher struct{}

func (nopPublisher) Publish(event.Type, any) {}

// setupTestServer はテスト用の認証サーバーをインメモリストアで構築する。
// 認証必須グループには本物のJWTミドルウェアを適用する。
func setupTestServer(t *testing.T) (*gin.Engine, *feed.Service) {
	t.Helper()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("インメモリストアの作成に失敗: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	feedService := feed.NewService(st, notification.NewService(st), nopPublisher{})
	server := NewServer(st, feedService, testJWTSecret)

	router := gin.New()
	public := router.Group("/api/v1")
	authed := router.Group("/api/v1")
	authed.Use(middleware.JWTAuth(testJWTSecret))
	server.RegisterRoutes(public, authed)

	return router, feedService
}

// doJSONRequest はテスト用のJSONリクエストを実行するヘルパー関数。
func doJSONRequest(router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// parseJSON はレスポンスボディをmapにデコードするヘルパー関数。
func parseJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("JSONのデコードに失敗: %v, body=%s", err, w.Body.String())
	}
	return result
}

// doSignup はサインアップを実行してレスポンスを返すヘルパー関数。
func doSignup(t *testing.T, router *gin.Engine, username, email, password string) map[string]any {
	t.Helper()

	w := doJSONRequest(router, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("サインアップに失敗: status=%d, body=%s", w.Code, w.Body.String())
	}
	return parseJSON(t, w)
}

// TestSignupAndLogin はサインアップとログインの往復を検証する。
func TestSignupAndLogin(t *testing.T) {
	t.Parallel()

	router, _ := setupTestServer(t)

	signup := doSignup(t, router, "alice", "alice@example.com", "password123")
	if signup["username"] != "alice" || signup["email"] != "alice@example.com" {
		t.Errorf("サインアップレスポンスが一致しません: %+v", signup)
	}
	if token, ok := signup["token"].(string); !ok || token == "" {
		t.Errorf("トークンが返されていません: %+v", signup)
	}

	w := doJSONRequest(router, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "password123",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("ログインに失敗: status=%d, body=%s", w.Code, w.Body.String())
	}
	login := parseJSON(t, w)
	if login["id"] != signup["id"] {
		t.Errorf("ログインユーザーIDが一致しません: got=%v, want=%v", login["id"], signup["id"])
	}

	// パスワード不一致とユーザー不在は同じメッセージで401
	for _, req := range []map[string]string{
		{"email": "alice@example.com", "password": "wrong-password"},
		{"email": "nobody@example.com", "password": "password123"},
	} {
		w = doJSONRequest(router, http.MethodPost, "/api/v1/auth/login", "", req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコードが一致しません: got=%d, want=%d", w.Code, http.StatusUnauthorized)
		}
		body := parseJSON(t, w)
		if body["error"] != "メールアドレスまたはパスワードが正しくありません" {
			t.Errorf("エラーメッセージが一致しません: %+v", body)
		}
	}
}

// TestSignupValidation はサインアップの入力検証を検証する。
func TestSignupValidation(t *testing.T) {
	t.Parallel()

	router, _ := setupTestServer(t)

	tests := []struct {
		name string
		req  map[string]string
	}{
		{"ユーザー名が短すぎる", map[string]string{"username": "ab", "email": "a@example.com", "password": "password123"}},
		{"メールアドレスが不正", map[string]string{"username": "alice", "email": "not-an-email", "password": "password123"}},
		{"パスワードが短すぎる", map[string]string{"username": "alice", "email": "a@example.com", "password": "12345"}},
		{"必須項目の欠落", map[string]string{"username": "alice"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := doJSONRequest(router, http.MethodPost, "/api/v1/auth/signup", "", tt.req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("ステータスコードが一致しません: got=%d, want=%d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

// TestSignupDuplicate は重複するユーザー名・メールアドレスの拒否を検証する。
func TestSignupDuplicate(t *testing.T) {
	t.Parallel()

	router, _ := setupTestServer(t)
	doSignup(t, router, "alice", "alice@example.com", "password123")

	// メールアドレス重複
	w := doJSONRequest(router, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"username": "alice2", "email": "alice@example.com", "password": "password123",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("ステータスコードが一致しません: got=%d, want=%d", w.Code, http.StatusBadRequest)
	}

	// ユーザー名重複
	w = doJSONRequest(router, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"username": "alice", "email": "alice2@example.com", "password": "password123",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("ステータスコードが一致しません: got=%d, want=%d", w.Code, http.StatusBadRequest)
	}
}

// TestGetProfile はプロフィール取得とJWT認証を検証する。
func TestGetProfile(t *testing.T) {
	t.Parallel()

	router, _ := setupTestServer(t)
	signup := doSignup(t, router, "alice", "alice@example.com", "password123")
	token := signup["token"].(string)

	w := doJSONRequest(router, http.MethodGet, "/api/v1/users/profile", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("プロフィール取得に失敗: status=%d, body=%s", w.Code, w.Body.String())
	}
	profile := parseJSON(t, w)
	if profile["username"] != "alice" || profile["email"] != "alice@example.com" {
		t.Errorf("プロフィールが一致しません: %+v", profile)
	}

	// トークンなしは401
	w = doJSONRequest(router, http.MethodGet, "/api/v1/users/profile", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("ステータスコードが一致しません: got=%d, want=%d", w.Code, http.StatusUnauthorized)
	}
}

// TestUpdateProfileRename はユーザー名変更が投稿・コメントの
// スナップショットへ反映されることを検証する。
func TestUpdateProfileRename(t *testing.T) {
	t.Parallel()

	router, feedService := setupTestServer(t)
	signup := doSignup(t, router, "alice", "alice@example.com", "password123")
	token := signup["token"].(string)
	userID := signup["id"].(string)

	post, err := feedService.CreatePost(context.Background(), userID, "alice", "改名前の投稿", "")
	if err != nil {
		t.Fatalf("投稿の作成に失敗: %v", err)
	}
	if _, err := feedService.AddComment(context.Background(), post.ID, userID, "alice", "自分のコメント"); err != nil {
		t.Fatalf("コメントの追加に失敗: %v", err)
	}

	w := doJSONRequest(router, http.MethodPut, "/api/v1/users/profile", token, map[string]string{
		"username": "alice-renamed",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("プロフィール更新に失敗: status=%d, body=%s", w.Code, w.Body.String())
	}
	updated := parseJSON(t, w)
	if updated["username"] != "alice-renamed" {
		t.Errorf("更新後のユーザー名が一致しません: %+v", updated)
	}

	got, err := feedService.GetPost(context.Background(), post.ID)
	if err != nil {
		t.Fatalf("投稿の取得に失敗: %v", err)
	}
	if got.Username != "alice-renamed" {
		t.Errorf("投稿の作成者名が更新されていません: got=%q", got.Username)
	}
	if len(got.Comments) != 1 || got.Comments[0].Username != "alice-renamed" {
		t.Errorf("コメントの作成者名が更新されていません: %+v", got.Comments)
	}
}

// TestUpdateProfileConflict は使用中のユーザー名への変更が拒否されることを検証する。
func TestUpdateProfileConflict(t *testing.T) {
	t.Parallel()

	router, _ := setupTestServer(t)
	doSignup(t, router, "alice", "alice@example.com", "password123")
	signup := doSignup(t, router, "bob", "bob@example.com", "password123")
	token := signup["token"].(string)

	w := doJSONRequest(router, http.MethodPut, "/api/v1/users/profile", token, map[string]string{
		"username": "alice",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("ステータスコードが一致しません: got=%d, want=%d", w.Code, http.StatusBadRequest)
	}
}
