package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/feedhub/internal/notification"
	"github.com/nao1215/feedhub/internal/store"
	"github.com/nao1215/feedhub/pkg/blob"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// setupTestServer はテスト用の投稿サーバーをインメモリストアで構築する。
// JWTミドルウェアの代わりにヘッダからユーザー情報を設定するテスト用
// ミドルウェアを使用する。
func setupTestServer(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("インメモリストアの作成に失敗: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	blobs, err := blob.New(t.TempDir())
	if err != nil {
		t.Fatalf("画像ストレージの作成に失敗: %v", err)
	}

	svc := NewService(st, notification.NewService(st), &recordingPublisher{})
	server := NewServer(svc, blobs)

	router := gin.New()
	api := router.Group("/api/v1")
	authed := router.Group("/api/v1")
	authed.Use(func(c *gin.Context) {
		if userID := c.GetHeader("X-User-ID"); userID != "" {
			c.Set("user_id", userID)
			c.Set("username", c.GetHeader("X-User-Name"))
		}
		c.Next()
	})
	server.RegisterRoutes(api, authed)

	return router, svc
}

// doJSONRequest はテスト用のJSONリクエストを実行するヘルパー関数。
func doJSONRequest(router *gin.Engine, method, path, userID, username string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
		req.Header.Set("X-User-Name", username)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// doCreatePost はmultipart形式で投稿を作成するヘルパー関数。
func doCreatePost(t *testing.T, router *gin.Engine, userID, username, text string) map[string]any {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("text", text); err != nil {
		t.Fatalf("multipartフィールドの書き込みに失敗: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("multipartのクローズに失敗: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/posts", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-User-ID", userID)
	req.Header.Set("X-User-Name", username)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("投稿の作成に失敗: status=%d, body=%s", w.Code, w.Body.String())
	}
	return parseJSON(t, w)
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

// TestCreatePostEndpoint は投稿作成エンドポイントを検証する。
func TestCreatePostEndpoint(t *testing.T) {
	t.Parallel()

	router, _ := setupTestServer(t)

	post := doCreatePost(t, router, "user-1", "alice", "最初の投稿")
	if post["text"] != "最初の投稿" || post["username"] != "alice" {
		t.Errorf("投稿の内容が一致しません: %+v", post)
	}
	if post["likesCount"] != float64(0) || post["commentsCount"] != float64(0) {
		t.Errorf("新規投稿のカウントが0ではありません: %+v", post)
	}
}

// TestCreatePostEndpointValidation は本文も画像もない作成が400になることを検証する。
func TestCreatePostEndpointValidation(t *testing.T) {
	t.Parallel()

	router, _ := setupTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/posts", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-User-ID", "user-1")
	req.Header.Set("X-User-Name", "alice")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("ステータスコードが一致しません: got=%d, want=%d", w.Code, http.StatusBadRequest)
	}
}

// TestListPostsEndpoint はフィードのページングレスポンスを検証する。
func TestListPostsEndpoint(t *testing.T) {
	t.Parallel()

	router, _ := setupTestServer(t)

	texts := make([]string, 5)
	for i := 0; i < 5; i++ {
		texts[i] = fmt.Sprintf("投稿%d", i+1)
		doCreatePost(t, router, "user-1", "alice", texts[i])
	}

	w := doJSONRequest(router, http.MethodGet, "/api/v1/posts?page=1&limit=2", "", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("フィード取得に失敗: status=%d", w.Code)
	}
	body := parseJSON(t, w)

	if body["totalPosts"] != float64(5) || body["totalPages"] != float64(3) || body["currentPage"] != float64(1) {
		t.Errorf("ページ情報が一致しません: %+v", body)
	}

	posts, ok := body["posts"].([]any)
	if !ok || len(posts) != 2 {
		t.Fatalf("ページ1の投稿数が一致しません: %+v", body["posts"])
	}
	first := posts[0].(map[string]any)
	if first["text"] != texts[4] {
		t.Errorf("新着順になっていません: got=%v, want=%v", first["text"], texts[4])
	}
}

// TestLikeEndpoint はいいねエンドポイントのレスポンス形式を検証する。
func TestLikeEndpoint(t *testing.T) {
	t.Parallel()

	router, _ := setupTestServer(t)
	post := doCreatePost(t, router, "author-1", "alice", "いいね対象")
	postID := post["id"].(string)

	w := doJSONRequest(router, http.MethodPost, "/api/v1/posts/"+postID+"/like", "user-2", "bob", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("いいねに失敗: status=%d, body=%s", w.Code, w.Body.String())
	}
	body := parseJSON(t, w)

	if body["likesCount"] != float64(1) {
		t.Errorf("いいね数が一致しません: %+v", body)
	}
	likes := body["likes"].([]any)
	usernames := body["likesUsernames"].([]any)
	if len(likes) != 1 || likes[0] != "user-2" || len(usernames) != 1 || usernames[0] != "bob" {
		t.Errorf("いいね列が一致しません: %+v", body)
	}

	// 存在しない投稿へのいいねは404
	w = doJSONRequest(router, http.MethodPost, "/api/v1/posts/no-such-post/like", "user-2", "bob", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("ステータスコードが一致しません: got=%d, want=%d", w.Code, http.StatusNotFound)
	}
}

// TestCommentEndpoint はコメントエンドポイントを検証する。
func TestCommentEndpoint(t *testing.T) {
	t.Parallel()

	router, _ := setupTestServer(t)
	post := doCreatePost(t, router, "author-1", "alice", "コメント対象")
	postID := post["id"].(string)

	w := doJSONRequest(router, http.MethodPost, "/api/v1/posts/"+postID+"/comment",
		"user-2", "bob", map[string]string{"text": "いい投稿ですね"})
	if w.Code != http.StatusCreated {
		t.Fatalf("コメントの追加に失敗: status=%d, body=%s", w.Code, w.Body.String())
	}
	body := parseJSON(t, w)

	if body["commentsCount"] != float64(1) {
		t.Errorf("コメント数が一致しません: %+v", body)
	}
	comments := body["comments"].([]any)
	first := comments[0].(map[string]any)
	if first["text"] != "いい投稿ですね" || first["username"] != "bob" {
		t.Errorf("コメントの内容が一致しません: %+v", first)
	}

	// 空白のみの本文は400
	w = doJSONRequest(router, http.MethodPost, "/api/v1/posts/"+postID+"/comment",
		"user-2", "bob", map[string]string{"text": "   "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("ステータスコードが一致しません: got=%d, want=%d", w.Code, http.StatusBadRequest)
	}
}

// TestDeletePostEndpoint は投稿削除エンドポイントの所有者チェックを検証する。
func TestDeletePostEndpoint(t *testing.T) {
	t.Parallel()

	router, _ := setupTestServer(t)
	post := doCreatePost(t, router, "author-1", "alice", "削除対象")
	postID := post["id"].(string)

	w := doJSONRequest(router, http.MethodDelete, "/api/v1/posts/"+postID, "other-user", "bob", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("ステータスコードが一致しません: got=%d, want=%d", w.Code, http.StatusForbidden)
	}

	w = doJSONRequest(router, http.MethodDelete, "/api/v1/posts/"+postID, "author-1", "alice", nil)
	if w.Code != http.StatusOK {
		t.Errorf("作成者による削除に失敗: status=%d, body=%s", w.Code, w.Body.String())
	}

	w = doJSONRequest(router, http.MethodGet, "/api/v1/posts/"+postID, "", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("削除後の取得が404になりません: got=%d", w.Code)
	}
}
