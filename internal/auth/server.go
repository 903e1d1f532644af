package auth

import (
	"errors"
	"log"
	"net/http"
	"net/mail"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/nao1215/feedhub/internal/feed"
	"github.com/nao1215/feedhub/internal/store"
	"github.com/nao1215/feedhub/pkg/middleware"
)

const (
	// usernameMinLen はユーザー名の最小文字数。
	usernameMinLen = 3
	// usernameMaxLen はユーザー名の最大文字数。
	usernameMaxLen = 30
	// passwordMinLen はパスワードの最小文字数。
	passwordMinLen = 6
)

// Server は認証・プロフィールAPIのHTTPハンドラ群。
type Server struct {
	// store は永続化層。
	store *store.Store
	// feed はユーザー名変更の一括反映に使うフィードサービス。
	feed *feed.Service
	// jwtSecret はJWT署名用の秘密鍵。
	jwtSecret string
}

// NewServer は新しい認証サーバーを生成する。
func NewServer(st *store.Store, feedService *feed.Service, jwtSecret string) *Server {
	return &Server{store: st, feed: feedService, jwtSecret: jwtSecret}
}

// RegisterRoutes は認証APIのルーティングを設定する。
// サインアップとログインは公開、プロフィールは認証必須。
func (s *Server) RegisterRoutes(public, authed *gin.RouterGroup) {
	authGroup := public.Group("/auth")
	{
		// ユーザー登録
		authGroup.POST("/signup", s.handleSignup())
		// ログイン
		authGroup.POST("/login", s.handleLogin())
	}

	users := authed.Group("/users")
	{
		// プロフィール取得
		users.GET("/profile", s.handleGetProfile())
		// プロフィール更新（ユーザー名・メールアドレス）
		users.PUT("/profile", s.handleUpdateProfile())
	}
}

// userResponse はユーザーのJSONレスポンス構造。パスワードは含まない。
type userResponse struct {
	// ID はユーザーの一意識別子。
	ID string `json:"id"`
	// Username はユーザー名。
	Username string `json:"username"`
	// Email はメールアドレス。
	Email string `json:"email"`
	// CreatedAt は作成日時（RFC3339形式）。
	CreatedAt string `json:"createdAt"`
}

// toUserResponse はユーザーレコードをJSONレスポンスに変換する。
func toUserResponse(u *store.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

// signupRequest はサインアップリクエストのJSON構造。
type signupRequest struct {
	// Username はユーザー名（3〜30文字）。
	Username string `json:"username" binding:"required"`
	// Email はメールアドレス。
	Email string `json:"email" binding:"required"`
	// Password はパスワード（6文字以上）。
	Password string `json:"password" binding:"required"`
}

// validateUsername はユーザー名の形式を検証する。
func validateUsername(username string) bool {
	n := len([]rune(username))
	return n >= usernameMinLen && n <= usernameMaxLen
}

// validateEmail はメールアドレスの形式を検証する。
func validateEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

// handleSignup は新規ユーザーを登録するハンドラ。
// 成功時はユーザー情報とJWTトークンを返す。
func (s *Server) handleSignup() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req signupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ユーザー名・メールアドレス・パスワードは必須です"})
			return
		}

		if !validateUsername(req.Username) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ユーザー名は3〜30文字で入力してください"})
			return
		}
		if !validateEmail(req.Email) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "メールアドレスの形式が不正です"})
			return
		}
		if len(req.Password) < passwordMinLen {
			c.JSON(http.StatusBadRequest, gin.H{"error": "パスワードは6文字以上で入力してください"})
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "パスワードの処理に失敗しました"})
			log.Printf("パスワードハッシュ化エラー: %v", err)
			return
		}

		userID := uuid.New().String()
		err = s.store.CreateUser(c.Request.Context(), store.CreateUserParams{
			ID:           userID,
			Username:     req.Username,
			Email:        req.Email,
			PasswordHash: string(hash),
		})
		if errors.Is(err, store.ErrConflict) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー登録に失敗しました"})
			log.Printf("ユーザー登録エラー: %v", err)
			return
		}

		token, err := middleware.GenerateJWT(s.jwtSecret, userID, req.Username, req.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークン生成に失敗しました"})
			log.Printf("JWT生成エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"id":       userID,
			"username": req.Username,
			"email":    req.Email,
			"token":    token,
		})
	}
}

// loginRequest はログインリクエストのJSON構造。
type loginRequest struct {
	// Email はメールアドレス。
	Email string `json:"email" binding:"required"`
	// Password はパスワード。
	Password string `json:"password" binding:"required"`
}

// handleLogin はログインを処理するハンドラ。
// 認証失敗の理由（ユーザー不在かパスワード不一致か）は区別せずに返す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "メールアドレスとパスワードは必須です"})
			return
		}

		user, err := s.store.GetUserByEmail(c.Request.Context(), req.Email)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "メールアドレスまたはパスワードが正しくありません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ログインに失敗しました"})
			log.Printf("ログインエラー: %v", err)
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "メールアドレスまたはパスワードが正しくありません"})
			return
		}

		token, err := middleware.GenerateJWT(s.jwtSecret, user.ID, user.Username, user.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークン生成に失敗しました"})
			log.Printf("JWT生成エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"id":       user.ID,
			"username": user.Username,
			"email":    user.Email,
			"token":    token,
		})
	}
}

// handleGetProfile は認証済みユーザーのプロフィールを返すハンドラ。
func (s *Server) handleGetProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		user, err := s.store.GetUserByID(c.Request.Context(), userID)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プロフィールの取得に失敗しました"})
			log.Printf("プロフィール取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toUserResponse(user))
	}
}

// updateProfileRequest はプロフィール更新リクエストのJSON構造。
type updateProfileRequest struct {
	// Username は新しいユーザー名。省略時は変更しない。
	Username string `json:"username"`
	// Email は新しいメールアドレス。省略時は変更しない。
	Email string `json:"email"`
}

// handleUpdateProfile はプロフィールを更新するハンドラ。
// ユーザー名が変わった場合は投稿・コメントのスナップショットへ一括反映し、
// 反映完了後にusernameChangedイベントがブロードキャストされる。
func (s *Server) handleUpdateProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		var req updateProfileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストが不正です"})
			return
		}

		user, err := s.store.GetUserByID(c.Request.Context(), userID)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プロフィールの更新に失敗しました"})
			log.Printf("プロフィール取得エラー: %v", err)
			return
		}

		newUsername := user.Username
		if req.Username != "" && req.Username != user.Username {
			if !validateUsername(req.Username) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "ユーザー名は3〜30文字で入力してください"})
				return
			}
			newUsername = req.Username
		}

		newEmail := user.Email
		if req.Email != "" && req.Email != user.Email {
			if !validateEmail(req.Email) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "メールアドレスの形式が不正です"})
				return
			}
			newEmail = req.Email
		}

		usernameChanged := newUsername != user.Username
		if !usernameChanged && newEmail == user.Email {
			c.JSON(http.StatusOK, toUserResponse(user))
			return
		}

		err = s.store.UpdateUserProfile(c.Request.Context(), userID, newUsername, newEmail)
		if errors.Is(err, store.ErrConflict) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プロフィールの更新に失敗しました"})
			log.Printf("プロフィール更新エラー: %v", err)
			return
		}

		if usernameChanged {
			// スナップショットの一括反映。ユーザーレコードとは結果整合でよいが、
			// 対応するブロードキャストより前に完了させる。
			if err := s.feed.RenameAuthor(c.Request.Context(), userID, user.Username, newUsername); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー名の反映に失敗しました"})
				log.Printf("ユーザー名反映エラー: %v", err)
				return
			}
		}

		user.Username = newUsername
		user.Email = newEmail
		c.JSON(http.StatusOK, toUserResponse(user))
	}
}
