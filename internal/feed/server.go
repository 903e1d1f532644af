package feed

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/feedhub/internal/store"
	"github.com/nao1215/feedhub/pkg/blob"
	"github.com/nao1215/feedhub/pkg/middleware"
)

// Server は投稿APIのHTTPハンドラ群。
type Server struct {
	// service はフィードのビジネスロジック。
	service *Service
	// blobs は投稿画像の保存先。
	blobs *blob.Storage
}

// NewServer は新しい投稿サーバーを生成する。
func NewServer(service *Service, blobs *blob.Storage) *Server {
	return &Server{service: service, blobs: blobs}
}

// RegisterRoutes は投稿APIのルーティングを設定する。
// 一覧と単体取得は公開、書き込み系は認証必須。
func (s *Server) RegisterRoutes(public, authed *gin.RouterGroup) {
	// フィード取得（公開）
	public.GET("/posts", s.handleListPosts())
	// 投稿1件取得（公開）
	public.GET("/posts/:id", s.handleGetPost())

	posts := authed.Group("/posts")
	{
		// 投稿作成（multipart: text, image）
		posts.POST("", s.handleCreatePost())
		// いいねのトグル
		posts.POST("/:id/like", s.handleToggleLike())
		// コメントの追加
		posts.POST("/:id/comment", s.handleAddComment())
		// 投稿の削除（作成者のみ）
		posts.DELETE("/:id", s.handleDeletePost())
	}
}

// writeServiceError はサービス層のエラーをHTTPステータスへ対応付ける。
// 分類できないエラーは詳細をログに残し、内部情報を含まない汎用メッセージを返す。
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "投稿が見つかりません"})
	case errors.Is(err, store.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "この操作を行う権限がありません"})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "サーバーエラーが発生しました"})
		log.Printf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
}

// handleCreatePost は投稿を作成するハンドラ。
// multipart/form-dataで本文（text）と画像（image）を受け取る。どちらも省略可だが、
// 少なくとも一方は必要。
func (s *Server) handleCreatePost() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		username := middleware.GetUsername(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		text := c.PostForm("text")

		imageRef := ""
		if fileHeader, err := c.FormFile("image"); err == nil {
			ref, err := s.blobs.Save(fileHeader)
			if err != nil {
				if errors.Is(err, blob.ErrTooLarge) || errors.Is(err, blob.ErrUnsupportedType) {
					c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
					return
				}
				c.JSON(http.StatusInternalServerError, gin.H{"error": "画像の保存に失敗しました"})
				log.Printf("画像保存エラー: %v", err)
				return
			}
			imageRef = ref
		}

		post, err := s.service.CreatePost(c.Request.Context(), userID, username, text, imageRef)
		if err != nil {
			writeServiceError(c, err)
			return
		}

		c.JSON(http.StatusCreated, post)
	}
}

// handleListPosts はフィードをページングして返すハンドラ。
func (s *Server) handleListPosts() gin.HandlerFunc {
	return func(c *gin.Context) {
		page := queryInt(c, "page", 1)
		limit := queryInt(c, "limit", defaultPageSize)

		posts, total, err := s.service.ListPosts(c.Request.Context(), page, limit)
		if err != nil {
			writeServiceError(c, err)
			return
		}

		totalPages := total / int64(limit)
		if total%int64(limit) != 0 {
			totalPages++
		}

		c.JSON(http.StatusOK, gin.H{
			"posts":       posts,
			"currentPage": page,
			"totalPages":  totalPages,
			"totalPosts":  total,
		})
	}
}

// handleGetPost は投稿を1件返すハンドラ。
func (s *Server) handleGetPost() gin.HandlerFunc {
	return func(c *gin.Context) {
		post, err := s.service.GetPost(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, post)
	}
}

// handleToggleLike はいいねをトグルするハンドラ。
func (s *Server) handleToggleLike() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		username := middleware.GetUsername(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		result, err := s.service.ToggleLike(c.Request.Context(), c.Param("id"), userID, username)
		if err != nil {
			writeServiceError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"likes":          result.Likes,
			"likesCount":     result.LikesCount,
			"likesUsernames": result.LikesUsernames,
		})
	}
}

// commentRequest はコメント追加リクエストのJSON構造。
type commentRequest struct {
	// Text はコメント本文。
	Text string `json:"text"`
}

// handleAddComment はコメントを追加するハンドラ。
func (s *Server) handleAddComment() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		username := middleware.GetUsername(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		var req commentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストが不正です"})
			return
		}

		result, err := s.service.AddComment(c.Request.Context(), c.Param("id"), userID, username, req.Text)
		if err != nil {
			writeServiceError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"comments":      result.Comments,
			"commentsCount": result.CommentsCount,
		})
	}
}

// handleDeletePost は投稿を削除するハンドラ。作成者のみ実行できる。
func (s *Server) handleDeletePost() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		if err := s.service.DeletePost(c.Request.Context(), c.Param("id"), userID); err != nil {
			writeServiceError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "投稿を削除しました"})
	}
}

// queryInt はクエリパラメータを正の整数として読み取る。不正な値は既定値にする。
func queryInt(c *gin.Context, key string, fallback int) int {
	v := c.Query(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
