package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims はJWTトークンのクレーム（ペイロード）を表す。
// 認証済みユーザーのIDとユーザー名をリクエスト処理へ伝播するために使用する。
// ユーザー名は表示用のスナップショットであり、プロフィール更新後に発行された
// トークンから新しい名前が反映される。
type JWTClaims struct {
	jwt.RegisteredClaims
	// UserID は認証済みユーザーの一意識別子。
	UserID string `json:"user_id"`
	// Username はトークン発行時点のユーザー名。
	Username string `json:"username"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
}

// GenerateJWT はユーザー情報からJWTトークンを生成する。
// サインアップ・ログイン成功時にauthサービスが呼び出す。
func GenerateJWT(secret, userID, username, email string) (string, error) {
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(30 * 24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "feedhub",
		},
		UserID:   userID,
		Username: username,
		Email:    email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// ParseToken はJWTトークン文字列を検証し、クレームを返す。
// WebSocketエンドポイントのようにGinミドルウェアを通らない経路で使用する。
func ParseToken(secret, tokenString string) (*JWTClaims, error) {
	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("JWTトークンの検証に失敗: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("JWTトークンが無効です")
	}
	return claims, nil
}

// JWTAuth はJWTトークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストに "user_id"・"username"・"email" を設定する。
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorizationヘッダーが必要です",
			})
			return
		}

		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer トークン形式が不正です",
			})
			return
		}

		claims, err := ParseToken(secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "トークンが無効です",
			})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Set("email", claims.Email)
		c.Next()
	}
}

// GetUserID はGinコンテキストからユーザーIDを取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetUsername はGinコンテキストからユーザー名を取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetUsername(c *gin.Context) string {
	username, _ := c.Get("username")
	if name, ok := username.(string); ok {
		return name
	}
	return ""
}
