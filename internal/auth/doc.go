// Package auth はサインアップ・ログイン・プロフィール管理を提供する。
//
// 認証はJWT（HS256）で行い、トークンにはユーザーIDとユーザー名を載せる。
// プロフィール更新でユーザー名が変わった場合は、投稿・コメントに
// 非正規化されたスナップショットへの一括反映をFeedServiceに依頼する。
package auth
