package event

// Type はブロードキャストイベントの種類を表す。
// ワイヤ上のイベント名そのものであり、クライアントはこの名前で処理を振り分ける。
type Type string

const (
	// TypePostCreated は投稿が作成されたことを表す。
	TypePostCreated Type = "postCreated"
	// TypePostDeleted は投稿が削除されたことを表す。
	TypePostDeleted Type = "postDeleted"
	// TypePostLiked は投稿のいいね状態が変化したことを表す。いいね・いいね解除の両方で発行される。
	TypePostLiked Type = "postLiked"
	// TypePostCommented は投稿にコメントが追加されたことを表す。
	TypePostCommented Type = "postCommented"
	// TypeUsernameChanged はユーザー名が変更され、投稿・コメントへの反映が完了したことを表す。
	TypeUsernameChanged Type = "usernameChanged"
	// TypeNewNotification は通知が作成されたことを受信者のクライアントに知らせるヒント。
	// 通知本文は含まない。受信側は未読件数を再取得する。
	TypeNewNotification Type = "newNotification"
)

// Comment はコメントのワイヤ表現。
// HTTPレスポンスとブロードキャストで同一の形を使い、どちらを受け取った
// クライアントも同じ状態に収束できるようにする。
type Comment struct {
	// ID はコメントの一意識別子（UUID）。
	ID string `json:"id"`
	// UserID はコメント作成者のユーザーID。
	UserID string `json:"userId"`
	// Username はコメント作成時点のユーザー名スナップショット。
	Username string `json:"username"`
	// Text はコメント本文。
	Text string `json:"text"`
	// CreatedAt はコメントの作成日時（RFC3339形式）。
	CreatedAt string `json:"createdAt"`
}

// Post は投稿のワイヤ表現。
// いいねは内部では (ユーザーID, ユーザー名) のペア列として保持されるが、
// ワイヤ上では従来互換の2本の平行配列（likes / likesUsernames）に射影される。
type Post struct {
	// ID は投稿の一意識別子（UUID）。
	ID string `json:"id"`
	// UserID は投稿作成者のユーザーID。
	UserID string `json:"userId"`
	// Username は投稿作成者のユーザー名スナップショット。
	Username string `json:"username"`
	// Text は投稿本文。画像のみの投稿では空文字列。
	Text string `json:"text"`
	// Image は画像参照（/uploads/... 形式）。画像なしの投稿では空文字列。
	Image string `json:"image"`
	// Likes はいいねしたユーザーIDの列。LikesUsernamesと位置が対応する。
	Likes []string `json:"likes"`
	// LikesUsernames はいいねしたユーザー名の列。Likesと位置が対応する。
	LikesUsernames []string `json:"likesUsernames"`
	// LikesCount はいいね数。
	LikesCount int `json:"likesCount"`
	// Comments はコメントの列（追加順）。
	Comments []Comment `json:"comments"`
	// CommentsCount はコメント数。
	CommentsCount int `json:"commentsCount"`
	// CreatedAt は投稿の作成日時（RFC3339形式）。
	CreatedAt string `json:"createdAt"`
}

// PostDeletedData はpostDeletedイベントのデータ。
type PostDeletedData struct {
	// PostID は削除された投稿のID。
	PostID string `json:"postId"`
}

// PostLikedData はpostLikedイベントのデータ。
type PostLikedData struct {
	// PostID は対象投稿のID。
	PostID string `json:"postId"`
	// Likes はいいねしたユーザーIDの列。
	Likes []string `json:"likes"`
	// LikesCount はいいね数。
	LikesCount int `json:"likesCount"`
	// LikesUsernames はいいねしたユーザー名の列。
	LikesUsernames []string `json:"likesUsernames"`
	// IsLiked は操作したユーザー自身がいいねした状態になったかどうか。
	IsLiked bool `json:"isLiked"`
}

// PostCommentedData はpostCommentedイベントのデータ。
type PostCommentedData struct {
	// PostID は対象投稿のID。
	PostID string `json:"postId"`
	// Comments は対象投稿の全コメント（追加順）。
	Comments []Comment `json:"comments"`
	// CommentsCount はコメント数。
	CommentsCount int `json:"commentsCount"`
}

// UsernameChangedData はusernameChangedイベントのデータ。
type UsernameChangedData struct {
	// UserID は名前を変更したユーザーのID。
	UserID string `json:"userId"`
	// OldUsername は変更前のユーザー名。
	OldUsername string `json:"oldUsername"`
	// NewUsername は変更後のユーザー名。
	NewUsername string `json:"newUsername"`
}

// NewNotificationData はnewNotificationイベントのデータ。
// 通知内容は含まない。ブロードキャストチャネルは受信者ごとに分かれていないため、
// 本文を載せると受信者以外にも内容が届いてしまう。
type NewNotificationData struct {
	// UserID は通知の受信者のユーザーID。
	UserID string `json:"userId"`
	// NotificationType は通知の種類（like または comment）。
	NotificationType string `json:"type"`
}
