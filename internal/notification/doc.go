// Package notification は通知サービスを提供する。
//
// いいね・コメントから派生した通知レコードの永続化と、一覧取得・未読件数・
// 既読管理の操作を持つ。通知を作るかどうかの判断（自分自身への通知の抑止など）は
// FeedServiceの責務であり、このパッケージは要求されたとおりに永続化する。
package notification
