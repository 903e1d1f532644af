// Package store はfeedhubの永続化層を提供する。
//
// ユーザー・投稿（いいね・コメントを含む）・通知の3種類のレコードを
// SQLiteで管理する。ひとつの投稿に触れる更新はすべて単一トランザクション内で
// 実行され、同一投稿への並行更新が互いの変更を失わないことを保証する。
package store
