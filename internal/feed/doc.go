// Package feed はフィード同期エンジンの中核を提供する。
//
// 投稿の作成・いいね・コメント・削除のビジネスルールを持ち、各変更から
// 通知の副作用を正確な抑止・重複排除ルールで導出し、ストアのコミット後に
// ドメインイベントをブロードキャストハブへ発行する。同一投稿については
// コミット順と発行順が一致するよう、投稿単位のロックで順序付けする。
package feed
