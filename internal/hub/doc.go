// Package hub はプロセス内のブロードキャストハブを提供する。
//
// FeedServiceがコミット後に発行するドメインイベントを、接続中の全WebSocket
// クライアントへ配送する。配送はベストエフォートのat-most-onceであり、
// 発行時点で切断していたクライアントへの再送やバックログは持たない。
// 永続化された状態が常に正であり、ハブはライブビューの同期手段にすぎない。
package hub
