package store

import "errors"

// 呼び出し側がerrors.Isで分類できるエラー種別。
// HTTPハンドラはこれらをステータスコードに対応付ける。
var (
	// ErrNotFound は参照されたレコードが存在しないことを表す。
	ErrNotFound = errors.New("レコードが見つかりません")
	// ErrForbidden は所有者チェックに失敗したことを表す。
	ErrForbidden = errors.New("この操作を行う権限がありません")
	// ErrConflict は一意制約（ユーザー名・メールアドレス）に違反したことを表す。
	ErrConflict = errors.New("既に使用されています")
	// ErrValidation は入力値が必須条件や形式を満たさないことを表す。
	ErrValidation = errors.New("入力値が不正です")
	// ErrBusy はストレージの競合によりトランザクションをコミットできなかったことを表す。
	// ストア内部での限定回数リトライの後もなお解消しない場合にのみ呼び出し側へ返る。
	ErrBusy = errors.New("ストレージが混雑しています")
)
