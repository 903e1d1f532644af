// Package blob は投稿画像の保存を提供する。
//
// 画像はローカルディスクに保存され、HTTP側で /uploads 配下の静的ファイルとして
// 配信される。保存結果は不透明な参照文字列（/uploads/<ファイル名>）として返り、
// 呼び出し側はその中身を解釈しない。
package blob

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// maxImageSize は受け付ける画像の最大バイト数。
const maxImageSize = 5 * 1024 * 1024

// RefPrefix は画像参照のURLパスの接頭辞。
const RefPrefix = "/uploads/"

// 呼び出し側がerrors.Isで分類できるエラー種別。
var (
	// ErrTooLarge は画像サイズが上限を超えたことを表す。
	ErrTooLarge = fmt.Errorf("画像サイズは%dMB以内にしてください", maxImageSize/(1024*1024))
	// ErrUnsupportedType は画像以外のファイルが指定されたことを表す。
	ErrUnsupportedType = errors.New("対応していないファイル形式です")
)

// allowedExtensions は受け付ける画像の拡張子。
var allowedExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
}

// Storage はディスクバックエンドの画像保存先。
type Storage struct {
	// dir は画像ファイルの保存先ディレクトリ。
	dir string
}

// New は新しい画像ストレージを生成する。保存先ディレクトリがなければ作成する。
func New(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("アップロードディレクトリの作成に失敗: %w", err)
	}
	return &Storage{dir: dir}, nil
}

// Dir は保存先ディレクトリを返す。静的ファイル配信の設定に使う。
func (s *Storage) Dir() string {
	return s.dir
}

// Save はアップロードされた画像を保存し、参照文字列を返す。
// サイズと拡張子を検証し、ファイル名はUUIDで採番して衝突と上書きを避ける。
func (s *Storage) Save(fileHeader *multipart.FileHeader) (string, error) {
	if fileHeader.Size > maxImageSize {
		return "", ErrTooLarge
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if _, ok := allowedExtensions[ext]; !ok {
		return "", ErrUnsupportedType
	}

	src, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("アップロードファイルのオープンに失敗: %w", err)
	}
	defer src.Close()

	name := uuid.New().String() + ext
	path := filepath.Join(s.dir, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("画像ファイルの作成に失敗: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("画像ファイルの書き込みに失敗: %w", err)
	}

	return RefPrefix + name, nil
}
