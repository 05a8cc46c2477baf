// Package storage は投稿画像などのバイナリアセットの保存を提供する。
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"
)

// ErrUploadDisabled はアップロード先が設定されていない場合に返される。
var ErrUploadDisabled = errors.New("image upload is not configured")

// UploadOptions はアップロード時のオプション。
type UploadOptions struct {
	// Upsert がtrueの場合、同一パスの既存アセットを上書きする。
	Upsert bool
}

// UploadResult はアップロード結果を表す。
type UploadResult struct {
	// PublicURL は誰でも参照できる公開URL。
	PublicURL string
}

// Uploader はアセットのアップロードを行うインターフェース。
type Uploader interface {
	Upload(ctx context.Context, r io.Reader, objectPath string, opts UploadOptions) (*UploadResult, error)
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// PostImagePath は投稿画像の保存パス posts/<unixミリ秒>_<ファイル名> を返す。
// ファイル名はディレクトリ部分を除き、英数字と . _ - 以外を _ に置き換える。
func PostImagePath(filename string, now time.Time) string {
	name := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "image"
	}
	return fmt.Sprintf("posts/%d_%s", now.UnixMilli(), name)
}

// DisabledUploader はアップロード先が未設定の環境で使用される。
// 常にErrUploadDisabledを返す。
type DisabledUploader struct{}

// Upload は常にErrUploadDisabledを返す。
func (DisabledUploader) Upload(context.Context, io.Reader, string, UploadOptions) (*UploadResult, error) {
	return nil, ErrUploadDisabled
}

// compile-time interface check
var _ Uploader = DisabledUploader{}
