// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, not_found, system
	Action   string // ユーザー向け対処方法
	Err      error  // 原因（ログ用。レスポンスには含めない）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeValidation           = "VALIDATION_FAILED"
	ErrCodeProfileNotFound      = "PROFILE_NOT_FOUND"
	ErrCodePostNotFound         = "POST_NOT_FOUND"
	ErrCodeBackend              = "BACKEND_ERROR"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeConfirmationRequired = "CONFIRMATION_REQUIRED"
)

// カテゴリ
const (
	CategoryAuth       = "auth"
	CategoryValidation = "validation"
	CategoryNotFound   = "not_found"
	CategorySystem     = "system"
)

// NewValidationError は必須項目の欠落などの入力検証エラーを生成する。
// ストアへの呼び出し前に返され、操作は一切実行されない。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: CategoryValidation,
		Action:   "入力内容を確認してください。",
	}
}

// NewProfileNotFoundError はプロフィール未検出エラーを生成する。
func NewProfileNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  fmt.Sprintf("指定されたプロフィールが見つかりません: %s", id),
		Category: CategoryNotFound,
		Action:   "プロフィールIDを確認してください。",
	}
}

// NewPostNotFoundError は投稿未検出エラーを生成する。
func NewPostNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodePostNotFound,
		Message:  fmt.Sprintf("指定された投稿が見つかりません: %s", id),
		Category: CategoryNotFound,
		Action:   "投稿IDを確認してください。",
	}
}

// NewBackendError はストアやネットワークの障害を表すエラーを生成する。
// 自動リトライは行わず、利用者に再試行を促す。
func NewBackendError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeBackend,
		Message:  "データの読み書きに失敗しました。",
		Category: CategorySystem,
		Action:   "しばらく待ってから再度お試しください。",
		Err:      err,
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: CategoryAuth,
		Action:   "投稿者本人または管理者のみ操作できます。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: CategoryAuth,
		Action:   "ログインしてください。",
	}
}

// NewConfirmationRequiredError は破壊的操作に確認が必要であることを示すエラーを生成する。
func NewConfirmationRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeConfirmationRequired,
		Message:  "この操作は取り消せません。確認トークンを付けて再度リクエストしてください。",
		Category: CategoryValidation,
		Action:   "X-Confirm-Tokenヘッダーに確認トークンを指定してください。",
	}
}

// IsValidation はerrが入力検証エラーかを判定する。
func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

// IsNotFound はerrが対象未検出エラーかを判定する。
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeProfileNotFound) || hasCode(err, ErrCodePostNotFound)
}

// IsBackend はerrがバックエンド障害エラーかを判定する。
func IsBackend(err error) bool {
	return hasCode(err, ErrCodeBackend)
}

func hasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}
