package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/farmchef/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// 原因エラー(Err)はレスポンスに含めない。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: model.CategorySystem,
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// csrfFailedError はCSRFトークン検証失敗のエラー。
func csrfFailedError() *model.APIError {
	return &model.APIError{
		Code:     "CSRF_VALIDATION_FAILED",
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: model.CategoryAuth,
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// rateLimitedError はレート制限超過のエラー。
func rateLimitedError() *model.APIError {
	return &model.APIError{
		Code:     "RATE_LIMIT_EXCEEDED",
		Message:  "リクエストが多すぎます。",
		Category: model.CategorySystem,
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}
