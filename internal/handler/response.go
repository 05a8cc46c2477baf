// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/farmchef/internal/middleware"
	"github.com/hitoshi/farmchef/internal/model"
	"github.com/hitoshi/farmchef/internal/profile"
)

// maxJSONBodySize はJSONリクエストボディの上限サイズ。
const maxJSONBodySize = 1 << 20

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをJSONとして読み込む。
// 失敗した場合は400レスポンスを書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: model.CategoryValidation,
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return false
	}
	return true
}

// parseLimit はクエリパラメータlimitを解析する。
// 未指定の場合は0を返す。負数や数値以外は検証エラー。
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, model.NewValidationError("limitは0以上の整数で指定してください。")
	}
	return n, nil
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		if statusCode >= http.StatusInternalServerError {
			slog.Error("service error",
				slog.String("code", apiErr.Code),
				slog.String("error", err.Error()),
			)
		}
		middleware.WriteErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation, "INVALID_REQUEST":
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeProfileNotFound, model.ErrCodePostNotFound:
		return http.StatusNotFound
	case model.ErrCodeConfirmationRequired:
		return http.StatusPreconditionRequired
	case model.ErrCodeBackend:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// classificationResponse は表示用カテゴリのAPIレスポンス。
type classificationResponse struct {
	Label        string `json:"label"`
	DisplayColor string `json:"display_color"`
}

// profileResponse はプロフィールのAPIレスポンス。
type profileResponse struct {
	ID               string                 `json:"id"`
	OwnerID          string                 `json:"owner_id"`
	DisplayName      string                 `json:"display_name"`
	Biography        string                 `json:"biography"`
	WebsiteURL       *string                `json:"website_url"`
	ContactEmail     *string                `json:"contact_email"`
	BusinessCategory string                 `json:"business_category,omitempty"`
	CreatedByAdmin   bool                   `json:"created_by_admin"`
	Classification   classificationResponse `json:"classification"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// postResponse は投稿のAPIレスポンス。
type postResponse struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Content      string    `json:"content"`
	ImageURL     *string   `json:"image_url"`
	ExternalLink *string   `json:"external_link"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// feedEntryResponse はフィード表示用のAPIレスポンス。
type feedEntryResponse struct {
	postResponse
	OwnerName           string                 `json:"owner_name"`
	OwnerEmail          string                 `json:"owner_email"`
	OwnerClassification classificationResponse `json:"owner_classification"`
}

func toClassificationResponse(c model.Classification) classificationResponse {
	return classificationResponse{Label: c.Label, DisplayColor: c.DisplayColor}
}

// toProfileResponse はProfileViewからAPIレスポンスに変換する。
func toProfileResponse(v profile.ProfileView) profileResponse {
	return profileResponse{
		ID:               v.ID,
		OwnerID:          v.OwnerID,
		DisplayName:      v.DisplayName,
		Biography:        v.Biography,
		WebsiteURL:       v.WebsiteURL,
		ContactEmail:     v.ContactEmail,
		BusinessCategory: string(v.BusinessCategory),
		CreatedByAdmin:   v.CreatedByAdmin,
		Classification:   toClassificationResponse(v.Classification),
		CreatedAt:        v.CreatedAt,
		UpdatedAt:        v.UpdatedAt,
	}
}

func toProfileResponses(views []profile.ProfileView) []profileResponse {
	resp := make([]profileResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, toProfileResponse(v))
	}
	return resp
}

// toPostResponse はmodel.PostからAPIレスポンスに変換する。
func toPostResponse(p *model.Post) postResponse {
	return postResponse{
		ID:           p.ID,
		OwnerID:      p.OwnerID,
		Content:      p.Content,
		ImageURL:     p.ImageURL,
		ExternalLink: p.ExternalLink,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func toPostResponses(posts []*model.Post) []postResponse {
	resp := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		resp = append(resp, toPostResponse(p))
	}
	return resp
}

func toFeedResponses(entries []model.FeedEntry) []feedEntryResponse {
	resp := make([]feedEntryResponse, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		resp = append(resp, feedEntryResponse{
			postResponse:        toPostResponse(&e.Post),
			OwnerName:           e.OwnerName,
			OwnerEmail:          e.OwnerEmail,
			OwnerClassification: toClassificationResponse(e.OwnerClassification),
		})
	}
	return resp
}

// notFoundRouteError は存在しないルートへのリクエストのエラー。
func notFoundRouteError() *model.APIError {
	return &model.APIError{
		Code:     "NOT_FOUND",
		Message:  "指定されたリソースが見つかりません。",
		Category: model.CategoryNotFound,
		Action:   "URLを確認してください。",
	}
}
