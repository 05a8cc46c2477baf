package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/farmchef/internal/admin"
	"github.com/hitoshi/farmchef/internal/confirm"
	"github.com/hitoshi/farmchef/internal/middleware"
	"github.com/hitoshi/farmchef/internal/model"
	"github.com/hitoshi/farmchef/internal/profile"
)

// 確認トークンに紐づける操作名
const (
	actionDeleteProfile = "delete_profile"
	actionDeletePost    = "delete_post"
)

// AdminServiceInterface は管理ハンドラーが必要とするサービスインターフェース。
type AdminServiceInterface interface {
	Dashboard(ctx context.Context) (*admin.Dashboard, error)
	CreateProfile(ctx context.Context, in admin.ProfileInput) (*model.Profile, error)
	UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.Profile, error)
	DeleteProfile(ctx context.Context, id string) error
	DeletePost(ctx context.Context, id string) error
}

// AdminHandler は管理機能のHTTPハンドラー。
// 削除操作は確認トークンによる2段階で実行する。
type AdminHandler struct {
	service  AdminServiceInterface
	confirms confirm.Store
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AdminServiceInterface, confirms confirm.Store) *AdminHandler {
	return &AdminHandler{service: service, confirms: confirms}
}

// createProfileRequest は管理者によるプロフィール作成リクエストのボディ。
type createProfileRequest struct {
	DisplayName      string `json:"display_name"`
	Biography        string `json:"biography"`
	WebsiteURL       string `json:"website_url"`
	ContactEmail     string `json:"contact_email"`
	BusinessCategory string `json:"business_category"`
}

// updateProfileRequest は管理者によるプロフィール編集リクエストのボディ。
type updateProfileRequest struct {
	DisplayName      *string `json:"display_name"`
	Biography        *string `json:"biography"`
	WebsiteURL       *string `json:"website_url"`
	ContactEmail     *string `json:"contact_email"`
	BusinessCategory *string `json:"business_category"`
}

type dashboardResponse struct {
	Profiles      []profileResponse   `json:"profiles"`
	Feed          []feedEntryResponse `json:"feed"`
	Stats         statsResponse       `json:"stats"`
	TotalProfiles int                 `json:"total_profiles"`
	TotalPosts    int                 `json:"total_posts"`
}

// confirmationResponse は確認が必要な場合のレスポンス。
type confirmationResponse struct {
	middleware.ErrorResponseBody
	ConfirmToken string `json:"confirm_token"`
}

// Dashboard は管理画面の表示内容を返す。
// GET /api/admin/dashboard
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Dashboard(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dashboardResponse{
		Profiles:      toProfileResponses(d.Profiles),
		Feed:          toFeedResponses(d.Feed),
		Stats:         statsResponse{Total: d.Stats.Total, ByLabel: d.Stats.ByLabel},
		TotalProfiles: len(d.Profiles),
		TotalPosts:    d.TotalPosts,
	})
}

// CreateProfile はプロフィールを作成する。
// POST /api/admin/profiles
func (h *AdminHandler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	var req createProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.CreateProfile(r.Context(), admin.ProfileInput{
		DisplayName:      req.DisplayName,
		Biography:        req.Biography,
		WebsiteURL:       req.WebsiteURL,
		ContactEmail:     req.ContactEmail,
		BusinessCategory: model.BusinessCategory(req.BusinessCategory),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toProfileResponse(profile.NewProfileView(p)))
}

// UpdateProfile はプロフィールを編集する。
// PATCH /api/admin/profiles/{id}
func (h *AdminHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	update := model.ProfileUpdate{
		DisplayName:  req.DisplayName,
		Biography:    req.Biography,
		WebsiteURL:   req.WebsiteURL,
		ContactEmail: req.ContactEmail,
	}
	if req.BusinessCategory != nil {
		c := model.BusinessCategory(*req.BusinessCategory)
		update.BusinessCategory = &c
	}

	p, err := h.service.UpdateProfile(r.Context(), chi.URLParam(r, "id"), update)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(profile.NewProfileView(p)))
}

// DeleteProfile はプロフィールと全投稿を削除する。
// DELETE /api/admin/profiles/{id}
func (h *AdminHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.confirmed(w, r, actionDeleteProfile, id, func(ctx context.Context) error {
		return h.service.DeleteProfile(ctx, id)
	})
}

// DeletePost は投稿を削除する。
// DELETE /api/admin/posts/{id}
func (h *AdminHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.confirmed(w, r, actionDeletePost, id, func(ctx context.Context) error {
		return h.service.DeletePost(ctx, id)
	})
}

// confirmed は確認トークンを検証してから操作を実行する。
// トークンがない、または無効な場合は新しいトークンを発行して428を返す。
func (h *AdminHandler) confirmed(w http.ResponseWriter, r *http.Request, action, targetID string, run func(ctx context.Context) error) {
	principal, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	intent := confirm.Intent{Action: action, TargetID: targetID, PrincipalID: principal.ID}
	if token := r.Header.Get(middleware.ConfirmTokenHeaderName); token != "" {
		err := h.confirms.Consume(r.Context(), token, intent)
		switch {
		case err == nil:
			if err := run(r.Context()); err != nil {
				handleServiceError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		case errors.Is(err, confirm.ErrInvalidToken):
			slog.Warn("invalid confirmation token",
				slog.String("action", action),
				slog.String("target_id", targetID),
				slog.String("principal_id", principal.ID),
			)
		default:
			handleServiceError(w, model.NewBackendError(fmt.Errorf("確認トークンの検証に失敗しました: %w", err)))
			return
		}
	}

	token, err := h.confirms.Issue(r.Context(), intent)
	if err != nil {
		handleServiceError(w, model.NewBackendError(fmt.Errorf("確認トークンの発行に失敗しました: %w", err)))
		return
	}

	apiErr := model.NewConfirmationRequiredError()
	w.Header().Set(middleware.ConfirmTokenHeaderName, token)
	writeJSON(w, mapAPIErrorToHTTPStatus(apiErr), confirmationResponse{
		ErrorResponseBody: middleware.ErrorResponseBody{
			Code:     apiErr.Code,
			Message:  apiErr.Message,
			Category: apiErr.Category,
			Action:   apiErr.Action,
		},
		ConfirmToken: token,
	})
}
