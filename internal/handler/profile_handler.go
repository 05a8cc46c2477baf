package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/farmchef/internal/middleware"
	"github.com/hitoshi/farmchef/internal/model"
	"github.com/hitoshi/farmchef/internal/profile"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	// Directory は全プロフィールを検索語で絞り込んで返す。
	Directory(ctx context.Context, query string) ([]profile.ProfileView, error)
	// EnsureOwnProfile は本人のプロフィールを返す。未作成の場合は作成する。
	EnsureOwnProfile(ctx context.Context, principal model.Principal) (*model.Profile, bool, error)
	// UpdateOwnProfile は本人による編集を行う。
	UpdateOwnProfile(ctx context.Context, principal model.Principal, update model.ProfileUpdate) (*model.Profile, error)
	// ProfilePage はプロフィールページの表示内容を返す。
	ProfilePage(ctx context.Context, viewer model.Principal, ownerID string) (*profile.Page, error)
}

// ProfileHandler はディレクトリとプロフィールのHTTPハンドラー。
type ProfileHandler struct {
	service ProfileServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// updateOwnProfileRequest は本人によるプロフィール編集リクエストのボディ。
// 省略したフィールドは変更しない。
type updateOwnProfileRequest struct {
	DisplayName *string `json:"display_name"`
	Biography   *string `json:"biography"`
	WebsiteURL  *string `json:"website_url"`
}

type directoryResponse struct {
	Profiles []profileResponse `json:"profiles"`
	Total    int               `json:"total"`
}

type statsResponse struct {
	Total   int            `json:"total"`
	ByLabel map[string]int `json:"by_label"`
}

type ownProfileResponse struct {
	Profile profileResponse `json:"profile"`
	Created bool            `json:"created"`
}

type profilePageResponse struct {
	Profile   profileResponse `json:"profile"`
	Posts     []postResponse  `json:"posts"`
	PostCount int             `json:"post_count"`
	IsOwner   bool            `json:"is_owner"`
}

// ListProfiles はメンバーディレクトリを返す。
// GET /api/profiles?q=&limit=
func (h *ProfileHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	views, err := h.service.Directory(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	total := len(views)
	if limit > 0 && limit < total {
		views = views[:limit]
	}
	writeJSON(w, http.StatusOK, directoryResponse{
		Profiles: toProfileResponses(views),
		Total:    total,
	})
}

// Stats はディレクトリのカテゴリ別件数を返す。
// GET /api/profiles/stats?q=
func (h *ProfileHandler) Stats(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.Directory(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	stats := profile.Stats(views)
	writeJSON(w, http.StatusOK, statsResponse{Total: stats.Total, ByLabel: stats.ByLabel})
}

// GetOwnProfile は本人のプロフィールを返す。未作成の場合は自動作成する。
// GET /api/profiles/me
func (h *ProfileHandler) GetOwnProfile(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	p, created, err := h.service.EnsureOwnProfile(r.Context(), principal)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, ownProfileResponse{
		Profile: toProfileResponse(profile.NewProfileView(p)),
		Created: created,
	})
}

// UpdateOwnProfile は本人のプロフィールを編集する。
// PATCH /api/profiles/me
func (h *ProfileHandler) UpdateOwnProfile(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req updateOwnProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.UpdateOwnProfile(r.Context(), principal, model.ProfileUpdate{
		DisplayName: req.DisplayName,
		Biography:   req.Biography,
		WebsiteURL:  req.WebsiteURL,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(profile.NewProfileView(p)))
}

// GetProfilePage はオーナーIDを指定してプロフィールページを返す。
// GET /api/profiles/{ownerID}
func (h *ProfileHandler) GetProfilePage(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	page, err := h.service.ProfilePage(r.Context(), principal, chi.URLParam(r, "ownerID"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profilePageResponse{
		Profile:   toProfileResponse(page.Profile),
		Posts:     toPostResponses(page.Posts),
		PostCount: page.PostCount,
		IsOwner:   page.IsOwner,
	})
}
