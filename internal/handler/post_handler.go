package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/farmchef/internal/middleware"
	"github.com/hitoshi/farmchef/internal/model"
	"github.com/hitoshi/farmchef/internal/post"
	"github.com/hitoshi/farmchef/internal/repository"
)

const (
	// maxUploadSize は画像付き投稿のリクエストボディ上限。
	maxUploadSize = 10 << 20
	// imageFormField は投稿画像のmultipartフィールド名。
	imageFormField = "image"
)

// PostServiceInterface は投稿ハンドラーが必要とするサービスインターフェース。
type PostServiceInterface interface {
	CreatePost(ctx context.Context, principal model.Principal, in post.PostInput) (*model.Post, error)
	UpdatePost(ctx context.Context, actor model.Principal, isAdmin bool, id string, update model.PostUpdate, image *post.Image) (*model.Post, error)
}

// FeedServiceInterface はフィード組み立てのインターフェース。
type FeedServiceInterface interface {
	Assemble(ctx context.Context, opts repository.ListOptions) ([]model.FeedEntry, error)
}

// PostHandler は投稿とフィードのHTTPハンドラー。
type PostHandler struct {
	service PostServiceInterface
	feed    FeedServiceInterface
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(service PostServiceInterface, feed FeedServiceInterface) *PostHandler {
	return &PostHandler{service: service, feed: feed}
}

const (
	// removeImageFormField は編集時に画像を外すためのmultipartフィールド名。
	removeImageFormField = "remove_image"
)

// postRequest は投稿作成・編集リクエストのボディ。
// 編集時に省略したフィールドは変更しない。
// image_urlにnullまたは空文字列を指定するか、remove_imageをtrueにすると画像を外す。
type postRequest struct {
	Content      *string        `json:"content"`
	ExternalLink *string        `json:"external_link"`
	ImageURL     nullableString `json:"image_url"`
	RemoveImage  bool           `json:"remove_image"`
}

// imageUpdate は画像URLの更新内容を返す。変更しない場合はnil。
func (req postRequest) imageUpdate() *string {
	if req.RemoveImage {
		empty := ""
		return &empty
	}
	if !req.ImageURL.Set {
		return nil
	}
	if req.ImageURL.Value == nil {
		empty := ""
		return &empty
	}
	return req.ImageURL.Value
}

// nullableString は省略とnullを区別するJSON文字列フィールド。
type nullableString struct {
	Set   bool
	Value *string
}

// UnmarshalJSON はフィールドが存在したことを記録する。nullの場合Valueはnil。
func (n *nullableString) UnmarshalJSON(data []byte) error {
	n.Set = true
	if string(data) == "null" {
		n.Value = nil
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

type feedResponse struct {
	Posts []feedEntryResponse `json:"posts"`
}

// ListFeed は投稿者情報付きのフィードを新しい順に返す。
// GET /api/posts?limit=&owner_id=
func (h *PostHandler) ListFeed(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	entries, err := h.feed.Assemble(r.Context(), repository.ListOptions{
		OwnerID: r.URL.Query().Get("owner_id"),
		OrderBy: repository.OrderByCreatedAt,
		Limit:   limit,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, feedResponse{Posts: toFeedResponses(entries)})
}

// CreatePost は投稿を作成する。
// POST /api/posts
// application/json または multipart/form-data（imageフィールドに画像）を受け付ける。
func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	req, image, ok := h.readPostRequest(w, r)
	if !ok {
		return
	}
	if image != nil {
		defer image.close()
	}

	in := post.PostInput{
		Content:      model.StringValue(req.Content),
		ExternalLink: model.StringValue(req.ExternalLink),
	}
	if image != nil {
		in.Image = &image.Image
	}

	p, err := h.service.CreatePost(r.Context(), principal, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPostResponse(p))
}

// UpdatePost は投稿を編集する。投稿者本人または管理者のみ実行できる。
// PATCH /api/posts/{id}
func (h *PostHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	req, image, ok := h.readPostRequest(w, r)
	if !ok {
		return
	}
	var img *post.Image
	if image != nil {
		defer image.close()
		img = &image.Image
	}

	p, err := h.service.UpdatePost(
		r.Context(),
		principal,
		middleware.IsAdminFromContext(r.Context()),
		chi.URLParam(r, "id"),
		model.PostUpdate{Content: req.Content, ExternalLink: req.ExternalLink, ImageURL: req.imageUpdate()},
		img,
	)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPostResponse(p))
}

// uploadedImage はmultipartで受け取った画像とファイルハンドルを保持する。
type uploadedImage struct {
	post.Image
	file multipart.File
}

func (u *uploadedImage) close() {
	if err := u.file.Close(); err != nil {
		slog.Warn("failed to close uploaded file", slog.String("error", err.Error()))
	}
}

// readPostRequest はContent-Typeに応じてリクエストボディを読み込む。
// 失敗した場合は400レスポンスを書き込みfalseを返す。
func (h *PostHandler) readPostRequest(w http.ResponseWriter, r *http.Request) (postRequest, *uploadedImage, bool) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req postRequest
		ok := decodeJSON(w, r, &req)
		return req, nil, ok
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "フォームデータの解析に失敗しました。",
			Category: model.CategoryValidation,
			Action:   "画像サイズは10MB以下にしてください。",
		})
		return postRequest{}, nil, false
	}

	var req postRequest
	if v, ok := r.MultipartForm.Value["content"]; ok && len(v) > 0 {
		req.Content = &v[0]
	}
	if v, ok := r.MultipartForm.Value["external_link"]; ok && len(v) > 0 {
		req.ExternalLink = &v[0]
	}
	if v, ok := r.MultipartForm.Value[removeImageFormField]; ok && len(v) > 0 {
		remove, err := strconv.ParseBool(v[0])
		if err != nil {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("remove_imageはtrueまたはfalseで指定してください。"))
			return postRequest{}, nil, false
		}
		req.RemoveImage = remove
	}

	file, header, err := r.FormFile(imageFormField)
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil, true
	}
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("画像ファイルを読み込めませんでした。"))
		return postRequest{}, nil, false
	}

	return req, &uploadedImage{
		Image: post.Image{Reader: file, Filename: header.Filename},
		file:  file,
	}, true
}
