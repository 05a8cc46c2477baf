package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/farmchef/internal/model"
	"github.com/hitoshi/farmchef/internal/post"
	"github.com/hitoshi/farmchef/internal/repository"
)

// --- モック定義 ---

type mockPostService struct {
	createPostFn func(ctx context.Context, principal model.Principal, in post.PostInput) (*model.Post, error)
	updatePostFn func(ctx context.Context, actor model.Principal, isAdmin bool, id string, update model.PostUpdate, image *post.Image) (*model.Post, error)
}

func (m *mockPostService) CreatePost(ctx context.Context, principal model.Principal, in post.PostInput) (*model.Post, error) {
	if m.createPostFn != nil {
		return m.createPostFn(ctx, principal, in)
	}
	return nil, nil
}

func (m *mockPostService) UpdatePost(ctx context.Context, actor model.Principal, isAdmin bool, id string, update model.PostUpdate, image *post.Image) (*model.Post, error) {
	if m.updatePostFn != nil {
		return m.updatePostFn(ctx, actor, isAdmin, id, update, image)
	}
	return nil, nil
}

type mockFeedService struct {
	assembleFn func(ctx context.Context, opts repository.ListOptions) ([]model.FeedEntry, error)
}

func (m *mockFeedService) Assemble(ctx context.Context, opts repository.ListOptions) ([]model.FeedEntry, error) {
	if m.assembleFn != nil {
		return m.assembleFn(ctx, opts)
	}
	return nil, nil
}

// multipartBody はフィールドと画像を含むmultipartボディを生成する。
func multipartBody(t *testing.T, fields map[string]string, filename string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("image", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		fw.Write(image)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

// --- テスト ---

func TestPostHandler_ListFeed(t *testing.T) {
	var gotOpts repository.ListOptions
	created := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	feed := &mockFeedService{
		assembleFn: func(ctx context.Context, opts repository.ListOptions) ([]model.FeedEntry, error) {
			gotOpts = opts
			return []model.FeedEntry{
				{
					Post:                model.Post{ID: "post-2", OwnerID: "o1", Content: "Nuovo raccolto", CreatedAt: created},
					OwnerName:           "Cascina Verde",
					OwnerEmail:          "info@cascina.example",
					OwnerClassification: model.Classification{Label: "Farm", DisplayColor: "green"},
				},
				{
					Post:                model.Post{ID: "post-1", OwnerID: "ghost", Content: "Orfano", CreatedAt: created.Add(-time.Hour)},
					OwnerName:           model.UnknownOwnerName,
					OwnerClassification: model.Classification{Label: "Member", DisplayColor: "gray"},
				},
			}, nil
		},
	}
	h := NewPostHandler(&mockPostService{}, feed)

	w := httptest.NewRecorder()
	h.ListFeed(w, httptest.NewRequest(http.MethodGet, "/api/posts?limit=10&owner_id=o1", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotOpts.Limit != 10 || gotOpts.OwnerID != "o1" || gotOpts.OrderBy != repository.OrderByCreatedAt || gotOpts.Ascending {
		t.Errorf("opts = %+v", gotOpts)
	}

	var body feedResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Posts) != 2 {
		t.Fatalf("len(posts) = %d, want 2", len(body.Posts))
	}
	if body.Posts[0].ID != "post-2" || body.Posts[0].OwnerName != "Cascina Verde" {
		t.Errorf("posts[0] = %+v", body.Posts[0])
	}
	if body.Posts[1].OwnerName != "Unknown User" || body.Posts[1].OwnerEmail != "" {
		t.Errorf("posts[1] = %+v", body.Posts[1])
	}
}

func TestPostHandler_ListFeed_BackendError(t *testing.T) {
	h := NewPostHandler(&mockPostService{}, &mockFeedService{
		assembleFn: func(ctx context.Context, opts repository.ListOptions) ([]model.FeedEntry, error) {
			return nil, model.NewBackendError(errors.New("timeout"))
		},
	})

	w := httptest.NewRecorder()
	h.ListFeed(w, httptest.NewRequest(http.MethodGet, "/api/posts", nil))

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}
}

func TestPostHandler_CreatePost_JSON(t *testing.T) {
	var gotIn post.PostInput
	var gotPrincipal model.Principal
	svc := &mockPostService{
		createPostFn: func(ctx context.Context, principal model.Principal, in post.PostInput) (*model.Post, error) {
			gotPrincipal = principal
			gotIn = in
			return &model.Post{ID: "post-1", OwnerID: principal.ID, Content: in.Content, ExternalLink: model.OptionalString(in.ExternalLink)}, nil
		},
	}
	h := NewPostHandler(svc, &mockFeedService{})

	body := strings.NewReader(`{"content":"Pomodori freschi","external_link":"https://cascina.example/shop"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/posts", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.CreatePost(w, withPrincipal(req, testPrincipal, false))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if gotPrincipal.ID != testPrincipal.ID {
		t.Errorf("principal = %+v", gotPrincipal)
	}
	if gotIn.Content != "Pomodori freschi" || gotIn.ExternalLink != "https://cascina.example/shop" || gotIn.Image != nil {
		t.Errorf("input = %+v", gotIn)
	}

	var resp postResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.OwnerID != testPrincipal.ID {
		t.Errorf("owner_id = %q", resp.OwnerID)
	}
}

func TestPostHandler_CreatePost_MultipartWithImage(t *testing.T) {
	var gotImage []byte
	var gotFilename, gotContent string
	svc := &mockPostService{
		createPostFn: func(ctx context.Context, principal model.Principal, in post.PostInput) (*model.Post, error) {
			gotContent = in.Content
			if in.Image != nil {
				gotFilename = in.Image.Filename
				gotImage, _ = io.ReadAll(in.Image.Reader)
			}
			url := "https://res.cloudinary.com/demo/image/upload/posts/1_tomatoes.jpg"
			return &model.Post{ID: "post-1", OwnerID: principal.ID, Content: in.Content, ImageURL: &url}, nil
		},
	}
	h := NewPostHandler(svc, &mockFeedService{})

	body, contentType := multipartBody(t, map[string]string{"content": "Raccolto di oggi"}, "tomatoes.jpg", []byte("jpeg-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/posts", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	h.CreatePost(w, withPrincipal(req, testPrincipal, false))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}
	if gotContent != "Raccolto di oggi" {
		t.Errorf("content = %q", gotContent)
	}
	if gotFilename != "tomatoes.jpg" || string(gotImage) != "jpeg-bytes" {
		t.Errorf("image = %q %q", gotFilename, gotImage)
	}
}

func TestPostHandler_CreatePost_MultipartWithoutImage(t *testing.T) {
	var hadImage bool
	svc := &mockPostService{
		createPostFn: func(ctx context.Context, principal model.Principal, in post.PostInput) (*model.Post, error) {
			hadImage = in.Image != nil
			return &model.Post{ID: "post-1", OwnerID: principal.ID, Content: in.Content}, nil
		},
	}
	h := NewPostHandler(svc, &mockFeedService{})

	body, contentType := multipartBody(t, map[string]string{"content": "Solo testo"}, "", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/posts", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	h.CreatePost(w, withPrincipal(req, testPrincipal, false))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if hadImage {
		t.Error("image should be nil when no file is attached")
	}
}

func TestPostHandler_CreatePost_ValidationError(t *testing.T) {
	h := NewPostHandler(&mockPostService{
		createPostFn: func(ctx context.Context, principal model.Principal, in post.PostInput) (*model.Post, error) {
			return nil, model.NewValidationError("本文は必須です。")
		},
	}, &mockFeedService{})

	req := httptest.NewRequest(http.MethodPost, "/api/posts", strings.NewReader(`{"content":"   "}`))
	w := httptest.NewRecorder()
	h.CreatePost(w, withPrincipal(req, testPrincipal, false))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestPostHandler_CreatePost_UploadFailure(t *testing.T) {
	h := NewPostHandler(&mockPostService{
		createPostFn: func(ctx context.Context, principal model.Principal, in post.PostInput) (*model.Post, error) {
			return nil, model.NewBackendError(errors.New("upload failed"))
		},
	}, &mockFeedService{})

	body, contentType := multipartBody(t, map[string]string{"content": "x"}, "a.png", []byte("png"))
	req := httptest.NewRequest(http.MethodPost, "/api/posts", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	h.CreatePost(w, withPrincipal(req, testPrincipal, false))

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}
}

func TestPostHandler_CreatePost_Unauthenticated(t *testing.T) {
	called := false
	h := NewPostHandler(&mockPostService{
		createPostFn: func(ctx context.Context, principal model.Principal, in post.PostInput) (*model.Post, error) {
			called = true
			return nil, nil
		},
	}, &mockFeedService{})

	w := httptest.NewRecorder()
	h.CreatePost(w, httptest.NewRequest(http.MethodPost, "/api/posts", strings.NewReader(`{"content":"x"}`)))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if called {
		t.Error("service should not be called")
	}
}

func TestPostHandler_UpdatePost_PassesAdminFlag(t *testing.T) {
	tests := []struct {
		name    string
		isAdmin bool
	}{
		{"投稿者", false},
		{"管理者", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAdmin bool
			var gotID string
			var gotUpdate model.PostUpdate
			h := NewPostHandler(&mockPostService{
				updatePostFn: func(ctx context.Context, actor model.Principal, isAdmin bool, id string, update model.PostUpdate, image *post.Image) (*model.Post, error) {
					gotAdmin = isAdmin
					gotID = id
					gotUpdate = update
					return &model.Post{ID: id, OwnerID: "o1", Content: *update.Content}, nil
				},
			}, &mockFeedService{})

			req := httptest.NewRequest(http.MethodPatch, "/api/posts/post-1", strings.NewReader(`{"content":"Aggiornato"}`))
			req = withURLParam(withPrincipal(req, testPrincipal, tt.isAdmin), "id", "post-1")
			w := httptest.NewRecorder()
			h.UpdatePost(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			if gotAdmin != tt.isAdmin || gotID != "post-1" {
				t.Errorf("isAdmin = %v, id = %q", gotAdmin, gotID)
			}
			if gotUpdate.ExternalLink != nil || gotUpdate.ImageURL != nil {
				t.Errorf("omitted fields should stay nil: %+v", gotUpdate)
			}
		})
	}
}

func TestPostHandler_UpdatePost_Forbidden(t *testing.T) {
	h := NewPostHandler(&mockPostService{
		updatePostFn: func(ctx context.Context, actor model.Principal, isAdmin bool, id string, update model.PostUpdate, image *post.Image) (*model.Post, error) {
			return nil, model.NewForbiddenError()
		},
	}, &mockFeedService{})

	req := httptest.NewRequest(http.MethodPatch, "/api/posts/post-9", strings.NewReader(`{"content":"x"}`))
	req = withURLParam(withPrincipal(req, testPrincipal, false), "id", "post-9")
	w := httptest.NewRecorder()
	h.UpdatePost(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestPostHandler_UpdatePost_ReplacesImage(t *testing.T) {
	var gotImage *post.Image
	h := NewPostHandler(&mockPostService{
		updatePostFn: func(ctx context.Context, actor model.Principal, isAdmin bool, id string, update model.PostUpdate, image *post.Image) (*model.Post, error) {
			gotImage = image
			if update.Content != nil {
				t.Error("content was not sent and should stay nil")
			}
			return &model.Post{ID: id}, nil
		},
	}, &mockFeedService{})

	body, contentType := multipartBody(t, nil, "new.webp", []byte("webp"))
	req := httptest.NewRequest(http.MethodPatch, "/api/posts/post-1", body)
	req.Header.Set("Content-Type", contentType)
	req = withURLParam(withPrincipal(req, testPrincipal, false), "id", "post-1")
	w := httptest.NewRecorder()
	h.UpdatePost(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotImage == nil || gotImage.Filename != "new.webp" {
		t.Errorf("image = %+v", gotImage)
	}
}

func TestPostHandler_UpdatePost_RemovesImage(t *testing.T) {
	tests := []struct {
		name string
		body func(t *testing.T) (io.Reader, string)
	}{
		{
			name: "JSONでimage_urlにnull",
			body: func(t *testing.T) (io.Reader, string) {
				return strings.NewReader(`{"image_url":null}`), "application/json"
			},
		},
		{
			name: "JSONでimage_urlに空文字列",
			body: func(t *testing.T) (io.Reader, string) {
				return strings.NewReader(`{"image_url":""}`), "application/json"
			},
		},
		{
			name: "JSONでremove_image",
			body: func(t *testing.T) (io.Reader, string) {
				return strings.NewReader(`{"content":"Senza foto","remove_image":true}`), "application/json"
			},
		},
		{
			name: "multipartでremove_image",
			body: func(t *testing.T) (io.Reader, string) {
				buf, ct := multipartBody(t, map[string]string{"remove_image": "true"}, "", nil)
				return buf, ct
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUpdate model.PostUpdate
			var gotImage *post.Image
			h := NewPostHandler(&mockPostService{
				updatePostFn: func(ctx context.Context, actor model.Principal, isAdmin bool, id string, update model.PostUpdate, image *post.Image) (*model.Post, error) {
					gotUpdate = update
					gotImage = image
					return &model.Post{ID: id, OwnerID: testPrincipal.ID}, nil
				},
			}, &mockFeedService{})

			body, contentType := tt.body(t)
			req := httptest.NewRequest(http.MethodPatch, "/api/posts/post-1", body)
			req.Header.Set("Content-Type", contentType)
			req = withURLParam(withPrincipal(req, testPrincipal, false), "id", "post-1")
			w := httptest.NewRecorder()
			h.UpdatePost(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
			}
			if gotUpdate.ImageURL == nil || *gotUpdate.ImageURL != "" {
				t.Errorf("ImageURL = %v, want empty string to clear the image", gotUpdate.ImageURL)
			}
			if gotImage != nil {
				t.Errorf("no new image should be uploaded, got %+v", gotImage)
			}
		})
	}
}

func TestPostHandler_UpdatePost_InvalidRemoveImage(t *testing.T) {
	called := false
	h := NewPostHandler(&mockPostService{
		updatePostFn: func(ctx context.Context, actor model.Principal, isAdmin bool, id string, update model.PostUpdate, image *post.Image) (*model.Post, error) {
			called = true
			return &model.Post{ID: id}, nil
		},
	}, &mockFeedService{})

	body, contentType := multipartBody(t, map[string]string{"remove_image": "maybe"}, "", nil)
	req := httptest.NewRequest(http.MethodPatch, "/api/posts/post-1", body)
	req.Header.Set("Content-Type", contentType)
	req = withURLParam(withPrincipal(req, testPrincipal, false), "id", "post-1")
	w := httptest.NewRecorder()
	h.UpdatePost(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if called {
		t.Error("service should not be called")
	}
}
