package post

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/farmchef/internal/model"
	"github.com/hitoshi/farmchef/internal/repository"
	"github.com/hitoshi/farmchef/internal/security"
	"github.com/hitoshi/farmchef/internal/storage"
)

// --- モック ---

type mockPostRepo struct {
	listFn            func(ctx context.Context, opts repository.ListOptions) ([]*model.Post, error)
	findByIDFn        func(ctx context.Context, id string) (*model.Post, error)
	createFn          func(ctx context.Context, p *model.Post) error
	updateFn          func(ctx context.Context, id string, u model.PostUpdate, now time.Time) (*model.Post, error)
	deleteFn          func(ctx context.Context, id string) error
	deleteByOwnerIDFn func(ctx context.Context, ownerID string) (int64, error)

	createCalls int
	updateCalls int
}

func (m *mockPostRepo) List(ctx context.Context, opts repository.ListOptions) ([]*model.Post, error) {
	if m.listFn != nil {
		return m.listFn(ctx, opts)
	}
	return []*model.Post{}, nil
}
func (m *mockPostRepo) FindByID(ctx context.Context, id string) (*model.Post, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockPostRepo) Create(ctx context.Context, p *model.Post) error {
	m.createCalls++
	if m.createFn != nil {
		return m.createFn(ctx, p)
	}
	return nil
}
func (m *mockPostRepo) Update(ctx context.Context, id string, u model.PostUpdate, now time.Time) (*model.Post, error) {
	m.updateCalls++
	if m.updateFn != nil {
		return m.updateFn(ctx, id, u, now)
	}
	return nil, repository.ErrNotFound
}
func (m *mockPostRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}
func (m *mockPostRepo) DeleteByOwnerID(ctx context.Context, ownerID string) (int64, error) {
	if m.deleteByOwnerIDFn != nil {
		return m.deleteByOwnerIDFn(ctx, ownerID)
	}
	return 0, nil
}

type mockUploader struct {
	uploadFn func(ctx context.Context, r io.Reader, objectPath string, opts storage.UploadOptions) (*storage.UploadResult, error)
	calls    int
}

func (m *mockUploader) Upload(ctx context.Context, r io.Reader, objectPath string, opts storage.UploadOptions) (*storage.UploadResult, error) {
	m.calls++
	if m.uploadFn != nil {
		return m.uploadFn(ctx, r, objectPath, opts)
	}
	return &storage.UploadResult{PublicURL: "https://cdn.example.com/" + objectPath}, nil
}

var fixedNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newTestService(repo *mockPostRepo, uploader storage.Uploader) *Service {
	s := NewService(repo, uploader, security.NewContentSanitizer(), security.NewLinkValidator(), 0)
	s.now = func() time.Time { return fixedNow }
	s.newID = func() string { return "post-1" }
	return s
}

func strPtr(s string) *string { return &s }

var author = model.Principal{ID: "google-1", Email: "chef@example.com"}

// --- テスト ---

// TestListPosts_ClampsLimit は取得件数が上限に切り詰められることを検証する。
func TestListPosts_ClampsLimit(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		wantLimit int
	}{
		{"指定なし", 0, DefaultMaxLimit},
		{"上限超過", 500, DefaultMaxLimit},
		{"上限以内", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got repository.ListOptions
			repo := &mockPostRepo{
				listFn: func(ctx context.Context, opts repository.ListOptions) ([]*model.Post, error) {
					got = opts
					return nil, nil
				},
			}
			svc := newTestService(repo, nil)

			if _, err := svc.ListPosts(context.Background(), repository.ListOptions{Limit: tt.limit}); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", got.Limit, tt.wantLimit)
			}
		})
	}
}

// TestListPosts_RejectsDisplayNameOrder は投稿に存在しない並び替え項目を拒否することを検証する。
func TestListPosts_RejectsDisplayNameOrder(t *testing.T) {
	svc := newTestService(&mockPostRepo{}, nil)

	_, err := svc.ListPosts(context.Background(), repository.ListOptions{OrderBy: repository.OrderByDisplayName})
	if !model.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
}

// TestCreatePost_RejectsEmptyContent は空白のみやサニタイズ後に空になる本文を拒否することを検証する。
func TestCreatePost_RejectsEmptyContent(t *testing.T) {
	for _, content := range []string{"", "   ", "\n\t", "<script>alert(1)</script>"} {
		repo := &mockPostRepo{}
		uploader := &mockUploader{}
		svc := newTestService(repo, uploader)

		_, err := svc.CreatePost(context.Background(), author, PostInput{
			Content: content,
			Image:   &Image{Reader: strings.NewReader("png"), Filename: "a.png"},
		})
		if !model.IsValidation(err) {
			t.Errorf("Content=%q: err = %v, want validation error", content, err)
		}
		if repo.createCalls != 0 {
			t.Errorf("Content=%q: Create should not be called", content)
		}
		if uploader.calls != 0 {
			t.Errorf("Content=%q: Upload should not be called", content)
		}
	}
}

// TestCreatePost_RejectsInvalidLink は不正な外部リンクを拒否することを検証する。
func TestCreatePost_RejectsInvalidLink(t *testing.T) {
	repo := &mockPostRepo{}
	svc := newTestService(repo, nil)

	_, err := svc.CreatePost(context.Background(), author, PostInput{Content: "raccolto", ExternalLink: "ftp://example.com"})
	if !model.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
	if repo.createCalls != 0 {
		t.Error("Create should not be called")
	}
}

// TestCreatePost_Success は投稿がオーナー付きで保存されることを検証する。
func TestCreatePost_Success(t *testing.T) {
	var saved *model.Post
	repo := &mockPostRepo{
		createFn: func(ctx context.Context, p *model.Post) error {
			saved = p
			return nil
		},
	}
	svc := newTestService(repo, nil)

	p, err := svc.CreatePost(context.Background(), author, PostInput{
		Content:      "  <p>Pomodori freschi</p>  ",
		ExternalLink: "https://shop.example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved != p {
		t.Fatal("returned post should be the saved one")
	}
	if p.OwnerID != author.ID {
		t.Errorf("OwnerID = %q", p.OwnerID)
	}
	if p.Content != "Pomodori freschi" {
		t.Errorf("Content = %q", p.Content)
	}
	if model.StringValue(p.ExternalLink) != "https://shop.example.com" {
		t.Errorf("ExternalLink = %q", model.StringValue(p.ExternalLink))
	}
	if p.ImageURL != nil {
		t.Errorf("ImageURL should be nil, got %q", *p.ImageURL)
	}
	if !p.CreatedAt.Equal(fixedNow) || !p.UpdatedAt.Equal(fixedNow) {
		t.Errorf("timestamps = %v / %v", p.CreatedAt, p.UpdatedAt)
	}
}

// TestCreatePost_UploadsImage は画像が所定のパスへ上書き指定でアップロードされることを検証する。
func TestCreatePost_UploadsImage(t *testing.T) {
	var gotPath string
	var gotOpts storage.UploadOptions
	var gotBody string
	uploader := &mockUploader{
		uploadFn: func(ctx context.Context, r io.Reader, objectPath string, opts storage.UploadOptions) (*storage.UploadResult, error) {
			b, _ := io.ReadAll(r)
			gotBody = string(b)
			gotPath = objectPath
			gotOpts = opts
			return &storage.UploadResult{PublicURL: "https://cdn.example.com/img.jpg"}, nil
		},
	}
	svc := newTestService(&mockPostRepo{}, uploader)

	p, err := svc.CreatePost(context.Background(), author, PostInput{
		Content: "Nuovo olio",
		Image:   &Image{Reader: strings.NewReader("jpeg-bytes"), Filename: "olio nuovo.jpg"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantPath := storage.PostImagePath("olio nuovo.jpg", fixedNow)
	if gotPath != wantPath {
		t.Errorf("path = %q, want %q", gotPath, wantPath)
	}
	if !gotOpts.Upsert {
		t.Error("Upsert should be true")
	}
	if gotBody != "jpeg-bytes" {
		t.Errorf("body = %q", gotBody)
	}
	if model.StringValue(p.ImageURL) != "https://cdn.example.com/img.jpg" {
		t.Errorf("ImageURL = %q", model.StringValue(p.ImageURL))
	}
}

// TestCreatePost_UploadFailure はアップロード失敗時にBackendErrorを返し、投稿を作成しないことを検証する。
func TestCreatePost_UploadFailure(t *testing.T) {
	repo := &mockPostRepo{}
	svc := newTestService(repo, storage.DisabledUploader{})

	_, err := svc.CreatePost(context.Background(), author, PostInput{
		Content: "Nuovo olio",
		Image:   &Image{Reader: strings.NewReader("x"), Filename: "a.jpg"},
	})
	if !model.IsBackend(err) {
		t.Errorf("err = %v, want backend error", err)
	}
	if !errors.Is(err, storage.ErrUploadDisabled) {
		t.Errorf("err should wrap ErrUploadDisabled: %v", err)
	}
	if repo.createCalls != 0 {
		t.Error("Create should not be called")
	}
}

// TestCreatePost_RequiresPrincipal は未認証の場合にエラーを返すことを検証する。
func TestCreatePost_RequiresPrincipal(t *testing.T) {
	svc := newTestService(&mockPostRepo{}, nil)

	_, err := svc.CreatePost(context.Background(), model.Principal{}, PostInput{Content: "x"})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUnauthorized {
		t.Errorf("err = %v, want unauthorized", err)
	}
}

func existingPost(ownerID string) func(ctx context.Context, id string) (*model.Post, error) {
	return func(ctx context.Context, id string) (*model.Post, error) {
		return &model.Post{ID: id, OwnerID: ownerID, Content: "old"}, nil
	}
}

// TestUpdatePost_Permissions は投稿者本人と管理者のみが編集できることを検証する。
func TestUpdatePost_Permissions(t *testing.T) {
	tests := []struct {
		name      string
		actor     model.Principal
		isAdmin   bool
		wantError bool
	}{
		{"投稿者本人", author, false, false},
		{"管理者", model.Principal{ID: "admin-1"}, true, false},
		{"他の利用者", model.Principal{ID: "other"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockPostRepo{
				findByIDFn: existingPost(author.ID),
				updateFn: func(ctx context.Context, id string, u model.PostUpdate, now time.Time) (*model.Post, error) {
					return &model.Post{ID: id, OwnerID: author.ID, Content: *u.Content}, nil
				},
			}
			svc := newTestService(repo, nil)

			_, err := svc.UpdatePost(context.Background(), tt.actor, tt.isAdmin, "post-1", model.PostUpdate{Content: strPtr("new")}, nil)
			if tt.wantError {
				var apiErr *model.APIError
				if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeForbidden {
					t.Errorf("err = %v, want forbidden", err)
				}
				if repo.updateCalls != 0 {
					t.Error("Update should not be called")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

// TestUpdatePost_NotFound は存在しない投稿でNotFoundErrorを返すことを検証する。
func TestUpdatePost_NotFound(t *testing.T) {
	svc := newTestService(&mockPostRepo{}, nil)

	_, err := svc.UpdatePost(context.Background(), author, false, "missing", model.PostUpdate{Content: strPtr("x")}, nil)
	if !model.IsNotFound(err) {
		t.Errorf("err = %v, want not found", err)
	}
}

// TestUpdatePost_ReplacesImage は新しい画像で画像URLが置き換わることを検証する。
func TestUpdatePost_ReplacesImage(t *testing.T) {
	var got model.PostUpdate
	repo := &mockPostRepo{
		findByIDFn: existingPost(author.ID),
		updateFn: func(ctx context.Context, id string, u model.PostUpdate, now time.Time) (*model.Post, error) {
			got = u
			return &model.Post{ID: id}, nil
		},
	}
	svc := newTestService(repo, &mockUploader{})

	_, err := svc.UpdatePost(context.Background(), author, false, "post-1", model.PostUpdate{},
		&Image{Reader: strings.NewReader("x"), Filename: "new.png"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "https://cdn.example.com/" + storage.PostImagePath("new.png", fixedNow)
	if model.StringValue(got.ImageURL) != want {
		t.Errorf("ImageURL = %q, want %q", model.StringValue(got.ImageURL), want)
	}
	if got.Content != nil {
		t.Error("Content should not be touched")
	}
}

// TestUpdatePost_RemovesImage は空の画像URLで画像を外し、アップロードを行わないことを検証する。
func TestUpdatePost_RemovesImage(t *testing.T) {
	var got model.PostUpdate
	repo := &mockPostRepo{
		findByIDFn: existingPost(author.ID),
		updateFn: func(ctx context.Context, id string, u model.PostUpdate, now time.Time) (*model.Post, error) {
			got = u
			p := &model.Post{ID: id, ImageURL: strPtr("https://cdn.example.com/old.png")}
			u.Apply(p)
			return p, nil
		},
	}
	uploader := &mockUploader{}
	svc := newTestService(repo, uploader)

	p, err := svc.UpdatePost(context.Background(), author, false, "post-1", model.PostUpdate{ImageURL: strPtr("")}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ImageURL == nil || *got.ImageURL != "" {
		t.Errorf("ImageURL = %v, want empty string", got.ImageURL)
	}
	if p.ImageURL != nil {
		t.Errorf("image should be removed, got %q", *p.ImageURL)
	}
	if uploader.calls != 0 {
		t.Errorf("uploader called %d times, want 0", uploader.calls)
	}
}

// TestUpdatePost_Validation は空の更新や空白の本文を拒否することを検証する。
func TestUpdatePost_Validation(t *testing.T) {
	repo := &mockPostRepo{findByIDFn: existingPost(author.ID)}
	svc := newTestService(repo, nil)

	for _, u := range []model.PostUpdate{{}, {Content: strPtr("   ")}} {
		if _, err := svc.UpdatePost(context.Background(), author, false, "post-1", u, nil); !model.IsValidation(err) {
			t.Errorf("err = %v, want validation error", err)
		}
	}
	if repo.updateCalls != 0 {
		t.Error("Update should not be called")
	}
}

// TestDeletePost はエラーの分類を検証する。
func TestDeletePost(t *testing.T) {
	tests := []struct {
		name    string
		repoErr error
		check   func(error) bool
	}{
		{"成功", nil, func(err error) bool { return err == nil }},
		{"未検出", repository.ErrNotFound, model.IsNotFound},
		{"障害", errors.New("timeout"), model.IsBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockPostRepo{
				deleteFn: func(ctx context.Context, id string) error { return tt.repoErr },
			}
			svc := newTestService(repo, nil)

			if err := svc.DeletePost(context.Background(), "post-1"); !tt.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// TestDeleteByOwner は削除件数を返すことを検証する。
func TestDeleteByOwner(t *testing.T) {
	var gotOwner string
	repo := &mockPostRepo{
		deleteByOwnerIDFn: func(ctx context.Context, ownerID string) (int64, error) {
			gotOwner = ownerID
			return 3, nil
		},
	}
	svc := newTestService(repo, nil)

	n, err := svc.DeleteByOwner(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 || gotOwner != "owner-1" {
		t.Errorf("n = %d, owner = %q", n, gotOwner)
	}

	if _, err := svc.DeleteByOwner(context.Background(), ""); !model.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
}
