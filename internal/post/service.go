// Package post は投稿の作成・編集・削除のドメインロジックを提供する。
package post

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/farmchef/internal/model"
	"github.com/hitoshi/farmchef/internal/repository"
	"github.com/hitoshi/farmchef/internal/security"
	"github.com/hitoshi/farmchef/internal/storage"
)

// DefaultMaxLimit はフィード取得件数の上限のデフォルト値。
const DefaultMaxLimit = 50

// Image はアップロードする投稿画像を表す。
type Image struct {
	Reader   io.Reader
	Filename string
}

// PostInput は投稿作成時の入力。
type PostInput struct {
	Content      string
	ExternalLink string
	Image        *Image
}

// Service は投稿管理のサービス層。
type Service struct {
	repo      repository.PostRepository
	uploader  storage.Uploader
	sanitizer security.ContentSanitizerService
	validator security.LinkValidatorService
	maxLimit  int

	now   func() time.Time
	newID func() string
}

// NewService はServiceの新しいインスタンスを生成する。
// maxLimitが0以下の場合はDefaultMaxLimitを使用する。
func NewService(
	repo repository.PostRepository,
	uploader storage.Uploader,
	sanitizer security.ContentSanitizerService,
	validator security.LinkValidatorService,
	maxLimit int,
) *Service {
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	if uploader == nil {
		uploader = storage.DisabledUploader{}
	}
	return &Service{
		repo:      repo,
		uploader:  uploader,
		sanitizer: sanitizer,
		validator: validator,
		maxLimit:  maxLimit,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// MaxLimit は取得件数の上限を返す。
func (s *Service) MaxLimit() int {
	return s.maxLimit
}

// ListPosts は投稿を取得する。件数は上限に切り詰められる。
// 件数の指定がない場合は上限件数を取得する。
func (s *Service) ListPosts(ctx context.Context, opts repository.ListOptions) ([]*model.Post, error) {
	if !opts.OrderBy.Valid() || opts.OrderBy == repository.OrderByDisplayName {
		return nil, model.NewValidationError(fmt.Sprintf("並び替え項目が不正です: %s", opts.OrderBy))
	}
	if opts.Limit <= 0 || opts.Limit > s.maxLimit {
		opts.Limit = s.maxLimit
	}

	posts, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, model.NewBackendError(fmt.Errorf("投稿一覧の取得に失敗しました: %w", err))
	}
	return posts, nil
}

// FindByID は指定IDの投稿を返す。
func (s *Service) FindByID(ctx context.Context, id string) (*model.Post, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, model.NewBackendError(fmt.Errorf("投稿の取得に失敗しました: %w", err))
	}
	if p == nil {
		return nil, model.NewPostNotFoundError(id)
	}
	return p, nil
}

// CreatePost は認証済み利用者の投稿を作成する。
// 本文がサニタイズ後に空の場合はストアを呼び出さずにValidationErrorを返す。
// 画像がある場合は先にアップロードし、失敗した場合は投稿を作成しない。
func (s *Service) CreatePost(ctx context.Context, principal model.Principal, in PostInput) (*model.Post, error) {
	if principal.ID == "" {
		return nil, model.NewUnauthorizedError()
	}

	update := model.PostUpdate{
		Content:      &in.Content,
		ExternalLink: &in.ExternalLink,
	}
	if err := s.normalize(&update); err != nil {
		return nil, err
	}

	now := s.now()
	if in.Image != nil {
		url, err := s.uploadImage(ctx, in.Image, now)
		if err != nil {
			return nil, err
		}
		update.ImageURL = &url
	}

	p := &model.Post{
		ID:        s.newID(),
		OwnerID:   principal.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	update.Apply(p)

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, model.NewBackendError(fmt.Errorf("投稿の作成に失敗しました: %w", err))
	}

	slog.Info("投稿を作成しました",
		slog.String("owner_id", p.OwnerID),
		slog.String("post_id", p.ID),
		slog.Bool("has_image", p.ImageURL != nil),
	)
	return p, nil
}

// UpdatePost は投稿者本人または管理者による編集を行う。
// imageが指定された場合は新しい画像で置き換える。オーナーは変更できない。
func (s *Service) UpdatePost(ctx context.Context, actor model.Principal, isAdmin bool, id string, update model.PostUpdate, image *Image) (*model.Post, error) {
	if actor.ID == "" {
		return nil, model.NewUnauthorizedError()
	}
	if update.IsEmpty() && image == nil {
		return nil, model.NewValidationError("更新する項目がありません。")
	}
	if err := s.normalize(&update); err != nil {
		return nil, err
	}

	existing, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.OwnerID != actor.ID && !isAdmin {
		return nil, model.NewForbiddenError()
	}

	now := s.now()
	if image != nil {
		url, err := s.uploadImage(ctx, image, now)
		if err != nil {
			return nil, err
		}
		update.ImageURL = &url
	}

	p, err := s.repo.Update(ctx, id, update, now)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewPostNotFoundError(id)
	}
	if err != nil {
		return nil, model.NewBackendError(fmt.Errorf("投稿の更新に失敗しました: %w", err))
	}
	return p, nil
}

// DeletePost は投稿を物理削除する。
func (s *Service) DeletePost(ctx context.Context, id string) error {
	err := s.repo.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewPostNotFoundError(id)
	}
	if err != nil {
		return model.NewBackendError(fmt.Errorf("投稿の削除に失敗しました: %w", err))
	}
	return nil
}

// DeleteByOwner は指定オーナーの全投稿を削除し、削除件数を返す。
func (s *Service) DeleteByOwner(ctx context.Context, ownerID string) (int64, error) {
	if ownerID == "" {
		return 0, model.NewValidationError("オーナーIDは必須です。")
	}
	n, err := s.repo.DeleteByOwnerID(ctx, ownerID)
	if err != nil {
		return 0, model.NewBackendError(fmt.Errorf("投稿の一括削除に失敗しました: %w", err))
	}
	return n, nil
}

// uploadImage は画像をアップロードし、公開URLを返す。
func (s *Service) uploadImage(ctx context.Context, img *Image, now time.Time) (string, error) {
	if img.Reader == nil {
		return "", model.NewValidationError("画像ファイルが空です。")
	}
	objectPath := storage.PostImagePath(img.Filename, now)
	res, err := s.uploader.Upload(ctx, img.Reader, objectPath, storage.UploadOptions{Upsert: true})
	if err != nil {
		return "", model.NewBackendError(fmt.Errorf("画像のアップロードに失敗しました: %w", err))
	}
	return res.PublicURL, nil
}

// normalize は更新内容を検証し、サニタイズ済みの値に置き換える。
func (s *Service) normalize(u *model.PostUpdate) error {
	if u.Content != nil {
		content := s.sanitizer.Sanitize(strings.TrimSpace(*u.Content))
		if content == "" {
			return model.NewValidationError("投稿本文は必須です。")
		}
		u.Content = &content
	}
	if u.ExternalLink != nil {
		link := strings.TrimSpace(*u.ExternalLink)
		if link != "" {
			if err := s.validator.ValidateLink(link); err != nil {
				return model.NewValidationError(fmt.Sprintf("外部リンクのURLが不正です: %v", err))
			}
		}
		u.ExternalLink = &link
	}
	if u.ImageURL != nil {
		img := strings.TrimSpace(*u.ImageURL)
		if img != "" {
			if err := s.validator.ValidateLink(img); err != nil {
				return model.NewValidationError(fmt.Sprintf("画像のURLが不正です: %v", err))
			}
		}
		u.ImageURL = &img
	}
	return nil
}
