// Package admin は管理者によるディレクトリとフィードの管理機能を提供する。
package admin

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/farmchef/internal/model"
	"github.com/hitoshi/farmchef/internal/profile"
	"github.com/hitoshi/farmchef/internal/repository"
)

// ownerIDPrefix は管理者が作成したプロフィールのオーナーIDの接頭辞。
const ownerIDPrefix = "admin_user_"

// DashboardFeedLimit はダッシュボードに表示する投稿数。
const DashboardFeedLimit = 50

// ProfileManager はプロフィール管理の操作を定義する。
type ProfileManager interface {
	ListProfiles(ctx context.Context, opts repository.ListOptions) ([]profile.ProfileView, error)
	FindByID(ctx context.Context, id string) (*model.Profile, error)
	CreateProfile(ctx context.Context, in profile.ProfileInput) (*model.Profile, error)
	UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.Profile, error)
	DeleteProfile(ctx context.Context, id string) error
}

// PostManager は投稿削除の操作を定義する。
type PostManager interface {
	DeletePost(ctx context.Context, id string) error
	DeleteByOwner(ctx context.Context, ownerID string) (int64, error)
}

// FeedAssembler はフィードの組み立てを定義する。
type FeedAssembler interface {
	Assemble(ctx context.Context, opts repository.ListOptions) ([]model.FeedEntry, error)
}

// ProfileInput は管理者によるプロフィール作成時の入力。
type ProfileInput struct {
	DisplayName      string
	Biography        string
	WebsiteURL       string
	ContactEmail     string
	BusinessCategory model.BusinessCategory
}

// Dashboard は管理画面の表示内容。
type Dashboard struct {
	Profiles   []profile.ProfileView
	Feed       []model.FeedEntry
	Stats      profile.DirectoryStats
	TotalPosts int
}

// Service は管理機能のサービス層。
// 呼び出し元で管理者権限を確認済みであることを前提とする。
type Service struct {
	profiles ProfileManager
	posts    PostManager
	feed     FeedAssembler
	newID    func() string
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(profiles ProfileManager, posts PostManager, feed FeedAssembler) *Service {
	return &Service{
		profiles: profiles,
		posts:    posts,
		feed:     feed,
		newID:    func() string { return uuid.New().String() },
	}
}

// Dashboard は全プロフィール、最新のフィード、集計値を返す。
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	views, err := s.profiles.ListProfiles(ctx, repository.ListOptions{})
	if err != nil {
		return nil, err
	}
	entries, err := s.feed.Assemble(ctx, repository.ListOptions{Limit: DashboardFeedLimit})
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		Profiles:   views,
		Feed:       entries,
		Stats:      profile.Stats(views),
		TotalPosts: len(entries),
	}, nil
}

// CreateProfile はログイン実績のない事業者のプロフィールを作成する。
// オーナーIDは admin_user_<uuid> で採番し、カテゴリ未指定の場合はFarmとする。
func (s *Service) CreateProfile(ctx context.Context, in ProfileInput) (*model.Profile, error) {
	category := in.BusinessCategory
	if category == "" {
		category = model.CategoryFarm
	}

	p, err := s.profiles.CreateProfile(ctx, profile.ProfileInput{
		OwnerID:          ownerIDPrefix + s.newID(),
		DisplayName:      in.DisplayName,
		Biography:        in.Biography,
		WebsiteURL:       in.WebsiteURL,
		ContactEmail:     in.ContactEmail,
		BusinessCategory: category,
		CreatedByAdmin:   true,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("管理者がプロフィールを作成しました",
		slog.String("profile_id", p.ID),
		slog.String("owner_id", p.OwnerID),
	)
	return p, nil
}

// UpdateProfile は表示名、自己紹介文、ウェブサイト、連絡先メール、カテゴリを更新する。
func (s *Service) UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.Profile, error) {
	return s.profiles.UpdateProfile(ctx, id, update)
}

// DeleteProfile はプロフィールと同一オーナーの全投稿を削除する。
// 投稿を先に削除し、その後プロフィールを削除する。取り消しはできない。
func (s *Service) DeleteProfile(ctx context.Context, id string) error {
	p, err := s.profiles.FindByID(ctx, id)
	if err != nil {
		return err
	}

	deleted, err := s.posts.DeleteByOwner(ctx, p.OwnerID)
	if err != nil {
		return err
	}
	if err := s.profiles.DeleteProfile(ctx, id); err != nil {
		return err
	}

	slog.Info("プロフィールを削除しました",
		slog.String("profile_id", id),
		slog.String("owner_id", p.OwnerID),
		slog.Int64("deleted_posts", deleted),
	)
	return nil
}

// DeletePost は投稿を削除する。取り消しはできない。
func (s *Service) DeletePost(ctx context.Context, id string) error {
	if err := s.posts.DeletePost(ctx, id); err != nil {
		return err
	}
	slog.Info("投稿を削除しました", slog.String("post_id", id))
	return nil
}
