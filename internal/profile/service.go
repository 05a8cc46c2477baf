// Package profile はプロフィールとディレクトリのドメインロジックを提供する。
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/farmchef/internal/classifier"
	"github.com/hitoshi/farmchef/internal/metrics"
	"github.com/hitoshi/farmchef/internal/model"
	"github.com/hitoshi/farmchef/internal/repository"
	"github.com/hitoshi/farmchef/internal/security"
)

// DefaultPostsLimit はプロフィールページに表示する投稿数のデフォルト値。
const DefaultPostsLimit = 20

// ProfileView はプロフィールと表示用カテゴリを結合したドメインオブジェクト。
type ProfileView struct {
	model.Profile
	Classification model.Classification
}

// NewProfileView はプロフィールを分類して表示用オブジェクトを生成する。
func NewProfileView(p *model.Profile) ProfileView {
	return ProfileView{Profile: *p, Classification: classifier.Classify(p.Biography)}
}

// ProfileInput はプロフィール作成時の入力。
type ProfileInput struct {
	OwnerID          string
	DisplayName      string
	Biography        string
	WebsiteURL       string
	ContactEmail     string
	BusinessCategory model.BusinessCategory
	CreatedByAdmin   bool
}

// DirectoryStats はディレクトリのカテゴリ別件数。
type DirectoryStats struct {
	Total   int
	ByLabel map[string]int
}

// Page はプロフィールページの表示内容。
type Page struct {
	Profile   ProfileView
	Posts     []*model.Post
	PostCount int
	IsOwner   bool
}

// PostLister は投稿一覧の取得インターフェース。
type PostLister interface {
	List(ctx context.Context, opts repository.ListOptions) ([]*model.Post, error)
}

// Service はプロフィール管理のサービス層。
type Service struct {
	repo       repository.ProfileRepository
	posts      PostLister
	sanitizer  security.ContentSanitizerService
	validator  security.LinkValidatorService
	metrics    metrics.MetricsCollector
	postsLimit int

	// 同一オーナーの初回閲覧が同時に発生した場合の自動作成を1回にまとめる
	ensureGroup singleflight.Group

	now   func() time.Time
	newID func() string
}

// NewService はServiceの新しいインスタンスを生成する。
// postsLimitが0以下の場合はDefaultPostsLimitを使用する。metricsはnilでもよい。
func NewService(
	repo repository.ProfileRepository,
	posts PostLister,
	sanitizer security.ContentSanitizerService,
	validator security.LinkValidatorService,
	m metrics.MetricsCollector,
	postsLimit int,
) *Service {
	if postsLimit <= 0 {
		postsLimit = DefaultPostsLimit
	}
	return &Service{
		repo:       repo,
		posts:      posts,
		sanitizer:  sanitizer,
		validator:  validator,
		metrics:    m,
		postsLimit: postsLimit,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
}

// ListProfiles はプロフィール一覧を分類付きで返す。
// 並び順の指定がない場合は作成日時の降順。
func (s *Service) ListProfiles(ctx context.Context, opts repository.ListOptions) ([]ProfileView, error) {
	if !opts.OrderBy.Valid() {
		return nil, model.NewValidationError(fmt.Sprintf("並び替え項目が不正です: %s", opts.OrderBy))
	}
	profiles, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, model.NewBackendError(fmt.Errorf("プロフィール一覧の取得に失敗しました: %w", err))
	}

	views := make([]ProfileView, len(profiles))
	for i, p := range profiles {
		views[i] = NewProfileView(p)
	}
	return views, nil
}

// GetProfileByOwner はオーナーIDに対応するプロフィールを返す。見つからない場合はnilを返す。
// 重複がある場合は最も古いプロフィールを採用する。
func (s *Service) GetProfileByOwner(ctx context.Context, ownerID string) (*model.Profile, error) {
	profiles, err := s.repo.List(ctx, repository.ListOptions{
		OwnerID:   ownerID,
		OrderBy:   repository.OrderByCreatedAt,
		Ascending: true,
		Limit:     1,
	})
	if err != nil {
		return nil, model.NewBackendError(fmt.Errorf("プロフィールの取得に失敗しました: %w", err))
	}
	if len(profiles) == 0 {
		return nil, nil
	}
	return profiles[0], nil
}

// EnsureOwnProfile は認証済み利用者のプロフィールを返し、存在しなければ作成する。
// 表示名はメールアドレスの@より前の部分を使用する。createdは今回作成した場合にtrue。
func (s *Service) EnsureOwnProfile(ctx context.Context, principal model.Principal) (*model.Profile, bool, error) {
	if principal.ID == "" {
		return nil, false, model.NewUnauthorizedError()
	}

	type ensureResult struct {
		profile *model.Profile
		created bool
	}

	v, err, _ := s.ensureGroup.Do(principal.ID, func() (any, error) {
		// 待機中の他の呼び出しに最初の呼び出し元のキャンセルを波及させない
		ctx := context.WithoutCancel(ctx)
		existing, err := s.GetProfileByOwner(ctx, principal.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return ensureResult{profile: existing}, nil
		}

		now := s.now()
		p := &model.Profile{
			ID:           s.newID(),
			OwnerID:      principal.ID,
			DisplayName:  defaultDisplayName(principal),
			ContactEmail: model.OptionalString(principal.Email),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.repo.Create(ctx, p); err != nil {
			return nil, model.NewBackendError(fmt.Errorf("プロフィールの自動作成に失敗しました: %w", err))
		}

		slog.Info("プロフィールを自動作成しました",
			slog.String("owner_id", principal.ID),
			slog.String("profile_id", p.ID),
		)
		if s.metrics != nil {
			s.metrics.RecordProfileAutoCreated()
		}
		return ensureResult{profile: p, created: true}, nil
	})
	if err != nil {
		return nil, false, err
	}

	r := v.(ensureResult)
	return r.profile, r.created, nil
}

// defaultDisplayName は自動作成時の表示名を決定する。
// メールのローカル部、名前、IDの順にフォールバックする。
func defaultDisplayName(principal model.Principal) string {
	if local := strings.TrimSpace(principal.EmailLocalPart()); local != "" {
		return local
	}
	if name := strings.TrimSpace(principal.Name); name != "" {
		return name
	}
	return principal.ID
}

// CreateProfile はプロフィールを作成する。
// 表示名が空または空白のみの場合はストアを呼び出さずにValidationErrorを返す。
func (s *Service) CreateProfile(ctx context.Context, in ProfileInput) (*model.Profile, error) {
	if strings.TrimSpace(in.OwnerID) == "" {
		return nil, model.NewValidationError("オーナーIDは必須です。")
	}

	update := model.ProfileUpdate{
		DisplayName:      &in.DisplayName,
		Biography:        &in.Biography,
		WebsiteURL:       &in.WebsiteURL,
		ContactEmail:     &in.ContactEmail,
		BusinessCategory: &in.BusinessCategory,
	}
	if err := s.normalize(&update); err != nil {
		return nil, err
	}

	now := s.now()
	p := &model.Profile{
		ID:             s.newID(),
		OwnerID:        in.OwnerID,
		CreatedByAdmin: in.CreatedByAdmin,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	update.Apply(p)

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, model.NewBackendError(fmt.Errorf("プロフィールの作成に失敗しました: %w", err))
	}
	return p, nil
}

// UpdateProfile は指定フィールドのみを更新する。
func (s *Service) UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.Profile, error) {
	if update.IsEmpty() {
		return nil, model.NewValidationError("更新する項目がありません。")
	}
	if err := s.normalize(&update); err != nil {
		return nil, err
	}

	p, err := s.repo.Update(ctx, id, update, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewProfileNotFoundError(id)
	}
	if err != nil {
		return nil, model.NewBackendError(fmt.Errorf("プロフィールの更新に失敗しました: %w", err))
	}
	return p, nil
}

// UpdateOwnProfile は本人による編集を行う。
// 本人が変更できるのは表示名、自己紹介文、ウェブサイトのみ。
func (s *Service) UpdateOwnProfile(ctx context.Context, principal model.Principal, update model.ProfileUpdate) (*model.Profile, error) {
	if update.ContactEmail != nil || update.BusinessCategory != nil {
		return nil, model.NewForbiddenError()
	}

	own, _, err := s.EnsureOwnProfile(ctx, principal)
	if err != nil {
		return nil, err
	}
	return s.UpdateProfile(ctx, own.ID, update)
}

// DeleteProfile はプロフィールのみを物理削除する。投稿は削除しない。
func (s *Service) DeleteProfile(ctx context.Context, id string) error {
	err := s.repo.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewProfileNotFoundError(id)
	}
	if err != nil {
		return model.NewBackendError(fmt.Errorf("プロフィールの削除に失敗しました: %w", err))
	}
	return nil
}

// FindByID は指定IDのプロフィールを返す。
func (s *Service) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, model.NewBackendError(fmt.Errorf("プロフィールの取得に失敗しました: %w", err))
	}
	if p == nil {
		return nil, model.NewProfileNotFoundError(id)
	}
	return p, nil
}

// Directory は全プロフィールを作成日時の降順で取得し、検索語で絞り込む。
func (s *Service) Directory(ctx context.Context, query string) ([]ProfileView, error) {
	views, err := s.ListProfiles(ctx, repository.ListOptions{})
	if err != nil {
		return nil, err
	}
	return Search(views, query), nil
}

// Search は表示名、自己紹介文、連絡先メールのいずれかに検索語を含むプロフィールを返す。
// 大文字小文字を区別しない部分一致。空白のみの検索語の場合は入力をそのまま返す。
// 空白は空判定にのみ使い、照合は入力どおりの検索語で行う。
func Search(views []ProfileView, query string) []ProfileView {
	if strings.TrimSpace(query) == "" {
		return views
	}
	q := strings.ToLower(query)

	matched := make([]ProfileView, 0, len(views))
	for _, v := range views {
		if strings.Contains(strings.ToLower(v.DisplayName), q) ||
			strings.Contains(strings.ToLower(v.Biography), q) ||
			strings.Contains(strings.ToLower(model.StringValue(v.ContactEmail)), q) {
			matched = append(matched, v)
		}
	}
	return matched
}

// Stats は分類ラベルごとの件数を集計する。全ラベルが0件でも含まれる。
func Stats(views []ProfileView) DirectoryStats {
	stats := DirectoryStats{Total: len(views), ByLabel: make(map[string]int)}
	for _, label := range classifier.Labels() {
		stats.ByLabel[label] = 0
	}
	for _, v := range views {
		stats.ByLabel[v.Classification.Label]++
	}
	return stats
}

// ProfilePage はプロフィールページの表示内容を返す。
// 閲覧者本人のページでプロフィールが未作成の場合は自動作成する。
func (s *Service) ProfilePage(ctx context.Context, viewer model.Principal, ownerID string) (*Page, error) {
	isOwner := viewer.ID != "" && viewer.ID == ownerID

	var p *model.Profile
	var err error
	if isOwner {
		p, _, err = s.EnsureOwnProfile(ctx, viewer)
	} else {
		p, err = s.GetProfileByOwner(ctx, ownerID)
	}
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, model.NewProfileNotFoundError(ownerID)
	}

	posts, err := s.posts.List(ctx, repository.ListOptions{
		OwnerID: ownerID,
		OrderBy: repository.OrderByCreatedAt,
		Limit:   s.postsLimit,
	})
	if err != nil {
		return nil, model.NewBackendError(fmt.Errorf("投稿一覧の取得に失敗しました: %w", err))
	}

	return &Page{
		Profile:   NewProfileView(p),
		Posts:     posts,
		PostCount: len(posts),
		IsOwner:   isOwner,
	}, nil
}

// normalize は更新内容を検証し、サニタイズ済みの値に置き換える。
// 指定されたフィールドのみを対象とする。
func (s *Service) normalize(u *model.ProfileUpdate) error {
	if u.DisplayName != nil {
		name := strings.TrimSpace(*u.DisplayName)
		if name == "" {
			return model.NewValidationError("表示名は必須です。")
		}
		u.DisplayName = &name
	}
	if u.Biography != nil {
		bio := s.sanitizer.Sanitize(*u.Biography)
		u.Biography = &bio
	}
	if u.WebsiteURL != nil {
		site := strings.TrimSpace(*u.WebsiteURL)
		if site != "" {
			if err := s.validator.ValidateLink(site); err != nil {
				return model.NewValidationError(fmt.Sprintf("ウェブサイトのURLが不正です: %v", err))
			}
		}
		u.WebsiteURL = &site
	}
	if u.ContactEmail != nil {
		email := strings.TrimSpace(*u.ContactEmail)
		if email != "" {
			if err := s.validator.ValidateEmail(email); err != nil {
				return model.NewValidationError("連絡先メールアドレスの形式が不正です。")
			}
		}
		u.ContactEmail = &email
	}
	if u.BusinessCategory != nil && !u.BusinessCategory.Valid() {
		return model.NewValidationError(fmt.Sprintf("事業カテゴリが不正です: %s", *u.BusinessCategory))
	}
	return nil
}
