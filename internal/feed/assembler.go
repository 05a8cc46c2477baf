// Package feed は投稿一覧とオーナー情報を結合したフィードを組み立てる。
package feed

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/farmchef/internal/classifier"
	"github.com/hitoshi/farmchef/internal/metrics"
	"github.com/hitoshi/farmchef/internal/model"
	"github.com/hitoshi/farmchef/internal/repository"
)

// defaultLookupConcurrency は個別検索へフォールバックした際の同時実行数。
const defaultLookupConcurrency = 8

// PostLister は投稿一覧の取得インターフェース。
type PostLister interface {
	ListPosts(ctx context.Context, opts repository.ListOptions) ([]*model.Post, error)
}

// OwnerFinder はオーナーIDからプロフィールを解決するインターフェース。
type OwnerFinder interface {
	FindByOwnerIDs(ctx context.Context, ownerIDs []string) (map[string]*model.Profile, error)
	List(ctx context.Context, opts repository.ListOptions) ([]*model.Profile, error)
}

// Assembler はフィードの組み立てを行う。
type Assembler struct {
	posts       PostLister
	owners      OwnerFinder
	metrics     metrics.MetricsCollector
	concurrency int
}

// NewAssembler はAssemblerの新しいインスタンスを生成する。metricsはnilでもよい。
func NewAssembler(posts PostLister, owners OwnerFinder, m metrics.MetricsCollector) *Assembler {
	return &Assembler{
		posts:       posts,
		owners:      owners,
		metrics:     m,
		concurrency: defaultLookupConcurrency,
	}
}

// Assemble は投稿一覧を取得し、各投稿にオーナーの表示情報を付与する。
// 結果の順序は投稿一覧の順序と一致する。
// オーナーを解決できなかった投稿はUnknown Userとして返す。
func (a *Assembler) Assemble(ctx context.Context, opts repository.ListOptions) ([]model.FeedEntry, error) {
	posts, err := a.posts.ListPosts(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return []model.FeedEntry{}, nil
	}

	owners := a.resolveOwners(ctx, distinctOwnerIDs(posts))

	entries := make([]model.FeedEntry, len(posts))
	unknown := 0
	for i, p := range posts {
		entries[i] = model.FeedEntry{Post: *p}
		profile, ok := owners[p.OwnerID]
		if !ok || profile == nil {
			entries[i].OwnerName = model.UnknownOwnerName
			entries[i].OwnerClassification = classifier.Classify("")
			unknown++
			continue
		}
		entries[i].OwnerName = profile.DisplayName
		entries[i].OwnerEmail = model.StringValue(profile.ContactEmail)
		entries[i].OwnerClassification = classifier.Classify(profile.Biography)
	}

	if unknown > 0 && a.metrics != nil {
		a.metrics.RecordUnknownOwners(unknown)
	}
	return entries, nil
}

// resolveOwners はオーナーIDを一括で解決する。
// 一括検索に失敗した場合はオーナーごとの個別検索に切り替え、個別の失敗は無視する。
func (a *Assembler) resolveOwners(ctx context.Context, ownerIDs []string) map[string]*model.Profile {
	owners, err := a.owners.FindByOwnerIDs(ctx, ownerIDs)
	if err == nil {
		return owners
	}

	slog.Warn("オーナー情報の一括取得に失敗しました。個別取得に切り替えます",
		slog.Int("owners", len(ownerIDs)),
		slog.String("error", err.Error()),
	)
	if a.metrics != nil {
		a.metrics.RecordOwnerLookupFailure()
	}

	// 各ゴルーチンは自分の添字にのみ書き込む
	found := make([]*model.Profile, len(ownerIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, ownerID := range ownerIDs {
		g.Go(func() error {
			profiles, err := a.owners.List(gctx, repository.ListOptions{
				OwnerID:   ownerID,
				OrderBy:   repository.OrderByCreatedAt,
				Ascending: true,
				Limit:     1,
			})
			if err != nil {
				slog.Warn("オーナー情報の取得に失敗しました",
					slog.String("owner_id", ownerID),
					slog.String("error", err.Error()),
				)
				if a.metrics != nil {
					a.metrics.RecordOwnerLookupFailure()
				}
				return nil
			}
			if len(profiles) > 0 {
				found[i] = profiles[0]
			}
			return nil
		})
	}
	_ = g.Wait()

	owners = make(map[string]*model.Profile, len(ownerIDs))
	for i, ownerID := range ownerIDs {
		if found[i] != nil {
			owners[ownerID] = found[i]
		}
	}
	return owners
}

// distinctOwnerIDs は投稿のオーナーIDを出現順に重複なく返す。
func distinctOwnerIDs(posts []*model.Post) []string {
	seen := make(map[string]struct{}, len(posts))
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		if _, ok := seen[p.OwnerID]; ok {
			continue
		}
		seen[p.OwnerID] = struct{}{}
		ids = append(ids, p.OwnerID)
	}
	return ids
}
