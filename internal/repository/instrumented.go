package repository

import (
	"context"
	"time"

	"github.com/hitoshi/farmchef/internal/metrics"
	"github.com/hitoshi/farmchef/internal/model"
)

// InstrumentedProfileRepo はProfileRepositoryの各操作のレイテンシと結果を記録する。
type InstrumentedProfileRepo struct {
	next    ProfileRepository
	metrics metrics.MetricsCollector
}

// NewInstrumentedProfileRepo はInstrumentedProfileRepoを生成する。
func NewInstrumentedProfileRepo(next ProfileRepository, m metrics.MetricsCollector) *InstrumentedProfileRepo {
	return &InstrumentedProfileRepo{next: next, metrics: m}
}

func (r *InstrumentedProfileRepo) observe(op string, start time.Time, err error) {
	r.metrics.RecordStoreOperation(ProfilesCollection, op, time.Since(start), err)
}

func (r *InstrumentedProfileRepo) List(ctx context.Context, opts ListOptions) (profiles []*model.Profile, err error) {
	defer func(start time.Time) { r.observe("list", start, err) }(time.Now())
	return r.next.List(ctx, opts)
}

func (r *InstrumentedProfileRepo) FindByID(ctx context.Context, id string) (p *model.Profile, err error) {
	defer func(start time.Time) { r.observe("find", start, err) }(time.Now())
	return r.next.FindByID(ctx, id)
}

func (r *InstrumentedProfileRepo) FindByOwnerIDs(ctx context.Context, ownerIDs []string) (m map[string]*model.Profile, err error) {
	defer func(start time.Time) { r.observe("find_by_owners", start, err) }(time.Now())
	return r.next.FindByOwnerIDs(ctx, ownerIDs)
}

func (r *InstrumentedProfileRepo) Create(ctx context.Context, p *model.Profile) (err error) {
	defer func(start time.Time) { r.observe("create", start, err) }(time.Now())
	return r.next.Create(ctx, p)
}

func (r *InstrumentedProfileRepo) Update(ctx context.Context, id string, update model.ProfileUpdate, now time.Time) (p *model.Profile, err error) {
	defer func(start time.Time) { r.observe("update", start, err) }(time.Now())
	return r.next.Update(ctx, id, update, now)
}

func (r *InstrumentedProfileRepo) Delete(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { r.observe("delete", start, err) }(time.Now())
	return r.next.Delete(ctx, id)
}

// InstrumentedPostRepo はPostRepositoryの各操作のレイテンシと結果を記録する。
type InstrumentedPostRepo struct {
	next    PostRepository
	metrics metrics.MetricsCollector
}

// NewInstrumentedPostRepo はInstrumentedPostRepoを生成する。
func NewInstrumentedPostRepo(next PostRepository, m metrics.MetricsCollector) *InstrumentedPostRepo {
	return &InstrumentedPostRepo{next: next, metrics: m}
}

func (r *InstrumentedPostRepo) observe(op string, start time.Time, err error) {
	r.metrics.RecordStoreOperation(PostsCollection, op, time.Since(start), err)
}

func (r *InstrumentedPostRepo) List(ctx context.Context, opts ListOptions) (posts []*model.Post, err error) {
	defer func(start time.Time) { r.observe("list", start, err) }(time.Now())
	return r.next.List(ctx, opts)
}

func (r *InstrumentedPostRepo) FindByID(ctx context.Context, id string) (p *model.Post, err error) {
	defer func(start time.Time) { r.observe("find", start, err) }(time.Now())
	return r.next.FindByID(ctx, id)
}

func (r *InstrumentedPostRepo) Create(ctx context.Context, p *model.Post) (err error) {
	defer func(start time.Time) { r.observe("create", start, err) }(time.Now())
	return r.next.Create(ctx, p)
}

func (r *InstrumentedPostRepo) Update(ctx context.Context, id string, update model.PostUpdate, now time.Time) (p *model.Post, err error) {
	defer func(start time.Time) { r.observe("update", start, err) }(time.Now())
	return r.next.Update(ctx, id, update, now)
}

func (r *InstrumentedPostRepo) Delete(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { r.observe("delete", start, err) }(time.Now())
	return r.next.Delete(ctx, id)
}

func (r *InstrumentedPostRepo) DeleteByOwnerID(ctx context.Context, ownerID string) (n int64, err error) {
	defer func(start time.Time) { r.observe("delete_by_owner", start, err) }(time.Now())
	return r.next.DeleteByOwnerID(ctx, ownerID)
}

// compile-time interface check
var (
	_ ProfileRepository = (*InstrumentedProfileRepo)(nil)
	_ PostRepository    = (*InstrumentedPostRepo)(nil)
)
