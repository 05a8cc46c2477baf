package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hitoshi/farmchef/internal/model"
)

// MongoDBのコレクション名
const (
	ProfilesCollection = "profiles"
	PostsCollection    = "posts"
)

type profileDoc struct {
	ID               string    `bson:"_id"`
	OwnerID          string    `bson:"owner_id"`
	DisplayName      string    `bson:"display_name"`
	Biography        string    `bson:"biography"`
	WebsiteURL       *string   `bson:"website_url,omitempty"`
	ContactEmail     *string   `bson:"contact_email,omitempty"`
	BusinessCategory string    `bson:"business_category,omitempty"`
	CreatedByAdmin   bool      `bson:"created_by_admin"`
	CreatedAt        time.Time `bson:"created_at"`
	UpdatedAt        time.Time `bson:"updated_at"`
}

func newProfileDoc(p *model.Profile) profileDoc {
	return profileDoc{
		ID:               p.ID,
		OwnerID:          p.OwnerID,
		DisplayName:      p.DisplayName,
		Biography:        p.Biography,
		WebsiteURL:       p.WebsiteURL,
		ContactEmail:     p.ContactEmail,
		BusinessCategory: string(p.BusinessCategory),
		CreatedByAdmin:   p.CreatedByAdmin,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func (d profileDoc) toModel() *model.Profile {
	return &model.Profile{
		ID:               d.ID,
		OwnerID:          d.OwnerID,
		DisplayName:      d.DisplayName,
		Biography:        d.Biography,
		WebsiteURL:       d.WebsiteURL,
		ContactEmail:     d.ContactEmail,
		BusinessCategory: model.BusinessCategory(d.BusinessCategory),
		CreatedByAdmin:   d.CreatedByAdmin,
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
	}
}

type postDoc struct {
	ID           string    `bson:"_id"`
	OwnerID      string    `bson:"owner_id"`
	Content      string    `bson:"content"`
	ImageURL     *string   `bson:"image_url,omitempty"`
	ExternalLink *string   `bson:"external_link,omitempty"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func newPostDoc(p *model.Post) postDoc {
	return postDoc{
		ID:           p.ID,
		OwnerID:      p.OwnerID,
		Content:      p.Content,
		ImageURL:     p.ImageURL,
		ExternalLink: p.ExternalLink,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func (d postDoc) toModel() *model.Post {
	return &model.Post{
		ID:           d.ID,
		OwnerID:      d.OwnerID,
		Content:      d.Content,
		ImageURL:     d.ImageURL,
		ExternalLink: d.ExternalLink,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}

// MongoProfileRepo はMongoDBを使用したプロフィールリポジトリ。
type MongoProfileRepo struct {
	coll *mongo.Collection
}

// NewMongoProfileRepo はMongoProfileRepoを生成する。
func NewMongoProfileRepo(db *mongo.Database) *MongoProfileRepo {
	return &MongoProfileRepo{coll: db.Collection(ProfilesCollection)}
}

// List は条件に一致するプロフィールを返す。
func (r *MongoProfileRepo) List(ctx context.Context, opts ListOptions) ([]*model.Profile, error) {
	filter, findOpts, err := buildFindArgs(opts)
	if err != nil {
		return nil, err
	}

	cursor, err := r.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("プロフィール一覧の取得に失敗しました: %w", err)
	}
	var docs []profileDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("プロフィールの読み取りに失敗しました: %w", err)
	}

	profiles := make([]*model.Profile, 0, len(docs))
	for _, d := range docs {
		profiles = append(profiles, d.toModel())
	}
	return profiles, nil
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *MongoProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	var doc profileDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	return doc.toModel(), nil
}

// ownerLookupSort はオーナーごとのプロフィール選択順。GetProfileByOwnerと同じく作成日時、IDの昇順。
var ownerLookupSort = bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}

// FindByOwnerIDs は$inフィルタで複数オーナーのプロフィールを一括取得する。
// 作成日時とIDの昇順に走査し、各オーナーの最初のプロフィールを採用する。
func (r *MongoProfileRepo) FindByOwnerIDs(ctx context.Context, ownerIDs []string) (map[string]*model.Profile, error) {
	result := make(map[string]*model.Profile, len(ownerIDs))
	if len(ownerIDs) == 0 {
		return result, nil
	}

	cursor, err := r.coll.Find(ctx,
		bson.M{"owner_id": bson.M{"$in": ownerIDs}},
		options.Find().SetSort(ownerLookupSort),
	)
	if err != nil {
		return nil, fmt.Errorf("オーナーIDによるプロフィールの一括取得に失敗しました: %w", err)
	}
	var docs []profileDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("プロフィールの読み取りに失敗しました: %w", err)
	}

	for _, d := range docs {
		if _, ok := result[d.OwnerID]; !ok {
			result[d.OwnerID] = d.toModel()
		}
	}
	return result, nil
}

// Create はプロフィールを作成する。
func (r *MongoProfileRepo) Create(ctx context.Context, p *model.Profile) error {
	if _, err := r.coll.InsertOne(ctx, newProfileDoc(p)); err != nil {
		return fmt.Errorf("プロフィールの作成に失敗しました: %w", err)
	}
	return nil
}

// Update は$setと$unsetで指定フィールドのみを更新し、更新後のプロフィールを返す。
func (r *MongoProfileRepo) Update(ctx context.Context, id string, update model.ProfileUpdate, now time.Time) (*model.Profile, error) {
	set := bson.M{"updated_at": now}
	unset := bson.M{}
	if update.DisplayName != nil {
		set["display_name"] = *update.DisplayName
	}
	if update.Biography != nil {
		set["biography"] = *update.Biography
	}
	setOrUnset(set, unset, "website_url", update.WebsiteURL)
	setOrUnset(set, unset, "contact_email", update.ContactEmail)
	if update.BusinessCategory != nil {
		c := string(*update.BusinessCategory)
		setOrUnset(set, unset, "business_category", &c)
	}

	var doc profileDoc
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		updateDocument(set, unset),
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	return doc.toModel(), nil
}

// Delete は指定IDのプロフィールを削除する。投稿は削除しない。
func (r *MongoProfileRepo) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("プロフィールの削除に失敗しました: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MongoPostRepo はMongoDBを使用した投稿リポジトリ。
type MongoPostRepo struct {
	coll *mongo.Collection
}

// NewMongoPostRepo はMongoPostRepoを生成する。
func NewMongoPostRepo(db *mongo.Database) *MongoPostRepo {
	return &MongoPostRepo{coll: db.Collection(PostsCollection)}
}

// List は条件に一致する投稿を返す。
func (r *MongoPostRepo) List(ctx context.Context, opts ListOptions) ([]*model.Post, error) {
	if opts.OrderBy == OrderByDisplayName {
		return nil, fmt.Errorf("unsupported order field for posts: %q", opts.OrderBy)
	}
	filter, findOpts, err := buildFindArgs(opts)
	if err != nil {
		return nil, err
	}

	cursor, err := r.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("投稿一覧の取得に失敗しました: %w", err)
	}
	var docs []postDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("投稿の読み取りに失敗しました: %w", err)
	}

	posts := make([]*model.Post, 0, len(docs))
	for _, d := range docs {
		posts = append(posts, d.toModel())
	}
	return posts, nil
}

// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
func (r *MongoPostRepo) FindByID(ctx context.Context, id string) (*model.Post, error) {
	var doc postDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	return doc.toModel(), nil
}

// Create は投稿を作成する。
func (r *MongoPostRepo) Create(ctx context.Context, p *model.Post) error {
	if _, err := r.coll.InsertOne(ctx, newPostDoc(p)); err != nil {
		return fmt.Errorf("投稿の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は指定フィールドのみを更新し、更新後の投稿を返す。
func (r *MongoPostRepo) Update(ctx context.Context, id string, update model.PostUpdate, now time.Time) (*model.Post, error) {
	set := bson.M{"updated_at": now}
	unset := bson.M{}
	if update.Content != nil {
		set["content"] = *update.Content
	}
	setOrUnset(set, unset, "image_url", update.ImageURL)
	setOrUnset(set, unset, "external_link", update.ExternalLink)

	var doc postDoc
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		updateDocument(set, unset),
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("投稿の更新に失敗しました: %w", err)
	}
	return doc.toModel(), nil
}

// Delete は指定IDの投稿を削除する。
func (r *MongoPostRepo) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("投稿の削除に失敗しました: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByOwnerID は指定オーナーの全投稿を削除し、削除件数を返す。
func (r *MongoPostRepo) DeleteByOwnerID(ctx context.Context, ownerID string) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"owner_id": ownerID})
	if err != nil {
		return 0, fmt.Errorf("オーナーの投稿削除に失敗しました: %w", err)
	}
	return res.DeletedCount, nil
}

// EnsureMongoIndexes はowner_idとcreated_atのインデックスを作成する。
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	}
	for _, name := range []string{ProfilesCollection, PostsCollection} {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%sのインデックス作成に失敗しました: %w", name, err)
		}
	}
	return nil
}

// buildFindArgs はListOptionsをMongoDBのフィルタと検索オプションに変換する。
func buildFindArgs(opts ListOptions) (bson.M, *options.FindOptions, error) {
	if !opts.OrderBy.Valid() {
		return nil, nil, fmt.Errorf("unsupported order field: %q", opts.OrderBy)
	}

	filter := bson.M{}
	if opts.OwnerID != "" {
		filter["owner_id"] = opts.OwnerID
	}

	direction := -1
	if opts.Ascending {
		direction = 1
	}
	findOpts := options.Find().SetSort(bson.D{
		{Key: string(opts.OrderBy.orDefault()), Value: direction},
		{Key: "_id", Value: direction},
	})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	return filter, findOpts, nil
}

// setOrUnset はオプショナルフィールドの更新を$setまたは$unsetに振り分ける。
// 空文字列はフィールドの削除として扱う。
func setOrUnset(set, unset bson.M, field string, value *string) {
	if value == nil {
		return
	}
	if *value == "" {
		unset[field] = ""
		return
	}
	set[field] = *value
}

func updateDocument(set, unset bson.M) bson.M {
	doc := bson.M{"$set": set}
	if len(unset) > 0 {
		doc["$unset"] = unset
	}
	return doc
}

// compile-time interface check
var (
	_ ProfileRepository = (*MongoProfileRepo)(nil)
	_ PostRepository    = (*MongoPostRepo)(nil)
)
