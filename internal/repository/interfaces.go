// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/farmchef/internal/model"
)

// ErrNotFound は更新・削除対象のドキュメントが存在しない場合に返される。
var ErrNotFound = errors.New("document not found")

// OrderField は一覧取得時のソート対象フィールド。
// SQLインジェクションを避けるため、許可リストの値のみ受け付ける。
type OrderField string

const (
	OrderByCreatedAt   OrderField = "created_at"
	OrderByUpdatedAt   OrderField = "updated_at"
	OrderByDisplayName OrderField = "display_name"
)

// Valid はソート対象フィールドが許可リストに含まれるかを返す。
// 空文字列はデフォルト（created_at）として有効。
func (f OrderField) Valid() bool {
	switch f {
	case "", OrderByCreatedAt, OrderByUpdatedAt, OrderByDisplayName:
		return true
	default:
		return false
	}
}

// orDefault は空の場合にcreated_atを返す。
func (f OrderField) orDefault() OrderField {
	if f == "" {
		return OrderByCreatedAt
	}
	return f
}

// ListOptions は一覧取得の条件を表す。
type ListOptions struct {
	// OwnerID は等価フィルタ。空文字列の場合はフィルタしない。
	OwnerID string
	// OrderBy はソート対象フィールド。空の場合はcreated_at。
	OrderBy OrderField
	// Ascending がfalseの場合は降順。
	Ascending bool
	// Limit は最大件数。0以下の場合は無制限。
	Limit int
}

// ProfileRepository はプロフィールデータの永続化インターフェース。
type ProfileRepository interface {
	// List は条件に一致するプロフィールを返す。
	List(ctx context.Context, opts ListOptions) ([]*model.Profile, error)

	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// FindByOwnerIDs は複数のオーナーIDに対応するプロフィールを1回のクエリで取得する。
	// 同一オーナーに複数のプロフィールがある場合は最も古いものを採用する。
	// 見つからないオーナーIDはマップに含まれない。
	FindByOwnerIDs(ctx context.Context, ownerIDs []string) (map[string]*model.Profile, error)

	// Create はプロフィールを作成する。
	Create(ctx context.Context, profile *model.Profile) error

	// Update は指定フィールドをマージし、更新後のプロフィールを返す。
	// 対象が存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, id string, update model.ProfileUpdate, now time.Time) (*model.Profile, error)

	// Delete は指定IDのプロフィールを物理削除する。
	// 関連する投稿は削除しない。対象が存在しない場合はErrNotFoundを返す。
	Delete(ctx context.Context, id string) error
}

// PostRepository は投稿データの永続化インターフェース。
type PostRepository interface {
	// List は条件に一致する投稿を返す。
	List(ctx context.Context, opts ListOptions) ([]*model.Post, error)

	// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Post, error)

	// Create は投稿を作成する。
	Create(ctx context.Context, post *model.Post) error

	// Update は指定フィールドをマージし、更新後の投稿を返す。
	// 対象が存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, id string, update model.PostUpdate, now time.Time) (*model.Post, error)

	// Delete は指定IDの投稿を物理削除する。対象が存在しない場合はErrNotFoundを返す。
	Delete(ctx context.Context, id string) error

	// DeleteByOwnerID は指定オーナーの全投稿を削除し、削除件数を返す。
	DeleteByOwnerID(ctx context.Context, ownerID string) (int64, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
}
