package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/farmchef/internal/model"
)

const postColumns = `id, owner_id, content, image_url, external_link, created_at, updated_at`

// PostgresPostRepo はPostgreSQLを使用した投稿リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

// List は条件に一致する投稿を返す。
func (r *PostgresPostRepo) List(ctx context.Context, opts ListOptions) ([]*model.Post, error) {
	if opts.OrderBy == OrderByDisplayName {
		return nil, fmt.Errorf("unsupported order field for posts: %q", opts.OrderBy)
	}
	query, args, err := buildListQuery("posts", postColumns, opts)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("投稿一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	posts := make([]*model.Post, 0)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("投稿の読み取りに失敗しました: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("投稿一覧の走査に失敗しました: %w", err)
	}
	return posts, nil
}

// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindByID(ctx context.Context, id string) (*model.Post, error) {
	p, err := scanPost(r.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	return p, nil
}

// Create は投稿を作成する。
func (r *PostgresPostRepo) Create(ctx context.Context, p *model.Post) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO posts (id, owner_id, content, image_url, external_link, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.OwnerID, p.Content,
		nullString(model.StringValue(p.ImageURL)), nullString(model.StringValue(p.ExternalLink)),
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("投稿の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は指定フィールドをマージし、更新後の投稿を返す。
// owner_idは更新対象に含めない。
func (r *PostgresPostRepo) Update(ctx context.Context, id string, update model.PostUpdate, now time.Time) (*model.Post, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	p, err := scanPost(tx.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = $1 FOR UPDATE`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}

	update.Apply(p)
	p.UpdatedAt = now

	_, err = tx.ExecContext(ctx,
		`UPDATE posts SET content = $2, image_url = $3, external_link = $4, updated_at = $5
		 WHERE id = $1`,
		p.ID, p.Content,
		nullString(model.StringValue(p.ImageURL)), nullString(model.StringValue(p.ExternalLink)),
		p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("投稿の更新に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return p, nil
}

// Delete は指定IDの投稿を削除する。
func (r *PostgresPostRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM posts WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("投稿の削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByOwnerID は指定オーナーの全投稿を削除し、削除件数を返す。
func (r *PostgresPostRepo) DeleteByOwnerID(ctx context.Context, ownerID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM posts WHERE owner_id = $1`,
		ownerID,
	)
	if err != nil {
		return 0, fmt.Errorf("オーナーの投稿削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func scanPost(s rowScanner) (*model.Post, error) {
	p := &model.Post{}
	var imageURL, externalLink sql.NullString
	if err := s.Scan(
		&p.ID, &p.OwnerID, &p.Content, &imageURL, &externalLink,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.ImageURL = model.OptionalString(nullStringValue(imageURL))
	p.ExternalLink = model.OptionalString(nullStringValue(externalLink))
	return p, nil
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
