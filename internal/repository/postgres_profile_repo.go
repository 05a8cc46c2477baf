package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/farmchef/internal/model"
)

const profileColumns = `id, owner_id, display_name, biography, website_url, contact_email,
		        business_category, created_by_admin, created_at, updated_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// List は条件に一致するプロフィールを返す。
func (r *PostgresProfileRepo) List(ctx context.Context, opts ListOptions) ([]*model.Profile, error) {
	query, args, err := buildListQuery("profiles", profileColumns, opts)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("プロフィール一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	profiles := make([]*model.Profile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("プロフィールの読み取りに失敗しました: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("プロフィール一覧の走査に失敗しました: %w", err)
	}
	return profiles, nil
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	return p, nil
}

// FindByOwnerIDs は複数オーナーのプロフィールを1回のクエリで取得する。
// DISTINCT ONで各オーナーの最も古いプロフィールのみを採用する。作成日時が同じ場合はIDの小さい方。
func (r *PostgresProfileRepo) FindByOwnerIDs(ctx context.Context, ownerIDs []string) (map[string]*model.Profile, error) {
	result := make(map[string]*model.Profile, len(ownerIDs))
	if len(ownerIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT ON (owner_id) `+profileColumns+`
		 FROM profiles
		 WHERE owner_id = ANY($1)
		 ORDER BY owner_id, created_at ASC, id ASC`,
		pq.Array(ownerIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("オーナーIDによるプロフィールの一括取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("プロフィールの読み取りに失敗しました: %w", err)
		}
		result[p.OwnerID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("プロフィールの走査に失敗しました: %w", err)
	}
	return result, nil
}

// Create はプロフィールを作成する。
func (r *PostgresProfileRepo) Create(ctx context.Context, p *model.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (id, owner_id, display_name, biography, website_url, contact_email,
		                       business_category, created_by_admin, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.OwnerID, p.DisplayName, p.Biography,
		nullString(model.StringValue(p.WebsiteURL)), nullString(model.StringValue(p.ContactEmail)),
		nullString(string(p.BusinessCategory)), p.CreatedByAdmin,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("プロフィールの作成に失敗しました: %w", err)
	}
	return nil
}

// Update は指定フィールドをマージし、更新後のプロフィールを返す。
// 行ロックを取得したうえで読み取り、マージ結果を書き戻す。
func (r *PostgresProfileRepo) Update(ctx context.Context, id string, update model.ProfileUpdate, now time.Time) (*model.Profile, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	p, err := scanProfile(tx.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1 FOR UPDATE`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}

	update.Apply(p)
	p.UpdatedAt = now

	_, err = tx.ExecContext(ctx,
		`UPDATE profiles SET
		    display_name = $2, biography = $3, website_url = $4, contact_email = $5,
		    business_category = $6, updated_at = $7
		 WHERE id = $1`,
		p.ID, p.DisplayName, p.Biography,
		nullString(model.StringValue(p.WebsiteURL)), nullString(model.StringValue(p.ContactEmail)),
		nullString(string(p.BusinessCategory)), p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return p, nil
}

// Delete は指定IDのプロフィールを削除する。投稿は削除しない。
func (r *PostgresProfileRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM profiles WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("プロフィールの削除に失敗しました: %w", err)
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

func scanProfile(s rowScanner) (*model.Profile, error) {
	p := &model.Profile{}
	var websiteURL, contactEmail, category sql.NullString
	if err := s.Scan(
		&p.ID, &p.OwnerID, &p.DisplayName, &p.Biography,
		&websiteURL, &contactEmail, &category, &p.CreatedByAdmin,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.WebsiteURL = model.OptionalString(nullStringValue(websiteURL))
	p.ContactEmail = model.OptionalString(nullStringValue(contactEmail))
	p.BusinessCategory = model.BusinessCategory(nullStringValue(category))
	return p, nil
}

// buildListQuery は一覧取得用のSELECT文を組み立てる。
// ソート列は許可リストから選ばれるため、文字列連結しても安全。
func buildListQuery(table, columns string, opts ListOptions) (string, []any, error) {
	if !opts.OrderBy.Valid() {
		return "", nil, fmt.Errorf("unsupported order field: %q", opts.OrderBy)
	}

	var b strings.Builder
	var args []any
	b.WriteString("SELECT " + columns + " FROM " + table)
	if opts.OwnerID != "" {
		args = append(args, opts.OwnerID)
		b.WriteString(" WHERE owner_id = $1")
	}

	direction := "DESC"
	if opts.Ascending {
		direction = "ASC"
	}
	b.WriteString(" ORDER BY " + string(opts.OrderBy.orDefault()) + " " + direction + ", id " + direction)

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		b.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	}
	return b.String(), args, nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
