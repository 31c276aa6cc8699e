package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/dotsite/internal/model"
)

const (
	blogColumns = `c.id, c.title, c.content, c.image_links, c.social_links, c.user_id, c.created_at,
		p.id, p.name, p.avatar_url, p.headline`
	eventColumns = `c.id, c.title, c.description, c.images, c.links, c.user_id, c.created_at,
		p.id, p.name, p.avatar_url, p.headline,
		c.date, c.time, c.location, c.image, c.is_upcoming`
)

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresContentRepo はPostgreSQLを使用したブログ・イベントリポジトリ。
type PostgresContentRepo struct {
	db *sql.DB
}

// NewPostgresContentRepo はPostgresContentRepoを生成する。
func NewPostgresContentRepo(db *sql.DB) *PostgresContentRepo {
	return &PostgresContentRepo{db: db}
}

func selectClause(kind model.ContentKind, requireAuthor bool) string {
	join := "LEFT JOIN"
	if requireAuthor {
		join = "INNER JOIN"
	}
	cols, table := blogColumns, "blogs"
	if kind == model.ContentKindEvent {
		cols, table = eventColumns, "events"
	}
	return fmt.Sprintf("SELECT %s FROM %s c %s profiles p ON p.id = c.user_id", cols, table, join)
}

// List はqに一致するコンテンツを取得する。
// q.RequireAuthorがtrueの場合、著者プロフィールが存在しない行は除外される。
func (r *PostgresContentRepo) List(ctx context.Context, kind model.ContentKind, q model.Query) ([]*model.ContentItem, error) {
	if !kind.Valid() {
		return nil, model.NewValidationError(fmt.Sprintf("unknown content kind: %s", kind))
	}
	mods, args, err := buildModifiers(kind.Collection(), q, 0)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, selectClause(kind, q.RequireAuthor)+mods, args...)
	if err != nil {
		return nil, model.NewNetworkError(loadFailedMessage(kind), fmt.Errorf("%s一覧の取得に失敗しました: %w", kind, err))
	}
	defer rows.Close()

	var items []*model.ContentItem
	for rows.Next() {
		item, err := scanContent(rows, kind)
		if err != nil {
			return nil, model.NewNetworkError(loadFailedMessage(kind), fmt.Errorf("%sのスキャンに失敗しました: %w", kind, err))
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewNetworkError(loadFailedMessage(kind), fmt.Errorf("%s一覧の走査中にエラーが発生しました: %w", kind, err))
	}

	return items, nil
}

// FindByID は指定IDのコンテンツを取得する。見つからない場合はnilを返す。
func (r *PostgresContentRepo) FindByID(ctx context.Context, kind model.ContentKind, id string) (*model.ContentItem, error) {
	if !kind.Valid() {
		return nil, model.NewValidationError(fmt.Sprintf("unknown content kind: %s", kind))
	}
	row := r.db.QueryRowContext(ctx, selectClause(kind, false)+" WHERE c.id = $1", id)
	item, err := scanContent(row, kind)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, model.NewNetworkError(loadFailedMessage(kind), fmt.Errorf("%sの取得に失敗しました: %w", kind, err))
	}
	return item, nil
}

// Insert はコンテンツを作成する。id・created_atはバックエンドが採番し、
// JOIN済みの行を読み直して返す。
func (r *PostgresContentRepo) Insert(ctx context.Context, kind model.ContentKind, payload model.ContentPayload) (*model.ContentItem, error) {
	var id string
	var err error

	switch kind {
	case model.ContentKindBlog:
		err = r.db.QueryRowContext(ctx,
			`INSERT INTO blogs (title, content, image_links, social_links, user_id)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			payload.Title, payload.Body, pq.Array(nonNil(payload.ImageLinks)), pq.Array(nonNil(payload.ExternalLinks)),
			nullString(payload.AuthorID),
		).Scan(&id)
	case model.ContentKindEvent:
		ev := eventOrEmpty(payload.Event)
		err = r.db.QueryRowContext(ctx,
			`INSERT INTO events (title, description, date, time, location, image, images, links, is_upcoming, user_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING id`,
			payload.Title, payload.Body, nullDate(ev.Date), ev.Time, ev.Location, ev.CoverImage,
			pq.Array(nonNil(payload.ImageLinks)), pq.Array(nonNil(payload.ExternalLinks)), ev.IsUpcoming,
			nullString(payload.AuthorID),
		).Scan(&id)
	default:
		return nil, model.NewValidationError(fmt.Sprintf("unknown content kind: %s", kind))
	}
	if err != nil {
		return nil, model.NewNetworkError(saveFailedMessage(kind), fmt.Errorf("%sの作成に失敗しました: %w", kind, err))
	}

	item, err := r.FindByID(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, model.NewNetworkError(saveFailedMessage(kind), fmt.Errorf("作成した%sを読み直せませんでした: %s", kind, id))
	}
	return item, nil
}

// Update はtitle・本文・リンク（イベントの場合は開催情報）を更新する。
// id・created_at・user_idは変更しない。
func (r *PostgresContentRepo) Update(ctx context.Context, kind model.ContentKind, id string, payload model.ContentPayload) error {
	var result sql.Result
	var err error

	switch kind {
	case model.ContentKindBlog:
		result, err = r.db.ExecContext(ctx,
			`UPDATE blogs
			 SET title = $1, content = $2, image_links = $3, social_links = $4, updated_at = now()
			 WHERE id = $5`,
			payload.Title, payload.Body, pq.Array(nonNil(payload.ImageLinks)), pq.Array(nonNil(payload.ExternalLinks)), id,
		)
	case model.ContentKindEvent:
		ev := eventOrEmpty(payload.Event)
		result, err = r.db.ExecContext(ctx,
			`UPDATE events
			 SET title = $1, description = $2, date = $3, time = $4, location = $5, image = $6,
			     images = $7, links = $8, is_upcoming = $9, updated_at = now()
			 WHERE id = $10`,
			payload.Title, payload.Body, nullDate(ev.Date), ev.Time, ev.Location, ev.CoverImage,
			pq.Array(nonNil(payload.ImageLinks)), pq.Array(nonNil(payload.ExternalLinks)), ev.IsUpcoming, id,
		)
	default:
		return model.NewValidationError(fmt.Sprintf("unknown content kind: %s", kind))
	}
	if err != nil {
		return model.NewNetworkError(saveFailedMessage(kind), fmt.Errorf("%sの更新に失敗しました: %w", kind, err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return model.NewNetworkError(saveFailedMessage(kind), fmt.Errorf("更新件数の取得に失敗しました: %w", err))
	}
	if rowsAffected == 0 {
		return model.NewStaleReferenceError(kind, id)
	}
	return nil
}

// MarkPastEvents は開催日がasOfの日付より前のイベントを過去イベントにする。
func (r *PostgresContentRepo) MarkPastEvents(ctx context.Context, asOf time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE events SET is_upcoming = false, updated_at = now()
		 WHERE is_upcoming AND date IS NOT NULL AND date < $1::date`,
		asOf.Format(time.DateOnly),
	)
	if err != nil {
		return 0, fmt.Errorf("過去イベントの更新に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	return n, nil
}

// scanContent は1行をContentItemに変換する。
func scanContent(s rowScanner, kind model.ContentKind) (*model.ContentItem, error) {
	item := &model.ContentItem{Kind: kind}
	var userID, profileID, profileName, profileAvatar, profileHeadline sql.NullString
	var images, links []string

	dest := []any{
		&item.ID, &item.Title, &item.Body, pq.Array(&images), pq.Array(&links), &userID, &item.CreatedAt,
		&profileID, &profileName, &profileAvatar, &profileHeadline,
	}

	var date sql.NullTime
	var ev model.EventDetails
	if kind == model.ContentKindEvent {
		dest = append(dest, &date, &ev.Time, &ev.Location, &ev.CoverImage, &ev.IsUpcoming)
	}

	if err := s.Scan(dest...); err != nil {
		return nil, err
	}

	item.AuthorID = nullStringValue(userID)
	item.ImageLinks = images
	item.ExternalLinks = links
	if profileID.Valid {
		item.Author = &model.Profile{
			ID:          profileID.String,
			DisplayName: nullStringValue(profileName),
			AvatarURL:   nullStringValue(profileAvatar),
			Headline:    nullStringValue(profileHeadline),
		}
	}
	if kind == model.ContentKindEvent {
		if date.Valid {
			ev.Date = date.Time
		}
		item.Event = &ev
	}
	return item, nil
}

func loadFailedMessage(kind model.ContentKind) string {
	if kind == model.ContentKindEvent {
		return "Failed to fetch events"
	}
	return "Failed to load blog posts. Please try again later."
}

func saveFailedMessage(kind model.ContentKind) string {
	return fmt.Sprintf("Failed to save %s. Please try again.", kind)
}

func eventOrEmpty(ev *model.EventDetails) model.EventDetails {
	if ev == nil {
		return model.EventDetails{IsUpcoming: true}
	}
	return *ev
}

// nullDate はゼロ値の日付をNULLとして扱う。
func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.DateOnly)
}

// nonNil はtext[] NOT NULLカラムに渡すためnilスライスを空スライスにする。
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// nullString は空文字列をNULLとして扱うsql.NullStringを返す。
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
var _ ContentRepository = (*PostgresContentRepo)(nil)
