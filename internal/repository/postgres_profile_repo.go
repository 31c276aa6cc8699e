package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/dotsite/internal/model"
)

const profileColumns = `p.id, p.name, p.headline, p.avatar_url, p.github_url, p.linkedin_url`

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// List はqに一致するプロフィールを取得する。
func (r *PostgresProfileRepo) List(ctx context.Context, q model.Query) ([]*model.Profile, error) {
	mods, args, err := buildModifiers(model.CollectionProfiles, q, 0)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, "SELECT "+profileColumns+" FROM profiles p"+mods, args...)
	if err != nil {
		return nil, model.NewNetworkError("Failed to load members", fmt.Errorf("プロフィール一覧の取得に失敗しました: %w", err))
	}
	defer rows.Close()

	var profiles []*model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, model.NewNetworkError("Failed to load members", fmt.Errorf("プロフィールのスキャンに失敗しました: %w", err))
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewNetworkError("Failed to load members", fmt.Errorf("プロフィール一覧の走査中にエラーが発生しました: %w", err))
	}
	return profiles, nil
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM profiles p WHERE p.id = $1", id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	return p, nil
}

func scanProfile(s rowScanner) (*model.Profile, error) {
	p := &model.Profile{}
	var name, headline, avatar, github, linkedin sql.NullString
	if err := s.Scan(&p.ID, &name, &headline, &avatar, &github, &linkedin); err != nil {
		return nil, err
	}
	p.DisplayName = nullStringValue(name)
	p.Headline = nullStringValue(headline)
	p.AvatarURL = nullStringValue(avatar)
	p.GithubURL = nullStringValue(github)
	p.LinkedinURL = nullStringValue(linkedin)
	return p, nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
