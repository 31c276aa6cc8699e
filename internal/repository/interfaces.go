// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/dotsite/internal/model"
)

// ContentRepository はブログ・イベントの永続化インターフェース。
// 実装はドライバ由来のエラーをすべてNETWORK_ERRORとして返す。
type ContentRepository interface {
	// List はqに一致するコンテンツを取得する。著者プロフィールをJOINして返す。
	List(ctx context.Context, kind model.ContentKind, q model.Query) ([]*model.ContentItem, error)

	// Insert はコンテンツを作成し、バックエンドが採番したid・created_atを含む行を返す。
	Insert(ctx context.Context, kind model.ContentKind, payload model.ContentPayload) (*model.ContentItem, error)

	// Update はtitle・本文・リンク（イベントの場合は開催情報）のみを更新する。
	// 対象行が存在しない場合はSTALE_REFERENCEを返す。
	Update(ctx context.Context, kind model.ContentKind, id string, payload model.ContentPayload) error

	// FindByID は指定IDのコンテンツを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, kind model.ContentKind, id string) (*model.ContentItem, error)

	// MarkPastEvents は開催日がasOfより前のイベントのis_upcomingをfalseにする。
	// 更新件数を返す。
	MarkPastEvents(ctx context.Context, asOf time.Time) (int64, error)
}

// ProfileRepository はプロフィールの参照インターフェース。
type ProfileRepository interface {
	// List はqに一致するプロフィールを取得する。
	List(ctx context.Context, q model.Query) ([]*model.Profile, error)

	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
// セッションの発行は外部の認証基盤が行う。
type SessionRepository interface {
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
