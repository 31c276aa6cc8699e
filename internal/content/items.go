package content

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/dotsite/internal/model"
	"github.com/hitoshi/dotsite/internal/repository"
)

// ItemKey はContentItemの一意キー。
func ItemKey(it *model.ContentItem) string { return it.ID }

// MergeItem はincomingの編集可能フィールドを採用し、id・作成日時・作成者はstoredのものを保つ。
func MergeItem(stored, incoming *model.ContentItem) *model.ContentItem {
	merged := incoming.Clone()
	merged.ID = stored.ID
	merged.CreatedAt = stored.CreatedAt
	merged.AuthorID = stored.AuthorID
	if merged.Author == nil && stored.Author != nil {
		a := *stored.Author
		merged.Author = &a
	}
	merged.Kind = stored.Kind
	return merged
}

// ItemLess はqの並び順のうち、作成・編集で位置が変わりうるイベント日付順の比較関数を返す。
// 作成日時の降順は新規作成が常に先頭になるためnilを返す。
// 日付のないイベントはPostgreSQLの昇順と同じく末尾に並べる。
func ItemLess(q model.Query) func(a, b *model.ContentItem) bool {
	if q.Order.Column != "date" {
		return nil
	}
	date := func(it *model.ContentItem) time.Time {
		if it.Event == nil {
			return time.Time{}
		}
		return it.Event.Date
	}
	return func(a, b *model.ContentItem) bool {
		da, db := date(a), date(b)
		switch {
		case da.IsZero():
			return false
		case db.IsZero():
			return true
		case q.Order.Ascending:
			return da.Before(db)
		default:
			return da.After(db)
		}
	}
}

// NewItemSynchronizer はContentRepositoryからkindのコンテンツを取得するSynchronizerを生成する。
func NewItemSynchronizer(repo repository.ContentRepository, kind model.ContentKind, q model.Query, logger *slog.Logger) *Synchronizer[*model.ContentItem] {
	fetch := FetcherFunc[*model.ContentItem](func(ctx context.Context, q model.Query) ([]*model.ContentItem, error) {
		return repo.List(ctx, kind, q)
	})
	return New[*model.ContentItem](fetch, Config[*model.ContentItem]{
		Query:  q,
		Key:    ItemKey,
		Less:   ItemLess(q),
		Merge:  MergeItem,
		Clone:  (*model.ContentItem).Clone,
		Logger: logger,
	})
}

// NewProfileSynchronizer はメンバー一覧用のSynchronizerを生成する。
func NewProfileSynchronizer(repo repository.ProfileRepository, q model.Query, logger *slog.Logger) *Synchronizer[*model.Profile] {
	fetch := FetcherFunc[*model.Profile](func(ctx context.Context, q model.Query) ([]*model.Profile, error) {
		return repo.List(ctx, q)
	})
	return New[*model.Profile](fetch, Config[*model.Profile]{
		Query: q,
		Key:   func(p *model.Profile) string { return p.ID },
		Clone: func(p *model.Profile) *model.Profile {
			cp := *p
			return &cp
		},
		Logger: logger,
	})
}
