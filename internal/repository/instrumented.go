package repository

import (
	"context"
	"time"

	"github.com/hitoshi/dotsite/internal/metrics"
	"github.com/hitoshi/dotsite/internal/model"
)

// StoreRecorder はストア操作の記録先。
type StoreRecorder interface {
	RecordStoreOperation(op, collection, result string, duration time.Duration)
}

// InstrumentedContentRepo はContentRepositoryの各操作の結果と所要時間を記録する。
type InstrumentedContentRepo struct {
	next     ContentRepository
	recorder StoreRecorder
}

// NewInstrumentedContentRepo はnextをラップしたContentRepositoryを返す。
func NewInstrumentedContentRepo(next ContentRepository, recorder StoreRecorder) *InstrumentedContentRepo {
	return &InstrumentedContentRepo{next: next, recorder: recorder}
}

func (r *InstrumentedContentRepo) List(ctx context.Context, kind model.ContentKind, q model.Query) ([]*model.ContentItem, error) {
	start := time.Now()
	items, err := r.next.List(ctx, kind, q)
	r.record("select", kind.Collection(), err, start)
	return items, err
}

func (r *InstrumentedContentRepo) Insert(ctx context.Context, kind model.ContentKind, payload model.ContentPayload) (*model.ContentItem, error) {
	start := time.Now()
	item, err := r.next.Insert(ctx, kind, payload)
	r.record("insert", kind.Collection(), err, start)
	return item, err
}

func (r *InstrumentedContentRepo) Update(ctx context.Context, kind model.ContentKind, id string, payload model.ContentPayload) error {
	start := time.Now()
	err := r.next.Update(ctx, kind, id, payload)
	r.record("update", kind.Collection(), err, start)
	return err
}

func (r *InstrumentedContentRepo) FindByID(ctx context.Context, kind model.ContentKind, id string) (*model.ContentItem, error) {
	start := time.Now()
	item, err := r.next.FindByID(ctx, kind, id)
	r.record("select", kind.Collection(), err, start)
	return item, err
}

func (r *InstrumentedContentRepo) MarkPastEvents(ctx context.Context, asOf time.Time) (int64, error) {
	start := time.Now()
	n, err := r.next.MarkPastEvents(ctx, asOf)
	r.record("update", model.CollectionEvents, err, start)
	return n, err
}

func (r *InstrumentedContentRepo) record(op string, c model.Collection, err error, start time.Time) {
	r.recorder.RecordStoreOperation(op, string(c), resultOf(err), time.Since(start))
}

// InstrumentedProfileRepo はProfileRepositoryの各操作を記録する。
type InstrumentedProfileRepo struct {
	next     ProfileRepository
	recorder StoreRecorder
}

// NewInstrumentedProfileRepo はnextをラップしたProfileRepositoryを返す。
func NewInstrumentedProfileRepo(next ProfileRepository, recorder StoreRecorder) *InstrumentedProfileRepo {
	return &InstrumentedProfileRepo{next: next, recorder: recorder}
}

func (r *InstrumentedProfileRepo) List(ctx context.Context, q model.Query) ([]*model.Profile, error) {
	start := time.Now()
	profiles, err := r.next.List(ctx, q)
	r.recorder.RecordStoreOperation("select", string(model.CollectionProfiles), resultOf(err), time.Since(start))
	return profiles, err
}

func (r *InstrumentedProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	start := time.Now()
	p, err := r.next.FindByID(ctx, id)
	r.recorder.RecordStoreOperation("select", string(model.CollectionProfiles), resultOf(err), time.Since(start))
	return p, err
}

// resultOf はエラーをメトリクスの結果ラベルに変換する。
// 更新対象が存在しなかった場合はignoredとして扱う。
func resultOf(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case model.IsStaleReference(err):
		return metrics.ResultIgnored
	default:
		return metrics.ResultError
	}
}

var (
	_ ContentRepository = (*InstrumentedContentRepo)(nil)
	_ ProfileRepository = (*InstrumentedProfileRepo)(nil)
)
