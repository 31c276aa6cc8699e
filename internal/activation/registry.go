// Package activation はページ表示（アクティベーション）ごとの状態を保持する。
//
// GETで生成されたアクティベーションはIDをページに埋め込み、以降のフォーム送信や再試行は
// そのIDで同じ状態を参照する。一定時間操作がないアクティベーションは破棄され、
// 破棄後に完了した処理の結果は捨てられる。
package activation

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/hitoshi/dotsite/internal/model"
)

// GaugeRecorder は有効なアクティベーション数の記録先。
type GaugeRecorder interface {
	SetActiveActivations(count int)
}

// Activation は1回のページ表示に対応する状態。
type Activation[V any] struct {
	ID      string
	OwnerID string // 生成時のユーザーID。匿名は空文字列
	Value   V

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// With はアクティベーション単位の排他の中でfnを実行する。
func (a *Activation[V]) With(fn func(v V)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a.Value)
}

// Alive は破棄されていないかを返す。
func (a *Activation[V]) Alive() bool {
	return a.ctx.Err() == nil
}

// Done は破棄時に閉じられるチャネルを返す。
func (a *Activation[V]) Done() <-chan struct{} {
	return a.ctx.Done()
}

// Registry はアクティベーションをアイドルTTL付きで保持する。
type Registry[V any] struct {
	cache    *ttlcache.Cache[string, *Activation[V]]
	active   atomic.Int64
	recorder GaugeRecorder
	logger   *slog.Logger
}

// NewRegistry はRegistryを生成する。ttlは最後の参照からの有効期間。
// capacityを超えた場合は最も古いアクティベーションから破棄する。recorderはnil可。
func NewRegistry[V any](ttl time.Duration, capacity uint64, recorder GaugeRecorder, logger *slog.Logger) *Registry[V] {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry[V]{
		cache: ttlcache.New[string, *Activation[V]](
			ttlcache.WithTTL[string, *Activation[V]](ttl),
			ttlcache.WithCapacity[string, *Activation[V]](capacity),
		),
		recorder: recorder,
		logger:   logger,
	}

	r.cache.OnInsertion(func(_ context.Context, _ *ttlcache.Item[string, *Activation[V]]) {
		r.report(r.active.Add(1))
	})
	r.cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *Activation[V]]) {
		item.Value().cancel()
		r.report(r.active.Add(-1))
		if reason != ttlcache.EvictionReasonDeleted {
			r.logger.Debug("アクティベーションを破棄しました",
				slog.String("activation_id", item.Key()),
				slog.Int("reason", int(reason)),
			)
		}
	})
	return r
}

// Start は期限切れアクティベーションの削除ループを開始する。Stopまでブロックする。
func (r *Registry[V]) Start() { r.cache.Start() }

// Stop は削除ループを停止する。
func (r *Registry[V]) Stop() { r.cache.Stop() }

// Create は新しいアクティベーションを登録して返す。
func (r *Registry[V]) Create(ownerID string, v V) *Activation[V] {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Activation[V]{
		ID:      uuid.New().String(),
		OwnerID: ownerID,
		Value:   v,
		ctx:     ctx,
		cancel:  cancel,
	}
	r.cache.Set(a.ID, a, ttlcache.DefaultTTL)
	return a
}

// Get はidのアクティベーションを返し、有効期限を延長する。
// 存在しない、期限切れ、または別のユーザーが生成したものはACTIVATION_EXPIREDを返す。
func (r *Registry[V]) Get(id, ownerID string) (*Activation[V], error) {
	if id == "" {
		return nil, model.NewActivationExpiredError()
	}
	item := r.cache.Get(id)
	if item == nil {
		return nil, model.NewActivationExpiredError()
	}
	a := item.Value()
	if a.OwnerID != ownerID || !a.Alive() {
		return nil, model.NewActivationExpiredError()
	}
	return a, nil
}

// Delete はアクティベーションを破棄する。存在しない場合は何もしない。
func (r *Registry[V]) Delete(id string) {
	r.cache.Delete(id)
}

// Len は保持しているアクティベーション数を返す。
func (r *Registry[V]) Len() int {
	return r.cache.Len()
}

func (r *Registry[V]) report(n int64) {
	if r.recorder != nil {
		r.recorder.SetActiveActivations(int(n))
	}
}
