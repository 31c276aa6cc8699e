// Package content はリモートストアのコレクションをメモリ上のリストと同期する。
//
// Synchronizer は1回のページ表示ごとに生成され、初回取得・再試行と、
// フォーム送信成功時の追加・置換をネットワークの再取得なしに反映する。
package content

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/hitoshi/dotsite/internal/model"
)

// Phase は同期状態。
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseErrored
	PhaseReady
)

// String はログ・テンプレート用の表現を返す。
func (p Phase) String() string {
	switch p {
	case PhaseErrored:
		return "errored"
	case PhaseReady:
		return "ready"
	default:
		return "loading"
	}
}

// State は同期状態とエラーメッセージ。MessageはPhaseErroredの場合のみ設定される。
type State struct {
	Phase   Phase
	Message string
}

var (
	// ErrNotLoaded は初回取得が成功する前に追加しようとした場合のエラー。
	ErrNotLoaded = errors.New("content: list has not been loaded")
	// ErrNotErrored はエラー状態以外で再試行しようとした場合のエラー。
	ErrNotErrored = errors.New("content: retry is only valid after a failed load")
)

// Fetcher はクエリに一致する要素を取得する。
type Fetcher[T any] interface {
	Fetch(ctx context.Context, q model.Query) ([]T, error)
}

// FetcherFunc は関数をFetcherとして扱うアダプタ。
type FetcherFunc[T any] func(ctx context.Context, q model.Query) ([]T, error)

// Fetch はf(ctx, q)を呼び出す。
func (f FetcherFunc[T]) Fetch(ctx context.Context, q model.Query) ([]T, error) {
	return f(ctx, q)
}

// Config はSynchronizerの設定。
type Config[T any] struct {
	// Query は取得時に毎回そのまま渡すクエリ。
	Query model.Query
	// Key は要素の一意キー（id）を返す。必須。
	Key func(T) string
	// Less はリストの並び順。nilの場合、Appendは先頭に追加し、Replaceは位置を変えない。
	// 設定した場合、AppendとReplaceは等しい要素の後ろになる位置へ挿入する。
	Less func(a, b T) bool
	// Merge は置換時に既存要素の不変フィールドを引き継いだ要素を返す。nilの場合はincomingをそのまま使う。
	Merge func(stored, incoming T) T
	// Clone は要素のコピーを返す。View・Findの戻り値に適用される。nilの場合はそのまま返す。
	Clone func(T) T
	// ErrorMessage は取得失敗時に表示する文言。空の場合はエラーの内容を使う。
	ErrorMessage string
	Logger       *slog.Logger
}

// Synchronizer はリモートコレクションのメモリ上のビューを保持する。
// すべてのメソッドは複数のゴルーチンから呼び出してよい。
type Synchronizer[T any] struct {
	fetcher Fetcher[T]
	cfg     Config[T]
	logger  *slog.Logger

	mu     sync.Mutex
	state  State
	items  []T
	loaded bool
	seq    uint64
}

// New はPhaseLoadingのSynchronizerを生成する。取得はLoadで開始する。
func New[T any](fetcher Fetcher[T], cfg Config[T]) *Synchronizer[T] {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer[T]{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger,
		state:   State{Phase: PhaseLoading},
	}
}

// Load はクエリを発行してリストを置き換える。
// 成功時はPhaseReady、失敗時はPhaseErroredになり、失敗の内容を返す。
func (s *Synchronizer[T]) Load(ctx context.Context) error {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.state = State{Phase: PhaseLoading}
	s.mu.Unlock()

	items, err := s.fetcher.Fetch(ctx, s.cfg.Query)

	s.mu.Lock()
	defer s.mu.Unlock()

	// 後発のLoadが開始済みの場合、この結果は破棄する
	if seq != s.seq {
		return nil
	}

	if err != nil {
		s.state = State{Phase: PhaseErrored, Message: s.errorMessage(err)}
		s.logger.Error("コレクションの取得に失敗しました",
			slog.String("query", s.cfg.Query.String()),
			slog.String("error", err.Error()),
		)
		return err
	}

	s.items = s.dedupe(items)
	s.loaded = true
	s.state = State{Phase: PhaseReady}
	return nil
}

// Retry は失敗したLoadと同一のクエリで再取得する。PhaseErrored以外ではErrNotErroredを返す。
func (s *Synchronizer[T]) Retry(ctx context.Context) error {
	s.mu.Lock()
	phase := s.state.Phase
	s.mu.Unlock()

	if phase != PhaseErrored {
		return ErrNotErrored
	}
	return s.Load(ctx)
}

// Append は作成済みの要素をリストに加える。
// 同じキーの要素が既にある場合はその位置で置き換え、長さは変わらない。
func (s *Synchronizer[T]) Append(item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded || s.state.Phase != PhaseReady {
		return ErrNotLoaded
	}

	key := s.cfg.Key(item)
	if i := s.indexOf(key); i >= 0 {
		s.items[i] = s.merge(s.items[i], item)
		return nil
	}

	if s.cfg.Less == nil {
		s.items = slices.Insert(s.items, 0, item)
		return nil
	}
	s.insertSorted(item)
	return nil
}

// Replace はidの要素をitemで置き換える。idが見つからない場合は何もせずfalseを返す。
func (s *Synchronizer[T]) Replace(id string, item T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		s.logger.Debug("置換対象が見つからないため無視しました", slog.String("id", id))
		return false
	}
	merged := s.merge(s.items[i], item)
	if s.cfg.Less == nil || s.inPlace(i, merged) {
		s.items[i] = merged
		return true
	}
	s.items = slices.Delete(s.items, i, i+1)
	s.insertSorted(merged)
	return true
}

// inPlace はiの位置に置いても前後との順序が保たれるかを返す。
func (s *Synchronizer[T]) inPlace(i int, it T) bool {
	if i > 0 && s.cfg.Less(it, s.items[i-1]) {
		return false
	}
	if i+1 < len(s.items) && s.cfg.Less(s.items[i+1], it) {
		return false
	}
	return true
}

// insertSorted はitより後ろに並ぶ最初の要素の前にitを挿入する。
func (s *Synchronizer[T]) insertSorted(it T) {
	at := slices.IndexFunc(s.items, func(existing T) bool { return s.cfg.Less(it, existing) })
	if at < 0 {
		s.items = append(s.items, it)
		return
	}
	s.items = slices.Insert(s.items, at, it)
}

// View は現在のリストのコピーを返す。
func (s *Synchronizer[T]) View() []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]T, len(s.items))
	for i, it := range s.items {
		out[i] = s.clone(it)
	}
	return out
}

// Find はidの要素を返す。
func (s *Synchronizer[T]) Find(id string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(id); i >= 0 {
		return s.clone(s.items[i]), true
	}
	var zero T
	return zero, false
}

// State は現在の同期状態を返す。
func (s *Synchronizer[T]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Len は要素数を返す。
func (s *Synchronizer[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Synchronizer[T]) indexOf(key string) int {
	return slices.IndexFunc(s.items, func(it T) bool { return s.cfg.Key(it) == key })
}

// dedupe はキーの重複を除去する。先に現れた要素を残し、順序は保つ。
func (s *Synchronizer[T]) dedupe(items []T) []T {
	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, it := range items {
		k := s.cfg.Key(it)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}

func (s *Synchronizer[T]) merge(stored, incoming T) T {
	if s.cfg.Merge == nil {
		return incoming
	}
	return s.cfg.Merge(stored, incoming)
}

func (s *Synchronizer[T]) clone(it T) T {
	if s.cfg.Clone == nil {
		return it
	}
	return s.cfg.Clone(it)
}

func (s *Synchronizer[T]) errorMessage(err error) string {
	if s.cfg.ErrorMessage != "" {
		return s.cfg.ErrorMessage
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
