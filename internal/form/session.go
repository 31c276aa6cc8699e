// Package form はコンテンツ作成・編集フォームの状態機械を提供する。
//
// Session はClosed・Open・Submittingの3状態を持ち、送信中の再送信は無視する。
// 送信成功時はバックエンドが確定した値でリストを更新する。
package form

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/dotsite/internal/model"
)

// Status はフォームの状態。
type Status int

const (
	StatusClosed Status = iota
	StatusOpen
	StatusSubmitting
)

// String はテンプレート・ログ用の表現を返す。
func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusSubmitting:
		return "submitting"
	default:
		return "closed"
	}
}

// ErrNotOpen はフォームが開いていない状態で編集・送信しようとした場合のエラー。
var ErrNotOpen = errors.New("form: session is not open")

// Store はフォーム送信先のリモートストア。
type Store interface {
	Insert(ctx context.Context, kind model.ContentKind, payload model.ContentPayload) (*model.ContentItem, error)
	Update(ctx context.Context, kind model.ContentKind, id string, payload model.ContentPayload) error
	FindByID(ctx context.Context, kind model.ContentKind, id string) (*model.ContentItem, error)
}

// Sink は送信成功時の反映先。content.Synchronizerが実装する。
type Sink interface {
	Append(item *model.ContentItem) error
	Replace(id string, item *model.ContentItem) bool
}

// SubmissionRecorder は送信結果の記録先。
type SubmissionRecorder interface {
	RecordSubmission(kind, mode, result string)
}

// Result は送信の結果種別。
type Result int

const (
	// ResultCreated は新規作成に成功した。
	ResultCreated Result = iota + 1
	// ResultUpdated は更新に成功した。
	ResultUpdated
	// ResultStale は更新対象が存在しなかった。フォームは閉じ、リストは変わらない。
	ResultStale
	// ResultIgnored は送信中のため無視された。
	ResultIgnored
	// ResultRejected は入力検証で拒否された。ネットワーク呼び出しは行っていない。
	ResultRejected
	// ResultFailed はネットワークエラーで失敗した。下書きは保持される。
	ResultFailed
)

// Outcome はSubmitの結果。
type Outcome struct {
	Result Result
	// Item はバックエンドが確定したコンテンツ。Created・Updatedの場合のみ設定される。
	Item *model.ContentItem
}

// Snapshot はテンプレート描画用の状態のコピー。
type Snapshot struct {
	Status    Status
	Draft     Draft
	EditingID string
	LastError error
}

// Editing は編集モードかどうかを返す。
func (s Snapshot) Editing() bool { return s.EditingID != "" }

// ErrorMessage はユーザーに表示するエラーメッセージを返す。
func (s Snapshot) ErrorMessage() string {
	if s.LastError == nil {
		return ""
	}
	var apiErr *model.APIError
	if errors.As(s.LastError, &apiErr) {
		return apiErr.Message
	}
	return "Failed to save. Please try again."
}

// Session はフォームの状態機械。1つのページ表示に1つ存在する。
type Session struct {
	kind     model.ContentKind
	store    Store
	sink     Sink
	recorder SubmissionRecorder
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	status    Status
	draft     Draft
	editingID string
	lastError error
}

// Option はSessionの任意設定。
type Option func(*Session)

// WithRecorder は送信結果の記録先を設定する。
func WithRecorder(r SubmissionRecorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithLogger はロガーを設定する。
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithClock は現在時刻の取得関数を設定する。
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// NewSession はClosed状態のSessionを生成する。
func NewSession(kind model.ContentKind, store Store, sink Sink, opts ...Option) *Session {
	s := &Session{
		kind:   kind,
		store:  store,
		sink:   sink,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenCreate は空の下書きでフォームを開く。未ログインの場合はUNAUTHORIZED。
// 送信中は何もしない。
func (s *Session) OpenCreate(actor *model.Actor) error {
	if actor == nil || actor.ID == "" {
		return model.NewUnauthorizedError()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusSubmitting {
		return model.NewSubmitInFlightError()
	}
	s.status = StatusOpen
	s.draft = Draft{}
	s.editingID = ""
	s.lastError = nil
	return nil
}

// OpenEdit はitemの内容をコピーした下書きで編集フォームを開く。
// 作成者以外はFORBIDDEN。
func (s *Session) OpenEdit(actor *model.Actor, item *model.ContentItem) error {
	if actor == nil || actor.ID == "" {
		return model.NewUnauthorizedError()
	}
	if item == nil {
		return model.NewNotFoundError(s.kind, "")
	}
	if !item.OwnedBy(actor.ID) {
		return model.NewForbiddenError()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusSubmitting {
		return model.NewSubmitInFlightError()
	}
	s.status = StatusOpen
	s.draft = DraftFromItem(item)
	s.editingID = item.ID
	s.lastError = nil
	return nil
}

// Edit は1つの入力欄を更新する。Open以外ではErrNotOpen。
func (s *Session) Edit(field Field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusOpen {
		return ErrNotOpen
	}
	return s.draft.Set(field, value)
}

// SetDraft は下書き全体を置き換える。Open以外ではErrNotOpen。
func (s *Session) SetDraft(d Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusOpen {
		return ErrNotOpen
	}
	s.draft = d
	return nil
}

// Cancel はフォームを閉じて下書きを破棄する。送信中は何もせずfalseを返す。
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusSubmitting {
		return false
	}
	s.status = StatusClosed
	s.draft = Draft{}
	s.editingID = ""
	s.lastError = nil
	return true
}

// Snapshot は現在の状態のコピーを返す。
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Status:    s.status,
		Draft:     s.draft,
		EditingID: s.editingID,
		LastError: s.lastError,
	}
}

// Submit は下書きを送信する。
//   - 送信中の場合はネットワーク呼び出しを行わずResultIgnoredとSUBMIT_IN_FLIGHTを返す
//   - 必須項目が空、または未ログインの場合はResultRejectedとVALIDATION_ERRORを返す
//   - 成功時はSinkに確定値を反映し、Closedに戻る
//   - 失敗時はOpenに戻り、下書きを保持したままLastErrorを設定する
func (s *Session) Submit(ctx context.Context, actor *model.Actor) (Outcome, error) {
	s.mu.Lock()
	mode := "create"
	if s.editingID != "" {
		mode = "edit"
	}
	switch s.status {
	case StatusSubmitting:
		s.mu.Unlock()
		s.record(mode, "ignored")
		return Outcome{Result: ResultIgnored}, model.NewSubmitInFlightError()
	case StatusClosed:
		s.mu.Unlock()
		return Outcome{}, ErrNotOpen
	}

	if err := s.draft.Validate(s.kind, actor); err != nil {
		s.lastError = err
		s.mu.Unlock()
		s.record(mode, "rejected")
		return Outcome{Result: ResultRejected}, err
	}

	payload := s.draft.Payload(s.kind, actor, s.now())
	editingID := s.editingID
	s.status = StatusSubmitting
	s.lastError = nil
	s.mu.Unlock()

	var (
		item *model.ContentItem
		err  error
	)
	if editingID == "" {
		item, err = s.store.Insert(ctx, s.kind, payload)
	} else {
		item, err = s.update(ctx, editingID, payload)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil && !model.IsStaleReference(err) {
		s.status = StatusOpen
		s.lastError = err
		s.logger.Error("フォームの送信に失敗しました",
			slog.String("kind", string(s.kind)),
			slog.String("mode", mode),
			slog.String("error", err.Error()),
		)
		s.record(mode, "error")
		return Outcome{Result: ResultFailed}, err
	}

	s.status = StatusClosed
	s.draft = Draft{}
	s.editingID = ""

	if err != nil {
		s.logger.Info("更新対象が存在しないため反映を省略しました",
			slog.String("kind", string(s.kind)),
			slog.String("id", editingID),
		)
		s.record(mode, "stale")
		return Outcome{Result: ResultStale}, nil
	}

	if editingID == "" {
		if appendErr := s.sink.Append(item); appendErr != nil {
			s.logger.Warn("作成したコンテンツをリストに反映できませんでした",
				slog.String("id", item.ID),
				slog.String("error", appendErr.Error()),
			)
		}
		s.record(mode, "success")
		return Outcome{Result: ResultCreated, Item: item}, nil
	}

	s.sink.Replace(editingID, item)
	s.record(mode, "success")
	return Outcome{Result: ResultUpdated, Item: item}, nil
}

// update は更新後にバックエンドの確定値を読み直す。
func (s *Session) update(ctx context.Context, id string, payload model.ContentPayload) (*model.ContentItem, error) {
	if err := s.store.Update(ctx, s.kind, id, payload); err != nil {
		return nil, err
	}
	item, err := s.store.FindByID(ctx, s.kind, id)
	if err != nil {
		// 更新は確定しているため、読み直せなくても送信内容でリストへ反映する。
		s.logger.Warn("更新後のコンテンツを取得できませんでした",
			slog.String("kind", string(s.kind)),
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return s.payloadItem(id, payload), nil
	}
	if item == nil {
		return nil, model.NewStaleReferenceError(s.kind, id)
	}
	return item, nil
}

func (s *Session) payloadItem(id string, payload model.ContentPayload) *model.ContentItem {
	item := &model.ContentItem{
		ID:            id,
		Kind:          s.kind,
		Title:         payload.Title,
		Body:          payload.Body,
		AuthorID:      payload.AuthorID,
		ImageLinks:    append([]string(nil), payload.ImageLinks...),
		ExternalLinks: append([]string(nil), payload.ExternalLinks...),
	}
	if payload.Event != nil {
		ev := *payload.Event
		item.Event = &ev
	}
	return item
}

func (s *Session) record(mode, result string) {
	if s.recorder != nil {
		s.recorder.RecordSubmission(string(s.kind), mode, result)
	}
}
