package form

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/dotsite/internal/content"
	"github.com/hitoshi/dotsite/internal/model"
)

// mockStore はStoreのモック。
type mockStore struct {
	insertFn   func(ctx context.Context, kind model.ContentKind, payload model.ContentPayload) (*model.ContentItem, error)
	updateFn   func(ctx context.Context, kind model.ContentKind, id string, payload model.ContentPayload) error
	findByIDFn func(ctx context.Context, kind model.ContentKind, id string) (*model.ContentItem, error)

	insertCalls atomic.Int32
	updateCalls atomic.Int32
}

func (m *mockStore) Insert(ctx context.Context, kind model.ContentKind, payload model.ContentPayload) (*model.ContentItem, error) {
	m.insertCalls.Add(1)
	return m.insertFn(ctx, kind, payload)
}

func (m *mockStore) Update(ctx context.Context, kind model.ContentKind, id string, payload model.ContentPayload) error {
	m.updateCalls.Add(1)
	return m.updateFn(ctx, kind, id, payload)
}

func (m *mockStore) FindByID(ctx context.Context, kind model.ContentKind, id string) (*model.ContentItem, error) {
	return m.findByIDFn(ctx, kind, id)
}

var (
	alice     = &model.Actor{ID: "u-alice"}
	bob       = &model.Actor{ID: "u-bob"}
	createdAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

// echoInsert はpayloadにバックエンド採番値を付与して返すInsert実装。
func echoInsert(id string) func(context.Context, model.ContentKind, model.ContentPayload) (*model.ContentItem, error) {
	return func(_ context.Context, kind model.ContentKind, p model.ContentPayload) (*model.ContentItem, error) {
		return &model.ContentItem{
			ID:            id,
			Kind:          kind,
			Title:         p.Title,
			Body:          p.Body,
			ImageLinks:    p.ImageLinks,
			ExternalLinks: p.ExternalLinks,
			AuthorID:      p.AuthorID,
			Author:        &model.Profile{ID: p.AuthorID, DisplayName: "Alice"},
			CreatedAt:     createdAt,
			Event:         p.Event,
		}, nil
	}
}

func loadedSync(t *testing.T, items ...*model.ContentItem) *content.Synchronizer[*model.ContentItem] {
	t.Helper()
	s := content.New[*model.ContentItem](
		content.FetcherFunc[*model.ContentItem](func(context.Context, model.Query) ([]*model.ContentItem, error) {
			return items, nil
		}),
		content.Config[*model.ContentItem]{
			Query: model.BlogListQuery(),
			Key:   content.ItemKey,
			Merge: content.MergeItem,
			Clone: (*model.ContentItem).Clone,
		},
	)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	return s
}

func existing() *model.ContentItem {
	return &model.ContentItem{
		ID:            "b1",
		Kind:          model.ContentKindBlog,
		Title:         "Original",
		Body:          "Original body",
		CreatedAt:     createdAt.Add(-time.Hour),
		AuthorID:      alice.ID,
		Author:        &model.Profile{ID: alice.ID, DisplayName: "Alice"},
		ImageLinks:    []string{"https://example.com/1.png"},
		ExternalLinks: []string{"https://a.example", "https://b.example"},
	}
}

func TestSession_InitialStateClosed(t *testing.T) {
	s := NewSession(model.ContentKindBlog, &mockStore{}, loadedSync(t))
	if got := s.Snapshot().Status; got != StatusClosed {
		t.Errorf("Status = %v, want closed", got)
	}
}

func TestSession_OpenCreate_RequiresActor(t *testing.T) {
	s := NewSession(model.ContentKindBlog, &mockStore{}, loadedSync(t))

	err := s.OpenCreate(nil)
	if !model.HasCode(err, model.ErrCodeUnauthorized) {
		t.Errorf("OpenCreate(nil) = %v, want UNAUTHORIZED", err)
	}
	if s.Snapshot().Status != StatusClosed {
		t.Error("session should stay closed")
	}
}

// TestSession_CreateScenario は空のリンク欄が空配列として送信され、
// リストの先頭にバックエンドの確定値が追加されることを検証する。
func TestSession_CreateScenario(t *testing.T) {
	var sent model.ContentPayload
	store := &mockStore{insertFn: func(ctx context.Context, kind model.ContentKind, p model.ContentPayload) (*model.ContentItem, error) {
		sent = p
		return echoInsert("new-id")(ctx, kind, p)
	}}
	list := loadedSync(t, existing())
	s := NewSession(model.ContentKindBlog, store, list)

	if err := s.OpenCreate(alice); err != nil {
		t.Fatalf("OpenCreate returned error: %v", err)
	}
	_ = s.SetDraft(Draft{Title: "Hello", Body: "World", ImageLinks: "  ", SocialLinks: ""})

	out, err := s.Submit(context.Background(), alice)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if out.Result != ResultCreated {
		t.Errorf("Result = %v, want created", out.Result)
	}

	if sent.ImageLinks == nil || len(sent.ImageLinks) != 0 {
		t.Errorf("ImageLinks = %#v, want empty non-nil", sent.ImageLinks)
	}
	if sent.ExternalLinks == nil || len(sent.ExternalLinks) != 0 {
		t.Errorf("ExternalLinks = %#v, want empty non-nil", sent.ExternalLinks)
	}

	view := list.View()
	if len(view) != 2 {
		t.Fatalf("len(view) = %d, want 2", len(view))
	}
	head := view[0]
	if head.ID != "new-id" || !head.CreatedAt.Equal(createdAt) || head.Title != "Hello" || head.Body != "World" {
		t.Errorf("head = %+v", head)
	}
	if s.Snapshot().Status != StatusClosed {
		t.Error("session should be closed after success")
	}
}

func TestSession_Submit_TrimsAndSplitsLinks(t *testing.T) {
	var sent model.ContentPayload
	store := &mockStore{insertFn: func(ctx context.Context, kind model.ContentKind, p model.ContentPayload) (*model.ContentItem, error) {
		sent = p
		return echoInsert("x")(ctx, kind, p)
	}}
	s := NewSession(model.ContentKindBlog, store, loadedSync(t))
	_ = s.OpenCreate(alice)
	_ = s.SetDraft(Draft{
		Title:       "  Hello  ",
		Body:        "World\n",
		ImageLinks:  "https://a.example/1.png, ,https://a.example/2.png,",
		SocialLinks: " https://github.com/alice ",
	})

	if _, err := s.Submit(context.Background(), alice); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if sent.Title != "Hello" || sent.Body != "World" {
		t.Errorf("title/body not trimmed: %q %q", sent.Title, sent.Body)
	}
	if len(sent.ImageLinks) != 2 || sent.ImageLinks[1] != "https://a.example/2.png" {
		t.Errorf("ImageLinks = %v", sent.ImageLinks)
	}
	if len(sent.ExternalLinks) != 1 || sent.ExternalLinks[0] != "https://github.com/alice" {
		t.Errorf("ExternalLinks = %v", sent.ExternalLinks)
	}
	if sent.AuthorID != alice.ID {
		t.Errorf("AuthorID = %q", sent.AuthorID)
	}
}

func TestSession_Submit_ValidationNeverReachesStore(t *testing.T) {
	tests := []struct {
		name  string
		draft Draft
		actor *model.Actor
	}{
		{"タイトルが空", Draft{Title: "", Body: "b"}, alice},
		{"タイトルが空白のみ", Draft{Title: " \t\n", Body: "b"}, alice},
		{"本文が空白のみ", Draft{Title: "t", Body: "   "}, alice},
		{"未ログイン", Draft{Title: "t", Body: "b"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{insertFn: echoInsert("x")}
			s := NewSession(model.ContentKindBlog, store, loadedSync(t))
			_ = s.OpenCreate(alice)
			_ = s.SetDraft(tt.draft)

			out, err := s.Submit(context.Background(), tt.actor)
			if !model.IsValidationError(err) {
				t.Errorf("err = %v, want VALIDATION_ERROR", err)
			}
			if out.Result != ResultRejected {
				t.Errorf("Result = %v, want rejected", out.Result)
			}
			if got := store.insertCalls.Load(); got != 0 {
				t.Errorf("insert calls = %d, want 0", got)
			}
			snap := s.Snapshot()
			if snap.Status != StatusOpen || snap.Draft != tt.draft {
				t.Errorf("snapshot = %+v, want open with unchanged draft", snap)
			}
			if snap.ErrorMessage() == "" {
				t.Error("validation message should be surfaced")
			}
		})
	}
}

// TestSession_DoubleSubmit_SingleNetworkCall は送信中の再送信が無視されることを検証する。
func TestSession_DoubleSubmit_SingleNetworkCall(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	store := &mockStore{insertFn: func(ctx context.Context, kind model.ContentKind, p model.ContentPayload) (*model.ContentItem, error) {
		close(entered)
		<-release
		return echoInsert("once")(ctx, kind, p)
	}}
	list := loadedSync(t)
	s := NewSession(model.ContentKindBlog, store, list)
	_ = s.OpenCreate(alice)
	_ = s.SetDraft(Draft{Title: "t", Body: "b"})

	var wg sync.WaitGroup
	wg.Add(1)
	var first Outcome
	go func() {
		defer wg.Done()
		first, _ = s.Submit(context.Background(), alice)
	}()

	<-entered
	if got := s.Snapshot().Status; got != StatusSubmitting {
		t.Errorf("Status during submit = %v, want submitting", got)
	}

	second, err := s.Submit(context.Background(), alice)
	if second.Result != ResultIgnored || !model.HasCode(err, model.ErrCodeSubmitInFlight) {
		t.Errorf("second submit = %+v, %v; want ignored", second, err)
	}
	if s.Cancel() {
		t.Error("Cancel during submit should be refused")
	}

	close(release)
	wg.Wait()

	if first.Result != ResultCreated {
		t.Errorf("first submit = %+v, want created", first)
	}
	if got := store.insertCalls.Load(); got != 1 {
		t.Errorf("insert calls = %d, want 1", got)
	}
	if list.Len() != 1 {
		t.Errorf("len(view) = %d, want 1", list.Len())
	}
}

func TestSession_Submit_NetworkFailureKeepsDraft(t *testing.T) {
	store := &mockStore{insertFn: func(context.Context, model.ContentKind, model.ContentPayload) (*model.ContentItem, error) {
		return nil, model.NewNetworkError("Failed to save blog. Please try again.", errors.New("connection reset"))
	}}
	list := loadedSync(t)
	s := NewSession(model.ContentKindBlog, store, list)
	_ = s.OpenCreate(alice)
	draft := Draft{Title: "Keep me", Body: "Please", ImageLinks: "https://a.example/1.png,"}
	_ = s.SetDraft(draft)

	out, err := s.Submit(context.Background(), alice)
	if !model.IsNetworkError(err) || out.Result != ResultFailed {
		t.Fatalf("Submit = %+v, %v; want failed network error", out, err)
	}

	snap := s.Snapshot()
	if snap.Status != StatusOpen {
		t.Errorf("Status = %v, want open", snap.Status)
	}
	if snap.Draft != draft {
		t.Errorf("draft changed: %+v", snap.Draft)
	}
	if snap.ErrorMessage() != "Failed to save blog. Please try again." {
		t.Errorf("ErrorMessage() = %q", snap.ErrorMessage())
	}
	if list.Len() != 0 {
		t.Error("failed submit must not touch the list")
	}

	// 再送信できる
	store.insertFn = echoInsert("retry-id")
	if out, err := s.Submit(context.Background(), alice); err != nil || out.Result != ResultCreated {
		t.Errorf("resubmit = %+v, %v", out, err)
	}
}

func TestSession_OpenEdit_OwnerOnly(t *testing.T) {
	s := NewSession(model.ContentKindBlog, &mockStore{}, loadedSync(t))

	if err := s.OpenEdit(bob, existing()); !model.HasCode(err, model.ErrCodeForbidden) {
		t.Errorf("OpenEdit by non-owner = %v, want FORBIDDEN", err)
	}
	if err := s.OpenEdit(alice, existing()); err != nil {
		t.Fatalf("OpenEdit by owner returned error: %v", err)
	}
	snap := s.Snapshot()
	if snap.EditingID != "b1" || !snap.Editing() {
		t.Errorf("EditingID = %q", snap.EditingID)
	}
	if snap.Draft.SocialLinks != "https://a.example, https://b.example" {
		t.Errorf("SocialLinks draft = %q", snap.Draft.SocialLinks)
	}
}

func TestSession_OpenEdit_DraftIsDeepCopy(t *testing.T) {
	list := loadedSync(t, existing())
	item, _ := list.Find("b1")

	s := NewSession(model.ContentKindBlog, &mockStore{}, list)
	_ = s.OpenEdit(alice, item)
	_ = s.Edit(FieldTitle, "changed in form")
	_ = s.Edit(FieldImageLinks, "")

	stored, _ := list.Find("b1")
	if stored.Title != "Original" || len(stored.ImageLinks) != 1 {
		t.Errorf("list item mutated by form edit: %+v", stored)
	}
}

// TestSession_EditScenario は編集後にリスト長と不変フィールドが保たれることを検証する。
func TestSession_EditScenario(t *testing.T) {
	orig := existing()
	var updated model.ContentPayload
	store := &mockStore{
		updateFn: func(_ context.Context, _ model.ContentKind, id string, p model.ContentPayload) error {
			updated = p
			return nil
		},
		findByIDFn: func(_ context.Context, kind model.ContentKind, id string) (*model.ContentItem, error) {
			it := orig.Clone()
			it.Title = updated.Title
			it.Body = updated.Body
			it.ImageLinks = updated.ImageLinks
			it.ExternalLinks = updated.ExternalLinks
			return it, nil
		},
	}
	other := &model.ContentItem{ID: "b0", Title: "other", AuthorID: bob.ID}
	list := loadedSync(t, other, orig)
	s := NewSession(model.ContentKindBlog, store, list)

	_ = s.OpenEdit(alice, orig)
	_ = s.Edit(FieldTitle, "Edited")
	_ = s.Edit(FieldSocialLinks, "https://c.example")

	out, err := s.Submit(context.Background(), alice)
	if err != nil || out.Result != ResultUpdated {
		t.Fatalf("Submit = %+v, %v", out, err)
	}

	view := list.View()
	if len(view) != 2 {
		t.Fatalf("len(view) = %d, want 2", len(view))
	}
	got := view[1]
	if got.Title != "Edited" || got.Body != "Original body" || len(got.ExternalLinks) != 1 {
		t.Errorf("edited item = %+v", got)
	}
	if got.ID != orig.ID || !got.CreatedAt.Equal(orig.CreatedAt) || got.AuthorID != orig.AuthorID {
		t.Errorf("identity fields changed: %+v", got)
	}
	if store.insertCalls.Load() != 0 {
		t.Error("edit must not insert")
	}
}

func TestSession_Edit_StaleReferenceIsSilent(t *testing.T) {
	store := &mockStore{
		updateFn: func(_ context.Context, kind model.ContentKind, id string, _ model.ContentPayload) error {
			return model.NewStaleReferenceError(kind, id)
		},
	}
	list := loadedSync(t, existing())
	s := NewSession(model.ContentKindBlog, store, list)
	_ = s.OpenEdit(alice, existing())

	out, err := s.Submit(context.Background(), alice)
	if err != nil {
		t.Fatalf("stale reference should not surface an error, got %v", err)
	}
	if out.Result != ResultStale {
		t.Errorf("Result = %v, want stale", out.Result)
	}
	snap := s.Snapshot()
	if snap.Status != StatusClosed || snap.LastError != nil {
		t.Errorf("snapshot = %+v, want closed without error", snap)
	}
	if v, _ := list.Find("b1"); v.Title != "Original" {
		t.Error("list should be unchanged")
	}
}

func TestSession_Edit_ReadBackFailureStillReflectsUpdate(t *testing.T) {
	store := &mockStore{
		updateFn: func(context.Context, model.ContentKind, string, model.ContentPayload) error {
			return nil
		},
		findByIDFn: func(context.Context, model.ContentKind, string) (*model.ContentItem, error) {
			return nil, model.NewNetworkError("connection reset", errors.New("read tcp: reset"))
		},
	}
	orig := existing()
	list := loadedSync(t, orig)
	s := NewSession(model.ContentKindBlog, store, list)
	_ = s.OpenEdit(alice, orig)
	_ = s.Edit(FieldTitle, "Edited")

	out, err := s.Submit(context.Background(), alice)
	if err != nil || out.Result != ResultUpdated {
		t.Fatalf("Submit = %+v, %v; want updated without error", out, err)
	}
	snap := s.Snapshot()
	if snap.Status != StatusClosed || snap.LastError != nil {
		t.Errorf("snapshot = %+v, want closed without error", snap)
	}
	got, ok := list.Find("b1")
	if !ok {
		t.Fatal("edited item should remain in the list")
	}
	if got.Title != "Edited" || got.Body != "Original body" {
		t.Errorf("edited item = %+v", got)
	}
	if !got.CreatedAt.Equal(orig.CreatedAt) || got.Author == nil {
		t.Errorf("identity fields lost: %+v", got)
	}
}

func TestSession_Cancel_DiscardsDraft(t *testing.T) {
	s := NewSession(model.ContentKindBlog, &mockStore{}, loadedSync(t))
	_ = s.OpenCreate(alice)
	_ = s.Edit(FieldTitle, "draft")

	if !s.Cancel() {
		t.Fatal("Cancel returned false")
	}
	snap := s.Snapshot()
	if snap.Status != StatusClosed || snap.Draft != (Draft{}) {
		t.Errorf("snapshot = %+v", snap)
	}
	if err := s.Edit(FieldTitle, "x"); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Edit after cancel = %v, want ErrNotOpen", err)
	}
	if _, err := s.Submit(context.Background(), alice); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Submit when closed = %v, want ErrNotOpen", err)
	}
}

type countingRecorder struct {
	mu  sync.Mutex
	got []string
}

func (r *countingRecorder) RecordSubmission(kind, mode, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, kind+"/"+mode+"/"+result)
}

func TestSession_RecordsSubmissions(t *testing.T) {
	rec := &countingRecorder{}
	store := &mockStore{insertFn: echoInsert("x")}
	s := NewSession(model.ContentKindBlog, store, loadedSync(t), WithRecorder(rec))
	_ = s.OpenCreate(alice)

	_, _ = s.Submit(context.Background(), alice)
	_ = s.SetDraft(Draft{Title: "t", Body: "b"})
	_, _ = s.Submit(context.Background(), alice)

	want := []string{"blog/create/rejected", "blog/create/success"}
	if len(rec.got) != len(want) || rec.got[0] != want[0] || rec.got[1] != want[1] {
		t.Errorf("recorded = %v, want %v", rec.got, want)
	}
}
