package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/dotsite/internal/activation"
	"github.com/hitoshi/dotsite/internal/fallback"
	"github.com/hitoshi/dotsite/internal/learning"
	"github.com/hitoshi/dotsite/internal/metrics"
	"github.com/hitoshi/dotsite/internal/middleware"
	"github.com/hitoshi/dotsite/internal/model"
	"github.com/hitoshi/dotsite/internal/security"
)

// --- モック定義 ---

// mockContentRepo はrepository.ContentRepositoryのモック実装。
type mockContentRepo struct {
	listFn     func(ctx context.Context, kind model.ContentKind, q model.Query) ([]*model.ContentItem, error)
	insertFn   func(ctx context.Context, kind model.ContentKind, payload model.ContentPayload) (*model.ContentItem, error)
	updateFn   func(ctx context.Context, kind model.ContentKind, id string, payload model.ContentPayload) error
	findByIDFn func(ctx context.Context, kind model.ContentKind, id string) (*model.ContentItem, error)
}

func (m *mockContentRepo) List(ctx context.Context, kind model.ContentKind, q model.Query) ([]*model.ContentItem, error) {
	if m.listFn != nil {
		return m.listFn(ctx, kind, q)
	}
	return []*model.ContentItem{}, nil
}

func (m *mockContentRepo) Insert(ctx context.Context, kind model.ContentKind, payload model.ContentPayload) (*model.ContentItem, error) {
	if m.insertFn != nil {
		return m.insertFn(ctx, kind, payload)
	}
	return nil, nil
}

func (m *mockContentRepo) Update(ctx context.Context, kind model.ContentKind, id string, payload model.ContentPayload) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, kind, id, payload)
	}
	return nil
}

func (m *mockContentRepo) FindByID(ctx context.Context, kind model.ContentKind, id string) (*model.ContentItem, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, kind, id)
	}
	return nil, nil
}

func (m *mockContentRepo) MarkPastEvents(ctx context.Context, asOf time.Time) (int64, error) {
	return 0, nil
}

// mockProfileRepo はrepository.ProfileRepositoryのモック実装。
type mockProfileRepo struct {
	listFn func(ctx context.Context, q model.Query) ([]*model.Profile, error)
}

func (m *mockProfileRepo) List(ctx context.Context, q model.Query) ([]*model.Profile, error) {
	if m.listFn != nil {
		return m.listFn(ctx, q)
	}
	return []*model.Profile{}, nil
}

func (m *mockProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	return nil, nil
}

// mockSessionFinder はCookieの値をそのままユーザーIDとして扱う。
type mockSessionFinder struct{}

func (mockSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return &model.Session{ID: id, UserID: id, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

// mockGenerator はlearning.Generatorのモック実装。
type mockGenerator struct {
	generateFn func(ctx context.Context) (string, error)
}

func (m *mockGenerator) Generate(ctx context.Context) (string, error) {
	if m.generateFn != nil {
		return m.generateFn(ctx)
	}
	return "Today: **Go** channels", nil
}

// mockPinger はHealthCheckerのモック実装。
type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error { return m.err }

// --- テストサーバー ---

type testEnv struct {
	content  *mockContentRepo
	profiles *mockProfileRepo
	gen      *mockGenerator
	registry *activation.Registry[*Page]
	reg      *prometheus.Registry
	router   http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		content:  &mockContentRepo{},
		profiles: &mockProfileRepo{},
		gen:      &mockGenerator{},
		registry: activation.NewRegistry[*Page](time.Minute, 100, nil, nil),
		reg:      prometheus.NewRegistry(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	collector := metrics.NewCollector(env.reg)
	sanitizer := security.NewHTMLSanitizer()

	h, err := NewHandler(Deps{
		Content:      env.content,
		Profiles:     env.profiles,
		Activations:  env.registry,
		Images:       fallback.NewResolver(nil),
		Sanitizer:    sanitizer,
		Generator:    env.gen,
		Markdown:     learning.NewRenderer(sanitizer),
		Recorder:     collector,
		SiteTitle:    "Developers Of Tomorrow",
		PreviewCount: 3,
		Logger:       logger,
		Now:          func() time.Time { return time.Date(2025, 6, 12, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(600), logger)
	t.Cleanup(rl.Stop)

	env.router = NewRouter(&RouterDeps{
		Pages:          h,
		SessionFinder:  mockSessionFinder{},
		RateLimiter:    rl,
		StatusRecorder: collector,
		HealthChecker:  &mockPinger{},
		Gatherer:       env.reg,
		Logger:         logger,
	})
	return env
}

var activationPattern = regexp.MustCompile(`name="activation_id" value="([0-9a-f-]+)"`)

// browser はCookieとページのアクティベーションIDを引き継ぐテスト用クライアント。
type browser struct {
	t          *testing.T
	router     http.Handler
	userID     string
	csrf       string
	activation string
}

func (e *testEnv) browser(t *testing.T, userID string) *browser {
	return &browser{t: t, router: e.router, userID: userID}
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	b.t.Helper()
	if b.userID != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: b.userID})
	}
	if b.csrf != "" {
		req.AddCookie(&http.Cookie{Name: "csrf_token", Value: b.csrf})
	}
	rec := httptest.NewRecorder()
	b.router.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.Name == "csrf_token" {
			b.csrf = c.Value
		}
	}
	if m := activationPattern.FindStringSubmatch(rec.Body.String()); m != nil {
		b.activation = m[1]
	}
	return rec
}

func (b *browser) get(path string) *httptest.ResponseRecorder {
	b.t.Helper()
	return b.do(httptest.NewRequest(http.MethodGet, path, nil))
}

// post はCSRFトークンと現在のアクティベーションIDを付けてフォームを送信する。
func (b *browser) post(path string, values url.Values) *httptest.ResponseRecorder {
	b.t.Helper()
	if values == nil {
		values = url.Values{}
	}
	if values.Get(middleware.CSRFFormField) == "" {
		values.Set(middleware.CSRFFormField, b.csrf)
	}
	if _, ok := values[activationField]; !ok {
		values.Set(activationField, b.activation)
	}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d\nbody: %s", rec.Code, want, rec.Body.String())
	}
}

func assertContains(t *testing.T, body string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(body, want) {
			t.Errorf("body does not contain %q\nbody: %s", want, body)
		}
	}
}

func assertNotContains(t *testing.T, body string, unwanted ...string) {
	t.Helper()
	for _, s := range unwanted {
		if strings.Contains(body, s) {
			t.Errorf("body unexpectedly contains %q", s)
		}
	}
}

func blogItem(id, title, authorID string) *model.ContentItem {
	return &model.ContentItem{
		ID:        id,
		Kind:      model.ContentKindBlog,
		Title:     title,
		Body:      "First paragraph\nSecond paragraph",
		CreatedAt: time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC),
		AuthorID:  authorID,
		Author:    &model.Profile{ID: authorID, DisplayName: "Alice"},
	}
}
