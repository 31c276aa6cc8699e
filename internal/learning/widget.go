package learning

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/dotsite/internal/metrics"
	"github.com/hitoshi/dotsite/internal/model"
)

// State はウィジェットの表示状態。
type State int

const (
	StateLoading State = iota
	StateRefreshing
	StateError
	StateContent
)

// String はテンプレート用の表現を返す。
func (s State) String() string {
	switch s {
	case StateRefreshing:
		return "refreshing"
	case StateError:
		return "error"
	case StateContent:
		return "content"
	default:
		return "loading"
	}
}

// RequestRecorder は生成リクエストの記録先。
type RequestRecorder interface {
	RecordLearningRequest(result string, duration time.Duration)
}

// View はテンプレートに渡すウィジェットの状態。
type View struct {
	State State
	HTML  template.HTML
	Error string
}

// Busy は再生成ボタンを無効にすべきかを返す。
func (v View) Busy() bool {
	return v.State == StateLoading || v.State == StateRefreshing
}

// Widget は1回のページ表示に対応するウィジェットの状態を保持する。
// 生成中の再生成要求は無視する。
type Widget struct {
	generator Generator
	renderer  *Renderer
	recorder  RequestRecorder
	logger    *slog.Logger

	mu       sync.Mutex
	state    State
	html     template.HTML
	errMsg   string
	inFlight bool
}

// NewWidget はStateLoadingのWidgetを生成する。recorderはnil可。
func NewWidget(generator Generator, renderer *Renderer, recorder RequestRecorder, logger *slog.Logger) *Widget {
	if logger == nil {
		logger = slog.Default()
	}
	return &Widget{
		generator: generator,
		renderer:  renderer,
		recorder:  recorder,
		logger:    logger,
		state:     StateLoading,
	}
}

// Load は初回の生成を行う。生成中の場合は何もせずfalseを返す。
func (w *Widget) Load(ctx context.Context) bool {
	return w.run(ctx, StateLoading)
}

// Refresh は再生成する。生成中の場合は何もせずfalseを返す。
func (w *Widget) Refresh(ctx context.Context) bool {
	return w.run(ctx, StateRefreshing)
}

// View は現在の状態を返す。
func (w *Widget) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return View{State: w.state, HTML: w.html, Error: w.errMsg}
}

func (w *Widget) run(ctx context.Context, pending State) bool {
	w.mu.Lock()
	if w.inFlight {
		w.mu.Unlock()
		w.record(metrics.ResultIgnored, 0)
		return false
	}
	w.inFlight = true
	w.state = pending
	w.errMsg = ""
	w.mu.Unlock()

	start := time.Now()
	html, err := w.generate(ctx)
	elapsed := time.Since(start)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.inFlight = false

	if err != nil {
		w.state = StateError
		w.errMsg = errorMessage(err)
		w.record(metrics.ResultError, elapsed)
		return true
	}
	w.state = StateContent
	w.html = html
	w.record(metrics.ResultSuccess, elapsed)
	return true
}

func (w *Widget) generate(ctx context.Context) (template.HTML, error) {
	markdown, err := w.generator.Generate(ctx)
	if err != nil {
		return "", err
	}
	html, err := w.renderer.Render(markdown)
	if err != nil {
		w.logger.Error("学習コンテンツの変換に失敗しました", slog.String("error", err.Error()))
		return "", model.NewLearningUnavailableError(msgInvalidResponse, err)
	}
	return html, nil
}

func (w *Widget) record(result string, d time.Duration) {
	if w.recorder != nil {
		w.recorder.RecordLearningRequest(result, d)
	}
}

func errorMessage(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return msgFetchFailed
}
