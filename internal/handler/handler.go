// Package handler はHTTPハンドラーとルーティングを提供する。
//
// 一覧ページのGETはページアクティベーションを生成し、以降のフォーム操作・再試行は
// フォームに埋め込んだアクティベーションIDで同じ一覧とフォームの状態を参照する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/dotsite/internal/activation"
	"github.com/hitoshi/dotsite/internal/content"
	"github.com/hitoshi/dotsite/internal/fallback"
	"github.com/hitoshi/dotsite/internal/form"
	"github.com/hitoshi/dotsite/internal/learning"
	"github.com/hitoshi/dotsite/internal/middleware"
	"github.com/hitoshi/dotsite/internal/model"
	"github.com/hitoshi/dotsite/internal/repository"
)

// activationField はアクティベーションIDを埋め込むフォームフィールド名。
const activationField = "activation_id"

// Page は1回のページ表示が保持する状態。ページ種別に応じて一部のフィールドのみ設定される。
type Page struct {
	Section  string
	Items    *content.Synchronizer[*model.ContentItem]
	Form     *form.Session
	Members  *content.Synchronizer[*model.Profile]
	Learning *learning.Widget
}

// Sanitizer は本文のHTMLを表示可能な形に整える。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// Recorder はハンドラーが利用するメトリクスの記録先。
type Recorder interface {
	form.SubmissionRecorder
	learning.RequestRecorder
}

// Deps はHandlerの依存関係。
type Deps struct {
	Content     repository.ContentRepository
	Profiles    repository.ProfileRepository
	Activations *activation.Registry[*Page]
	Images      *fallback.Resolver
	Sanitizer   Sanitizer
	Generator   learning.Generator
	Markdown    *learning.Renderer
	Recorder    Recorder
	SiteTitle   string
	// PreviewCount はトップページに表示するブログ記事の件数。
	PreviewCount int
	Logger       *slog.Logger
	// Now は現在時刻の取得関数。nilの場合はtime.Now。
	Now func() time.Time
}

// Handler はサイトのページとフォーム操作を処理する。
type Handler struct {
	deps   Deps
	views  *viewSet
	logger *slog.Logger
	now    func() time.Time
}

// NewHandler はHandlerを生成する。テンプレートの解析に失敗した場合はエラーを返す。
func NewHandler(deps Deps) (*Handler, error) {
	views, err := parseViews()
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	if deps.PreviewCount <= 0 {
		deps.PreviewCount = 3
	}
	return &Handler{deps: deps, views: views, logger: logger, now: now}, nil
}

// lookup はフォームのアクティベーションIDからページを取得する。
// 別のページ種別のアクティベーションはACTIVATION_EXPIREDとして扱う。
func (h *Handler) lookup(r *http.Request, section string) (*activation.Activation[*Page], error) {
	id := strings.TrimSpace(r.PostFormValue(activationField))
	act, err := h.deps.Activations.Get(id, actorID(r.Context()))
	if err != nil {
		return nil, err
	}
	if act.Value.Section != section {
		return nil, model.NewActivationExpiredError()
	}
	return act, nil
}

func actorID(ctx context.Context) string {
	if a := middleware.ActorFromContext(ctx); a != nil {
		return a.ID
	}
	return ""
}

// mapAPIErrorToHTTPStatus はAPIErrorのコードをHTTPステータスコードに変換する。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation:
		return http.StatusUnprocessableEntity
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeNotFound:
		return http.StatusNotFound
	case model.ErrCodeSubmitInFlight:
		return http.StatusConflict
	case model.ErrCodeActivationExpired:
		return http.StatusGone
	case model.ErrCodeNetwork, model.ErrCodeLearningUnavail:
		return http.StatusBadGateway
	case model.ErrCodeStaleReference:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// statusOf はエラーをHTTPステータスコードに変換する。nilは200。
func statusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return mapAPIErrorToHTTPStatus(apiErr)
	}
	return http.StatusInternalServerError
}

// noticeOf はページ上部に表示するエラー通知を返す。
func noticeOf(err error) *noticeView {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return &noticeView{Message: apiErr.Message, Action: apiErr.Action}
	}
	return &noticeView{Message: "Something went wrong.", Action: "Please try again later."}
}
