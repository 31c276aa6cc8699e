package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/dotsite/internal/content"
	"github.com/hitoshi/dotsite/internal/form"
	"github.com/hitoshi/dotsite/internal/learning"
	"github.com/hitoshi/dotsite/internal/middleware"
	"github.com/hitoshi/dotsite/internal/model"
)

// actionResult はフォーム操作の結果。
type actionResult struct {
	Err error
	// Inline がtrueの場合、エラーはフォームや一覧の中に表示済みで、上部の通知は出さない。
	Inline bool
}

type sectionAction func(ctx context.Context, r *http.Request, p *Page, actor *model.Actor) actionResult

// sectionHandler はアクティベーションを解決してactionを実行し、一覧ページを再描画する。
func (h *Handler) sectionHandler(name string, action sectionAction) http.HandlerFunc {
	sec := sections[name]
	return func(w http.ResponseWriter, r *http.Request) {
		act, err := h.lookup(r, sec.Path)
		if err != nil {
			h.renderError(w, r, err, "/"+sec.Path)
			return
		}
		ctx, cancel := scoped(r.Context(), act)
		defer cancel()

		res := action(ctx, r, act.Value, middleware.ActorFromContext(r.Context()))
		var notice *noticeView
		if res.Err != nil && !res.Inline {
			notice = noticeOf(res.Err)
		}
		h.renderSection(w, r, act, sec, statusOf(res.Err), notice)
	}
}

func retryItems(ctx context.Context, _ *http.Request, p *Page, _ *model.Actor) actionResult {
	if err := p.Items.Retry(ctx); err != nil && !errors.Is(err, content.ErrNotErrored) {
		return actionResult{Err: err, Inline: true}
	}
	return actionResult{}
}

func openCreate(_ context.Context, _ *http.Request, p *Page, actor *model.Actor) actionResult {
	return actionResult{Err: p.Form.OpenCreate(actor)}
}

func openEdit(kind model.ContentKind) sectionAction {
	return func(_ context.Context, r *http.Request, p *Page, actor *model.Actor) actionResult {
		id := chi.URLParam(r, "id")
		item, ok := p.Items.Find(id)
		if !ok {
			return actionResult{Err: model.NewNotFoundError(kind, id)}
		}
		return actionResult{Err: p.Form.OpenEdit(actor, item)}
	}
}

func cancelForm(_ context.Context, _ *http.Request, p *Page, _ *model.Actor) actionResult {
	if !p.Form.Cancel() {
		return actionResult{Err: model.NewSubmitInFlightError()}
	}
	return actionResult{}
}

// submitForm は入力値で下書きを置き換えて送信する。
// 閉じたフォームへの送信（再読み込みによる再送信など）は何もしない。
func submitForm(ctx context.Context, r *http.Request, p *Page, actor *model.Actor) actionResult {
	if p.Form.Snapshot().Status == form.StatusOpen {
		_ = p.Form.SetDraft(draftFromRequest(r))
	}
	out, err := p.Form.Submit(ctx, actor)
	if errors.Is(err, form.ErrNotOpen) {
		return actionResult{}
	}
	switch out.Result {
	case form.ResultRejected, form.ResultFailed:
		return actionResult{Err: err, Inline: true}
	default:
		return actionResult{Err: err}
	}
}

func draftFromRequest(r *http.Request) form.Draft {
	v := func(f form.Field) string { return r.PostFormValue(string(f)) }
	return form.Draft{
		Title:       v(form.FieldTitle),
		Body:        v(form.FieldBody),
		ImageLinks:  v(form.FieldImageLinks),
		SocialLinks: v(form.FieldSocialLinks),
		Date:        v(form.FieldDate),
		Time:        v(form.FieldTime),
		Location:    v(form.FieldLocation),
		CoverImage:  v(form.FieldCoverImage),
	}
}

// RetryPreview はトップページのプレビューを再取得する。
// POST /retry
func (h *Handler) RetryPreview(w http.ResponseWriter, r *http.Request) {
	act, err := h.lookup(r, "home")
	if err != nil {
		h.renderError(w, r, err, "/")
		return
	}
	ctx, cancel := scoped(r.Context(), act)
	defer cancel()

	res := retryItems(ctx, r, act.Value, nil)
	h.renderHome(w, r, act, statusOf(res.Err), nil)
}

// RefreshLearning は学習ウィジェットを再生成する。生成中の要求は無視する。
// POST /learning/refresh
func (h *Handler) RefreshLearning(w http.ResponseWriter, r *http.Request) {
	act, err := h.lookup(r, "home")
	if err != nil {
		h.renderError(w, r, err, "/")
		return
	}
	ctx, cancel := scoped(r.Context(), act)
	defer cancel()

	status := http.StatusOK
	if act.Value.Learning.Refresh(ctx) && act.Value.Learning.View().State == learning.StateError {
		status = http.StatusBadGateway
	}
	h.renderHome(w, r, act, status, nil)
}

// RetryMembers はメンバー一覧を再取得する。
// POST /members/retry
func (h *Handler) RetryMembers(w http.ResponseWriter, r *http.Request) {
	act, err := h.lookup(r, "members")
	if err != nil {
		h.renderError(w, r, err, "/members")
		return
	}
	ctx, cancel := scoped(r.Context(), act)
	defer cancel()

	status := http.StatusOK
	if err := act.Value.Members.Retry(ctx); err != nil && !errors.Is(err, content.ErrNotErrored) {
		status = statusOf(err)
	}
	h.renderMembers(w, r, act, status)
}
