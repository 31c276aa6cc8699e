package handler

import (
	"context"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/dotsite/internal/activation"
	"github.com/hitoshi/dotsite/internal/content"
	"github.com/hitoshi/dotsite/internal/form"
	"github.com/hitoshi/dotsite/internal/learning"
	"github.com/hitoshi/dotsite/internal/middleware"
	"github.com/hitoshi/dotsite/internal/model"
	"github.com/hitoshi/dotsite/internal/preview"
)

// scoped はリクエストとアクティベーションのどちらかが終了した時点でキャンセルされるコンテキストを返す。
func scoped[V any](ctx context.Context, act *activation.Activation[V]) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-act.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func (h *Handler) meta(r *http.Request, title, nav, activationID string, notice *noticeView) pageMeta {
	return pageMeta{
		SiteTitle:    h.deps.SiteTitle,
		Title:        title,
		Nav:          nav,
		CSRFToken:    middleware.CSRFTokenFromContext(r.Context()),
		ActivationID: activationID,
		SignedIn:     middleware.ActorFromContext(r.Context()) != nil,
		Notice:       notice,
	}
}

// Home はトップページ（ブログのプレビューと学習ウィジェット）を表示する。
// GET /
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	page := &Page{
		Section: "home",
		Items: content.NewItemSynchronizer(h.deps.Content, model.ContentKindBlog,
			model.BlogPreviewQuery(h.deps.PreviewCount), h.logger),
		Learning: learning.NewWidget(h.deps.Generator, h.deps.Markdown, h.deps.Recorder, h.logger),
	}
	act := h.deps.Activations.Create(actorID(r.Context()), page)
	ctx, cancel := scoped(r.Context(), act)
	defer cancel()

	// プレビューの取得失敗で生成を中断しないよう、エラーはgroupに返さない
	var g errgroup.Group
	g.Go(func() error {
		_ = page.Items.Load(ctx)
		return nil
	})
	g.Go(func() error {
		page.Learning.Load(ctx)
		return nil
	})
	_ = g.Wait()

	h.renderHome(w, r, act, http.StatusOK, nil)
}

func (h *Handler) renderHome(w http.ResponseWriter, r *http.Request, act *activation.Activation[*Page], status int, notice *noticeView) {
	if !act.Alive() {
		h.renderError(w, r, model.NewActivationExpiredError(), "/")
		return
	}
	var view homeView
	act.With(func(p *Page) {
		view = homeView{
			pageMeta: h.meta(r, "", "home", act.ID, notice),
			Preview:  preview.Build(p.Items.State(), p.Items.View(), h.deps.PreviewCount, preview.Options{Now: h.now()}),
			Learning: p.Learning.View(),
		}
	})
	h.render(w, status, "home", view)
}

// Section はブログ・イベント一覧ページを表示するハンドラーを返す。
// GET /blog, GET /events
func (h *Handler) Section(name string) http.HandlerFunc {
	sec := sections[name]
	return func(w http.ResponseWriter, r *http.Request) {
		page := h.newSectionPage(sec)
		act := h.deps.Activations.Create(actorID(r.Context()), page)
		ctx, cancel := scoped(r.Context(), act)
		defer cancel()

		_ = page.Items.Load(ctx)
		h.renderSection(w, r, act, sec, http.StatusOK, nil)
	}
}

func (h *Handler) newSectionPage(sec section) *Page {
	items := content.NewItemSynchronizer(h.deps.Content, sec.Kind, sec.Query, h.logger)
	return &Page{
		Section: sec.Path,
		Items:   items,
		Form: form.NewSession(sec.Kind, h.deps.Content, items,
			form.WithRecorder(h.deps.Recorder),
			form.WithLogger(h.logger),
			form.WithClock(h.now),
		),
	}
}

func (h *Handler) renderSection(w http.ResponseWriter, r *http.Request, act *activation.Activation[*Page], sec section, status int, notice *noticeView) {
	if !act.Alive() {
		h.renderError(w, r, model.NewActivationExpiredError(), "/"+sec.Path)
		return
	}
	var (
		state content.State
		items []*model.ContentItem
		snap  form.Snapshot
	)
	act.With(func(p *Page) {
		state = p.Items.State()
		items = p.Items.View()
		snap = p.Form.Snapshot()
	})

	actor := middleware.ActorFromContext(r.Context())
	view := sectionView{
		pageMeta:   h.meta(r, sec.Heading, sec.Path, act.ID, notice),
		Section:    sec.Path,
		Heading:    sec.Heading,
		EmptyText:  sec.EmptyText,
		NewLabel:   sec.NewLabel,
		Phase:      phaseOf(state),
		Items:      h.buildItemViews(r.Context(), items, actor),
		Form:       buildFormView(sec.Kind, snap),
		ShowCreate: actor != nil,
	}
	h.render(w, status, "section", view)
}

// Members はメンバー一覧ページを表示する。
// GET /members
func (h *Handler) Members(w http.ResponseWriter, r *http.Request) {
	page := &Page{
		Section: "members",
		Members: content.NewProfileSynchronizer(h.deps.Profiles, model.MemberListQuery(), h.logger),
	}
	act := h.deps.Activations.Create(actorID(r.Context()), page)
	ctx, cancel := scoped(r.Context(), act)
	defer cancel()

	_ = page.Members.Load(ctx)
	h.renderMembers(w, r, act, http.StatusOK)
}

func (h *Handler) renderMembers(w http.ResponseWriter, r *http.Request, act *activation.Activation[*Page], status int) {
	if !act.Alive() {
		h.renderError(w, r, model.NewActivationExpiredError(), "/members")
		return
	}
	var (
		state    content.State
		profiles []*model.Profile
	)
	act.With(func(p *Page) {
		state = p.Members.State()
		profiles = p.Members.View()
	})
	view := membersView{
		pageMeta: h.meta(r, "Members", "members", act.ID, nil),
		Phase:    phaseOf(state),
		Members:  h.buildMemberViews(r.Context(), profiles),
	}
	h.render(w, status, "members", view)
}

// renderError はページを継続できないエラー（期限切れなど）を表示する。
func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error, reloadURL string) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"path", r.URL.Path,
			"error", err.Error(),
		)
	}
	notice := noticeOf(err)
	view := errorView{
		pageMeta:  h.meta(r, notice.Message, "", "", nil),
		Action:    notice.Action,
		ReloadURL: reloadURL,
	}
	h.render(w, status, "error", view)
}
