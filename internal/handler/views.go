package handler

import (
	"context"
	"html/template"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/dotsite/internal/content"
	"github.com/hitoshi/dotsite/internal/fallback"
	"github.com/hitoshi/dotsite/internal/form"
	"github.com/hitoshi/dotsite/internal/learning"
	"github.com/hitoshi/dotsite/internal/model"
	"github.com/hitoshi/dotsite/internal/preview"
)

// imageResolveLimit は1回の描画で同時に疎通確認する要素数の上限。
const imageResolveLimit = 8

const eventDateLayout = "Monday, January 2, 2006"

// pageMeta は全ページ共通の描画値。
type pageMeta struct {
	SiteTitle    string
	Title        string
	Nav          string
	CSRFToken    string
	ActivationID string
	SignedIn     bool
	Notice       *noticeView
}

type noticeView struct {
	Message string
	Action  string
}

type linkView struct {
	URL   string
	Label string
}

type phaseView struct {
	Loading bool
	Errored bool
	Message string
}

func phaseOf(s content.State) phaseView {
	return phaseView{
		Loading: s.Phase == content.PhaseLoading,
		Errored: s.Phase == content.PhaseErrored,
		Message: s.Message,
	}
}

type eventView struct {
	Date     string
	Time     string
	Location string
	Cover    fallback.Image
	Upcoming bool
}

type itemView struct {
	ID         string
	Title      string
	Paragraphs []template.HTML
	AuthorName string
	Avatar     fallback.Image
	Posted     string
	Images     []fallback.Image
	Links      []linkView
	CanEdit    bool
	Event      *eventView
}

type formView struct {
	Open        bool
	Editing     bool
	Submitting  bool
	Heading     string
	SubmitLabel string
	BodyLabel   string
	Draft       form.Draft
	Error       string
	IsEvent     bool
}

// sectionView はブログ・イベント一覧ページの描画値。
type sectionView struct {
	pageMeta
	Section    string
	Heading    string
	EmptyText  string
	NewLabel   string
	Phase      phaseView
	Items      []itemView
	Form       formView
	ShowCreate bool
}

type memberView struct {
	Name     string
	Headline string
	Avatar   *fallback.Image
	Initial  string
	Github   string
	Linkedin string
}

type membersView struct {
	pageMeta
	Phase   phaseView
	Members []memberView
}

type homeView struct {
	pageMeta
	Preview  preview.Preview
	Learning learning.View
}

type errorView struct {
	pageMeta
	Action    string
	ReloadURL string
}

// section はブログ・イベントの各ページ固有の文言。
type section struct {
	Path      string
	Kind      model.ContentKind
	Heading   string
	EmptyText string
	NewLabel  string
	Query     model.Query
}

var sections = map[string]section{
	"blog": {
		Path:      "blog",
		Kind:      model.ContentKindBlog,
		Heading:   "Blog",
		EmptyText: "No blog posts yet",
		NewLabel:  "Create New Blog",
		Query:     model.BlogListQuery(),
	},
	"events": {
		Path:      "events",
		Kind:      model.ContentKindEvent,
		Heading:   "Events",
		EmptyText: "No events found",
		NewLabel:  "Add Event",
		Query:     model.EventListQuery(),
	},
}

func buildFormView(kind model.ContentKind, snap form.Snapshot) formView {
	v := formView{
		Open:       snap.Status != form.StatusClosed,
		Editing:    snap.Editing(),
		Submitting: snap.Status == form.StatusSubmitting,
		Draft:      snap.Draft,
		Error:      snap.ErrorMessage(),
		IsEvent:    kind == model.ContentKindEvent,
		BodyLabel:  "Content",
	}
	noun := "Blog"
	if v.IsEvent {
		noun = "Event"
		v.BodyLabel = "Description"
	}
	if v.Editing {
		v.Heading = "Edit " + noun
		v.SubmitLabel = "Update " + noun
	} else {
		v.Heading = "Create New " + noun
		v.SubmitLabel = "Post " + noun
	}
	return v
}

// buildItemViews はコンテンツを描画値に変換する。画像の疎通確認は要素ごとに並行して行う。
func (h *Handler) buildItemViews(ctx context.Context, items []*model.ContentItem, actor *model.Actor) []itemView {
	views := make([]itemView, len(items))
	g := new(errgroup.Group)
	g.SetLimit(imageResolveLimit)
	for i, it := range items {
		g.Go(func() error {
			views[i] = h.itemView(ctx, it, actor)
			return nil
		})
	}
	_ = g.Wait()
	return views
}

func (h *Handler) itemView(ctx context.Context, it *model.ContentItem, actor *model.Actor) itemView {
	v := itemView{
		ID:         it.ID,
		Title:      it.Title,
		Paragraphs: h.paragraphs(it.Body),
		AuthorName: it.AuthorName(),
		Avatar:     h.deps.Images.Image(ctx, it.AuthorAvatar(), fallback.CategoryAvatar, it.AuthorName()),
		Posted:     it.CreatedAt.Format("January 2, 2006"),
		CanEdit:    actor != nil && it.OwnedBy(actor.ID),
	}
	for i, u := range it.ExternalLinks {
		v.Links = append(v.Links, linkView{URL: u, Label: "Link " + strconv.Itoa(i+1)})
	}
	if it.Event == nil {
		v.Images = h.deps.Images.Images(ctx, it.ImageLinks, fallback.CategoryContentImage, "Blog image")
		return v
	}
	v.Images = h.deps.Images.Images(ctx, it.ImageLinks, fallback.CategoryEventThumb, it.Title+" - Image")
	ev := &eventView{
		Time:     it.Event.Time,
		Location: it.Event.Location,
		Cover:    h.deps.Images.Image(ctx, it.Event.CoverImage, fallback.CategoryEventCover, it.Title),
		Upcoming: it.Event.IsUpcoming,
	}
	if !it.Event.Date.IsZero() {
		ev.Date = it.Event.Date.Format(eventDateLayout)
	}
	v.Event = ev
	return v
}

// paragraphs は本文を改行で段落に分け、各段落を無害化する。空行は捨てる。
func (h *Handler) paragraphs(body string) []template.HTML {
	var out []template.HTML
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, template.HTML(h.deps.Sanitizer.Sanitize(line)))
	}
	return out
}

func (h *Handler) buildMemberViews(ctx context.Context, profiles []*model.Profile) []memberView {
	views := make([]memberView, len(profiles))
	g := new(errgroup.Group)
	g.SetLimit(imageResolveLimit)
	for i, p := range profiles {
		g.Go(func() error {
			v := memberView{
				Name:     p.DisplayNameOrDefault(),
				Headline: p.Headline,
				Initial:  p.Initial(),
				Github:   p.GithubURL,
				Linkedin: p.LinkedinURL,
			}
			if strings.TrimSpace(p.AvatarURL) != "" {
				img := h.deps.Images.Image(ctx, p.AvatarURL, fallback.CategoryAvatar, v.Name)
				v.Avatar = &img
			}
			views[i] = v
			return nil
		})
	}
	_ = g.Wait()
	return views
}
