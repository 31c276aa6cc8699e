// Package preview はトップページのブログプレビューを組み立てる。
package preview

import (
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hitoshi/dotsite/internal/content"
	"github.com/hitoshi/dotsite/internal/model"
)

// Presentation はプレビューの表示種別。
type Presentation int

const (
	PresentationLoading Presentation = iota
	PresentationError
	PresentationEmpty
	PresentationContent
)

// String はテンプレート用の表現を返す。
func (p Presentation) String() string {
	switch p {
	case PresentationError:
		return "error"
	case PresentationEmpty:
		return "empty"
	case PresentationContent:
		return "content"
	default:
		return "loading"
	}
}

// 空状態の表示文言
const (
	EmptyTitle   = "No Posts Yet"
	EmptyMessage = "Be the first to share your thoughts and announcements with the D.O.T community."
	EmptyAction  = "Create Post"
	ErrorAction  = "Try Again"
)

// Card はプレビューの1件分。
type Card struct {
	ID         string
	Title      string
	Excerpt    string
	AuthorName string
	Relative   string
	CreatedAt  time.Time
}

// Preview は描画用のプレビュー。
type Preview struct {
	Presentation Presentation
	Message      string // Error・Emptyの場合の本文
	Action       string // Error・Emptyの場合のボタン文言
	Cards        []Card
}

// Options はBuildの任意設定。
type Options struct {
	// Now は相対時刻の基準。ゼロ値の場合はtime.Now()。
	Now time.Time
}

// Build は同期状態とビューからプレビューを組み立てる。
// 判定の優先順位はloading、error、contentの順で、contentのうち0件はEmptyになる。
func Build(state content.State, view []*model.ContentItem, n int, opts Options) Preview {
	switch state.Phase {
	case content.PhaseLoading:
		return Preview{Presentation: PresentationLoading}
	case content.PhaseErrored:
		return Preview{Presentation: PresentationError, Message: state.Message, Action: ErrorAction}
	}

	if len(view) == 0 {
		return Preview{Presentation: PresentationEmpty, Message: EmptyMessage, Action: EmptyAction}
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	if n < 0 {
		n = 0
	}
	if n > len(view) {
		n = len(view)
	}

	cards := make([]Card, 0, n)
	for _, it := range view[:n] {
		cards = append(cards, Card{
			ID:         it.ID,
			Title:      it.Title,
			Excerpt:    StripMarkup(it.Body),
			AuthorName: it.AuthorName(),
			Relative:   RelativeTime(it.CreatedAt, now),
			CreatedAt:  it.CreatedAt,
		})
	}
	return Preview{Presentation: PresentationContent, Cards: cards}
}

// StripMarkup は本文からタグを除去したテキストを返す。
// タグとして解釈できない"<"（例: "a < b"）は本文としてそのまま残る。
// script・styleの中身は捨てる。
func StripMarkup(body string) string {
	var b strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(body))
	skip := 0

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())

		case html.TextToken:
			if skip == 0 {
				b.Write(tokenizer.Text())
			}

		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if isRawTextTag(string(tn)) {
				skip++
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if isRawTextTag(string(tn)) && skip > 0 {
				skip--
			}
		}
	}
}

func isRawTextTag(name string) bool {
	return name == "script" || name == "style"
}
