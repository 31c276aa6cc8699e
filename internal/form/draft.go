package form

import (
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/dotsite/internal/model"
)

// Field はフォームの入力欄。
type Field string

const (
	FieldTitle       Field = "title"
	FieldBody        Field = "body"
	FieldImageLinks  Field = "image_links"
	FieldSocialLinks Field = "social_links"
	FieldDate        Field = "date"
	FieldTime        Field = "time"
	FieldLocation    Field = "location"
	FieldCoverImage  Field = "cover_image"
)

// Draft は編集中のフォーム入力。リンク欄はカンマ区切りの入力文字列をそのまま保持する。
type Draft struct {
	Title       string
	Body        string
	ImageLinks  string
	SocialLinks string

	// イベントのみ
	Date       string // YYYY-MM-DD
	Time       string
	Location   string
	CoverImage string
}

// Set はfieldにvalueを設定する。未知のフィールドはエラー。
func (d *Draft) Set(field Field, value string) error {
	switch field {
	case FieldTitle:
		d.Title = value
	case FieldBody:
		d.Body = value
	case FieldImageLinks:
		d.ImageLinks = value
	case FieldSocialLinks:
		d.SocialLinks = value
	case FieldDate:
		d.Date = value
	case FieldTime:
		d.Time = value
	case FieldLocation:
		d.Location = value
	case FieldCoverImage:
		d.CoverImage = value
	default:
		return fmt.Errorf("unknown form field: %s", field)
	}
	return nil
}

// DraftFromItem は既存コンテンツから下書きを作る。リンクは", "で連結する。
// 戻り値はitemと記憶領域を共有しない。
func DraftFromItem(item *model.ContentItem) Draft {
	d := Draft{
		Title:       item.Title,
		Body:        item.Body,
		ImageLinks:  strings.Join(item.ImageLinks, ", "),
		SocialLinks: strings.Join(item.ExternalLinks, ", "),
	}
	if item.Event != nil {
		if !item.Event.Date.IsZero() {
			d.Date = item.Event.Date.Format(time.DateOnly)
		}
		d.Time = item.Event.Time
		d.Location = item.Event.Location
		d.CoverImage = item.Event.CoverImage
	}
	return d
}

// SplitLinks はカンマ区切りの入力を分割し、前後の空白を除去して空要素を捨てる。
// 結果は常に非nil。
func SplitLinks(raw string) []string {
	links := []string{}
	for _, seg := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(seg); s != "" {
			links = append(links, s)
		}
	}
	return links
}

// Validate は送信前の必須チェックを行う。
func (d Draft) Validate(kind model.ContentKind, actor *model.Actor) error {
	if actor == nil || actor.ID == "" {
		return model.NewValidationError("You must be signed in to post.")
	}
	if strings.TrimSpace(d.Title) == "" {
		return model.NewValidationError("Title is required.")
	}
	if strings.TrimSpace(d.Body) == "" {
		if kind == model.ContentKindEvent {
			return model.NewValidationError("Description is required.")
		}
		return model.NewValidationError("Content is required.")
	}
	if kind == model.ContentKindEvent && strings.TrimSpace(d.Date) != "" {
		if _, err := time.Parse(time.DateOnly, strings.TrimSpace(d.Date)); err != nil {
			return model.NewValidationError("Date must be in YYYY-MM-DD format.")
		}
	}
	return nil
}

// Payload は下書きから送信内容を組み立てる。Validate済みであること。
// todayは開催予定かどうかの判定に使う。
func (d Draft) Payload(kind model.ContentKind, actor *model.Actor, today time.Time) model.ContentPayload {
	p := model.ContentPayload{
		Title:         strings.TrimSpace(d.Title),
		Body:          strings.TrimSpace(d.Body),
		ImageLinks:    SplitLinks(d.ImageLinks),
		ExternalLinks: SplitLinks(d.SocialLinks),
		AuthorID:      actor.ID,
	}
	if kind == model.ContentKindEvent {
		ev := &model.EventDetails{
			Time:       strings.TrimSpace(d.Time),
			Location:   strings.TrimSpace(d.Location),
			CoverImage: strings.TrimSpace(d.CoverImage),
			IsUpcoming: true,
		}
		if date, err := time.Parse(time.DateOnly, strings.TrimSpace(d.Date)); err == nil {
			ev.Date = date
			y, m, day := today.Date()
			ev.IsUpcoming = !date.Before(time.Date(y, m, day, 0, 0, 0, 0, time.UTC))
		}
		p.Event = ev
	}
	return p
}
