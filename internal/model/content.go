// Package model はドメインモデルを定義する。
package model

import (
	"slices"
	"time"
)

// ContentKind はコンテンツの種別（ブログ/イベント）を表す。
type ContentKind string

const (
	// ContentKindBlog はブログ・お知らせ。blogsテーブルに保存される。
	ContentKindBlog ContentKind = "blog"
	// ContentKindEvent はイベント。eventsテーブルに保存される。
	ContentKindEvent ContentKind = "event"
)

// Collection はContentKindに対応するストア上のコレクション名を返す。
func (k ContentKind) Collection() Collection {
	if k == ContentKindEvent {
		return CollectionEvents
	}
	return CollectionBlogs
}

// Valid は定義済みの種別かどうかを返す。
func (k ContentKind) Valid() bool {
	return k == ContentKindBlog || k == ContentKindEvent
}

// AnonymousName はプロフィールが解決できない場合の表示名。
const AnonymousName = "Anonymous"

// ContentItem はブログ記事またはイベントを表す。
// ID・CreatedAt・AuthorIDはバックエンドが採番し、作成後は変更されない。
type ContentItem struct {
	ID            string
	Kind          ContentKind
	Title         string
	Body          string // マークアップを含む可能性がある本文
	CreatedAt     time.Time
	AuthorID      string
	Author        *Profile // 読み取り時のJOIN結果。JOINできなかった場合はnil
	ImageLinks    []string
	ExternalLinks []string
	Event         *EventDetails // Kind=eventの場合のみ
}

// EventDetails はイベント固有の属性を表す。
type EventDetails struct {
	Date       time.Time // 開催日（日付のみ意味を持つ）
	Time       string    // 表示用の時刻（例: "18:00 - 20:00"）
	Location   string
	CoverImage string
	IsUpcoming bool
}

// Clone はContentItemのディープコピーを返す。
// フォーム下書きが同期リストの正本を書き換えないようにするために使用する。
func (c *ContentItem) Clone() *ContentItem {
	if c == nil {
		return nil
	}
	cp := *c
	cp.ImageLinks = slices.Clone(c.ImageLinks)
	cp.ExternalLinks = slices.Clone(c.ExternalLinks)
	if c.Author != nil {
		a := *c.Author
		cp.Author = &a
	}
	if c.Event != nil {
		e := *c.Event
		cp.Event = &e
	}
	return &cp
}

// AuthorName は著者の表示名を返す。プロフィールがない、または名前が空の場合は"Anonymous"。
func (c *ContentItem) AuthorName() string {
	if c.Author == nil {
		return AnonymousName
	}
	return c.Author.DisplayNameOrDefault()
}

// AuthorAvatar は著者のアバターURLを返す。未設定の場合は空文字列。
func (c *ContentItem) AuthorAvatar() string {
	if c.Author == nil {
		return ""
	}
	return c.Author.AvatarURL
}

// OwnedBy は指定ユーザーが作成者かどうかを返す。
func (c *ContentItem) OwnedBy(userID string) bool {
	return userID != "" && c.AuthorID == userID
}

// ContentPayload はストアへのinsert/updateで送信する値。
// リンクは送信前に空要素が除去済みであること。
type ContentPayload struct {
	Title         string
	Body          string
	ImageLinks    []string
	ExternalLinks []string
	AuthorID      string
	Event         *EventDetails
}
