// Package fallback は欠損または読み込めない画像参照を表示可能なプレースホルダに置き換える。
package fallback

import (
	"context"
	"strconv"
	"strings"
)

// Category は画像の用途。用途ごとにプレースホルダが異なる。
type Category string

const (
	CategoryAvatar       Category = "avatar"
	CategoryContentImage Category = "content-image"
	CategoryEventCover   Category = "event-cover"
	CategoryEventThumb   Category = "event-thumb"
)

// DefaultAvatar はアバター未設定時に表示するインラインSVG。
const DefaultAvatar = "data:image/svg+xml;base64,PHN2ZyB3aWR0aD0iNDAiIGhlaWdodD0iNDAiIHZpZXdCb3g9IjAgMCA0MCA0MCIgZmlsbD0ibm9uZSIgeG1sbnM9Imh0dHA6Ly93d3cudzMub3JnLzIwMDAvc3ZnIj48cmVjdCB3aWR0aD0iNDAiIGhlaWdodD0iNDAiIGZpbGw9IiMyMDIwMjAiLz48cGF0aCBkPSJNMjAgMTkuNWM0LjE0MiAwIDcuNS0zLjM1OCA3LjUtNy41UzI0LjE0MiA0LjUgMjAgNC41cy03LjUgMy4zNTgtNy41IDcuNSAzLjM1OCA3LjUgNy41IDcuNXptMCAzLjVjLTUuNTIzIDAtMTYgMi43NzctMTYgOC4zMzNWMzUuNWgzMnYtMy42NjdjMC01LjU1Ni0xMC40NzctOC4zMzMtMTYtOC4zMzN6IiBmaWxsPSIjMzAzMDMwIi8+PC9zdmc+"

const (
	// EventCoverPlaceholder はイベントのカバー画像のプレースホルダ。
	EventCoverPlaceholder = "https://placehold.co/600x400/1a1a1a/ffffff?text=No+Image"
	// EventThumbPlaceholder はイベントの追加画像のプレースホルダ。
	EventThumbPlaceholder = "https://placehold.co/200x200/1a1a1a/ffffff?text=No+Image"
)

// Placeholder はカテゴリのプレースホルダURLを返す。未知のカテゴリはアバター扱い。
func Placeholder(c Category) string {
	switch c {
	case CategoryEventCover:
		return EventCoverPlaceholder
	case CategoryEventThumb:
		return EventThumbPlaceholder
	default:
		return DefaultAvatar
	}
}

// Resolve はURLが空（空白のみを含む）ならプレースホルダを、そうでなければurlをそのまま返す。
func Resolve(url string, c Category) string {
	if strings.TrimSpace(url) == "" {
		return Placeholder(c)
	}
	return url
}

// Image はテンプレートに渡す描画用の画像参照。
type Image struct {
	Src string
	// Fallback はカテゴリのプレースホルダ。読み込めない場合はSrcがこれになる。
	Fallback string
	Alt      string
	// Broken はサーバー側の確認で読み込めなかったことを表す。
	Broken bool
	// Dimmed は差し替え後に半透明で表示するかどうか。
	Dimmed bool
}

// Prober は画像URLが読み込めるかを確認する。
// 確認できなかった場合もエラーは返さず、falseを返す。
type Prober interface {
	Probe(ctx context.Context, url string) bool
}

// Resolver はプレースホルダ解決とサーバー側の疎通確認を組み合わせる。
// proberがnilの場合は疎通確認を行わない。
type Resolver struct {
	prober Prober
}

// NewResolver はResolverを生成する。
func NewResolver(prober Prober) *Resolver {
	return &Resolver{prober: prober}
}

// Image はurlを描画可能なImageに解決する。
// urlが存在しても読み込めない場合はプレースホルダに置き換え、Brokenを立てる。
func (r *Resolver) Image(ctx context.Context, url string, c Category, alt string) Image {
	img := Image{
		Src:      Resolve(url, c),
		Fallback: Placeholder(c),
		Alt:      alt,
	}
	if img.Src == img.Fallback || r == nil || r.prober == nil {
		return img
	}
	if !r.prober.Probe(ctx, url) {
		img.Src = img.Fallback
		img.Broken = true
		img.Dimmed = c == CategoryContentImage
	}
	return img
}

// Images は複数URLをまとめて解決する。空要素は除外しない。
func (r *Resolver) Images(ctx context.Context, urls []string, c Category, altPrefix string) []Image {
	out := make([]Image, 0, len(urls))
	for i, u := range urls {
		out = append(out, r.Image(ctx, u, c, altText(altPrefix, i)))
	}
	return out
}

func altText(prefix string, i int) string {
	if prefix == "" {
		return ""
	}
	return prefix + " " + strconv.Itoa(i+1)
}
