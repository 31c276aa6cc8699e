// Package security はアプリケーションのセキュリティ機能を提供する。
//
// HTMLSanitizer は外部APIが生成したMarkdownをHTML化した結果をサニタイズする。
// bluemondayの許可リストポリシーで、見出し・リスト・コード・表など
// 学習ウィジェットの表示に必要なタグのみを通過させる。
package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// HTMLSanitizer はHTMLのサニタイズ機能のインターフェースを定義する。
type HTMLSanitizer interface {
	// Sanitize はHTMLをサニタイズして安全なHTMLを返す。
	// script, iframe, style, form およびon*イベント属性は除去される。
	// aタグにはtarget="_blank"とrel="noopener noreferrer"が付与される。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string
}

// htmlSanitizer はHTMLSanitizerの実装。
// bluemonday.Policyはゴルーチンセーフなので複数リクエストから共有できる。
type htmlSanitizer struct {
	policy *bluemonday.Policy
}

// NewHTMLSanitizer は新しいHTMLSanitizerを生成する。
// ポリシーの内容:
//   - 許可タグ: h1〜h6, p, br, hr, ul, ol, li, blockquote, pre, code, strong, em, del, table系, a, img
//   - aのhref: http/httpsの絶対URLのみ
//   - imgのsrc: httpsのみ
func NewHTMLSanitizer() *htmlSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"h1", "h2", "h3", "h4", "h5", "h6",
		"p", "br", "hr", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "del",
		"table", "thead", "tbody", "tr", "th", "td",
	)
	p.AllowAttrs("align").Matching(bluemonday.Paragraph).OnElements("th", "td")

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)
	p.AllowURLSchemes("http", "https")

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return u.Host != ""
	})

	return &htmlSanitizer{policy: p}
}

// Sanitize はHTMLをサニタイズして安全なHTMLを返す。
func (s *htmlSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
