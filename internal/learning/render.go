package learning

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// Sanitizer はHTMLから許可されていない要素を除去する。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// Renderer はMarkdownをサニタイズ済みHTMLに変換する。
type Renderer struct {
	md        goldmark.Markdown
	sanitizer Sanitizer
}

// NewRenderer はGFM拡張を有効にしたRendererを生成する。
func NewRenderer(sanitizer Sanitizer) *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(
				gmhtml.WithHardWraps(),
			),
		),
		sanitizer: sanitizer,
	}
}

// Render はmarkdownをHTMLに変換する。生のHTMLはgoldmarkの既定で出力されず、
// 変換結果はさらにサニタイズされる。
func (r *Renderer) Render(markdown string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return template.HTML(r.sanitizer.Sanitize(buf.String())), nil
}
