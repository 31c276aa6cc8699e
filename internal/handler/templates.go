package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/hitoshi/dotsite/internal/fallback"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// staticHandler は埋め込みのスタイルシートを/static/以下で配信する。
func staticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServerFS(sub))
}

// pageTemplates はページ名と、レイアウトと組み合わせるテンプレートファイルの対応。
var pageTemplates = map[string]string{
	"home":    "templates/home.html",
	"section": "templates/section.html",
	"members": "templates/members.html",
	"error":   "templates/error.html",
}

// viewSet はページごとに解析済みのテンプレート。
type viewSet struct {
	pages map[string]*template.Template
}

var templateFuncs = template.FuncMap{
	"imgsrc": imageSrc,
}

// imageSrc はimgのsrcに埋め込む値を返す。
// 組み込みのアバター（data URI）のみ信頼済みURLとして扱い、それ以外はhtml/templateの検査に任せる。
func imageSrc(src string) any {
	if src == fallback.DefaultAvatar {
		return template.URL(src)
	}
	return src
}

func parseViews() (*viewSet, error) {
	vs := &viewSet{pages: make(map[string]*template.Template, len(pageTemplates))}
	for name, file := range pageTemplates {
		t, err := template.New(name).Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", "templates/partials.html", file)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		vs.pages[name] = t
	}
	return vs, nil
}

// render はテンプレートをバッファに描画してからステータスコードと共に書き出す。
// 描画に失敗した場合は500を返す。
func (h *Handler) render(w http.ResponseWriter, status int, page string, data any) {
	t, ok := h.views.pages[page]
	if !ok {
		h.logger.Error("unknown template", "page", page)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		h.logger.Error("failed to render template",
			"page", page,
			"error", err.Error(),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
