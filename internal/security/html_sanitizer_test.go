package security

import (
	"strings"
	"testing"
)

// TestSanitize_AllowedTags はMarkdown由来のタグが通過することを検証する。
func TestSanitize_AllowedTags(t *testing.T) {
	sanitizer := NewHTMLSanitizer()

	tests := []struct {
		name         string
		input        string
		wantContains []string
	}{
		{
			name:         "見出しが許可される",
			input:        "<h2>Closures</h2>",
			wantContains: []string{"<h2>Closures</h2>"},
		},
		{
			name:         "段落と強調が許可される",
			input:        "<p>A <strong>closure</strong> is <em>a function</em></p>",
			wantContains: []string{"<p>", "<strong>closure</strong>", "<em>a function</em>"},
		},
		{
			name:         "コードブロックが許可される",
			input:        "<pre><code>func main() {}</code></pre>",
			wantContains: []string{"<pre>", "<code>", "func main() {}"},
		},
		{
			name:         "リストが許可される",
			input:        "<ul><li>one</li><li>two</li></ul>",
			wantContains: []string{"<ul>", "<li>one</li>", "</ul>"},
		},
		{
			name:         "表が許可される",
			input:        "<table><thead><tr><th>Term</th></tr></thead><tbody><tr><td>API</td></tr></tbody></table>",
			wantContains: []string{"<table>", "<th>Term</th>", "<td>API</td>"},
		},
		{
			name:         "取り消し線が許可される",
			input:        "<p><del>old</del></p>",
			wantContains: []string{"<del>old</del>"},
		},
		{
			name:         "水平線が許可される",
			input:        "<p>a</p><hr><p>b</p>",
			wantContains: []string{"<hr"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("Sanitize(%q) = %q, expected to contain %q", tt.input, got, want)
				}
			}
		})
	}
}

// TestSanitize_ForbiddenContent は危険なタグ・属性が除去されることを検証する。
func TestSanitize_ForbiddenContent(t *testing.T) {
	sanitizer := NewHTMLSanitizer()

	tests := []struct {
		name         string
		input        string
		wantAbsent   []string
		wantContains []string
	}{
		{
			name:         "scriptタグが除去される",
			input:        `<p>ok</p><script>alert('xss')</script>`,
			wantAbsent:   []string{"<script", "alert"},
			wantContains: []string{"ok"},
		},
		{
			name:       "iframeタグが除去される",
			input:      `<iframe src="https://evil.example"></iframe>`,
			wantAbsent: []string{"<iframe", "evil.example"},
		},
		{
			name:         "onclick属性が除去される",
			input:        `<p onclick="alert(1)">text</p>`,
			wantAbsent:   []string{"onclick", "alert"},
			wantContains: []string{"text"},
		},
		{
			name:         "javascriptスキームのリンクが除去される",
			input:        `<a href="javascript:alert(1)">x</a>`,
			wantAbsent:   []string{"javascript:"},
			wantContains: []string{"x"},
		},
		{
			name:       "http画像は除去される",
			input:      `<img src="http://example.com/a.png">`,
			wantAbsent: []string{"http://example.com/a.png"},
		},
		{
			name:       "data URI画像は除去される",
			input:      `<img src="data:image/svg+xml;base64,PHN2Zz4=">`,
			wantAbsent: []string{"data:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, absent := range tt.wantAbsent {
				if strings.Contains(got, absent) {
					t.Errorf("Sanitize(%q) = %q, should NOT contain %q", tt.input, got, absent)
				}
			}
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("Sanitize(%q) = %q, expected to contain %q", tt.input, got, want)
				}
			}
		})
	}
}

// TestSanitize_AnchorAttributes は外部リンクにtarget/relが付与されることを検証する。
func TestSanitize_AnchorAttributes(t *testing.T) {
	sanitizer := NewHTMLSanitizer()

	got := sanitizer.Sanitize(`<a href="https://go.dev">Go</a>`)
	for _, want := range []string{`href="https://go.dev"`, `target="_blank"`, "noopener", "noreferrer"} {
		if !strings.Contains(got, want) {
			t.Errorf("Sanitize() = %q, expected to contain %q", got, want)
		}
	}
}

// TestSanitize_Idempotent は同一入力に対して同一出力になることを検証する。
func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewHTMLSanitizer()
	input := `<h3>Tip</h3><p>Use <code>defer</code></p><script>x()</script>`

	first := sanitizer.Sanitize(input)
	second := sanitizer.Sanitize(input)
	if first != second {
		t.Errorf("Sanitize not deterministic: %q vs %q", first, second)
	}
	if again := sanitizer.Sanitize(first); again != first {
		t.Errorf("Sanitize(Sanitize(x)) = %q, want %q", again, first)
	}
}

// TestSanitize_EmptyInput は空文字列の入力に空文字列を返すことを検証する。
func TestSanitize_EmptyInput(t *testing.T) {
	if got := NewHTMLSanitizer().Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, want empty", got)
	}
}

func TestHTMLSanitizerInterface(t *testing.T) {
	var _ HTMLSanitizer = NewHTMLSanitizer()
}
