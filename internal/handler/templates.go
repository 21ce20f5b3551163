package handler

import (
	"embed"
	"fmt"
	"html/template"
	"io"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// templateSet はページ名ごとにパース済みテンプレートを保持する。
// 各ページはレイアウトテンプレートと組み合わせてパースされる。
type templateSet struct {
	pages map[string]*template.Template
}

// parseTemplates は埋め込みテンプレートをパースしてtemplateSetを生成する。
func parseTemplates() (*templateSet, error) {
	pageNames := []string{"feed", "login", "submit", "profile"}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.ParseFS(templateFS, "templates/layout.tmpl", "templates/"+name+".tmpl")
		if err != nil {
			return nil, fmt.Errorf("テンプレート %s のパースに失敗しました: %w", name, err)
		}
		pages[name] = t
	}

	return &templateSet{pages: pages}, nil
}

// execute は指定ページのテンプレートを描画する。
func (ts *templateSet) execute(w io.Writer, page string, data pageData) error {
	t, ok := ts.pages[page]
	if !ok {
		return fmt.Errorf("未定義のテンプレート: %s", page)
	}
	return t.ExecuteTemplate(w, "layout", data)
}
