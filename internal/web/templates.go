package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"net/url"
	"strings"

	"dapur-kita/internal/recipe"
)

//go:embed templates/*.tmpl
var templateFiles embed.FS

var pageNames = []string{"list", "detail", "form", "error"}

var funcs = template.FuncMap{
	"join": strings.Join,
	"imageURL": func(src string, width int) string {
		return fmt.Sprintf("/image?url=%s&w=%d", url.QueryEscape(src), width)
	},
	"fieldError": func(errs recipe.FieldErrors, field string) *recipe.FieldError {
		fe, ok := errs[field]
		if !ok {
			return nil
		}
		return &fe
	},
	"difficulties": func() []string {
		return []string{"Easy", "Medium", "Hard"}
	},
}

// pageData is the state every page template renders from.
type pageData struct {
	Title       string
	Flash       string
	Error       string
	Collection  recipe.Collection
	Recipe      recipe.Recipe
	NotFound    bool
	Form        recipe.RawForm
	Errors      recipe.FieldErrors
	LiveUpdates bool
}

func parsePages() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(templateFiles,
			"templates/layout.html.tmpl",
			"templates/"+name+".html.tmpl",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
		}
		pages[name] = tmpl
	}
	return pages, nil
}

// render writes the page with the given status. The page is executed into a
// buffer first so a template error still yields a clean 500.
func (s *Server) render(w http.ResponseWriter, status int, page string, data pageData) {
	var buf bytes.Buffer
	if err := s.pages[page].ExecuteTemplate(&buf, "layout", data); err != nil {
		log.Printf("Error rendering %s page: %v", page, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
