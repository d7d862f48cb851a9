// Package render turns page data into HTML using the embedded templates.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/zzstop/hw05-final/cmd/utils"
)

//go:embed templates
var templateFS embed.FS

// Pages lists every renderable page, by template path under templates/.
var Pages = []string{
	"index.html",
	"group.html",
	"profile.html",
	"post.html",
	"new_post.html",
	"follow.html",
	"login.html",
	"signup.html",
	"about/author.html",
	"about/tech.html",
	"misc/404.html",
	"misc/500.html",
}

var funcs = template.FuncMap{
	"date": func(t time.Time) string {
		return t.Format("2 January 2006 15:04")
	},
	"media": func(path string) string {
		return "/media/" + path
	},
}

type Renderer struct {
	pages map[string]*template.Template
}

func New() (*Renderer, error) {
	rd := &Renderer{pages: make(map[string]*template.Template, len(Pages))}
	for _, page := range Pages {
		t, err := template.New(page).Funcs(funcs).ParseFS(templateFS,
			"templates/base.html",
			"templates/includes/*.html",
			"templates/"+page,
		)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", page, err)
		}
		rd.pages[page] = t
	}
	return rd, nil
}

func MustNew() *Renderer {
	rd, err := New()
	if err != nil {
		panic(err)
	}
	return rd
}

// HTML renders page with data. The current user and request path are
// added to data as "User" and "Path".
func (rd *Renderer) HTML(w http.ResponseWriter, r *http.Request, status int, page string, data map[string]interface{}) {
	t, ok := rd.pages[page]
	if !ok {
		log.Printf("Unknown template %s", page)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if data == nil {
		data = map[string]interface{}{}
	}
	if user, ok := utils.UserFromContext(r.Context()); ok {
		data["User"] = user
	}
	data["Path"] = r.URL.Path

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", data); err != nil {
		log.Printf("Error rendering %s: %v", page, err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (rd *Renderer) NotFound(w http.ResponseWriter, r *http.Request) {
	rd.HTML(w, r, http.StatusNotFound, "misc/404.html", nil)
}

// ServerError logs err and renders the generic failure page.
func (rd *Renderer) ServerError(w http.ResponseWriter, r *http.Request, err error) {
	log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	rd.HTML(w, r, http.StatusInternalServerError, "misc/500.html", nil)
}
