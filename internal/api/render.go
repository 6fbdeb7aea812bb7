package api

import (
	"bytes"
	"embed"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/notes-bin/promptgallery/internal/auth"
	"github.com/notes-bin/promptgallery/internal/form"
	"github.com/notes-bin/promptgallery/internal/model"
	"github.com/notes-bin/promptgallery/internal/service"
)

//go:embed templates/*.html
var templateFS embed.FS

const flashCookie = "flash"

var pages = parsePages("home.html", "gallery.html", "login.html", "register.html", "profile.html", "edit_profile.html", "error.html")

func parsePages(names ...string) map[string]*template.Template {
	funcs := template.FuncMap{
		"date": func(t time.Time) string { return t.Format("Jan 2, 2006 15:04") },
	}
	out := make(map[string]*template.Template, len(names))
	for _, name := range names {
		out[name] = template.Must(template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/base.html", "templates/"+name))
	}
	return out
}

type pageData struct {
	Title   string
	User    *auth.Session
	Flash   string
	Errors  *form.ValidationError
	Form    map[string]string
	Message string
	Status  int

	Images     []*model.Image
	Popular    []*model.Image
	PrevOffset int
	NextOffset int
	HasPrev    bool
	HasNext    bool
	Profile    *service.ProfileView
	Next       string
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, data *pageData) {
	tmpl, ok := pages[name]
	if !ok {
		slog.Error("Unknown template", "name", name)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	data.User = sessionFromContext(r.Context())
	data.Flash = popFlash(w, r)

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		slog.Error("Failed to render template", "name", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "status", status, "path", r.URL.Path, "message", message)
	}
	h.render(w, r, status, "error.html", &pageData{Title: http.StatusText(status), Message: message, Status: status})
}

func setFlash(w http.ResponseWriter, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(message),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func popFlash(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(flashCookie)
	if err != nil {
		return ""
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Path: "/", MaxAge: -1})
	msg, err := url.QueryUnescape(c.Value)
	if err != nil {
		return ""
	}
	return msg
}

func redirect(w http.ResponseWriter, r *http.Request, to, flash string) {
	if flash != "" {
		setFlash(w, flash)
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}

func respondError(w http.ResponseWriter, status int, message string) {
	slog.Error("Request failed", "status", status, "message", message)
	respondJSON(w, status, map[string]string{"error": message})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
