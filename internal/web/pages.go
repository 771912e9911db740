package web

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"

	"nerdemo/internal/annotate"
	"nerdemo/internal/content"
	"nerdemo/internal/session"
)

const errInference = "Entity recognition failed. Please try again in a moment."

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

var (
	aboutOnce sync.Once
	aboutHTML template.HTML
	aboutErr  error
)

// renderAbout converts the embedded About markdown once.
func renderAbout() (template.HTML, error) {
	aboutOnce.Do(func() {
		md := goldmark.New(goldmark.WithExtensions(extension.GFM))
		var buf bytes.Buffer
		if err := md.Convert(content.About, &buf); err != nil {
			aboutErr = err
			return
		}
		aboutHTML = template.HTML(buf.String())
	})
	return aboutHTML, aboutErr
}

type pageData struct {
	Title       string
	Author      string
	Page        string
	Suggestions []string
	Text        string
	Submitted   bool
	Entities    []annotate.Annotation
	Warning     string
	Error       string
	About       template.HTML
}

func (s *Server) render(w http.ResponseWriter, data pageData) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, "layout", data); err != nil {
		s.logger.Error("render page", zap.String("page", data.Page), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) appPage(text string) pageData {
	return pageData{
		Title:       content.Title,
		Author:      content.Author,
		Page:        "app",
		Suggestions: content.Suggestions,
		Text:        text,
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	sid := session.FromRequest(w, r)
	switch r.Method {
	case http.MethodGet:
		s.render(w, s.appPage(s.sessions.Text(sid)))
	case http.MethodPost:
		text := r.FormValue("text")
		s.sessions.SetText(sid, text)
		s.render(w, s.annotatePage(r, sid, text))
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	idx, err := strconv.Atoi(r.FormValue("index"))
	if err != nil || idx < 0 || idx >= len(content.Suggestions) {
		http.Error(w, "unknown suggestion", http.StatusBadRequest)
		return
	}
	sid := session.FromRequest(w, r)
	text := content.Suggestions[idx]
	s.sessions.SetText(sid, text)
	s.render(w, s.annotatePage(r, sid, text))
}

func (s *Server) annotatePage(r *http.Request, sid, text string) pageData {
	data := s.appPage(text)
	ctx := session.ContextWithID(r.Context(), sid)
	entities, err := s.annotator.AnnotateFrom(ctx, "web", text)
	switch {
	case errors.Is(err, annotate.ErrEmptyInput):
		data.Warning = content.EmptyPrompt
	case err != nil:
		s.logger.Warn("annotate failed", zap.String("session", sid), zap.Error(err))
		data.Error = errInference
	default:
		data.Submitted = true
		data.Entities = entities
	}
	return data
}

func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	body, err := renderAbout()
	if err != nil {
		s.logger.Error("render about markdown", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.render(w, pageData{Title: content.AboutTitle, Author: content.Author, Page: "about", About: body})
}
