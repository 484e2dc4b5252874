package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/jrsteele09/go-oauth-provider/auth"
	"github.com/jrsteele09/go-oauth-provider/oauthmodel"
	"github.com/rs/zerolog/log"
)

//go:embed templates/*
var templateFiles embed.FS

var pageTemplates = []string{"index.html", "login.html", "authorize.html", "error.html"}

func TemplateFilesFS() fs.FS {
	subFS, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic("Failed to create templates sub filesystem: " + err.Error())
	}
	return subFS
}

// ParseTemplate parses a template from the embedded filesystem
func ParseTemplate(name string) (*template.Template, error) {
	content, err := fs.ReadFile(TemplateFilesFS(), name)
	if err != nil {
		return nil, err
	}
	return template.New(name).Parse(string(content))
}

func parseTemplates() (map[string]*template.Template, error) {
	templates := make(map[string]*template.Template, len(pageTemplates))
	for _, name := range pageTemplates {
		tmpl, err := ParseTemplate(name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		templates[name] = tmpl
	}
	return templates, nil
}

// render buffers the page so a template failure can still become a 500.
func (s *Server) render(w http.ResponseWriter, name string, status int, data any) {
	tmpl, ok := s.templates[name]
	if !ok {
		log.Error().Str("template", name).Msg("unknown template")
		http.Error(w, "500 - Internal Server Error", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		log.Err(err).Str("template", name).Msg("failed to render template")
		http.Error(w, "500 - Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

type ErrorPageData struct {
	Error       string
	Description string
	Next        string
}

func (s *Server) renderErrorPage(w http.ResponseWriter, oerr *oauthmodel.Error, next string) {
	s.render(w, "error.html", oerr.Status, ErrorPageData{
		Error:       string(oerr.Code),
		Description: oerr.Description,
		Next:        next,
	})
}

// ConsentPageData contains data for rendering the consent page
type ConsentPageData struct {
	ClientName  string
	ClientURL   string
	RedirectURI string
	Action      string
	Scopes      []auth.ScopeDescription
	Error       string
}

func newConsentPage(prompt *auth.ConsentPrompt) ConsentPageData {
	data := ConsentPageData{
		ClientName:  prompt.Client.Name,
		ClientURL:   prompt.Client.URL,
		RedirectURI: prompt.Request.RedirectURI,
		Action:      RouteAuthorizeConfirm,
		Scopes:      prompt.Scopes,
	}
	if data.ClientName == "" {
		data.ClientName = prompt.Client.ID
	}
	if prompt.Error != nil {
		data.Error = prompt.Error.Description
	}
	return data
}
