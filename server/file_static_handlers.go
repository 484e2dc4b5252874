package server

import (
	"embed"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"
)

//go:embed static/*
var staticFiles embed.FS

func StaticFilesFS() fs.FS {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic("Failed to create sub filesystem: " + err.Error())
	}
	return subFS
}

// StaticFileHandler serves embedded assets such as /css/site.css.
func (s *Server) StaticFileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filePath := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if err := StreamFile(w, r, filePath); err != nil {
			logError(r.Method, r.URL.Path, err.Error())
			http.Error(w, "404 - Page Not Found", http.StatusNotFound)
		}
	}
}

// CacheMiddleware lets user agents keep static assets for five minutes
func (s *Server) CacheMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=300, must-revalidate")
		next(w, r)
	}
}

func StreamFile(w http.ResponseWriter, _ *http.Request, fileName string) error {
	data, err := fs.ReadFile(StaticFilesFS(), fileName)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", fileName, err)
	}

	ctype := mime.TypeByExtension(strings.ToLower(path.Ext(fileName)))
	if ctype == "" {
		ctype = http.DetectContentType(data)
	}
	// Ensure UTF-8 for text types when not present
	if strings.HasPrefix(ctype, "text/") && !strings.Contains(strings.ToLower(ctype), "charset=") {
		ctype += "; charset=utf-8"
	}
	w.Header().Set("Content-Type", ctype)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write %s content: %w", fileName, err)
	}
	return nil
}
