package server

import (
	"net/http"
)

type IndexPageData struct {
	AppName      string
	BaseURL      string
	Username     string
	LoginURL     string
	LogoutURL    string
	AuthorizeURL string
	TokenURL     string
}

// IndexHandler serves the landing page (GET /).
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := IndexPageData{
			AppName:      s.config.GetAppName(),
			BaseURL:      s.config.GetBaseURL(),
			LoginURL:     RouteLogin,
			LogoutURL:    RouteLogout,
			AuthorizeURL: RouteAuthorize,
			TokenURL:     RouteAccessToken,
		}
		if user, ok := UserFromContext(r.Context()); ok {
			data.Username = user.Username
		}
		s.render(w, "index.html", http.StatusOK, data)
	}
}
