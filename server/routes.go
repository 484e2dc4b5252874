package server

import (
	"github.com/jrsteele09/go-oauth-provider/internal/metrics"
)

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET "+RouteIndex+"{$}", ChainMiddleware(s.IndexHandler(), s.HTMLMiddleWare(s.ResourceOwnerMiddleware)...))

	// LOGIN
	s.RegisterRouteHandler("GET "+RouteLogin, ChainMiddleware(s.LoginPageHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteLogin, ChainMiddleware(s.LoginSubmissionHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleWare()...))

	// OAuth2 authorization flow
	s.RegisterRouteHandler("GET "+RouteAuthorize, ChainMiddleware(s.CaptureHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteAuthorize, ChainMiddleware(s.CaptureHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteAuthorizeConfirm, ChainMiddleware(s.AuthorizeHandler(), s.HTMLMiddleWare(s.ResourceOwnerMiddleware)...))
	s.RegisterRouteHandler("POST "+RouteAuthorizeConfirm, ChainMiddleware(s.AuthorizeHandler(), s.HTMLMiddleWare(s.ResourceOwnerMiddleware)...))
	s.RegisterRouteHandler("GET "+RouteRedirect, ChainMiddleware(s.RedirectHandler(), s.HTMLMiddleWare()...))

	// Token endpoint; GET is routed so it can be refused with an OAuth error body
	s.RegisterRouteHandler("POST "+RouteAccessToken, ChainMiddleware(s.AccessTokenHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAccessToken, ChainMiddleware(s.AccessTokenHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("OPTIONS "+RouteAccessToken, ChainMiddleware(s.AccessTokenHandler(), s.APIMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteStaticCSS, ChainMiddleware(s.StaticFileHandler(), s.LoggingMiddleware, s.RecoverMiddleware, s.CacheMiddleware))

	if s.config.GetMetricsEnabled() {
		s.RegisterRouteHandler("GET "+RouteMetrics, metrics.Handler())
	}
}
