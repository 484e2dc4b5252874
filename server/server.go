package server

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-oauth-provider/auth"
	"github.com/jrsteele09/go-oauth-provider/clients"
	"github.com/jrsteele09/go-oauth-provider/internal/config"
	"github.com/jrsteele09/go-oauth-provider/internal/metrics"
	"github.com/jrsteele09/go-oauth-provider/scope"
	"github.com/jrsteele09/go-oauth-provider/sessions"
	"github.com/jrsteele09/go-oauth-provider/token"
	"github.com/jrsteele09/go-oauth-provider/users"
	"github.com/rs/zerolog/log"
)

// Repos are the repositories the HTTP surface reads directly.
type Repos struct {
	Clients clients.Repo
	Users   users.UserRepo
}

type Server struct {
	env          string // Environment (e.g., "DEV", "PROD")
	mux          *http.ServeMux
	routes       []string
	config       config.Config
	repos        Repos
	tokens       *token.Manager
	auth         *auth.AuthorizationService
	tokenService *auth.TokenService
	verifier     auth.CredentialVerifier
	sessions     sessions.Backend
	registry     *scope.Registry
	metrics      metrics.Recorder
	templates    map[string]*template.Template
}

type Option func(*Server)

func WithScopeRegistry(registry *scope.Registry) Option {
	return func(s *Server) {
		s.registry = registry
	}
}

func WithMetrics(recorder metrics.Recorder) Option {
	return func(s *Server) {
		s.metrics = recorder
	}
}

// New wires the authorization and token services over the given repositories
// and registers every route.
func New(cfg config.Config, repos Repos, manager *token.Manager, sessionBackend sessions.Backend, options ...Option) (*Server, error) {
	if repos.Clients == nil || repos.Users == nil {
		return nil, fmt.Errorf("[Server New] client and user repositories are required")
	}
	if manager == nil || sessionBackend == nil {
		return nil, fmt.Errorf("[Server New] a token manager and a session backend are required")
	}

	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		config:   cfg,
		repos:    repos,
		tokens:   manager,
		sessions: sessionBackend,
		registry: scope.Default(),
		metrics:  metrics.NewNoopMetrics(),
	}
	for _, opt := range options {
		opt(s)
	}

	authService, err := auth.NewAuthorizationService(
		auth.Repos{Clients: repos.Clients},
		manager,
		auth.WithScopeRegistry(s.registry),
		auth.WithStageURLs(RouteAuthorizeConfirm, RouteRedirect),
		auth.WithEnforceSecure(cfg.GetEnforceSecure()),
		auth.WithAuthorizationMetrics(s.metrics),
		auth.WithNowTime(manager.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create authorization service: %w", err)
	}
	s.auth = authService

	s.verifier = auth.NewUserRepoVerifier(repos.Users, s.registry, s.metrics)
	tokenService, err := auth.NewTokenService(
		manager,
		auth.DefaultClientBackends(repos.Clients, cfg.GetEnforceClientSecure()),
		s.verifier,
		auth.WithTokenPolicy(cfg, cfg),
		auth.WithTokenScopeRegistry(s.registry),
		auth.WithTokenMetrics(s.metrics),
		auth.WithTokenNowTime(manager.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create token service: %w", err)
	}
	s.tokenService = tokenService

	if s.templates, err = parseTemplates(); err != nil {
		return nil, fmt.Errorf("[Server New] failed to parse templates: %w", err)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Debug().Msgf("[%-19s] %s", colourMethod(method), path)
}

func logError(method, path, message string) {
	log.Error().Msgf("[%-19s] %s %s", colourMethod(method), path, Red+message+ResetColor)
}

func colourMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if colour, ok := methodColors[method]; ok {
		return colour + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}

// getScheme reports the scheme the user agent used. X-Forwarded-Proto is only
// honoured when TRUST_PROXY_HEADERS is set.
func (s *Server) getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if s.config.GetTrustProxyHeaders() {
		if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
			return scheme
		}
	}
	return "http"
}

func (s *Server) isSecure(r *http.Request) bool {
	return s.getScheme(r) == "https"
}
