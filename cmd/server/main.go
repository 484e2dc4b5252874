package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	fakeclientrepo "github.com/jrsteele09/go-oauth-provider/clients/fakerepo"
	"github.com/jrsteele09/go-oauth-provider/internal/config"
	"github.com/jrsteele09/go-oauth-provider/internal/metrics"
	"github.com/jrsteele09/go-oauth-provider/internal/store"
	"github.com/jrsteele09/go-oauth-provider/scope"
	"github.com/jrsteele09/go-oauth-provider/server"
	"github.com/jrsteele09/go-oauth-provider/sessions"
	"github.com/jrsteele09/go-oauth-provider/token"
	tokenfakerepo "github.com/jrsteele09/go-oauth-provider/token/repofake"
	fakeuserrepo "github.com/jrsteele09/go-oauth-provider/users/repofake"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %s\n", err)
	}

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	setupLogging(c)
	displayAppname(c.GetAppName())

	ctx := context.Background()

	repos, tokenRepo, closeStore, err := openStorage(c)
	if err != nil {
		return err
	}
	defer closeStore()

	sessionBackend, closeSessions, err := openSessions(ctx, c)
	if err != nil {
		return err
	}
	defer closeSessions()

	registry, err := scopeRegistry(c.GetScopes())
	if err != nil {
		return fmt.Errorf("OAUTH_SCOPES: %w", err)
	}

	recorder := metrics.Init(c.GetMetricsEnabled())
	manager := token.New(tokenRepo, token.WithConfig(c))

	srv, err := server.New(c, repos, manager, sessionBackend,
		server.WithScopeRegistry(registry),
		server.WithMetrics(recorder),
	)
	if err != nil {
		return err
	}
	if err := srv.InitialiseSystem(ctx); err != nil {
		return err
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(httpServer) }()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stderr
	if c.GetEnv() == "DEV" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// openStorage returns in-memory repositories for DB_DRIVER=memory and the
// GORM store otherwise.
func openStorage(c config.StorageConfig) (server.Repos, token.Repo, func(), error) {
	if c.GetDBDriver() == "memory" {
		log.Warn().Msg("using in-memory storage, all data is lost on restart")
		repos := server.Repos{
			Clients: fakeclientrepo.NewFakeClientRepo(),
			Users:   fakeuserrepo.NewFakeUserRepo(),
		}
		return repos, tokenfakerepo.NewFakeTokenRepo(), func() {}, nil
	}

	st, err := store.New(c.GetDBDriver(), c.GetDBDSN())
	if err != nil {
		return server.Repos{}, nil, nil, err
	}
	closeStore := func() {
		if err := st.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close database")
		}
	}
	log.Info().Str("driver", c.GetDBDriver()).Msg("database ready")
	return server.Repos{Clients: st.Clients(), Users: st.Users()}, st.Tokens(), closeStore, nil
}

// openSessions uses Redis when REDIS_ADDR is set.
func openSessions(ctx context.Context, c config.Config) (sessions.Backend, func(), error) {
	if c.GetRedisAddr() == "" {
		return sessions.NewMemoryBackend(c.GetMaxSessionAge()), func() {}, nil
	}
	backend, err := sessions.NewRedisBackend(ctx, c.GetRedisAddr(), c.GetRedisPassword(), c.GetRedisDB(), c.GetMaxSessionAge())
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("addr", c.GetRedisAddr()).Msg("sessions stored in redis")
	return backend, func() {
		if err := backend.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close redis")
		}
	}, nil
}

// scopeRegistry builds the registry from its definition, keeping the default
// descriptions for scopes that share a name with them.
func scopeRegistry(def string) (*scope.Registry, error) {
	entries, err := scope.ParseEntries(def)
	if err != nil {
		return nil, err
	}
	defaults := scope.Default()
	for i := range entries {
		entries[i].Description = defaults.Description(entries[i].Name)
	}
	return scope.NewRegistry(entries...), nil
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
