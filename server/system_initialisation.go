package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-oauth-provider/clients"
	apperrors "github.com/jrsteele09/go-oauth-provider/internal/errors"
	"github.com/jrsteele09/go-oauth-provider/users"
	"github.com/rs/zerolog/log"
)

// InitialiseSystem creates the demo client and user when they do not exist yet
// and prints their credentials once.
func (s *Server) InitialiseSystem(ctx context.Context) error {
	baseURL := s.config.GetBaseURL()

	demoClient, clientCreated, err := s.createDemoClient(ctx)
	if err != nil {
		return fmt.Errorf("[Server InitialiseSystem] failed to bootstrap demo client: %w", err)
	}

	username := s.config.GetBootstrapUsername()
	generatedPassword, err := s.createDemoUser(ctx, username, generateEmailFromBaseURL(username, baseURL), s.config.GetBootstrapPassword())
	if err != nil {
		return fmt.Errorf("[Server InitialiseSystem] failed to bootstrap demo user: %w", err)
	}

	if clientCreated {
		log.Info().
			Str("client_id", demoClient.ID).
			Str("client_secret", demoClient.Secret).
			Strs("redirect_uris", demoClient.RedirectURIs).
			Str("authorization_endpoint", baseURL+RouteAuthorize).
			Str("token_endpoint", baseURL+RouteAccessToken).
			Msg("demo client created")
	}
	if generatedPassword != "" {
		log.Info().
			Str("username", username).
			Str("password", generatedPassword).
			Msg("demo user created")
	}
	return nil
}

// createDemoClient creates a confidential client for trying the authorization code flow
func (s *Server) createDemoClient(ctx context.Context) (*clients.Client, bool, error) {
	clientID := s.config.GetBootstrapClientID()

	existing, err := s.repos.Clients.Get(ctx, clientID)
	if err == nil {
		log.Debug().Str("client_id", clientID).Msg("demo client already exists")
		return existing, false, nil
	}
	if !apperrors.Is(err, apperrors.ErrClientNotFound) {
		return nil, false, err
	}

	demoClient, err := clients.New("Demo Client", s.config.GetBaseURL(), clients.ClientTypeConfidential, s.config.GetBootstrapRedirectURI())
	if err != nil {
		return nil, false, err
	}
	demoClient.ID = clientID
	if secret := s.config.GetBootstrapClientSecret(); secret != "" {
		demoClient.Secret = secret
	}

	if err := s.repos.Clients.Upsert(ctx, demoClient); err != nil {
		return nil, false, fmt.Errorf("[server createDemoClient] failed to create demo client: %w", err)
	}
	return demoClient, true, nil
}

// createDemoUser returns the password only when the user was created
func (s *Server) createDemoUser(ctx context.Context, username, email, password string) (generatedPassword string, err error) {
	if _, err := s.repos.Users.GetByUsername(ctx, username); err == nil {
		return "", nil
	} else if !apperrors.Is(err, apperrors.ErrUserNotFound) {
		return "", err
	}

	generatedPassword = password
	if generatedPassword == "" {
		passwordBytes := make([]byte, 16)
		if _, err := rand.Read(passwordBytes); err != nil {
			return "", fmt.Errorf("[server createDemoUser] failed to generate password: %w", err)
		}
		generatedPassword = base64.URLEncoding.EncodeToString(passwordBytes)
	}

	passwordHash, err := users.HashPassword(generatedPassword)
	if err != nil {
		return "", fmt.Errorf("[server createDemoUser] failed to hash password: %w", err)
	}

	demoUser := &users.User{
		ID:           uuid.New().String(),
		Email:        email,
		Username:     username,
		PasswordHash: passwordHash,
		FirstName:    "Demo",
		LastName:     "User",
		DateJoined:   time.Now(),
		Active:       true,
	}
	if err := s.repos.Users.Upsert(ctx, demoUser); err != nil {
		return "", fmt.Errorf("[server createDemoUser] failed to create demo user: %w", err)
	}
	return generatedPassword, nil
}

// generateEmailFromBaseURL creates an email address from a username and base URL
// Example: ("admin", "https://auth.example.com/path") -> "admin@auth.example.com"
func generateEmailFromBaseURL(user, baseURL string) string {
	domain := strings.ReplaceAll(strings.ReplaceAll(baseURL, "https://", ""), "http://", "")
	domain = strings.SplitN(domain, "/", 2)[0]
	domain = strings.SplitN(domain, ":", 2)[0]
	return fmt.Sprintf("%s@%s", user, domain)
}
