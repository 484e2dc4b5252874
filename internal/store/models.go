package store

import (
	"strings"
	"time"

	"github.com/jrsteele09/go-oauth-provider/clients"
	"github.com/jrsteele09/go-oauth-provider/token"
	"github.com/jrsteele09/go-oauth-provider/users"
)

type clientRow struct {
	ID           string `gorm:"primaryKey"`
	Secret       string `gorm:"not null"`
	Name         string
	URL          string
	RedirectURIs string `gorm:"not null"` // space separated, first is the default
	Type         string `gorm:"not null;default:'confidential'"`
	Status       string `gorm:"not null;default:'enabled'"`
	UserID       string `gorm:"index"`
}

func (clientRow) TableName() string { return "oauth_clients" }

func clientToRow(c *clients.Client) *clientRow {
	return &clientRow{
		ID:           c.ID,
		Secret:       c.Secret,
		Name:         c.Name,
		URL:          c.URL,
		RedirectURIs: strings.Join(c.RedirectURIs, " "),
		Type:         string(c.Type),
		Status:       string(c.Status),
		UserID:       c.UserID,
	}
}

func (r *clientRow) toClient() *clients.Client {
	return &clients.Client{
		ID:           r.ID,
		Secret:       r.Secret,
		Name:         r.Name,
		URL:          r.URL,
		RedirectURIs: strings.Fields(r.RedirectURIs),
		Type:         clients.ClientType(r.Type),
		Status:       clients.Status(r.Status),
		UserID:       r.UserID,
	}
}

type userRow struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"index"`
	EmailLower   string `gorm:"index"`
	Username     string `gorm:"index"`
	PasswordHash string
	FirstName    string
	LastName     string
	DateJoined   time.Time
	LastLogin    time.Time
	Active       bool `gorm:"not null"`
}

func (userRow) TableName() string { return "users" }

func userToRow(u *users.User) *userRow {
	return &userRow{
		ID:           u.ID,
		Email:        u.Email,
		EmailLower:   strings.ToLower(u.Email),
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		DateJoined:   u.DateJoined,
		LastLogin:    u.LastLogin,
		Active:       u.Active,
	}
}

func (r *userRow) toUser() *users.User {
	return &users.User{
		ID:           r.ID,
		Email:        r.Email,
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		DateJoined:   r.DateJoined,
		LastLogin:    r.LastLogin,
		Active:       r.Active,
	}
}

type grantRow struct {
	ID          string    `gorm:"primaryKey"`
	Code        string    `gorm:"uniqueIndex;not null"`
	Expires     time.Time `gorm:"not null"`
	RedirectURI string
	Scope       int    `gorm:"not null"`
	ClientID    string `gorm:"not null;index"`
	UserID      string `gorm:"index"`
}

func (grantRow) TableName() string { return "oauth_grants" }

func grantToRow(g *token.Grant) *grantRow {
	return &grantRow{
		ID:          g.ID,
		Code:        g.Code,
		Expires:     g.Expires,
		RedirectURI: g.RedirectURI,
		Scope:       g.Scope,
		ClientID:    g.ClientID,
		UserID:      g.UserID,
	}
}

func (r *grantRow) toGrant() *token.Grant {
	return &token.Grant{
		ID:          r.ID,
		Code:        r.Code,
		Expires:     r.Expires,
		RedirectURI: r.RedirectURI,
		Scope:       r.Scope,
		ClientID:    r.ClientID,
		UserID:      r.UserID,
	}
}

type accessTokenRow struct {
	ID        string    `gorm:"primaryKey"`
	Token     string    `gorm:"uniqueIndex;not null"`
	Expires   time.Time `gorm:"not null;index"`
	Scope     int       `gorm:"not null"`
	ClientID  string    `gorm:"not null;index:idx_access_owner"`
	UserID    string    `gorm:"index:idx_access_owner"`
	CreatedAt time.Time
}

func (accessTokenRow) TableName() string { return "oauth_access_tokens" }

func accessTokenToRow(at *token.AccessToken) *accessTokenRow {
	return &accessTokenRow{
		ID:        at.ID,
		Token:     at.Token,
		Expires:   at.Expires,
		Scope:     at.Scope,
		ClientID:  at.ClientID,
		UserID:    at.UserID,
		CreatedAt: at.CreatedAt,
	}
}

func (r *accessTokenRow) toAccessToken() *token.AccessToken {
	return &token.AccessToken{
		ID:        r.ID,
		Token:     r.Token,
		Expires:   r.Expires,
		Scope:     r.Scope,
		ClientID:  r.ClientID,
		UserID:    r.UserID,
		CreatedAt: r.CreatedAt,
	}
}

type refreshTokenRow struct {
	ID            string `gorm:"primaryKey"`
	Token         string `gorm:"uniqueIndex;not null"`
	Expired       bool   `gorm:"not null;default:false;index"`
	Scope         int    `gorm:"not null"`
	ClientID      string `gorm:"not null;index:idx_refresh_owner"`
	UserID        string `gorm:"index:idx_refresh_owner"`
	AccessTokenID string `gorm:"index"`
	CreatedAt     time.Time
}

func (refreshTokenRow) TableName() string { return "oauth_refresh_tokens" }

func refreshTokenToRow(rt *token.RefreshToken) *refreshTokenRow {
	return &refreshTokenRow{
		ID:            rt.ID,
		Token:         rt.Token,
		Expired:       rt.Expired,
		Scope:         rt.Scope,
		ClientID:      rt.ClientID,
		UserID:        rt.UserID,
		AccessTokenID: rt.AccessTokenID,
		CreatedAt:     rt.CreatedAt,
	}
}

func (r *refreshTokenRow) toRefreshToken() *token.RefreshToken {
	return &token.RefreshToken{
		ID:            r.ID,
		Token:         r.Token,
		Expired:       r.Expired,
		Scope:         r.Scope,
		ClientID:      r.ClientID,
		UserID:        r.UserID,
		AccessTokenID: r.AccessTokenID,
		CreatedAt:     r.CreatedAt,
	}
}
