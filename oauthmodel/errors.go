package oauthmodel

import (
	"fmt"
	"net/http"
)

// ErrorCode is the value of the "error" member of an OAuth2 error response.
type ErrorCode string

const (
	InvalidRequest       ErrorCode = "invalid_request"
	UnauthorizedClient   ErrorCode = "unauthorized_client"
	DisabledClient       ErrorCode = "disabled_client"
	AccessDenied         ErrorCode = "access_denied"
	UnsupportedGrantType ErrorCode = "unsupported_grant_type"
	InvalidClient        ErrorCode = "invalid_client"
	InvalidCredentials   ErrorCode = "invalid_credentials"
	InvalidScope         ErrorCode = "invalid_scope"
	InvalidGrant         ErrorCode = "invalid_grant"
	ExpiredAuthorization ErrorCode = "expired_authorization"
	InvalidData          ErrorCode = "invalid_data"
	UnknownError         ErrorCode = "unknown_error"
)

// Error is a protocol level failure. It is returned by every stage of the
// authorization flow and by the token endpoint, and serialises to the RFC 6749
// error body.
type Error struct {
	// Code is the machine readable error.
	Code ErrorCode `json:"error"`

	// Description is the optional human readable explanation.
	Description string `json:"error_description,omitempty"`

	// Status is the HTTP status the error is reported with.
	Status int `json:"-"`

	// Field names the request parameter that failed validation, if any.
	Field string `json:"-"`
}

func NewError(code ErrorCode, description string) *Error {
	return &Error{Code: code, Description: description, Status: http.StatusBadRequest}
}

func Errorf(code ErrorCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func (e *Error) WithStatus(status int) *Error {
	c := *e
	c.Status = status
	return &c
}

func (e *Error) WithField(field string) *Error {
	c := *e
	c.Field = field
	return &c
}

// Payload returns the error as the key/value pairs carried back to a client's callback.
func (e *Error) Payload() map[string]string {
	p := map[string]string{"error": string(e.Code)}
	if e.Description != "" {
		p["error_description"] = e.Description
	}
	return p
}
