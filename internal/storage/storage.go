package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNoCredentials is returned when no session has been persisted yet.
var ErrNoCredentials = errors.New("no cached credentials")

// SessionCredentials are the provider OAuth credentials of the single process-wide session.
type SessionCredentials struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
	UpdatedAt    time.Time
}

type CredentialReadRepository interface {
	// GetCached returns the persisted credentials or ErrNoCredentials.
	GetCached(ctx context.Context) (*SessionCredentials, error)
}

type CredentialWriteRepository interface {
	// Put replaces the persisted credentials.
	Put(ctx context.Context, creds *SessionCredentials) error
	// Clear forgets the persisted credentials. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

type CredentialStore interface {
	CredentialReadRepository
	CredentialWriteRepository
}
