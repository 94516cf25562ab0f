package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/italolelis/playlist_archiver/internal/storage"
)

type CredentialReadRepository struct {
	db *sql.DB
}

func NewCredentialReadRepository(dbConn *sql.DB) *CredentialReadRepository {
	return &CredentialReadRepository{db: dbConn}
}

func (r *CredentialReadRepository) GetCached(ctx context.Context) (*storage.SessionCredentials, error) {
	var (
		creds        storage.SessionCredentials
		refreshToken sql.NullString
		tokenType    sql.NullString
		expiry       sql.NullString
		updatedAt    string
	)

	err := r.db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, token_type, expiry, updated_at FROM session_credentials WHERE id = 1`,
	).Scan(&creds.AccessToken, &refreshToken, &tokenType, &expiry, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNoCredentials
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	creds.RefreshToken = refreshToken.String
	creds.TokenType = tokenType.String

	if expiry.Valid && expiry.String != "" {
		if creds.Expiry, err = time.Parse(time.RFC3339Nano, expiry.String); err != nil {
			return nil, fmt.Errorf("failed to parse credential expiry: %w", err)
		}
	}

	if creds.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse credential timestamp: %w", err)
	}

	return &creds, nil
}
