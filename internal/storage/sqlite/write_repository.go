package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/italolelis/playlist_archiver/internal/storage"
)

// CredentialWriteRepository implements storage.CredentialWriteRepository
// and keeps a single credentials row in SQLite.
type CredentialWriteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewCredentialWriteRepository(db *sql.DB) *CredentialWriteRepository {
	return &CredentialWriteRepository{db: db, now: time.Now}
}

func (r *CredentialWriteRepository) Put(ctx context.Context, creds *storage.SessionCredentials) error {
	var expiry sql.NullString
	if !creds.Expiry.IsZero() {
		expiry = sql.NullString{String: creds.Expiry.UTC().Format(time.RFC3339Nano), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO session_credentials (id, access_token, refresh_token, token_type, expiry, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			expiry = excluded.expiry,
			updated_at = excluded.updated_at
	`, creds.AccessToken, creds.RefreshToken, creds.TokenType, expiry, r.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	return nil
}

func (r *CredentialWriteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM session_credentials`); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}

	return nil
}
