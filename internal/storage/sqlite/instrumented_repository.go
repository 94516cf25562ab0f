package sqlite

import (
	"context"
	"database/sql"

	"github.com/italolelis/playlist_archiver/internal/storage"
	"github.com/italolelis/playlist_archiver/internal/telemetry"
)

// InstrumentedCredentialRepository implements storage.CredentialStore with telemetry.
type InstrumentedCredentialRepository struct {
	read      *CredentialReadRepository
	write     *CredentialWriteRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedCredentialRepository creates a new instrumented credential repository.
func NewInstrumentedCredentialRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedCredentialRepository {
	return &InstrumentedCredentialRepository{
		read:      NewCredentialReadRepository(dbConn),
		write:     NewCredentialWriteRepository(dbConn),
		telemetry: tel,
	}
}

// GetCached reads the credentials with telemetry.
func (r *InstrumentedCredentialRepository) GetCached(ctx context.Context) (*storage.SessionCredentials, error) {
	var result *storage.SessionCredentials

	err := r.telemetry.InstrumentDBOperation(ctx, "get_credentials", func(ctx context.Context) error {
		var err error

		result, err = r.read.GetCached(ctx)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Put stores the credentials with telemetry.
func (r *InstrumentedCredentialRepository) Put(ctx context.Context, creds *storage.SessionCredentials) error {
	return r.telemetry.InstrumentDBOperation(ctx, "put_credentials", func(ctx context.Context) error {
		return r.write.Put(ctx, creds)
	})
}

// Clear removes the credentials with telemetry.
func (r *InstrumentedCredentialRepository) Clear(ctx context.Context) error {
	return r.telemetry.InstrumentDBOperation(ctx, "clear_credentials", func(ctx context.Context) error {
		return r.write.Clear(ctx)
	})
}
