package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PratikDhanave/form-relay-service/internal/models"
)

// schemaSQL is embedded so the mirror can self-bootstrap its table.
//
//go:embed schema.sql
var schemaSQL string

// PostgresMirror keeps a queryable copy of the append log in Postgres.
// The JSON file stays the source of truth.
type PostgresMirror struct {
	pool *pgxpool.Pool
}

// NewPostgresMirror creates a connection pool and fails fast if the DB is unreachable.
func NewPostgresMirror(dbURL string) (*PostgresMirror, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresMirror{pool: pool}, nil
}

// EnsureSchema applies schema.sql. Safe to run multiple times.
func (p *PostgresMirror) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schemaSQL)
	return err
}

// Ping validates DB connectivity.
func (p *PostgresMirror) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (p *PostgresMirror) Close() {
	p.pool.Close()
}

// InsertSubmission upserts one entry keyed by its timestamp.
// A colliding key overwrites the earlier fields, matching the file store.
func (p *PostgresMirror) InsertSubmission(ctx context.Context, e models.Entry) error {
	if e.Key == "" {
		return errors.New("entry key required")
	}

	fields := e.Record
	if fields == nil {
		fields = models.Record{}
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO submissions(received_at, fields)
		VALUES ($1, $2)
		ON CONFLICT (received_at) DO UPDATE SET fields = EXCLUDED.fields
	`, e.Key, fieldsJSON)
	return err
}
