// Package keyring persists browser sessions (bearer token plus cookies)
// in a local sqlite database so logins survive between invocations.
package keyring

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	_ "modernc.org/sqlite"

	"remixctl/lib/lovable/browser"
	"remixctl/services/keyring/db"
)

var tracer = otel.Tracer("services/keyring")

// DefaultNamespace scopes stored sessions; a single tool today but the
// schema allows more than one account later.
const DefaultNamespace = "lovable"

var ErrNoSession = errors.New("no stored session")

type Store struct {
	db  *sql.DB
	qry *db.Queries
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create keyring directory: %w", err)
	}
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open keyring database: %w", err)
	}
	// sqlite handles concurrent writers poorly, see
	// https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	database.SetMaxOpenConns(1)
	if _, err := database.Exec("PRAGMA journal_mode=WAL"); err != nil {
		database.Close()
		return nil, err
	}
	if _, err := database.Exec(db.Schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrate keyring database: %w", err)
	}
	return NewStore(database), nil
}

func NewStore(database *sql.DB) *Store {
	return &Store{db: database, qry: db.New(database)}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveSession(ctx context.Context, namespace string, session browser.Session) error {
	ctx, span := tracer.Start(ctx, "SaveSession")
	defer span.End()

	cookies, err := json.Marshal(session.Cookies)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "marshal cookies")
		return fmt.Errorf("marshal cookies: %w", err)
	}
	err = s.qry.UpsertSession(ctx, db.Session{
		Namespace:   namespace,
		BearerToken: session.BearerToken,
		Cookies:     string(cookies),
		UpdatedAt:   time.Now().Unix(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert session")
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *Store) LoadSession(ctx context.Context, namespace string) (browser.Session, error) {
	ctx, span := tracer.Start(ctx, "LoadSession")
	defer span.End()

	row, err := s.qry.GetSession(ctx, namespace)
	if errors.Is(err, sql.ErrNoRows) {
		return browser.Session{}, ErrNoSession
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get session")
		return browser.Session{}, fmt.Errorf("load session: %w", err)
	}

	var cookies []browser.SessionCookie
	if err := json.Unmarshal([]byte(row.Cookies), &cookies); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unmarshal cookies")
		return browser.Session{}, fmt.Errorf("unmarshal cookies: %w", err)
	}
	return browser.Session{
		BearerToken: row.BearerToken,
		Cookies:     cookies,
	}, nil
}

func (s *Store) DeleteSession(ctx context.Context, namespace string) error {
	ctx, span := tracer.Start(ctx, "DeleteSession")
	defer span.End()

	if err := s.qry.DeleteSession(ctx, namespace); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete session")
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// UpdatedAt reports when the stored session was last written.
func (s *Store) UpdatedAt(ctx context.Context, namespace string) (time.Time, error) {
	row, err := s.qry.GetSession(ctx, namespace)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNoSession
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(row.UpdatedAt, 0), nil
}
