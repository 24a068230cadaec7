// Package postgres provides the Postgres-backed tracker.Store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/release-tracker/internal/tracker"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	ConnectTimeout  time.Duration
	// Migrate applies embedded migrations before the store is returned.
	Migrate bool
}

// pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store persists releases, webhooks, and settings in Postgres.
type Store struct {
	pool pool
}

var _ tracker.Store = (*Store)(nil)

// New connects to Postgres, verifies the connection, and optionally migrates.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	pgPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pgPool.Ping(ctx); err != nil {
		pgPool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if cfg.Migrate {
		if err := Migrate(pgPool); err != nil {
			pgPool.Close()
			return nil, err
		}
	}
	return &Store{pool: pgPool}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Kind implements tracker.Store.
func (s *Store) Kind() string { return "postgres" }

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

const releaseColumns = `id, name, date, type, project, is_manual_override, created_at, updated_at`

const upsertRelease = `
INSERT INTO releases (` + releaseColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	date = EXCLUDED.date,
	type = EXCLUDED.type,
	project = EXCLUDED.project,
	is_manual_override = EXCLUDED.is_manual_override,
	updated_at = EXCLUDED.updated_at`

// GetRelease implements tracker.ReleaseRepository.
func (s *Store) GetRelease(ctx context.Context, id string) (tracker.Release, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+releaseColumns+` FROM releases WHERE id = $1`, id)
	r, err := scanRelease(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return tracker.Release{}, fmt.Errorf("release %q: %w", id, tracker.ErrNotFound)
	}
	if err != nil {
		return tracker.Release{}, fmt.Errorf("get release: %w", err)
	}
	return r, nil
}

// ListReleases implements tracker.ReleaseRepository.
func (s *Store) ListReleases(ctx context.Context, filter tracker.ReleaseFilter) ([]tracker.Release, error) {
	var (
		where []string
		args  []any
	)
	if filter.Project != "" {
		args = append(args, string(filter.Project))
		where = append(where, fmt.Sprintf("project = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	query := `SELECT ` + releaseColumns + ` FROM releases`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}
	defer rows.Close()

	out := []tracker.Release{}
	for rows.Next() {
		r, err := scanRelease(rows)
		if err != nil {
			return nil, fmt.Errorf("scan release: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}
	return out, nil
}

// SaveRelease implements tracker.ReleaseRepository. With
// WriteUnlessOverridden the override check is part of the upsert statement,
// so a concurrent admin override always wins.
func (s *Store) SaveRelease(ctx context.Context, r tracker.Release, mode tracker.WriteMode) (bool, error) {
	query := upsertRelease
	if mode == tracker.WriteUnlessOverridden {
		query += `
WHERE releases.is_manual_override = FALSE`
	}
	tag, err := s.pool.Exec(ctx, query,
		r.ID,
		r.Name,
		r.Date.Time(),
		string(r.Type),
		string(r.Project),
		r.IsManualOverride,
		r.CreatedAt,
		r.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("upsert release %q: %w", r.ID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteRelease implements tracker.ReleaseRepository.
func (s *Store) DeleteRelease(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM releases WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete release: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("release %q: %w", id, tracker.ErrNotFound)
	}
	return nil
}

const webhookColumns = `id, name, url, events, is_active, created_at, updated_at`

// GetWebhook implements tracker.WebhookRepository.
func (s *Store) GetWebhook(ctx context.Context, id string) (tracker.Webhook, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE id = $1`, id)
	w, err := scanWebhook(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return tracker.Webhook{}, fmt.Errorf("webhook %q: %w", id, tracker.ErrNotFound)
	}
	if err != nil {
		return tracker.Webhook{}, fmt.Errorf("get webhook: %w", err)
	}
	return w, nil
}

// ListWebhooks implements tracker.WebhookRepository.
func (s *Store) ListWebhooks(ctx context.Context) ([]tracker.Webhook, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+webhookColumns+` FROM webhooks ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	out := []tracker.Webhook{}
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	return out, nil
}

// SaveWebhook implements tracker.WebhookRepository.
func (s *Store) SaveWebhook(ctx context.Context, w tracker.Webhook) error {
	const query = `
INSERT INTO webhooks (` + webhookColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	url = EXCLUDED.url,
	events = EXCLUDED.events,
	is_active = EXCLUDED.is_active,
	updated_at = EXCLUDED.updated_at`
	events := make([]string, len(w.Events))
	for i, e := range w.Events {
		events[i] = string(e)
	}
	if _, err := s.pool.Exec(ctx, query, w.ID, w.Name, w.URL, events, w.IsActive, w.CreatedAt, w.UpdatedAt); err != nil {
		return fmt.Errorf("upsert webhook %q: %w", w.ID, err)
	}
	return nil
}

// DeleteWebhook implements tracker.WebhookRepository.
func (s *Store) DeleteWebhook(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("webhook %q: %w", id, tracker.ErrNotFound)
	}
	return nil
}

// GetSettings implements tracker.SettingsRepository.
func (s *Store) GetSettings(ctx context.Context) (tracker.Settings, error) {
	var st tracker.Settings
	err := s.pool.QueryRow(ctx, `
SELECT id, chromium_api_url, refresh_interval, last_refreshed, created_at, updated_at
FROM settings WHERE id = $1`, tracker.SettingsID).
		Scan(&st.ID, &st.SourceURL, &st.RefreshInterval, &st.LastRefreshed, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return tracker.Settings{}, fmt.Errorf("settings: %w", tracker.ErrNotFound)
	}
	if err != nil {
		return tracker.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	return st, nil
}

// SaveSettings implements tracker.SettingsRepository.
func (s *Store) SaveSettings(ctx context.Context, st tracker.Settings) error {
	const query = `
INSERT INTO settings (id, chromium_api_url, refresh_interval, last_refreshed, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
	chromium_api_url = EXCLUDED.chromium_api_url,
	refresh_interval = EXCLUDED.refresh_interval,
	last_refreshed = EXCLUDED.last_refreshed,
	updated_at = EXCLUDED.updated_at`
	if st.ID == "" {
		st.ID = tracker.SettingsID
	}
	if _, err := s.pool.Exec(ctx, query, st.ID, st.SourceURL, st.RefreshInterval, st.LastRefreshed, st.CreatedAt, st.UpdatedAt); err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}

func scanRelease(row pgx.Row) (tracker.Release, error) {
	var (
		r       tracker.Release
		date    time.Time
		typ     string
		project string
	)
	if err := row.Scan(&r.ID, &r.Name, &date, &typ, &project, &r.IsManualOverride, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return tracker.Release{}, err
	}
	r.Date = tracker.DateOf(date)
	r.Type = tracker.ReleaseType(typ)
	r.Project = tracker.Project(project)
	return r, nil
}

func scanWebhook(row pgx.Row) (tracker.Webhook, error) {
	var (
		w      tracker.Webhook
		events []string
	)
	if err := row.Scan(&w.ID, &w.Name, &w.URL, &events, &w.IsActive, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return tracker.Webhook{}, err
	}
	w.Events = make([]tracker.EventKind, len(events))
	for i, e := range events {
		w.Events[i] = tracker.EventKind(e)
	}
	return w, nil
}
