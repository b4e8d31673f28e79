// Package store implements the persistence ports on PostgreSQL with the
// pgvector extension.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/codequery-ai/codequery/internal/domain"
	"github.com/codequery-ai/codequery/internal/port"
)

// Postgres implements UserStore, RepoStore and AuditStore on a shared
// connection pool.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection pool against databaseURL and verifies it.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{db: db}, nil
}

// DB exposes the underlying pool for stores that share it.
func (p *Postgres) DB() *sql.DB { return p.db }

func (p *Postgres) Close() error { return p.db.Close() }

// InitSchema creates the extension and tables if they do not exist.
// dimension is the embedding vector width; it must match the AI provider.
func (p *Postgres) InitSchema(ctx context.Context, dimension int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			email TEXT NOT NULL UNIQUE,
			hashed_password TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS repositories (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			owner_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			url TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			error_message TEXT NOT NULL DEFAULT '',
			skipped_files TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS code_chunks (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			repo_id UUID NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
			file_path TEXT NOT NULL,
			chunk_index INT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (repo_id, file_path, chunk_index)
		)`, dimension),
		`CREATE INDEX IF NOT EXISTS idx_code_chunks_repo ON code_chunks(repo_id)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id TEXT NOT NULL,
			action TEXT NOT NULL,
			resource TEXT NOT NULL,
			resource_id TEXT NOT NULL DEFAULT '',
			details TEXT NOT NULL DEFAULT '{}',
			ip TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_user ON audit_logs(user_id, created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// --- users ---

func (p *Postgres) CreateUser(ctx context.Context, email, hashedPassword string) (*domain.User, error) {
	var u domain.User
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO users (email, hashed_password) VALUES ($1, $2)
		 RETURNING id, email, hashed_password, created_at`,
		email, hashedPassword,
	).Scan(&u.ID, &u.Email, &u.HashedPassword, &u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, port.ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &u, nil
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := p.db.QueryRowContext(ctx,
		`SELECT id, email, hashed_password, created_at FROM users WHERE email = $1`,
		email,
	).Scan(&u.ID, &u.Email, &u.HashedPassword, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

func (p *Postgres) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := p.db.QueryRowContext(ctx,
		`SELECT id, email, hashed_password, created_at FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Email, &u.HashedPassword, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return &u, nil
}

// --- repositories ---

func (p *Postgres) CreateRepo(ctx context.Context, r *domain.Repository) (*domain.Repository, error) {
	var created domain.Repository
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO repositories (owner_id, name, url, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, owner_id, name, url, status, error_message, skipped_files, created_at, updated_at`,
		r.OwnerID, r.Name, r.URL, domain.StatusPending,
	).Scan(&created.ID, &created.OwnerID, &created.Name, &created.URL, &created.Status,
		&created.ErrorMessage, pq.Array(&created.SkippedFiles), &created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create repository: %w", err)
	}
	return &created, nil
}

func (p *Postgres) GetRepo(ctx context.Context, id string) (*domain.Repository, error) {
	var r domain.Repository
	err := p.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, url, status, error_message, skipped_files, created_at, updated_at
		 FROM repositories WHERE id = $1`,
		id,
	).Scan(&r.ID, &r.OwnerID, &r.Name, &r.URL, &r.Status,
		&r.ErrorMessage, pq.Array(&r.SkippedFiles), &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrRepoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get repository: %w", err)
	}
	return &r, nil
}

func (p *Postgres) ListReposByOwner(ctx context.Context, ownerID string) ([]domain.Repository, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, owner_id, name, url, status, error_message, skipped_files, created_at, updated_at
		 FROM repositories WHERE owner_id = $1 ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	var repos []domain.Repository
	for rows.Next() {
		var r domain.Repository
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.Name, &r.URL, &r.Status,
			&r.ErrorMessage, pq.Array(&r.SkippedFiles), &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

func (p *Postgres) SetRepoProcessing(ctx context.Context, id string) error {
	return p.setStatus(ctx, id,
		`UPDATE repositories
		 SET status = $2, error_message = '', skipped_files = '{}', updated_at = now()
		 WHERE id = $1`,
		domain.StatusProcessing)
}

func (p *Postgres) SetRepoCompleted(ctx context.Context, id string, skippedFiles []string) error {
	if skippedFiles == nil {
		skippedFiles = []string{}
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE repositories
		 SET status = $2, error_message = '', skipped_files = $3, updated_at = now()
		 WHERE id = $1`,
		id, domain.StatusCompleted, pq.Array(skippedFiles),
	)
	if err != nil {
		return fmt.Errorf("set repository completed: %w", err)
	}
	return checkAffected(res)
}

func (p *Postgres) SetRepoFailed(ctx context.Context, id string, message string) error {
	if message == "" {
		message = "ingestion failed"
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE repositories
		 SET status = $2, error_message = $3, updated_at = now()
		 WHERE id = $1`,
		id, domain.StatusFailed, message,
	)
	if err != nil {
		return fmt.Errorf("set repository failed: %w", err)
	}
	return checkAffected(res)
}

func (p *Postgres) setStatus(ctx context.Context, id, query string, status domain.Status) error {
	res, err := p.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("set repository status %s: %w", status, err)
	}
	return checkAffected(res)
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return port.ErrRepoNotFound
	}
	return nil
}

// --- audit ---

func (p *Postgres) WriteAudit(ctx context.Context, entry *domain.AuditLog) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO audit_logs (user_id, action, resource, resource_id, details, ip, user_agent)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.UserID, entry.Action, entry.Resource, entry.ResourceID, entry.Details, entry.IP, entry.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

func (p *Postgres) ListAuditLogs(ctx context.Context, userID string, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, user_id, action, resource, resource_id, details, ip, user_agent, created_at
		 FROM audit_logs WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.AuditLog
	for rows.Next() {
		var l domain.AuditLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.Action, &l.Resource, &l.ResourceID,
			&l.Details, &l.IP, &l.UserAgent, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

var (
	_ port.UserStore  = (*Postgres)(nil)
	_ port.RepoStore  = (*Postgres)(nil)
	_ port.AuditStore = (*Postgres)(nil)
)
