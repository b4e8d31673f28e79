package port

import (
	"context"

	"github.com/codequery-ai/codequery/internal/domain"
)

// UserStore persists registered users.
type UserStore interface {
	CreateUser(ctx context.Context, email, hashedPassword string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}

// RepoStore persists repositories and their lifecycle status. Status writes
// are owned by the ingestion worker; everything else is read-only.
type RepoStore interface {
	CreateRepo(ctx context.Context, r *domain.Repository) (*domain.Repository, error)
	GetRepo(ctx context.Context, id string) (*domain.Repository, error)
	ListReposByOwner(ctx context.Context, ownerID string) ([]domain.Repository, error)

	// SetRepoProcessing marks the start of an ingestion attempt and clears
	// any error or skipped-file state from a prior attempt.
	SetRepoProcessing(ctx context.Context, id string) error
	// SetRepoCompleted is the terminal success write for an attempt.
	SetRepoCompleted(ctx context.Context, id string, skippedFiles []string) error
	// SetRepoFailed is the terminal failure write; message must be non-empty.
	SetRepoFailed(ctx context.Context, id string, message string) error
}

// AuditStore records significant actions for later review.
type AuditStore interface {
	WriteAudit(ctx context.Context, entry *domain.AuditLog) error
	ListAuditLogs(ctx context.Context, userID string, limit int) ([]domain.AuditLog, error)
}

// VectorStore persists embedded chunks and answers nearest-neighbor queries.
type VectorStore interface {
	// ReplaceChunks atomically replaces the whole chunk set of a repository.
	// Readers never observe a partially written set.
	ReplaceChunks(ctx context.Context, repoID string, chunks []domain.CodeChunk) error

	// TopKByDistance returns at most k chunks of the repository ordered by
	// ascending cosine distance to the query vector.
	TopKByDistance(ctx context.Context, repoID string, queryVector []float32, k int) ([]domain.SimilarChunk, error)
}
