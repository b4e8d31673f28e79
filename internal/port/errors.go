package port

import (
	"errors"
	"fmt"

	"github.com/codequery-ai/codequery/internal/domain"
)

// Sentinel errors used across ports.
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrEmailTaken        = errors.New("email already registered")
	ErrRepoNotFound      = errors.New("repository not found")
	ErrIngestInProgress  = errors.New("ingestion already in progress")
	ErrInvalidCredential = errors.New("invalid email or password")
)

// FetchError is a fatal ingestion error from the source fetcher
// (network, auth, invalid URL, nonexistent repository).
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.URL, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// EmbeddingError is a per-batch embedding failure. The orchestrator drops
// the affected batch and continues; Batch identifies which one failed.
type EmbeddingError struct {
	Batch int
	Err   error
}

func (e *EmbeddingError) Error() string { return fmt.Sprintf("embed batch %d: %v", e.Batch, e.Err) }
func (e *EmbeddingError) Unwrap() error { return e.Err }

// PersistenceError is a fatal ingestion error from the vector store.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persist chunks: %v", e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

// NotReadyError rejects a question against a repository whose ingestion has
// not completed. It carries the current status for the caller to surface.
type NotReadyError struct {
	Status domain.Status
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("repository not ready: status %s", e.Status)
}

// RetrievalError is a user-visible failure of the retrieval half of a
// question: query embedding or nearest-neighbor search.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string { return fmt.Sprintf("retrieval: %v", e.Err) }
func (e *RetrievalError) Unwrap() error { return e.Err }

// GenerationError is a user-visible failure of the generation call.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return fmt.Sprintf("generation: %v", e.Err) }
func (e *GenerationError) Unwrap() error { return e.Err }
