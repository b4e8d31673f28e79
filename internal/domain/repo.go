package domain

import "time"

// Status is the lifecycle state of a repository's ingestion.
// It is a closed enumeration; anything else is a programming error.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Repository represents a tracked Git repository and its ingestion state.
// Status, ErrorMessage and SkippedFiles are written only by the ingestion
// worker; the QA path reads Status to gate questions.
type Repository struct {
	ID           string    `json:"id"            db:"id"`
	OwnerID      string    `json:"owner_id"      db:"owner_id"`
	Name         string    `json:"name"          db:"name"`
	URL          string    `json:"url"           db:"url"`
	Status       Status    `json:"status"        db:"status"`
	ErrorMessage string    `json:"error_message,omitempty" db:"error_message"`
	SkippedFiles []string  `json:"skipped_files,omitempty" db:"skipped_files"`
	CreatedAt    time.Time `json:"created_at"    db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"    db:"updated_at"`
}
