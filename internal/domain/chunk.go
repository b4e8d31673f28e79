package domain

import "time"

// CodeChunk is a bounded slice of a source file's text together with its
// embedding vector. Chunks are immutable once written; a re-ingestion
// replaces the whole set for a repository.
type CodeChunk struct {
	ID         string    `json:"id"          db:"id"`
	RepoID     string    `json:"repo_id"     db:"repo_id"`
	FilePath   string    `json:"file_path"   db:"file_path"`
	ChunkIndex int       `json:"chunk_index" db:"chunk_index"`
	Content    string    `json:"content"     db:"content"`
	Vector     []float32 `json:"-"           db:"vector"`
	CreatedAt  time.Time `json:"created_at"  db:"created_at"`
}

// SimilarChunk is returned by nearest-neighbor search. Distance is the
// cosine distance to the query vector; smaller is more similar.
type SimilarChunk struct {
	CodeChunk
	Distance float64 `json:"distance"`
}
