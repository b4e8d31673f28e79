package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/codequery-ai/codequery/internal/domain"
	"github.com/codequery-ai/codequery/internal/port"
)

// VectorDB implements VectorStore on pgvector. It shares the pool of a
// Postgres store.
type VectorDB struct {
	db        *sql.DB
	dimension int
}

// NewVectorDB wraps the pool with the expected embedding dimension.
func NewVectorDB(p *Postgres, dimension int) *VectorDB {
	return &VectorDB{db: p.DB(), dimension: dimension}
}

// ReplaceChunks swaps the whole chunk set of a repository in one
// transaction. Readers see either the previous complete set or the new one.
func (v *VectorDB) ReplaceChunks(ctx context.Context, repoID string, chunks []domain.CodeChunk) error {
	for i, c := range chunks {
		if len(c.Vector) != v.dimension {
			return fmt.Errorf("chunk %d (%s): vector has %d dimensions, want %d",
				i, c.FilePath, len(c.Vector), v.dimension)
		}
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM code_chunks WHERE repo_id = $1`, repoID); err != nil {
		return fmt.Errorf("delete previous chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO code_chunks (repo_id, file_path, chunk_index, content, embedding)
		 VALUES ($1, $2, $3, $4, $5::vector)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, repoID, c.FilePath, c.ChunkIndex, c.Content, vectorToString(c.Vector)); err != nil {
			return fmt.Errorf("insert chunk %s[%d]: %w", c.FilePath, c.ChunkIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunks: %w", err)
	}
	return nil
}

// TopKByDistance returns the k chunks nearest to queryVector by cosine
// distance, closest first.
func (v *VectorDB) TopKByDistance(ctx context.Context, repoID string, queryVector []float32, k int) ([]domain.SimilarChunk, error) {
	if len(queryVector) != v.dimension {
		return nil, fmt.Errorf("query vector has %d dimensions, want %d", len(queryVector), v.dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	rows, err := v.db.QueryContext(ctx,
		`SELECT id, repo_id, file_path, chunk_index, content, created_at,
		        embedding <=> $2::vector AS distance
		 FROM code_chunks
		 WHERE repo_id = $1
		 ORDER BY distance ASC
		 LIMIT $3`,
		repoID, vectorToString(queryVector), k,
	)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var results []domain.SimilarChunk
	for rows.Next() {
		var c domain.SimilarChunk
		if err := rows.Scan(&c.ID, &c.RepoID, &c.FilePath, &c.ChunkIndex, &c.Content,
			&c.CreatedAt, &c.Distance); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// vectorToString renders a vector in pgvector's text format, e.g.
// "[0.1,0.2,0.3]".
func vectorToString(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

var _ port.VectorStore = (*VectorDB)(nil)
