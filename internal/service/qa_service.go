package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codequery-ai/codequery/internal/domain"
	"github.com/codequery-ai/codequery/internal/metrics"
	"github.com/codequery-ai/codequery/internal/port"
)

// NoContextAnswer is returned verbatim when retrieval finds nothing.
const NoContextAnswer = "No relevant code found in the repository."

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 5

// QAService answers questions about an ingested repository. It is read-only
// and safe for concurrent use; it never mutates repository state.
type QAService struct {
	repos   port.RepoStore
	vectors port.VectorStore
	ai      port.AIProvider
	topK    int
	logger  *slog.Logger
}

func NewQAService(repos port.RepoStore, vectors port.VectorStore, ai port.AIProvider, topK int, logger *slog.Logger) *QAService {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &QAService{repos: repos, vectors: vectors, ai: ai, topK: topK, logger: logger}
}

// Answer retrieves the chunks nearest to the question and asks the model to
// answer from them. The repository must have a completed ingestion; anything
// else is rejected with NotReadyError before any model call is made.
func (s *QAService) Answer(ctx context.Context, repoID, question string) (*domain.Answer, error) {
	started := time.Now()
	defer func() {
		metrics.QuestionDuration.Observe(time.Since(started).Seconds())
	}()

	repo, err := s.repos.GetRepo(ctx, repoID)
	if err != nil {
		metrics.Questions.WithLabelValues("error").Inc()
		return nil, err
	}
	if repo.Status != domain.StatusCompleted {
		metrics.Questions.WithLabelValues("not_ready").Inc()
		return nil, &port.NotReadyError{Status: repo.Status}
	}

	queryVec, err := s.ai.EmbedQuery(ctx, question)
	if err != nil {
		metrics.Questions.WithLabelValues("error").Inc()
		return nil, &port.RetrievalError{Err: fmt.Errorf("embed question: %w", err)}
	}

	chunks, err := s.vectors.TopKByDistance(ctx, repoID, queryVec, s.topK)
	if err != nil {
		metrics.Questions.WithLabelValues("error").Inc()
		return nil, &port.RetrievalError{Err: fmt.Errorf("search chunks: %w", err)}
	}

	if len(chunks) == 0 {
		metrics.Questions.WithLabelValues("no_context").Inc()
		return &domain.Answer{Answer: NoContextAnswer, Sources: []string{}}, nil
	}

	answer, err := s.ai.Generate(ctx, buildPrompt(question, chunks))
	if err != nil {
		metrics.Questions.WithLabelValues("error").Inc()
		return nil, &port.GenerationError{Err: err}
	}

	metrics.Questions.WithLabelValues("answered").Inc()
	s.logger.Info("question answered",
		"repo_id", repoID,
		"chunks", len(chunks),
		"model", s.ai.ModelName(),
		"duration", time.Since(started).Round(time.Millisecond))

	return &domain.Answer{
		Answer:  strings.TrimSpace(answer),
		Sources: sourcePaths(chunks),
	}, nil
}

// buildPrompt assembles the generation prompt: instructions, retrieved
// context labeled with file paths, then the literal question.
func buildPrompt(question string, chunks []domain.SimilarChunk) string {
	var b strings.Builder
	b.WriteString("You are an expert developer assistant. Answer the user's question based strictly on the code context provided below. ")
	b.WriteString("If the context does not contain enough information to answer, say so. ")
	b.WriteString("When you reference code, cite the file path it comes from.\n\n")
	b.WriteString("Code context:\n")
	for _, c := range chunks {
		b.WriteString("\n--- File: ")
		b.WriteString(c.FilePath)
		b.WriteString(" ---\n")
		b.WriteString(c.Content)
		b.WriteString("\n")
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	return b.String()
}

// sourcePaths returns the unique file paths of the retrieved chunks, in
// first-seen order, which is relevance order.
func sourcePaths(chunks []domain.SimilarChunk) []string {
	seen := make(map[string]struct{}, len(chunks))
	sources := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := seen[c.FilePath]; ok {
			continue
		}
		seen[c.FilePath] = struct{}{}
		sources = append(sources, c.FilePath)
	}
	return sources
}
