// Package service holds the application services: ingestion orchestration,
// question answering and authentication.
package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codequery-ai/codequery/internal/domain"
	"github.com/codequery-ai/codequery/internal/metrics"
	"github.com/codequery-ai/codequery/internal/port"
	"github.com/codequery-ai/codequery/internal/splitter"
	"github.com/codequery-ai/codequery/internal/walker"
)

// IngestConfig bounds a single ingestion attempt.
type IngestConfig struct {
	ChunkSize      int
	ChunkOverlap   int
	EmbedBatchSize int
	CloneTimeout   time.Duration
	EmbedTimeout   time.Duration // per embedding batch
	QueueSize      int
	WorkDir        string // parent for per-attempt workspaces; "" means os.TempDir
}

type ingestJob struct {
	repoID    string
	attemptID string
}

// IngestService runs the ingestion pipeline: clone, select, chunk, embed,
// persist. Submit enqueues work; a single worker goroutine (Run) consumes it,
// so attempts are serialized and each repository has at most one attempt in
// flight.
type IngestService struct {
	repos    port.RepoStore
	vectors  port.VectorStore
	fetcher  port.SourceFetcher
	ai       port.AIProvider
	split    splitter.Splitter
	selector *walker.Selector
	cfg      IngestConfig
	logger   *slog.Logger

	// OnStatusChange, when set, is called after every status write.
	OnStatusChange func(repoID string, status domain.Status)

	queue chan ingestJob

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewIngestService(
	repos port.RepoStore,
	vectors port.VectorStore,
	fetcher port.SourceFetcher,
	ai port.AIProvider,
	cfg IngestConfig,
	logger *slog.Logger,
) *IngestService {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = splitter.DefaultChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = splitter.DefaultOverlap
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 100
	}
	if cfg.CloneTimeout <= 0 {
		cfg.CloneTimeout = 5 * time.Minute
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 2 * time.Minute
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &IngestService{
		repos:    repos,
		vectors:  vectors,
		fetcher:  fetcher,
		ai:       ai,
		split:    splitter.New(cfg.ChunkSize, cfg.ChunkOverlap),
		selector: walker.NewSelector(),
		cfg:      cfg,
		logger:   logger,
		queue:    make(chan ingestJob, cfg.QueueSize),
		inflight: make(map[string]struct{}),
	}
}

// Submit enqueues an ingestion attempt for the repository and returns as soon
// as the attempt is accepted. A repository with an attempt already queued or
// running is rejected with ErrIngestInProgress.
func (s *IngestService) Submit(repoID string) error {
	s.mu.Lock()
	if _, busy := s.inflight[repoID]; busy {
		s.mu.Unlock()
		return port.ErrIngestInProgress
	}
	s.inflight[repoID] = struct{}{}
	s.mu.Unlock()

	job := ingestJob{repoID: repoID, attemptID: uuid.NewString()}
	select {
	case s.queue <- job:
		return nil
	default:
		s.release(repoID)
		return fmt.Errorf("ingestion queue is full")
	}
}

// InFlight reports whether the repository has an attempt queued or running.
func (s *IngestService) InFlight(repoID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.inflight[repoID]
	return busy
}

func (s *IngestService) release(repoID string) {
	s.mu.Lock()
	delete(s.inflight, repoID)
	s.mu.Unlock()
}

// Run consumes the queue until ctx is canceled. It is the only goroutine
// that writes repository status or chunks.
func (s *IngestService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.queue:
			s.process(ctx, job)
			s.release(job.repoID)
		}
	}
}

func (s *IngestService) process(ctx context.Context, job ingestJob) {
	log := s.logger.With("repo_id", job.repoID, "attempt_id", job.attemptID)
	started := time.Now()
	defer func() {
		metrics.IngestDuration.Observe(time.Since(started).Seconds())
	}()

	repo, err := s.repos.GetRepo(ctx, job.repoID)
	if errors.Is(err, port.ErrRepoNotFound) {
		// Repository deleted between enqueue and pickup. Nothing to update.
		metrics.IngestAttempts.WithLabelValues("orphaned").Inc()
		log.Info("repository vanished before ingestion, skipping")
		return
	}
	if err != nil {
		metrics.IngestAttempts.WithLabelValues("orphaned").Inc()
		log.Error("load repository", "error", err)
		return
	}

	if err := s.repos.SetRepoProcessing(ctx, job.repoID); err != nil {
		metrics.IngestAttempts.WithLabelValues("orphaned").Inc()
		log.Error("mark processing", "error", err)
		return
	}
	s.notify(job.repoID, domain.StatusProcessing)
	log.Info("ingestion started", "url", repo.URL)

	skipped, chunkCount, err := s.ingest(ctx, log, repo)
	if err != nil {
		s.finishFailed(ctx, log, job.repoID, err)
		return
	}

	err = s.write(ctx, func(wctx context.Context) error {
		return s.repos.SetRepoCompleted(wctx, job.repoID, skipped)
	})
	if err != nil {
		log.Error("mark completed", "error", err)
		metrics.IngestAttempts.WithLabelValues("orphaned").Inc()
		return
	}
	s.notify(job.repoID, domain.StatusCompleted)
	metrics.IngestAttempts.WithLabelValues("completed").Inc()
	log.Info("ingestion completed",
		"chunks", chunkCount,
		"skipped_files", len(skipped),
		"duration", time.Since(started).Round(time.Millisecond))
}

// ingest runs the pipeline body and returns the skipped-file list and the
// number of persisted chunks. Any returned error is terminal for the attempt.
func (s *IngestService) ingest(ctx context.Context, log *slog.Logger, repo *domain.Repository) ([]string, int, error) {
	workspace, err := s.mkWorkspace()
	if err != nil {
		return nil, 0, fmt.Errorf("create workspace: %w", err)
	}
	defer forceRemove(workspace)

	cloneCtx, cancel := context.WithTimeout(ctx, s.cfg.CloneTimeout)
	err = s.fetcher.Clone(cloneCtx, repo.URL, workspace)
	cancel()
	if err != nil {
		return nil, 0, &port.FetchError{URL: repo.URL, Err: err}
	}
	log.Info("clone complete")

	files, err := s.selector.Select(workspace)
	if err != nil {
		return nil, 0, fmt.Errorf("select files: %w", err)
	}
	log.Info("files selected", "count", len(files))

	var chunks []domain.CodeChunk
	for _, f := range files {
		for i, text := range s.split.Split(f.Content) {
			chunks = append(chunks, domain.CodeChunk{
				RepoID:     repo.ID,
				FilePath:   f.Path,
				ChunkIndex: i,
				Content:    text,
			})
		}
	}
	log.Info("chunking complete", "chunks", len(chunks))

	kept, skipped := s.embedAll(ctx, log, chunks)

	err = s.write(ctx, func(wctx context.Context) error {
		return s.vectors.ReplaceChunks(wctx, repo.ID, kept)
	})
	if err != nil {
		return nil, 0, &port.PersistenceError{Err: err}
	}
	metrics.ChunksEmbedded.Add(float64(len(kept)))

	return skipped, len(kept), nil
}

// embedAll embeds chunks in batches. A failed batch is dropped and ingestion
// continues; the files touched by the dropped batch are reported so the user
// can see exactly which content is missing from the index.
func (s *IngestService) embedAll(ctx context.Context, log *slog.Logger, chunks []domain.CodeChunk) (kept []domain.CodeChunk, skipped []string) {
	skippedSet := make(map[string]struct{})

	for start := 0; start < len(chunks); start += s.cfg.EmbedBatchSize {
		end := start + s.cfg.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		batchIdx := start / s.cfg.EmbedBatchSize

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		embedCtx, cancel := context.WithTimeout(ctx, s.cfg.EmbedTimeout)
		vectors, err := s.ai.EmbedDocuments(embedCtx, texts)
		cancel()
		if err != nil {
			embErr := &port.EmbeddingError{Batch: batchIdx, Err: err}
			log.Warn("embedding batch dropped", "batch", batchIdx, "chunks", len(batch), "error", embErr)
			metrics.EmbedBatchesFailed.Inc()
			for _, c := range batch {
				if _, seen := skippedSet[c.FilePath]; !seen {
					skippedSet[c.FilePath] = struct{}{}
					metrics.FilesSkipped.Inc()
				}
			}
			continue
		}

		for i := range batch {
			batch[i].Vector = vectors[i]
		}
		kept = append(kept, batch...)
	}

	skipped = make([]string, 0, len(skippedSet))
	for f := range skippedSet {
		skipped = append(skipped, f)
	}
	sort.Strings(skipped)
	return kept, skipped
}

func (s *IngestService) finishFailed(ctx context.Context, log *slog.Logger, repoID string, cause error) {
	log.Error("ingestion failed", "error", cause)
	err := s.write(ctx, func(wctx context.Context) error {
		return s.repos.SetRepoFailed(wctx, repoID, cause.Error())
	})
	if err != nil {
		log.Error("mark failed", "error", err)
	}
	s.notify(repoID, domain.StatusFailed)
	metrics.IngestAttempts.WithLabelValues("failed").Inc()
}

func (s *IngestService) notify(repoID string, status domain.Status) {
	if s.OnStatusChange != nil {
		s.OnStatusChange(repoID, status)
	}
}

// write keeps status and chunk writes alive briefly through shutdown so an
// attempt never ends without its terminal write.
func (s *IngestService) write(ctx context.Context, fn func(context.Context) error) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	return fn(wctx)
}

func (s *IngestService) mkWorkspace() (string, error) {
	parent := s.cfg.WorkDir
	if parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return "", err
		}
	}
	return os.MkdirTemp(parent, "ingest-")
}

// forceRemove deletes a clone workspace. Git writes read-only object files,
// so permissions are opened up first.
func forceRemove(path string) {
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			_ = os.Chmod(p, 0o700)
		} else {
			_ = os.Chmod(p, 0o600)
		}
		return nil
	})
	_ = os.RemoveAll(path)
}
