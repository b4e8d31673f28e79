package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codequery-ai/codequery/internal/domain"
	"github.com/codequery-ai/codequery/internal/port"
)

// --- fakes ---

type fakeRepoStore struct {
	mu    sync.Mutex
	repos map[string]*domain.Repository
}

func newFakeRepoStore(repos ...*domain.Repository) *fakeRepoStore {
	s := &fakeRepoStore{repos: make(map[string]*domain.Repository)}
	for _, r := range repos {
		s.repos[r.ID] = r
	}
	return s
}

func (s *fakeRepoStore) CreateRepo(_ context.Context, r *domain.Repository) (*domain.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	cp.Status = domain.StatusPending
	s.repos[cp.ID] = &cp
	return &cp, nil
}

func (s *fakeRepoStore) GetRepo(_ context.Context, id string) (*domain.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[id]
	if !ok {
		return nil, port.ErrRepoNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeRepoStore) ListReposByOwner(_ context.Context, ownerID string) ([]domain.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Repository
	for _, r := range s.repos {
		if r.OwnerID == ownerID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *fakeRepoStore) SetRepoProcessing(_ context.Context, id string) error {
	return s.update(id, func(r *domain.Repository) {
		r.Status = domain.StatusProcessing
		r.ErrorMessage = ""
		r.SkippedFiles = nil
	})
}

func (s *fakeRepoStore) SetRepoCompleted(_ context.Context, id string, skippedFiles []string) error {
	return s.update(id, func(r *domain.Repository) {
		r.Status = domain.StatusCompleted
		r.ErrorMessage = ""
		r.SkippedFiles = skippedFiles
	})
}

func (s *fakeRepoStore) SetRepoFailed(_ context.Context, id string, message string) error {
	return s.update(id, func(r *domain.Repository) {
		r.Status = domain.StatusFailed
		r.ErrorMessage = message
	})
}

func (s *fakeRepoStore) update(id string, fn func(*domain.Repository)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[id]
	if !ok {
		return port.ErrRepoNotFound
	}
	fn(r)
	return nil
}

func (s *fakeRepoStore) statusOf(t *testing.T, id string) domain.Status {
	t.Helper()
	r, err := s.GetRepo(context.Background(), id)
	require.NoError(t, err)
	return r.Status
}

type fakeVectorStore struct {
	mu      sync.Mutex
	byRepo  map[string][]domain.CodeChunk
	results []domain.SimilarChunk
	fail    error
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{byRepo: make(map[string][]domain.CodeChunk)}
}

func (s *fakeVectorStore) ReplaceChunks(_ context.Context, repoID string, chunks []domain.CodeChunk) error {
	if s.fail != nil {
		return s.fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byRepo[repoID] = append([]domain.CodeChunk(nil), chunks...)
	return nil
}

func (s *fakeVectorStore) TopKByDistance(_ context.Context, _ string, _ []float32, k int) ([]domain.SimilarChunk, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	if k < len(s.results) {
		return s.results[:k], nil
	}
	return s.results, nil
}

func (s *fakeVectorStore) chunkCount(repoID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byRepo[repoID])
}

// fakeFetcher materializes a fixed file tree instead of talking to git.
type fakeFetcher struct {
	files map[string]string // rel path -> content
	err   error
}

func (f *fakeFetcher) Clone(_ context.Context, _ string, dest string) error {
	if f.err != nil {
		return f.err
	}
	for rel, content := range f.files {
		full := filepath.Join(dest, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// fakeAI produces deterministic vectors derived from the text content.
type fakeAI struct {
	mu          sync.Mutex
	failBatches map[int]bool // EmbedDocuments call index -> fail
	calls       int
	embedQueryN int
	generateN   int
	answer      string
	queryErr    error
	genErr      error
}

func (a *fakeAI) ModelName() string { return "fake-model" }

func (a *fakeAI) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	a.mu.Lock()
	call := a.calls
	a.calls++
	a.mu.Unlock()

	if a.failBatches[call] {
		return nil, fmt.Errorf("model overloaded")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = embedText(t)
	}
	return out, nil
}

func (a *fakeAI) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	a.mu.Lock()
	a.embedQueryN++
	a.mu.Unlock()
	if a.queryErr != nil {
		return nil, a.queryErr
	}
	return embedText(text), nil
}

func (a *fakeAI) Generate(_ context.Context, _ string) (string, error) {
	a.mu.Lock()
	a.generateN++
	a.mu.Unlock()
	if a.genErr != nil {
		return "", a.genErr
	}
	if a.answer == "" {
		return "generated answer", nil
	}
	return a.answer, nil
}

func embedText(t string) []float32 {
	v := make([]float32, 8)
	for i, r := range t {
		v[i%8] += float32(r) / 1000
	}
	return v
}

// --- helpers ---

func newTestIngest(t *testing.T, repos *fakeRepoStore, vectors *fakeVectorStore, fetcher port.SourceFetcher, provider port.AIProvider) *IngestService {
	t.Helper()
	return NewIngestService(repos, vectors, fetcher, provider, IngestConfig{
		ChunkSize:      200,
		ChunkOverlap:   20,
		EmbedBatchSize: 2,
		WorkDir:        t.TempDir(),
	}, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
}

func pendingRepo(id string) *domain.Repository {
	return &domain.Repository{
		ID:      id,
		OwnerID: "owner-1",
		Name:    "demo",
		URL:     "https://example.com/demo.git",
		Status:  domain.StatusPending,
	}
}

// --- tests ---

func TestIngest_Success(t *testing.T) {
	repos := newFakeRepoStore(pendingRepo("r1"))
	vectors := newFakeVectorStore()
	fetcher := &fakeFetcher{files: map[string]string{
		"src/app.py": "def main():\n    print('hello')\n",
		"README.md":  "# demo project\n",
	}}

	svc := newTestIngest(t, repos, vectors, fetcher, &fakeAI{})

	var statuses []domain.Status
	svc.OnStatusChange = func(_ string, st domain.Status) { statuses = append(statuses, st) }

	svc.process(context.Background(), ingestJob{repoID: "r1", attemptID: "a1"})

	assert.Equal(t, domain.StatusCompleted, repos.statusOf(t, "r1"))
	assert.Greater(t, vectors.chunkCount("r1"), 0)

	repo, err := repos.GetRepo(context.Background(), "r1")
	require.NoError(t, err)
	assert.Empty(t, repo.ErrorMessage)
	assert.Empty(t, repo.SkippedFiles)
	assert.Equal(t, []domain.Status{domain.StatusProcessing, domain.StatusCompleted}, statuses)
}

func TestIngest_CloneFailure(t *testing.T) {
	repos := newFakeRepoStore(pendingRepo("r1"))
	vectors := newFakeVectorStore()
	fetcher := &fakeFetcher{err: fmt.Errorf("fatal: repository not found")}

	svc := newTestIngest(t, repos, vectors, fetcher, &fakeAI{})
	svc.process(context.Background(), ingestJob{repoID: "r1", attemptID: "a1"})

	repo, err := repos.GetRepo(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, repo.Status)
	assert.Contains(t, repo.ErrorMessage, "repository not found")
	assert.Zero(t, vectors.chunkCount("r1"))
}

func TestIngest_DroppedBatchRecordsSkippedFiles(t *testing.T) {
	repos := newFakeRepoStore(pendingRepo("r1"))
	vectors := newFakeVectorStore()
	// Two files, one chunk each; batch size 2 puts both in the failing batch.
	fetcher := &fakeFetcher{files: map[string]string{
		"a.py": "print('a')\n",
		"b.py": "print('b')\n",
	}}
	provider := &fakeAI{failBatches: map[int]bool{0: true}}

	svc := newTestIngest(t, repos, vectors, fetcher, provider)
	svc.process(context.Background(), ingestJob{repoID: "r1", attemptID: "a1"})

	repo, err := repos.GetRepo(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, repo.Status, "a dropped batch must not fail the attempt")
	assert.ElementsMatch(t, []string{"a.py", "b.py"}, repo.SkippedFiles)
	assert.Zero(t, vectors.chunkCount("r1"))
}

func TestIngest_PartialBatchFailureKeepsRest(t *testing.T) {
	repos := newFakeRepoStore(pendingRepo("r1"))
	vectors := newFakeVectorStore()
	fetcher := &fakeFetcher{files: map[string]string{
		"a.py": "print('a')\n",
		"b.py": "print('b')\n",
		"c.py": "print('c')\n",
	}}
	// Three chunks, batch size 2: second batch (c) fails.
	provider := &fakeAI{failBatches: map[int]bool{1: true}}

	svc := newTestIngest(t, repos, vectors, fetcher, provider)
	svc.process(context.Background(), ingestJob{repoID: "r1", attemptID: "a1"})

	repo, err := repos.GetRepo(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, repo.Status)
	assert.Len(t, repo.SkippedFiles, 1)
	assert.Equal(t, 2, vectors.chunkCount("r1"))
}

func TestIngest_EmptyRepository(t *testing.T) {
	repos := newFakeRepoStore(pendingRepo("r1"))
	vectors := newFakeVectorStore()
	fetcher := &fakeFetcher{files: map[string]string{}}

	svc := newTestIngest(t, repos, vectors, fetcher, &fakeAI{})
	svc.process(context.Background(), ingestJob{repoID: "r1", attemptID: "a1"})

	assert.Equal(t, domain.StatusCompleted, repos.statusOf(t, "r1"))
	assert.Zero(t, vectors.chunkCount("r1"))
}

func TestIngest_PersistenceFailure(t *testing.T) {
	repos := newFakeRepoStore(pendingRepo("r1"))
	vectors := newFakeVectorStore()
	vectors.fail = fmt.Errorf("connection reset")
	fetcher := &fakeFetcher{files: map[string]string{"a.py": "print('a')\n"}}

	svc := newTestIngest(t, repos, vectors, fetcher, &fakeAI{})
	svc.process(context.Background(), ingestJob{repoID: "r1", attemptID: "a1"})

	repo, err := repos.GetRepo(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, repo.Status)
	assert.Contains(t, repo.ErrorMessage, "connection reset")
}

func TestIngest_VanishedRepoIsSilent(t *testing.T) {
	repos := newFakeRepoStore() // no repos at all
	vectors := newFakeVectorStore()

	svc := newTestIngest(t, repos, vectors, &fakeFetcher{}, &fakeAI{})

	notified := false
	svc.OnStatusChange = func(string, domain.Status) { notified = true }
	svc.process(context.Background(), ingestJob{repoID: "gone", attemptID: "a1"})

	assert.False(t, notified, "no status events for a vanished repository")
}

func TestSubmit_RejectsConcurrentAttempt(t *testing.T) {
	repos := newFakeRepoStore(pendingRepo("r1"))
	svc := newTestIngest(t, repos, newFakeVectorStore(), &fakeFetcher{}, &fakeAI{})

	require.NoError(t, svc.Submit("r1"))
	err := svc.Submit("r1")
	assert.ErrorIs(t, err, port.ErrIngestInProgress)

	// A different repository is not blocked.
	assert.NoError(t, svc.Submit("r2"))
}

func TestRun_ReleasesGuardAfterAttempt(t *testing.T) {
	repos := newFakeRepoStore(pendingRepo("r1"))
	fetcher := &fakeFetcher{files: map[string]string{"a.py": "print('a')\n"}}
	svc := newTestIngest(t, repos, newFakeVectorStore(), fetcher, &fakeAI{})

	done := make(chan domain.Status, 4)
	svc.OnStatusChange = func(_ string, st domain.Status) { done <- st }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	require.NoError(t, svc.Submit("r1"))

	waitForStatus(t, done, domain.StatusCompleted)

	// The guard is released once the attempt finishes; a re-ingest is accepted.
	require.Eventually(t, func() bool {
		return !svc.InFlight("r1")
	}, 2*time.Second, 10*time.Millisecond)
	assert.NoError(t, svc.Submit("r1"))
}

func waitForStatus(t *testing.T, ch <-chan domain.Status, want domain.Status) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case st := <-ch:
			if st == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %s", want)
		}
	}
}
