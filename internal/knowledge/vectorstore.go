package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// handleRetryAttempts and handleRetryDelay bound GetHandle's retry
	// policy: 3 attempts with a fixed 2-second delay, no backoff.
	handleRetryAttempts = 3
	handleRetryDelay    = 2 * time.Second

	// DefaultNamespace partitions vectors when callers pass none.
	DefaultNamespace = "default"

	defaultTable = "knowledge_vectors"
	// DefaultEmbedDim matches the embedding model output dimensionality.
	DefaultEmbedDim = 1536
)

// Config tunes the knowledge subsystem.
type Config struct {
	// DatabaseURL is the vector database credential. Empty means the vector
	// store is not configured; ingestion then stores text only.
	DatabaseURL string
	// Table is the vector index name.
	Table string
	// EmbedDim is the embedding dimensionality the index is created with.
	EmbedDim int

	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.EmbedDim <= 0 {
		c.EmbedDim = DefaultEmbedDim
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ChunkOverlap <= 0 {
		c.ChunkOverlap = DefaultChunkOverlap
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	return c
}

// Store owns the lifecycle of the connection to the vector database:
// initialization, existence checks, recreation, retry, and the cached health
// status. It never lets connectivity failures escape GetHandle; exhausted
// retries yield a degraded stand-in handle plus an error status.
type Store struct {
	cfg    Config
	status *StatusCache

	mu   sync.Mutex
	pool *pgxpool.Pool

	retryDelay time.Duration
}

// NewStore builds a Store around the injected status cache. The cache is
// shared with every caller that needs a pre-flight health check.
func NewStore(cfg Config, status *StatusCache) *Store {
	return &Store{
		cfg:        cfg.withDefaults(),
		status:     status,
		retryDelay: handleRetryDelay,
	}
}

// Configured reports whether a vector database credential is present.
func (s *Store) Configured() bool { return s.cfg.DatabaseURL != "" }

// Close releases the connection pool.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
}

// errPoolInit marks pool-construction failures (an unparseable DSN): the
// service cannot even be dialed, which maps to state unavailable.
var errPoolInit = errors.New("vector database pool init failed")

// getPool lazily constructs the pgx pool. It never touches the status cache;
// callers classify and record the error, so the probe path stays safe to run
// under the StatusCache lock.
func (s *Store) getPool(ctx context.Context) (*pgxpool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		return s.pool, nil
	}
	pool, err := pgxpool.New(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errPoolInit, err)
	}
	s.pool = pool
	return pool, nil
}

// probe checks that the index is reachable and answers queries, returning a
// live handle on success.
func (s *Store) probe(ctx context.Context) (IndexHandle, error) {
	pool, err := s.getPool(ctx)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT 1 FROM %s LIMIT 1`, pgx.Identifier{s.cfg.Table}.Sanitize())
	var one int
	if err := pool.QueryRow(ctx, q).Scan(&one); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return &liveHandle{pool: pool, table: s.cfg.Table}, nil
}

// EnsureIndex verifies the index exists with the expected dimensionality and
// cosine metric, creating it if absent and recreating it when forceRecreate
// is set. The credential check short-circuits before any network call.
func (s *Store) EnsureIndex(ctx context.Context, forceRecreate bool) error {
	if !s.Configured() {
		s.status.Set(StateNotConfigured, nil)
		return ErrNotConfigured
	}

	pool, err := s.getPool(ctx)
	if err != nil {
		s.status.Set(StateUnavailable, err)
		return err
	}

	table := pgx.Identifier{s.cfg.Table}.Sanitize()

	if forceRecreate {
		if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
			s.status.Set(StateError, err)
			return fmt.Errorf("drop index: %w", err)
		}
		log.Printf("knowledge: vector index %s dropped for recreation", s.cfg.Table)
	}

	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		s.status.Set(StateError, err)
		return fmt.Errorf("enable pgvector extension: %w", err)
	}

	var exists bool
	err = pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
		s.cfg.Table).Scan(&exists)
	if err != nil {
		s.status.Set(StateError, err)
		return fmt.Errorf("check index existence: %w", err)
	}

	if exists {
		// The vector typmod carries the declared dimensionality.
		var dim int
		err = pool.QueryRow(ctx, `
			SELECT a.atttypmod
			FROM pg_attribute a
			JOIN pg_class c ON a.attrelid = c.oid
			WHERE c.relname = $1 AND a.attname = 'embedding'
		`, s.cfg.Table).Scan(&dim)
		if err != nil {
			s.status.Set(StateError, err)
			return fmt.Errorf("describe index: %w", err)
		}
		if dim != s.cfg.EmbedDim {
			err := fmt.Errorf("index %s has dimension %d, expected %d (recreate to fix)",
				s.cfg.Table, dim, s.cfg.EmbedDim)
			s.status.Set(StateError, err)
			return err
		}
	} else {
		create := fmt.Sprintf(`
			CREATE TABLE %s (
				id        text PRIMARY KEY,
				namespace text NOT NULL DEFAULT 'default',
				embedding vector(%d) NOT NULL,
				metadata  jsonb NOT NULL DEFAULT '{}'::jsonb
			)
		`, table, s.cfg.EmbedDim)
		if _, err := pool.Exec(ctx, create); err != nil {
			s.status.Set(StateError, err)
			return fmt.Errorf("create index: %w", err)
		}
		log.Printf("knowledge: vector index %s created (dim=%d, metric=cosine)", s.cfg.Table, s.cfg.EmbedDim)
	}

	embIdx := pgx.Identifier{s.cfg.Table + "_embedding_idx"}.Sanitize()
	nsIdx := pgx.Identifier{s.cfg.Table + "_namespace_idx"}.Sanitize()
	if _, err := pool.Exec(ctx, fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`, embIdx, table)); err != nil {
		s.status.Set(StateError, err)
		return fmt.Errorf("create similarity index: %w", err)
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s ON %s (namespace)`, nsIdx, table)); err != nil {
		s.status.Set(StateError, err)
		return fmt.Errorf("create namespace index: %w", err)
	}

	s.status.Set(StateOK, nil)
	return nil
}

// GetHandle returns a usable handle to the index, retrying transient
// failures up to the fixed bound when retry is set. On a missing index it
// attempts one (re)creation before giving up. Exhausted retries never raise:
// the caller receives a degraded stand-in and the status is set to error.
func (s *Store) GetHandle(ctx context.Context, retry bool) IndexHandle {
	if !s.Configured() {
		s.status.Set(StateNotConfigured, nil)
		return degradedHandle{}
	}

	attempts := 1
	if retry {
		attempts = handleRetryAttempts
	}

	var lastErr error
	recreated := false
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				s.status.Set(StateError, ctx.Err())
				return degradedHandle{}
			case <-time.After(s.retryDelay):
			}
		}

		h, err := s.probe(ctx)
		if err == nil {
			s.status.Set(StateOK, nil)
			return h
		}
		lastErr = err
		log.Printf("knowledge: vector store probe failed (attempt %d/%d): %v", attempt, attempts, err)

		// A pool that cannot even be constructed will not be fixed by
		// retrying: record unavailable and degrade immediately.
		if errors.Is(err, errPoolInit) {
			s.status.Set(StateUnavailable, err)
			return degradedHandle{}
		}

		if isUndefinedTable(err) && !recreated {
			recreated = true
			if cerr := s.EnsureIndex(ctx, false); cerr == nil {
				if h, err := s.probe(ctx); err == nil {
					s.status.Set(StateOK, nil)
					return h
				}
			}
		}
	}

	s.status.Set(StateError, lastErr)
	log.Printf("knowledge: vector store unreachable after %d attempts, degrading to stand-in: %v", attempts, lastErr)
	return degradedHandle{}
}

// Upsert writes vector records through a (possibly degraded) handle. Errors
// from the write itself propagate to the caller; batching and partial-failure
// handling belong to the ingestion pipeline.
func (s *Store) Upsert(ctx context.Context, records []VectorRecord, namespace string) error {
	return s.GetHandle(ctx, true).Upsert(ctx, records, namespace)
}

// Query runs a similarity search and returns scored matches with metadata.
func (s *Store) Query(ctx context.Context, embedding []float32, topK int, namespace string, filter map[string]any) ([]Match, error) {
	return s.GetHandle(ctx, true).Query(ctx, embedding, topK, namespace, filter)
}

// Delete removes vectors matching a metadata filter.
func (s *Store) Delete(ctx context.Context, filter map[string]any, namespace string) error {
	return s.GetHandle(ctx, true).Delete(ctx, filter, namespace)
}

// DeleteDocument removes every vector belonging to a document; used for
// cascading delete when the document record is removed.
func (s *Store) DeleteDocument(ctx context.Context, documentID, namespace string) error {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return s.Delete(ctx, map[string]any{"document_id": documentID}, namespace)
}

// Reset deletes and recreates the index. Administrative operation.
func (s *Store) Reset(ctx context.Context) error {
	return s.EnsureIndex(ctx, true)
}

// Status returns the cached health descriptor, refreshing it with a single
// non-retrying probe when stale or never checked.
func (s *Store) Status(ctx context.Context) Status {
	return s.status.Current(func() (State, error) {
		if !s.Configured() {
			return StateNotConfigured, nil
		}
		if _, err := s.probe(ctx); err != nil {
			if errors.Is(err, errPoolInit) {
				return StateUnavailable, err
			}
			return StateError, err
		}
		return StateOK, nil
	})
}

// isUndefinedTable recognizes the "resource not found" class of errors
// (SQLSTATE 42P01) that warrants an index (re)creation attempt.
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}
