package cache

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/noteseek/noteseek/pkg/types"
)

const driverName = "sqlite"

// DefaultSweepInterval is how often expired query vectors are removed
const DefaultSweepInterval = time.Hour

// SQLiteCache implements EmbeddingCache using SQLite
type SQLiteCache struct {
	db     *sql.DB
	logger *slog.Logger

	sweepInterval time.Duration
	stopSweep     chan struct{}
	sweepDone     sync.WaitGroup
	closeOnce     sync.Once
}

// Option configures a SQLiteCache
type Option func(*SQLiteCache)

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *SQLiteCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSweepInterval sets how often the expired-query sweep runs.
// An interval <= 0 disables the sweep goroutine.
func WithSweepInterval(interval time.Duration) Option {
	return func(c *SQLiteCache) {
		c.sweepInterval = interval
	}
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteCache opens (or creates) the cache database at dbPath, applies
// migrations, and starts the periodic expired-query sweep
func NewSQLiteCache(dbPath string, opts ...Option) (*SQLiteCache, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	c := &SQLiteCache{
		db:            db,
		logger:        slog.Default(),
		sweepInterval: DefaultSweepInterval,
		stopSweep:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.sweepInterval > 0 {
		c.sweepDone.Add(1)
		go c.sweepLoop()
	}

	return c, nil
}

// sweepLoop periodically removes expired query vectors to bound storage growth
func (c *SQLiteCache) sweepLoop() {
	defer c.sweepDone.Done()
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed, err := c.CleanupExpiredQueries(context.Background())
			if err != nil {
				c.logger.Warn("query cache sweep failed", "err", err)
			} else if removed > 0 {
				c.logger.Debug("query cache sweep", "removed", removed)
			}
		case <-c.stopSweep:
			return
		}
	}
}

// Close stops the sweep goroutine and closes the database
func (c *SQLiteCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopSweep)
	})
	c.sweepDone.Wait()
	return c.db.Close()
}

// StoreEmbeddings replaces the document's embedding set inside one
// transaction: delete all existing rows, then bulk-insert the new set keyed
// by the given version. Rows are inserted in slice order, so id-ordered
// reads return chunks in their original order.
func (c *SQLiteCache) StoreEmbeddings(ctx context.Context, documentID, version string, embeddings []*types.Embedding) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("failed to delete old embeddings: %w", err)
	}

	insert := `
		INSERT INTO embeddings (document_id, chunk_id, version, vector, dimension, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	for _, emb := range embeddings {
		_, err := tx.ExecContext(ctx, insert,
			documentID, emb.ChunkID, version,
			serializeVector(emb.Vector), len(emb.Vector), emb.Model, now)
		if err != nil {
			return fmt.Errorf("failed to insert embedding for chunk %s: %w", emb.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit embeddings: %w", err)
	}
	return nil
}

// GetEmbeddings returns the cached set only on an exact version match;
// anything else is a miss
func (c *SQLiteCache) GetEmbeddings(ctx context.Context, documentID, version string) ([]*types.Embedding, error) {
	query := `
		SELECT id, document_id, chunk_id, vector, model, created_at
		FROM embeddings
		WHERE document_id = ? AND version = ?
		ORDER BY id
	`
	rows, err := c.db.QueryContext(ctx, query, documentID, version)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanEmbeddings(rows)
}

// GetAllEmbeddings returns every cached chunk embedding
func (c *SQLiteCache) GetAllEmbeddings(ctx context.Context) ([]*types.Embedding, error) {
	query := `
		SELECT id, document_id, chunk_id, vector, model, created_at
		FROM embeddings
		ORDER BY document_id, id
	`
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanEmbeddings(rows)
}

// GetEmbeddingsByDocumentIDs bulk-fetches embeddings for many documents at
// once so the retrieval layer avoids per-document queries
func (c *SQLiteCache) GetEmbeddingsByDocumentIDs(ctx context.Context, documentIDs []string) (map[string][]*types.Embedding, error) {
	result := make(map[string][]*types.Embedding, len(documentIDs))
	if len(documentIDs) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(documentIDs)), ",")
	query := fmt.Sprintf(`
		SELECT id, document_id, chunk_id, vector, model, created_at
		FROM embeddings
		WHERE document_id IN (%s)
		ORDER BY document_id, id
	`, placeholders)

	args := make([]interface{}, len(documentIDs))
	for i, id := range documentIDs {
		args[i] = id
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	embeddings, err := scanEmbeddings(rows)
	if err != nil {
		return nil, err
	}
	for _, emb := range embeddings {
		result[emb.DocumentID] = append(result[emb.DocumentID], emb)
	}
	return result, nil
}

// GetModifiedDocuments returns documents whose cached version differs from
// the supplied one, or which have no cache entry at all
func (c *SQLiteCache) GetModifiedDocuments(ctx context.Context, docs []*types.Document) ([]*types.Document, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	ids := make([]interface{}, len(docs))
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(docs)), ",")
	for i, doc := range docs {
		ids[i] = doc.ID
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT document_id, version
		FROM embeddings
		WHERE document_id IN (%s)
	`, placeholders)

	rows, err := c.db.QueryContext(ctx, query, ids...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cached versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cached := make(map[string]string)
	for rows.Next() {
		var documentID, version string
		if err := rows.Scan(&documentID, &version); err != nil {
			return nil, fmt.Errorf("failed to scan cached version: %w", err)
		}
		cached[documentID] = version
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var modified []*types.Document
	for _, doc := range docs {
		if version, ok := cached[doc.ID]; !ok || version != doc.Version {
			modified = append(modified, doc)
		}
	}
	return modified, nil
}

// DeleteDocument removes all cached embeddings for a document
func (c *SQLiteCache) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM embeddings WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete embeddings: %w", err)
	}
	return nil
}

// StoreQueryVector caches a query vector with a TTL, replacing any previous
// row for the same key
func (c *SQLiteCache) StoreQueryVector(ctx context.Context, queryKey string, vector []float32, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultQueryTTL
	}
	now := time.Now()
	query := `
		INSERT INTO queries (query_key, vector, dimension, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(query_key) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`
	_, err := c.db.ExecContext(ctx, query,
		queryKey, serializeVector(vector), len(vector), now, now.Add(ttl))
	if err != nil {
		return fmt.Errorf("failed to store query vector: %w", err)
	}
	return nil
}

// GetQueryVector returns an unexpired cached query vector, filtering by
// expiry at read time
func (c *SQLiteCache) GetQueryVector(ctx context.Context, queryKey string) ([]float32, error) {
	query := `
		SELECT vector FROM queries
		WHERE query_key = ? AND expires_at > ?
	`
	var blob []byte
	err := c.db.QueryRowContext(ctx, query, queryKey, time.Now()).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query vector: %w", err)
	}
	return deserializeVector(blob), nil
}

// CleanupExpiredQueries deletes expired query rows
func (c *SQLiteCache) CleanupExpiredQueries(ctx context.Context) (int64, error) {
	result, err := c.db.ExecContext(ctx, `DELETE FROM queries WHERE expires_at <= ?`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up queries: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Stats reports row counts and an estimated byte size (vector bytes plus a
// fixed per-row overhead)
func (c *SQLiteCache) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	query := `
		SELECT COUNT(*), COUNT(DISTINCT document_id), COALESCE(SUM(dimension), 0)
		FROM embeddings
	`
	var dimensionSum int64
	if err := c.db.QueryRowContext(ctx, query).Scan(&stats.EmbeddingCount, &stats.DocumentCount, &dimensionSum); err != nil {
		return nil, fmt.Errorf("failed to count embeddings: %w", err)
	}

	var queryDimensionSum int64
	if err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(dimension), 0) FROM queries`).Scan(&stats.QueryCount, &queryDimensionSum); err != nil {
		return nil, fmt.Errorf("failed to count queries: %w", err)
	}

	stats.EstimatedBytes = (dimensionSum+queryDimensionSum)*4 +
		(stats.EmbeddingCount+stats.QueryCount)*rowOverheadBytes
	return stats, nil
}

// scanEmbeddings reads embedding rows into domain types
func scanEmbeddings(rows *sql.Rows) ([]*types.Embedding, error) {
	var embeddings []*types.Embedding
	for rows.Next() {
		var (
			emb  types.Embedding
			id   int64
			blob []byte
		)
		if err := rows.Scan(&id, &emb.DocumentID, &emb.ChunkID, &blob, &emb.Model, &emb.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		emb.ID = fmt.Sprintf("%d", id)
		emb.Vector = deserializeVector(blob)
		embeddings = append(embeddings, &emb)
	}
	return embeddings, rows.Err()
}
