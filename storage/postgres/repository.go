// Package postgres implements storage.ChunkRepository on PostgreSQL with the
// pgvector extension holding chunk embeddings.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"github.com/poiesic/dataroom/core"
	"github.com/poiesic/dataroom/storage"
)

// DefaultTable is the chunk table name used when Config.Table is empty.
const DefaultTable = "dataroom_chunks"

// uniqueViolation is the SQLSTATE for unique constraint violations.
const uniqueViolation = "23505"

// Config configures the PostgreSQL chunk store.
type Config struct {
	// DSN is a libpq connection string or URL.
	DSN string
	// Table names the chunk table. Default: DefaultTable
	Table string
	// Logger receives diagnostics. Default: slog.Default()
	Logger *slog.Logger
}

// ChunkRepository stores chunks in a PostgreSQL table.
type ChunkRepository struct {
	pool   *pgxpool.Pool
	table  string
	logger *slog.Logger
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository connects, checks the pgvector extension and creates the table if needed.
// Returns storage.ChunkRepository interface to enforce abstraction.
func NewChunkRepository(ctx context.Context, config Config) (storage.ChunkRepository, error) {
	return newChunkRepository(ctx, config)
}

func newChunkRepository(ctx context.Context, config Config) (*ChunkRepository, error) {
	if config.DSN == "" {
		return nil, errors.New("postgres: DSN is required")
	}
	if config.Table == "" {
		config.Table = DefaultTable
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	poolConfig, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	// Register pgvector types for each connection
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	repo := &ChunkRepository{
		pool:   pool,
		table:  pgx.Identifier{config.Table}.Sanitize(),
		logger: config.Logger.With("component", "postgres-chunks"),
	}
	if err := repo.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

func (r *ChunkRepository) ensureSchema(ctx context.Context) error {
	var extExists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector')",
	).Scan(&extExists)
	if err != nil {
		return fmt.Errorf("check pgvector extension: %w", err)
	}
	if !extExists {
		return errors.New("pgvector extension not installed - run: CREATE EXTENSION vector")
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			seq BIGSERIAL PRIMARY KEY,
			id BIGINT NOT NULL UNIQUE,
			task_id TEXT NOT NULL,
			doc_id TEXT NOT NULL,
			chunk_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			kind TEXT NOT NULL,
			text TEXT NOT NULL,
			embedding vector,
			metadata JSONB NOT NULL DEFAULT '{}',
			inserted_at TIMESTAMPTZ NOT NULL
		)`, r.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (task_id, seq)`,
			pgx.Identifier{r.indexName("task")}.Sanitize(), r.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (task_id, doc_id)`,
			pgx.Identifier{r.indexName("doc")}.Sanitize(), r.table),
	}
	for _, stmt := range statements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure chunk schema: %w", err)
		}
	}
	return nil
}

func (r *ChunkRepository) indexName(suffix string) string {
	// r.table is quoted; strip quotes for the derived index name.
	name := r.table
	if len(name) >= 2 && name[0] == '"' {
		name = name[1 : len(name)-1]
	}
	return name + "_" + suffix + "_idx"
}

// Close closes the connection pool.
func (r *ChunkRepository) Close() error {
	r.pool.Close()
	return nil
}

// AddChunks inserts chunks in one transaction.
func (r *ChunkRepository) AddChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	now := time.Now()
	for _, chunk := range chunks {
		if err := core.ValidateChunk(chunk); err != nil {
			return nil, err
		}
		storage.PrepareChunk(chunk, now)
	}

	insert := fmt.Sprintf(`INSERT INTO %s
		(id, task_id, doc_id, chunk_id, chunk_index, kind, text, embedding, metadata, inserted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, r.table)

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, chunk := range chunks {
			metadata, err := metadataJSON(chunk)
			if err != nil {
				return err
			}
			batch.Queue(insert,
				int64(chunk.Id),
				chunk.TaskID,
				chunk.DocID,
				chunk.ChunkID,
				chunk.Index,
				string(chunk.Kind),
				chunk.Text,
				embeddingParam(chunk.Embedding),
				metadata,
				chunk.InsertedAt,
			)
		}
		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return translateError(err)
			}
		}
		return results.Close()
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// UpdateChunks replaces text, embedding and metadata of existing chunks.
func (r *ChunkRepository) UpdateChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	for _, chunk := range chunks {
		if err := core.ValidateChunk(chunk); err != nil {
			return nil, err
		}
	}

	update := fmt.Sprintf(`UPDATE %s SET text = $2, embedding = $3, metadata = $4, kind = $5, chunk_index = $6
		WHERE id = $1`, r.table)

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, chunk := range chunks {
			metadata, err := metadataJSON(chunk)
			if err != nil {
				return err
			}
			tag, err := tx.Exec(ctx, update,
				int64(chunk.Id), chunk.Text, embeddingParam(chunk.Embedding), metadata, string(chunk.Kind), chunk.Index)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return storage.ErrNotFound
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

const selectColumns = `task_id, doc_id, chunk_id, chunk_index, kind, text, embedding, metadata, inserted_at`

// GetChunk retrieves a single chunk by ID.
func (r *ChunkRepository) GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error) {
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, selectColumns, r.table), int64(id))
	if err != nil {
		return nil, err
	}
	chunks, err := collectChunks(rows)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, storage.ErrNotFound
	}
	return chunks[0], nil
}

// ChunksByTask retrieves every chunk of a task in insertion order.
func (r *ChunkRepository) ChunksByTask(ctx context.Context, taskID string) ([]*core.Chunk, error) {
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE task_id = $1 ORDER BY seq`, selectColumns, r.table), taskID)
	if err != nil {
		return nil, err
	}
	return collectChunks(rows)
}

// ListChunks returns one page of chunks ordered by task, then insertion.
func (r *ChunkRepository) ListChunks(ctx context.Context, offset, limit int) ([]*core.Chunk, error) {
	if offset < 0 || limit <= 0 {
		return nil, storage.ErrInvalidPage
	}
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM %s ORDER BY task_id, seq OFFSET $1 LIMIT $2`, selectColumns, r.table),
		offset, limit)
	if err != nil {
		return nil, err
	}
	return collectChunks(rows)
}

// ForEachChunk streams every chunk to fn, ordered by task, then insertion.
func (r *ChunkRepository) ForEachChunk(ctx context.Context, fn func(*core.Chunk) error) error {
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM %s ORDER BY task_id, seq`, selectColumns, r.table))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return err
		}
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Tasks returns every task with stored chunks, sorted.
func (r *ChunkRepository) Tasks(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT DISTINCT task_id FROM %s ORDER BY task_id`, r.table))
	if err != nil {
		return nil, err
	}
	tasks, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []string{}
	}
	return tasks, nil
}

// CountChunks counts the chunks of a task, or of all tasks when taskID is empty.
func (r *ChunkRepository) CountChunks(ctx context.Context, taskID string) (int, error) {
	var count int
	var err error
	if taskID == "" {
		err = r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, r.table)).Scan(&count)
	} else {
		err = r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s WHERE task_id = $1`, r.table), taskID).Scan(&count)
	}
	return count, err
}

// HasDocument reports whether docID has chunks stored under taskID.
func (r *ChunkRepository) HasDocument(ctx context.Context, taskID, docID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE task_id = $1 AND doc_id = $2)`, r.table),
		taskID, docID).Scan(&exists)
	return exists, err
}

// DeleteTask removes every chunk of a task.
func (r *ChunkRepository) DeleteTask(ctx context.Context, taskID string) (int, error) {
	tag, err := r.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE task_id = $1`, r.table), taskID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// DeleteDocument removes every chunk of docID stored under taskID.
func (r *ChunkRepository) DeleteDocument(ctx context.Context, taskID, docID string) (int, error) {
	tag, err := r.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE task_id = $1 AND doc_id = $2`, r.table), taskID, docID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func collectChunks(rows pgx.Rows) ([]*core.Chunk, error) {
	defer rows.Close()
	chunks := []*core.Chunk{}
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func scanChunk(rows pgx.Rows) (*core.Chunk, error) {
	var (
		chunk     core.Chunk
		kind      string
		embedding *pgvector.Vector
		metadata  []byte
	)
	err := rows.Scan(&chunk.TaskID, &chunk.DocID, &chunk.ChunkID, &chunk.Index, &kind,
		&chunk.Text, &embedding, &metadata, &chunk.InsertedAt)
	if err != nil {
		return nil, err
	}
	chunk.Kind = core.ChunkKind(kind)
	chunk.Id = core.ChunkContentID(chunk.TaskID, chunk.DocID, chunk.ChunkID)
	if embedding != nil {
		chunk.Embedding = embedding.Slice()
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
		}
	}
	return &chunk, nil
}

func metadataJSON(chunk *core.Chunk) ([]byte, error) {
	metadata := chunk.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	return data, nil
}

// embeddingParam maps an unavailable embedding to SQL NULL.
func embeddingParam(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}

func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", storage.ErrDuplicateKey, pgErr.Detail)
	}
	return err
}
