package index

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/ilmhub/lms-ai-back/internal/domain"
)

// PostgresChunkStore persists chunks in a pgvector-enabled table:
//
//	CREATE TABLE content_chunks (
//	    content_type text NOT NULL,
//	    content_id   text NOT NULL,
//	    chunk_index  int  NOT NULL,
//	    title        text NOT NULL DEFAULT '',
//	    body         text NOT NULL DEFAULT '',
//	    char_start   int  NOT NULL DEFAULT 0,
//	    char_end     int  NOT NULL DEFAULT 0,
//	    embedding    vector(768),
//	    subject      text NOT NULL DEFAULT '',
//	    difficulty   text NOT NULL DEFAULT '',
//	    age_tier     text NOT NULL DEFAULT '',
//	    updated_at   timestamptz NOT NULL,
//	    PRIMARY KEY (content_type, content_id, chunk_index)
//	);
type PostgresChunkStore struct {
	pool *pgxpool.Pool
}

func NewPostgresChunkStore(ctx context.Context, databaseURL string) (*PostgresChunkStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return &PostgresChunkStore{pool: pool}, nil
}

func (s *PostgresChunkStore) Close() {
	s.pool.Close()
}

func (s *PostgresChunkStore) ReplaceContent(
	ctx context.Context,
	contentType domain.ContentType,
	contentID string,
	chunks []domain.ContentChunk,
) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		DELETE FROM content_chunks
		WHERE content_type = $1 AND content_id = $2
	`, string(contentType), contentID)
	if err != nil {
		return fmt.Errorf("delete stale chunks: %w", err)
	}

	for _, chunk := range chunks {
		_, err = tx.Exec(ctx, `
			INSERT INTO content_chunks (
				content_type,
				content_id,
				chunk_index,
				title,
				body,
				char_start,
				char_end,
				embedding,
				subject,
				difficulty,
				age_tier,
				updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`,
			string(chunk.ContentType),
			chunk.ContentID,
			chunk.ChunkIndex,
			chunk.Title,
			chunk.Text,
			chunk.CharStart,
			chunk.CharEnd,
			pgvector.NewVector(chunk.Embedding),
			string(chunk.Metadata.Subject),
			string(chunk.Metadata.Difficulty),
			string(chunk.Metadata.AgeTier),
			chunk.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", chunk.ChunkIndex, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace tx: %w", err)
	}
	return nil
}

func (s *PostgresChunkStore) RemoveContent(
	ctx context.Context,
	contentType domain.ContentType,
	contentID string,
) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM content_chunks
		WHERE content_type = $1 AND content_id = $2
	`, string(contentType), contentID)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

func (s *PostgresChunkStore) SimilarChunks(
	ctx context.Context,
	vector []float32,
	contentType domain.ContentType,
	limit int,
) ([]ScoredChunk, error) {
	if limit <= 0 {
		limit = 40
	}

	query := `
		SELECT content_type, content_id, chunk_index, title, body, char_start, char_end,
			subject, difficulty, age_tier, updated_at,
			1 - (embedding <=> $1) AS score
		FROM content_chunks
		WHERE embedding IS NOT NULL
	`
	args := []any{pgvector.NewVector(vector)}
	if contentType != "" {
		query += ` AND content_type = $2`
		args = append(args, string(contentType))
	}
	query += fmt.Sprintf(` ORDER BY embedding <=> $1 LIMIT %d`, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query similar chunks: %w", err)
	}
	defer rows.Close()

	results := make([]ScoredChunk, 0, limit)
	for rows.Next() {
		scored, err := scanScoredChunk(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, scored)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similar chunks: %w", err)
	}
	return results, nil
}

func (s *PostgresChunkStore) KeywordChunks(
	ctx context.Context,
	query string,
	contentType domain.ContentType,
	limit int,
) ([]domain.ContentChunk, error) {
	if limit <= 0 {
		limit = 40
	}
	needle := strings.TrimSpace(query)
	if needle == "" {
		return []domain.ContentChunk{}, nil
	}
	pattern := "%" + escapeLikePattern(needle) + "%"

	sql := `
		SELECT content_type, content_id, chunk_index, title, body, char_start, char_end,
			subject, difficulty, age_tier, updated_at
		FROM content_chunks
		WHERE (title ILIKE $1 ESCAPE '\' OR body ILIKE $1 ESCAPE '\')
	`
	args := []any{pattern}
	if contentType != "" {
		sql += ` AND content_type = $2`
		args = append(args, string(contentType))
	}
	sql += fmt.Sprintf(` ORDER BY updated_at DESC LIMIT %d`, limit)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query keyword chunks: %w", err)
	}
	defer rows.Close()

	results := make([]domain.ContentChunk, 0, limit)
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keyword chunks: %w", err)
	}
	return results, nil
}

func (s *PostgresChunkStore) CountChunks(
	ctx context.Context,
	contentType domain.ContentType,
	contentID string,
) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM content_chunks
		WHERE content_type = $1 AND content_id = $2
	`, string(contentType), contentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}

func scanChunk(rows pgx.Rows) (domain.ContentChunk, error) {
	var (
		chunk      domain.ContentChunk
		kind       string
		subject    string
		difficulty string
		ageTier    string
		updatedAt  time.Time
	)
	err := rows.Scan(
		&kind,
		&chunk.ContentID,
		&chunk.ChunkIndex,
		&chunk.Title,
		&chunk.Text,
		&chunk.CharStart,
		&chunk.CharEnd,
		&subject,
		&difficulty,
		&ageTier,
		&updatedAt,
	)
	if err != nil {
		return domain.ContentChunk{}, fmt.Errorf("scan chunk: %w", err)
	}
	chunk.ContentType = domain.ContentType(kind)
	chunk.Metadata = domain.ChunkMetadata{
		Subject:    domain.Subject(subject),
		Difficulty: domain.Difficulty(difficulty),
		AgeTier:    domain.AgeTier(ageTier),
	}
	chunk.UpdatedAt = updatedAt
	return chunk, nil
}

func scanScoredChunk(rows pgx.Rows) (ScoredChunk, error) {
	var (
		chunk      domain.ContentChunk
		kind       string
		subject    string
		difficulty string
		ageTier    string
		updatedAt  time.Time
		score      float64
	)
	err := rows.Scan(
		&kind,
		&chunk.ContentID,
		&chunk.ChunkIndex,
		&chunk.Title,
		&chunk.Text,
		&chunk.CharStart,
		&chunk.CharEnd,
		&subject,
		&difficulty,
		&ageTier,
		&updatedAt,
		&score,
	)
	if err != nil {
		return ScoredChunk{}, fmt.Errorf("scan scored chunk: %w", err)
	}
	chunk.ContentType = domain.ContentType(kind)
	chunk.Metadata = domain.ChunkMetadata{
		Subject:    domain.Subject(subject),
		Difficulty: domain.Difficulty(difficulty),
		AgeTier:    domain.AgeTier(ageTier),
	}
	chunk.UpdatedAt = updatedAt
	return ScoredChunk{Chunk: chunk, Score: score}, nil
}

func escapeLikePattern(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
