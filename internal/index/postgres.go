package index

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/minseokoh/myeongshim/internal/reliability"
)

// PostgresIndex searches pgvector-embedded knowledge chunks. Ingestion
// (loading, splitting, embedding documents) happens outside this service;
// the index only reads what the ingestion pipeline wrote.
type PostgresIndex struct {
	pool     *pgxpool.Pool
	embedder Embedder
	ready    atomic.Bool
}

func NewPostgresIndex(ctx context.Context, databaseURL string, embedder Embedder) (*PostgresIndex, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	idx := &PostgresIndex{pool: pool, embedder: embedder}
	if err := idx.Reload(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return idx, nil
}

// Reload re-checks whether the ingestion pipeline has produced any chunks.
// Safe to call while searches are in flight.
func (x *PostgresIndex) Reload(ctx context.Context) error {
	var count int
	err := x.pool.QueryRow(ctx, `SELECT COUNT(*) FROM knowledge_chunks`).Scan(&count)
	if err != nil {
		return reliability.MarkTransient(fmt.Errorf("count knowledge chunks: %w", err))
	}
	x.ready.Store(count > 0)
	return nil
}

func (x *PostgresIndex) Ready(_ context.Context) bool {
	return x.ready.Load()
}

func (x *PostgresIndex) Search(ctx context.Context, query string, k int) ([]Passage, error) {
	if k <= 0 {
		k = 3
	}
	if !x.ready.Load() {
		return nil, nil
	}

	vec, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := x.pool.Query(ctx,
		`SELECT content, source, 1 - (embedding <=> $1::vector) AS score
		 FROM knowledge_chunks
		 ORDER BY embedding <=> $1::vector
		 LIMIT $2`,
		encodeVector(vec), k,
	)
	if err != nil {
		return nil, reliability.MarkTransient(fmt.Errorf("query knowledge chunks: %w", err))
	}
	defer rows.Close()

	var passages []Passage
	for rows.Next() {
		var p Passage
		if err := rows.Scan(&p.Text, &p.Source, &p.Score); err != nil {
			return nil, fmt.Errorf("scan passage row: %w", err)
		}
		passages = append(passages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passage rows: %w", err)
	}
	return passages, nil
}

func (x *PostgresIndex) Close() error {
	x.pool.Close()
	return nil
}

// encodeVector renders the pgvector text literal, e.g. [0.1,0.2,0.3].
func encodeVector(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
