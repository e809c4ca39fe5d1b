package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/okian/visiontags/internal/domain/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS predictions (
	seq             BIGSERIAL PRIMARY KEY,
	id              TEXT NOT NULL UNIQUE,
	predicted_label TEXT NOT NULL,
	predicted_prob  DOUBLE PRECISION NOT NULL,
	timestamp       DOUBLE PRECISION NOT NULL,
	"user"          TEXT NOT NULL DEFAULT '',
	true_label      TEXT,
	embedding       vector NOT NULL,
	emb2d_x         DOUBLE PRECISION,
	emb2d_y         DOUBLE PRECISION,
	thumb           TEXT NOT NULL DEFAULT '',
	model           TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS predictions_recency ON predictions (timestamp, seq);
`

const uniqueViolation = "23505"

// PostgresStore persists records in PostgreSQL with embeddings stored as
// pgvector vectors. Vectors hold float32 components, so embeddings read
// back carry single precision.
type PostgresStore struct {
	db *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn, installs the vector extension and the
// predictions table if missing, and returns a pooled store.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	// The extension must exist before pgvector types can be registered.
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	_, err = conn.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	_ = conn.Close(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector extension: %w", err)
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	config.AfterConnect = pgxvec.RegisterTypes

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &PostgresStore{db: pool}, nil
}

func toVector(v []float64) pgvector.Vector {
	f := make([]float32, len(v))
	for i, x := range v {
		f[i] = float32(x)
	}
	return pgvector.NewVector(f)
}

func fromVector(v pgvector.Vector) []float64 {
	s := v.Slice()
	out := make([]float64, len(s))
	for i, x := range s {
		out[i] = float64(x)
	}
	return out
}

// Insert implements Store.
func (s *PostgresStore) Insert(ctx context.Context, r model.Record) (out model.Record, err error) {
	defer observe(BackendPostgres, "insert", time.Now(), &err)

	var x, y *float64
	if r.Coords != nil {
		x, y = &r.Coords.X, &r.Coords.Y
	}
	var trueLabel *string
	if r.TrueLabel != "" {
		trueLabel = &r.TrueLabel
	}
	var seq int64
	err = s.db.QueryRow(ctx, `
		INSERT INTO predictions (id, predicted_label, predicted_prob, timestamp, "user", true_label, embedding, emb2d_x, emb2d_y, thumb, model)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING seq`,
		r.ID, r.Label, r.Prob, unixSeconds(r.CreatedAt), r.User, trueLabel,
		toVector(r.Embedding), x, y, r.Thumb, r.Model,
	).Scan(&seq)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return model.Record{}, fmt.Errorf("%w: %s", ErrDuplicate, r.ID)
		}
		return model.Record{}, fmt.Errorf("insert prediction: %w", err)
	}
	out = r.Clone()
	out.Seq = seq
	return out, nil
}

// UpdateCoordinates implements Store.
func (s *PostgresStore) UpdateCoordinates(ctx context.Context, coords map[string]model.Point) (err error) {
	defer observe(BackendPostgres, "update_coordinates", time.Now(), &err)

	batch := &pgx.Batch{}
	for id, pt := range coords {
		batch.Queue(`UPDATE predictions SET emb2d_x = $1, emb2d_y = $2 WHERE id = $3`, pt.X, pt.Y, id)
	}
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("update coordinates: %w", err)
		}
		return nil
	})
}

// UpdateGroundTruth implements Store.
func (s *PostgresStore) UpdateGroundTruth(ctx context.Context, id, label string) (err error) {
	defer observe(BackendPostgres, "update_ground_truth", time.Now(), &err)

	tag, err := s.db.Exec(ctx, `UPDATE predictions SET true_label = $1 WHERE id = $2`, label, id)
	if err != nil {
		return fmt.Errorf("update ground truth: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// LastN implements Store.
func (s *PostgresStore) LastN(ctx context.Context, n int) (out []model.Record, err error) {
	defer observe(BackendPostgres, "last_n", time.Now(), &err)
	if n < 1 {
		return nil, ErrInvalidLimit
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+selectColumns+` FROM predictions ORDER BY timestamp DESC, seq DESC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("query window: %w", err)
	}
	defer rows.Close()

	out = []model.Record{}
	for rows.Next() {
		r, err := scanPostgres(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating window: %w", err)
	}
	reverse(out)
	return out, nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id string) (out model.Record, err error) {
	defer observe(BackendPostgres, "get", time.Now(), &err)

	out, err = scanPostgres(s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM predictions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return out, err
}

// Count implements Store.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count predictions: %w", err)
	}
	return n, nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func scanPostgres(row pgx.Row) (model.Record, error) {
	var (
		r         model.Record
		ts        float64
		trueLabel *string
		vec       pgvector.Vector
		x, y      *float64
	)
	if err := row.Scan(&r.Seq, &r.ID, &r.Label, &r.Prob, &ts, &r.User, &trueLabel, &vec, &x, &y, &r.Thumb, &r.Model); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Record{}, err
		}
		return model.Record{}, fmt.Errorf("scan prediction: %w", err)
	}
	r.Embedding = fromVector(vec)
	r.CreatedAt = fromUnixSeconds(ts)
	if trueLabel != nil {
		r.TrueLabel = *trueLabel
	}
	if x != nil && y != nil {
		r.Coords = &model.Point{X: *x, Y: *y}
	}
	return r, nil
}
