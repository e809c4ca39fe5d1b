package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register driver

	"github.com/okian/visiontags/internal/domain/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS predictions (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	id              TEXT NOT NULL UNIQUE,
	predicted_label TEXT NOT NULL,
	predicted_prob  REAL NOT NULL,
	timestamp       REAL NOT NULL,
	"user"          TEXT NOT NULL DEFAULT '',
	true_label      TEXT,
	embedding       TEXT NOT NULL,
	emb2d_x         REAL,
	emb2d_y         REAL,
	thumb           TEXT NOT NULL DEFAULT '',
	model           TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS predictions_recency ON predictions (timestamp, seq);
`

const selectColumns = `seq, id, predicted_label, predicted_prob, timestamp, "user", true_label, embedding, emb2d_x, emb2d_y, thumb, model`

// SQLiteStore persists records in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path. Use
// ":memory:" for a private in-memory database.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Insert implements Store.
func (s *SQLiteStore) Insert(ctx context.Context, r model.Record) (out model.Record, err error) {
	defer observe(BackendSQLite, "insert", time.Now(), &err)

	var x, y sql.NullFloat64
	if r.Coords != nil {
		x = sql.NullFloat64{Float64: r.Coords.X, Valid: true}
		y = sql.NullFloat64{Float64: r.Coords.Y, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO predictions (id, predicted_label, predicted_prob, timestamp, "user", true_label, embedding, emb2d_x, emb2d_y, thumb, model)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Label, r.Prob, unixSeconds(r.CreatedAt), r.User, nullString(r.TrueLabel),
		encodeEmbedding(r.Embedding), x, y, r.Thumb, r.Model,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return model.Record{}, fmt.Errorf("%w: %s", ErrDuplicate, r.ID)
		}
		return model.Record{}, fmt.Errorf("insert prediction: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return model.Record{}, fmt.Errorf("insert prediction: %w", err)
	}
	out = r.Clone()
	out.Seq = seq
	return out, nil
}

// UpdateCoordinates implements Store.
func (s *SQLiteStore) UpdateCoordinates(ctx context.Context, coords map[string]model.Point) (err error) {
	defer observe(BackendSQLite, "update_coordinates", time.Now(), &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `UPDATE predictions SET emb2d_x = ?, emb2d_y = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare coordinate update: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for id, pt := range coords {
		if _, err := stmt.ExecContext(ctx, pt.X, pt.Y, id); err != nil {
			return fmt.Errorf("update coordinates of %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit coordinates: %w", err)
	}
	return nil
}

// UpdateGroundTruth implements Store.
func (s *SQLiteStore) UpdateGroundTruth(ctx context.Context, id, label string) (err error) {
	defer observe(BackendSQLite, "update_ground_truth", time.Now(), &err)

	res, err := s.db.ExecContext(ctx, `UPDATE predictions SET true_label = ? WHERE id = ?`, label, id)
	if err != nil {
		return fmt.Errorf("update ground truth: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update ground truth: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// LastN implements Store.
func (s *SQLiteStore) LastN(ctx context.Context, n int) (out []model.Record, err error) {
	defer observe(BackendSQLite, "last_n", time.Now(), &err)
	if n < 1 {
		return nil, ErrInvalidLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM predictions ORDER BY timestamp DESC, seq DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query window: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating window: %w", err)
	}
	reverse(out)
	if out == nil {
		out = []model.Record{}
	}
	return out, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (out model.Record, err error) {
	defer observe(BackendSQLite, "get", time.Now(), &err)

	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM predictions WHERE id = ?`, id)
	out, err = scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return out, err
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count predictions: %w", err)
	}
	return n, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (model.Record, error) {
	var (
		r         model.Record
		ts        float64
		trueLabel sql.NullString
		embedding string
		x, y      sql.NullFloat64
	)
	if err := sc.Scan(&r.Seq, &r.ID, &r.Label, &r.Prob, &ts, &r.User, &trueLabel, &embedding, &x, &y, &r.Thumb, &r.Model); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Record{}, err
		}
		return model.Record{}, fmt.Errorf("scan prediction: %w", err)
	}
	emb, err := decodeEmbedding(embedding)
	if err != nil {
		return model.Record{}, fmt.Errorf("prediction %s: %w", r.ID, err)
	}
	r.Embedding = emb
	r.CreatedAt = fromUnixSeconds(ts)
	r.TrueLabel = trueLabel.String
	if x.Valid && y.Valid {
		r.Coords = &model.Point{X: x.Float64, Y: y.Float64}
	}
	return r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func reverse(records []model.Record) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}
