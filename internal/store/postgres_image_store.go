package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/imagekiln/imagekiln/internal/domain"
	_ "github.com/lib/pq"
)

const imageSchemaSQL = `
CREATE TABLE IF NOT EXISTS images (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	original_name TEXT NOT NULL,
	file_path TEXT NOT NULL,
	file_size BIGINT NOT NULL,
	mime_type TEXT NOT NULL,
	source_type TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS images_user_created_idx ON images (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS usage_logs (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	image_id TEXT NOT NULL,
	pixels_processed BIGINT NOT NULL,
	bytes_written BIGINT NOT NULL,
	compute_time_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

type PostgresImageStore struct {
	db *sql.DB
}

func NewPostgresImageStore(ctx context.Context, dsn string) (*PostgresImageStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresImageStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresImageStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, imageSchemaSQL); err != nil {
		return fmt.Errorf("ensure images schema: %w", err)
	}
	return nil
}

func (s *PostgresImageStore) Close() error {
	return s.db.Close()
}

func (s *PostgresImageStore) Create(ctx context.Context, img domain.Image) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO images (id, user_id, filename, original_name, file_path, file_size, mime_type, source_type, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		img.ID,
		img.UserID,
		img.Filename,
		img.OriginalName,
		img.FilePath,
		img.FileSize,
		img.MIMEType,
		img.SourceType,
		img.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

func (s *PostgresImageStore) Get(ctx context.Context, id string) (domain.Image, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, user_id, filename, original_name, file_path, file_size, mime_type, source_type, created_at
		 FROM images
		 WHERE id = $1`,
		id,
	)

	img, err := scanImage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Image{}, false, nil
		}
		return domain.Image{}, false, fmt.Errorf("query image: %w", err)
	}
	return img, true, nil
}

func (s *PostgresImageStore) ListByUser(ctx context.Context, userID string, page, limit int) ([]domain.Image, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, user_id, filename, original_name, file_path, file_size, mime_type, source_type, created_at
		 FROM images
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2 OFFSET $3`,
		userID,
		limit,
		(page-1)*limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query images: %w", err)
	}
	defer rows.Close()

	images := make([]domain.Image, 0, limit)
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate images: %w", err)
	}
	return images, nil
}

func (s *PostgresImageStore) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count images: %w", err)
	}
	return count, nil
}

func (s *PostgresImageStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	if affected == 0 {
		return ErrImageNotFound
	}
	return nil
}

func (s *PostgresImageStore) CreateUsageLog(ctx context.Context, usage domain.UsageLog) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO usage_logs (user_id, image_id, pixels_processed, bytes_written, compute_time_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		usage.UserID,
		usage.ImageID,
		usage.PixelsProcessed,
		usage.BytesWritten,
		usage.ComputeTimeMS,
		usage.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage log: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImage(row rowScanner) (domain.Image, error) {
	var img domain.Image
	err := row.Scan(
		&img.ID,
		&img.UserID,
		&img.Filename,
		&img.OriginalName,
		&img.FilePath,
		&img.FileSize,
		&img.MIMEType,
		&img.SourceType,
		&img.CreatedAt,
	)
	return img, err
}
