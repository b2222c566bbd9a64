package filerecords

import (
	"context"
	"fmt"

	"github.com/terravista/terraplan/internal/dbx"
	"github.com/terravista/terraplan/internal/server/models"
)

// PostgresRepository implements file record storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, record *models.FileRecord) error {
	query := `
		INSERT INTO file_records (milestone_id, name, content_type, size, storage_key, url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at;
	`
	err := r.db.QueryRowContext(ctx, query,
		record.MilestoneID, record.Name, record.ContentType, record.Size, record.StorageKey, record.URL).
		Scan(&record.ID, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByMilestone(ctx context.Context, milestoneID string) ([]*models.FileRecord, error) {
	query := `
		SELECT id, milestone_id, name, content_type, size, storage_key, url, created_at, updated_at
		FROM file_records
		WHERE milestone_id = $1
		ORDER BY created_at DESC;
	`
	rows, err := r.db.QueryContext(ctx, query, milestoneID)
	if err != nil {
		return nil, fmt.Errorf("failed to select file records: %w", err)
	}
	defer rows.Close()

	var result []*models.FileRecord
	for rows.Next() {
		var item models.FileRecord
		if err := rows.Scan(&item.ID, &item.MilestoneID, &item.Name, &item.ContentType,
			&item.Size, &item.StorageKey, &item.URL, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) UpdateStorageKey(ctx context.Context, oldKey, newKey string) error {
	query := `
		UPDATE file_records
		SET storage_key = $2, updated_at = now()
		WHERE storage_key = $1;
	`
	if _, err := r.db.ExecContext(ctx, query, oldKey, newKey); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteByStorageKey(ctx context.Context, key string) error {
	query := `DELETE FROM file_records WHERE storage_key = $1;`
	if _, err := r.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
