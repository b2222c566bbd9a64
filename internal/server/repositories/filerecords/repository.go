// Package filerecords persists FileRecord rows.
package filerecords

import (
	"context"

	"github.com/terravista/terraplan/internal/server/models"
)

type Repository interface {
	// Create inserts a new record and fills in its generated ID.
	Create(ctx context.Context, record *models.FileRecord) error

	// ListByMilestone returns all records attached to a milestone, newest
	// first.
	ListByMilestone(ctx context.Context, milestoneID string) ([]*models.FileRecord, error)

	// UpdateStorageKey repoints every record at oldKey to newKey. Used when
	// an object is renamed in the store.
	UpdateStorageKey(ctx context.Context, oldKey, newKey string) error

	// DeleteByStorageKey removes records for objects deleted from the store.
	DeleteByStorageKey(ctx context.Context, key string) error
}
