// Package models holds the durable row types owned by the server.
package models

import "time"

// FileRecord is the durable artifact written after an upload finishes: the
// link between a milestone and the object the client placed in the store.
// The object store remains authoritative for the bytes; this row only lets
// the tracker list a milestone's deliverables without a store round-trip.
type FileRecord struct {
	ID          string
	MilestoneID string
	Name        string
	ContentType string
	Size        int64
	StorageKey  string
	URL         string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
