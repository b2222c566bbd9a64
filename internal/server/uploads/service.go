// Package uploads implements the presigned upload orchestration: multipart
// lifecycle (create, sign-part, complete, abort), the single-PUT variant for
// small files, and the file-management operations layered on the same
// gateway.
//
// The service is deliberately stateless with respect to in-progress uploads.
// The upload id minted by the store is a capability: any server instance can
// act on it, and the store is the only authority on which uploads are still
// open. There is no in-process session table to keep consistent, which is
// what makes the orchestrator trivially horizontally scalable.
package uploads

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/terravista/terraplan/internal/common"
	"github.com/terravista/terraplan/internal/dbx"
	"github.com/terravista/terraplan/internal/logging"
	"github.com/terravista/terraplan/internal/server/blobstore"
	sc "github.com/terravista/terraplan/internal/server/config"
	"github.com/terravista/terraplan/internal/server/models"
	"github.com/terravista/terraplan/internal/server/repositories/filerecords"
)

// MaxUploadSize caps the declared size of a multipart upload. Larger
// declarations are rejected before any store call.
const MaxUploadSize = 10 << 30 // 10 GiB

// DefaultContentType is assumed when the client declares none.
const DefaultContentType = "application/octet-stream"

// keyPrefix is where server-generated keys live.
const keyPrefix = "uploads"

// allowedContentTypes is the closed set of types a client may declare.
var allowedContentTypes = map[string]struct{}{
	"application/pdf":          {},
	"image/jpeg":               {},
	"image/png":                {},
	"application/octet-stream": {},
}

// Store is what the service needs from the object storage gateway. Tests
// substitute a fake that counts calls.
type Store interface {
	Bucket() string
	CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error)
	SignPart(ctx context.Context, key, uploadID string, partNumber int32, ttl time.Duration) (string, error)
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []blobstore.Part) (blobstore.CompletedObject, error)
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
	SignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	SignGet(ctx context.Context, key string, ttl time.Duration, downloadName string) (string, error)
	DeleteObject(ctx context.Context, key string) error
	CopyObject(ctx context.Context, fromKey, toKey string) error
	ListObjects(ctx context.Context, prefix, token string) (blobstore.ListPage, error)
}

type Service struct {
	store  Store
	db     *sql.DB
	config *sc.Config
	logger logging.Logger
}

// NewService wires the orchestrator. db may be nil, in which case completed
// uploads are not registered as file records.
func NewService(store Store, db *sql.DB, config *sc.Config, logger logging.Logger) *Service {
	return &Service{
		store:  store,
		db:     db,
		config: config,
		logger: logger.With("module", "uploads"),
	}
}

// RandomStorageKey generates a collision-resistant object key under the
// upload prefix, bucketed by date so store listings stay navigable.
func RandomStorageKey() string {
	d := time.Now()
	return fmt.Sprintf("%s/%d/%02d/%02d/%v", keyPrefix, d.Year(), d.Month(), d.Day(), uuid.New())
}

// validateContentType applies the allow-list. Empty input falls back to
// DefaultContentType.
func validateContentType(contentType string) (string, error) {
	if contentType == "" {
		return DefaultContentType, nil
	}
	if _, ok := allowedContentTypes[contentType]; !ok {
		return "", &common.ValidationError{
			Reason: fmt.Sprintf("unsupported content type %q", contentType),
			Err:    common.ErrorUnsupportedContentType,
		}
	}
	return contentType, nil
}

// CreateResult is what the client needs to start uploading parts.
type CreateResult struct {
	Bucket   string
	Key      string
	UploadID string
}

// CreateUpload opens a multipart upload. key may be empty, in which case a
// server-generated one is used. size is the client's declared total size and
// is only checked against the cap; the store never sees it.
func (s *Service) CreateUpload(ctx context.Context, key, contentType string, size int64) (CreateResult, error) {
	ct, err := validateContentType(contentType)
	if err != nil {
		return CreateResult{}, err
	}
	if size < 0 {
		return CreateResult{}, common.Validationf("size must not be negative")
	}
	if size > MaxUploadSize {
		return CreateResult{}, common.Validationf("size %d exceeds the %d byte limit", size, MaxUploadSize)
	}
	if key == "" {
		key = RandomStorageKey()
	}

	uploadID, err := s.store.CreateMultipartUpload(ctx, key, ct)
	if err != nil {
		return CreateResult{}, err
	}

	s.logger.Info(ctx, "multipart upload created", "key", key, "uploadId", uploadID)

	return CreateResult{
		Bucket:   s.store.Bucket(),
		Key:      key,
		UploadID: uploadID,
	}, nil
}

// SignPartURL returns a presigned URL for one part. Re-signing an already
// uploaded part number is allowed; before completion the store lets the
// client overwrite a part by number, which is how retries work.
func (s *Service) SignPartURL(ctx context.Context, key, uploadID string, partNumber int32) (string, error) {
	if key == "" {
		return "", common.Validationf("key is required")
	}
	if uploadID == "" {
		return "", common.Validationf("uploadId is required")
	}
	if partNumber < 1 {
		return "", common.Validationf("partNumber must be >= 1, got %d", partNumber)
	}
	// No local upper bound on partNumber: the store enforces its own
	// maximum and rejects the excess at completion time.
	return s.store.SignPart(ctx, key, uploadID, partNumber, s.config.PartURLTTL)
}

// CompleteInput carries everything needed to finalize an upload. The record
// fields are optional; when MilestoneID is set the finished object is also
// registered as a FileRecord.
type CompleteInput struct {
	Key         string
	UploadID    string
	Parts       []blobstore.Part
	MilestoneID string
	Name        string
	ContentType string
	Size        int64
}

// Complete finalizes a multipart upload from the client's part list. Parts
// are sorted by part number before the store call; the order the client
// collected them in does not matter. Completion is not idempotent: on an
// ambiguous failure the caller must not blindly retry, because a second
// finalize against a store-side success can double-finalize.
func (s *Service) Complete(ctx context.Context, in CompleteInput) (blobstore.CompletedObject, error) {
	if in.Key == "" {
		return blobstore.CompletedObject{}, common.Validationf("key is required")
	}
	if in.UploadID == "" {
		return blobstore.CompletedObject{}, common.Validationf("uploadId is required")
	}
	if len(in.Parts) == 0 {
		return blobstore.CompletedObject{}, common.Validationf("at least one part is required")
	}
	for _, p := range in.Parts {
		if p.PartNumber < 1 {
			return blobstore.CompletedObject{}, common.Validationf("partNumber must be >= 1, got %d", p.PartNumber)
		}
		if p.ETag == "" {
			return blobstore.CompletedObject{}, common.Validationf("part %d is missing its ETag", p.PartNumber)
		}
	}

	parts := make([]blobstore.Part, len(in.Parts))
	copy(parts, in.Parts)
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })

	result, err := s.store.CompleteMultipartUpload(ctx, in.Key, in.UploadID, parts)
	if err != nil {
		return blobstore.CompletedObject{}, err
	}

	s.logger.Info(ctx, "multipart upload completed", "key", in.Key, "uploadId", in.UploadID, "parts", len(parts))

	if in.MilestoneID != "" {
		s.registerRecord(ctx, in, result)
	}

	return result, nil
}

// registerRecord writes the durable FileRecord for a finished upload. The
// object already exists in the store at this point, so a failed insert is
// logged and does not fail the completion; the CRUD layer can re-register
// from the store listing.
func (s *Service) registerRecord(ctx context.Context, in CompleteInput, result blobstore.CompletedObject) {
	if s.db == nil {
		s.logger.Warn(ctx, "no database configured, skipping file record", "key", in.Key)
		return
	}

	ct := in.ContentType
	if ct == "" {
		ct = DefaultContentType
	}

	record := &models.FileRecord{
		MilestoneID: in.MilestoneID,
		Name:        in.Name,
		ContentType: ct,
		Size:        in.Size,
		StorageKey:  in.Key,
		URL:         result.Location,
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return filerecords.NewPostgresRepository(tx).Create(ctx, record)
	})
	if err != nil {
		s.logger.Error(ctx, "file record insert failed", "key", in.Key, "milestoneId", in.MilestoneID, "error", err)
		return
	}

	s.logger.Info(ctx, "file record registered", "id", record.ID, "milestoneId", in.MilestoneID)
}

// Abort discards an in-progress upload. Safe to call at any time before
// completion, and safe to repeat: a second abort finds nothing to remove and
// still succeeds.
func (s *Service) Abort(ctx context.Context, key, uploadID string) error {
	if key == "" {
		return common.Validationf("key is required")
	}
	if uploadID == "" {
		return common.Validationf("uploadId is required")
	}
	if err := s.store.AbortMultipartUpload(ctx, key, uploadID); err != nil {
		return err
	}
	s.logger.Info(ctx, "multipart upload aborted", "key", key, "uploadId", uploadID)
	return nil
}

// SignedPutURL is the single-PUT variant for small files: one presigned URL
// covering the whole object.
func (s *Service) SignedPutURL(ctx context.Context, key, contentType string) (string, string, error) {
	ct, err := validateContentType(contentType)
	if err != nil {
		return "", "", err
	}
	if key == "" {
		key = RandomStorageKey()
	}
	url, err := s.store.SignPut(ctx, key, ct, s.config.PutURLTTL)
	if err != nil {
		return "", "", err
	}
	return key, url, nil
}

// SignedGetURL produces a download URL for key. expires may be zero to take
// the configured default; otherwise it must sit within the signer's
// [60s, 7d] window. downloadName, when set, becomes the suggested filename
// via a content-disposition override.
func (s *Service) SignedGetURL(ctx context.Context, key string, expires time.Duration, downloadName string) (string, error) {
	if key == "" {
		return "", common.Validationf("key is required")
	}
	if expires == 0 {
		expires = s.config.DownloadURLTTL
	}
	return s.store.SignGet(ctx, key, expires, downloadName)
}

// List returns one page of objects under prefix, with an opaque token to
// continue from.
func (s *Service) List(ctx context.Context, prefix, token string) (blobstore.ListPage, error) {
	return s.store.ListObjects(ctx, prefix, token)
}

// Rename moves an object from fromKey to toKey as copy-then-delete. This is
// not atomic: if the delete fails after a successful copy, the object exists
// at both keys and the error is surfaced. Callers must treat rename as
// at-least-once copy with best-effort delete of the source, and reconcile
// duplicates out of band.
func (s *Service) Rename(ctx context.Context, fromKey, toKey string) error {
	if fromKey == "" || toKey == "" {
		return common.Validationf("fromKey and toKey are required")
	}
	if fromKey == toKey {
		return common.Validationf("fromKey and toKey must differ")
	}

	if err := s.store.CopyObject(ctx, fromKey, toKey); err != nil {
		return err
	}
	if err := s.store.DeleteObject(ctx, fromKey); err != nil {
		s.logger.Warn(ctx, "rename left source object behind", "fromKey", fromKey, "toKey", toKey, "error", err)
		return err
	}

	s.repointRecords(ctx, fromKey, toKey)
	return nil
}

// repointRecords keeps file records aligned with a store-side rename.
func (s *Service) repointRecords(ctx context.Context, fromKey, toKey string) {
	if s.db == nil {
		return
	}
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return filerecords.NewPostgresRepository(tx).UpdateStorageKey(ctx, fromKey, toKey)
	})
	if err != nil {
		s.logger.Error(ctx, "file record repoint failed", "fromKey", fromKey, "toKey", toKey, "error", err)
	}
}

// Delete removes an object and any file records pointing at it.
func (s *Service) Delete(ctx context.Context, key string) error {
	if key == "" {
		return common.Validationf("key is required")
	}
	if err := s.store.DeleteObject(ctx, key); err != nil {
		return err
	}
	if s.db != nil {
		err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			return filerecords.NewPostgresRepository(tx).DeleteByStorageKey(ctx, key)
		})
		if err != nil {
			s.logger.Error(ctx, "file record cleanup failed", "key", key, "error", err)
		}
	}
	return nil
}

// Records lists the durable file records attached to a milestone.
func (s *Service) Records(ctx context.Context, milestoneID string) ([]*models.FileRecord, error) {
	if milestoneID == "" {
		return nil, common.Validationf("milestoneId is required")
	}
	if s.db == nil {
		return nil, common.ErrorNotFound
	}
	return filerecords.NewPostgresRepository(s.db).ListByMilestone(ctx, milestoneID)
}
