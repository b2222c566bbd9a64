// Package blobstore wraps the S3-compatible object store behind the small
// set of operations the upload pipeline needs: multipart lifecycle calls,
// presigned URL generation, and single-object management.
//
// The gateway is constructed once from an immutable Config; nothing here
// reads ambient/global state. All failures coming back from the store are
// reported as *common.UpstreamError carrying the store's own error code and
// message when available.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/terravista/terraplan/internal/common"
)

// Test seams over the SDK constructors, so gateway construction can be
// exercised without real credentials.
var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}
)

// Bounds for caller-specified download/share URL expiry. Part and single-PUT
// URL windows are fixed by server config instead.
const (
	MinDownloadTTL = 60 * time.Second
	MaxDownloadTTL = 7 * 24 * time.Hour
)

// Config holds everything needed to reach the object store. It is read once
// at construction time.
type Config struct {
	AccessKey    string
	SecretKey    string
	Region       string
	BaseEndpoint string
	Bucket       string
	UsePathStyle bool
}

// S3API is the subset of *s3.Client the gateway calls. Tests substitute a
// fake that records calls.
type S3API interface {
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// PresignAPI is the subset of *s3.PresignClient the gateway calls.
type PresignAPI interface {
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignUploadPart(ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Part is one completed part as reported by the client: the part number it
// uploaded under and the ETag the store returned for it.
type Part struct {
	PartNumber int32
	ETag       string
}

// CompletedObject is what the store reports after a successful multipart
// completion. Either field may be empty depending on the store
// implementation.
type CompletedObject struct {
	Location string
	ETag     string
}

// ObjectInfo describes one stored object in a listing.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ListPage is one page of a prefix listing. NextToken is empty on the last
// page; otherwise it is passed back verbatim to fetch the following page.
type ListPage struct {
	Items     []ObjectInfo
	NextToken string
}

type Gateway struct {
	client  S3API
	presign PresignAPI
	bucket  string
}

// New builds a Gateway from cfg. Static credentials and a base endpoint
// override make this work against MinIO and other S3-compatible stores as
// well as AWS itself.
func New(ctx context.Context, cfg Config) (*Gateway, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Gateway{
		client:  client,
		presign: newS3PresignClient(client),
		bucket:  cfg.Bucket,
	}, nil
}

// NewWithClients wires a Gateway over preconstructed clients. Used by tests.
func NewWithClients(bucket string, client S3API, presign PresignAPI) *Gateway {
	return &Gateway{client: client, presign: presign, bucket: bucket}
}

// Bucket returns the configured bucket name.
func (g *Gateway) Bucket() string {
	return g.bucket
}

// wrapUpstream converts an SDK error into *common.UpstreamError, pulling out
// the store's error code and message when the error is a service response.
func wrapUpstream(err error) error {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return &common.UpstreamError{Code: ae.ErrorCode(), Message: ae.ErrorMessage(), Err: err}
	}
	return &common.UpstreamError{Message: err.Error(), Err: err}
}

// isNotFound reports whether err is the store telling us the referenced
// upload or object no longer exists.
func isNotFound(err error) bool {
	var nsu *types.NoSuchUpload
	if errors.As(err, &nsu) {
		return true
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "NoSuchUpload", "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

// CreateMultipartUpload asks the store to open a new multipart upload for
// key and returns the upload id it minted. The id is a capability: every
// later part-sign, complete, or abort call must present it.
func (g *Gateway) CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	out, err := g.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(g.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", wrapUpstream(err)
	}
	return aws.ToString(out.UploadId), nil
}

// SignPart produces a presigned URL for uploading one part. No check is made
// that uploadID refers to a live upload; the store performs that check when
// the client actually PUTs.
func (g *Gateway) SignPart(ctx context.Context, key, uploadID string, partNumber int32, ttl time.Duration) (string, error) {
	req, err := g.presign.PresignUploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(g.bucket),
		Key:        aws.String(key),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(partNumber),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", wrapUpstream(err)
	}
	return req.URL, nil
}

// CompleteMultipartUpload finalizes the upload from the given part list.
// Parts must already be in ascending part-number order; the store rejects
// out-of-order or duplicate-numbered lists atomically, leaving the upload
// open.
func (g *Gateway) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []Part) (CompletedObject, error) {
	completed := make([]types.CompletedPart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, types.CompletedPart{
			PartNumber: aws.Int32(p.PartNumber),
			ETag:       aws.String(p.ETag),
		})
	}

	out, err := g.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(g.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		return CompletedObject{}, wrapUpstream(err)
	}
	return CompletedObject{
		Location: aws.ToString(out.Location),
		ETag:     aws.ToString(out.ETag),
	}, nil
}

// AbortMultipartUpload discards an in-progress upload and its parts. A
// "no such upload" answer from the store counts as success: the desired end
// state, an upload that no longer consumes resources, already holds.
func (g *Gateway) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	_, err := g.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(g.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return wrapUpstream(err)
	}
	return nil
}

// SignPut produces a presigned URL for a whole-object single PUT.
func (g *Gateway) SignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	in := &s3.PutObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	req, err := g.presign.PresignPutObject(ctx, in, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", wrapUpstream(err)
	}
	return req.URL, nil
}

// SignGet produces a presigned download URL. ttl must be within
// [MinDownloadTTL, MaxDownloadTTL]. A non-empty downloadName is embedded as
// a content-disposition override so browsers save the object under that
// name.
func (g *Gateway) SignGet(ctx context.Context, key string, ttl time.Duration, downloadName string) (string, error) {
	if ttl < MinDownloadTTL || ttl > MaxDownloadTTL {
		return "", common.Validationf("expiry must be between %v and %v, got %v", MinDownloadTTL, MaxDownloadTTL, ttl)
	}

	in := &s3.GetObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	}
	if downloadName != "" {
		in.ResponseContentDisposition = aws.String(fmt.Sprintf("attachment; filename=%q", downloadName))
	}

	req, err := g.presign.PresignGetObject(ctx, in, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", wrapUpstream(err)
	}
	return req.URL, nil
}

// DeleteObject removes key from the store.
func (g *Gateway) DeleteObject(ctx context.Context, key string) error {
	_, err := g.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return wrapUpstream(err)
	}
	return nil
}

// CopyObject copies fromKey to toKey within the bucket.
func (g *Gateway) CopyObject(ctx context.Context, fromKey, toKey string) error {
	source := g.bucket + "/" + fromKey
	_, err := g.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(g.bucket),
		Key:        aws.String(toKey),
		CopySource: aws.String(url.PathEscape(source)),
	})
	if err != nil {
		return wrapUpstream(err)
	}
	return nil
}

// ListObjects returns one page of keys under prefix. Pass the NextToken of
// the previous page to continue; an empty token starts from the beginning.
func (g *Gateway) ListObjects(ctx context.Context, prefix, token string) (ListPage, error) {
	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(g.bucket),
	}
	if prefix != "" {
		in.Prefix = aws.String(prefix)
	}
	if token != "" {
		in.ContinuationToken = aws.String(token)
	}

	out, err := g.client.ListObjectsV2(ctx, in)
	if err != nil {
		return ListPage{}, wrapUpstream(err)
	}

	page := ListPage{Items: make([]ObjectInfo, 0, len(out.Contents))}
	for _, obj := range out.Contents {
		page.Items = append(page.Items, ObjectInfo{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	if aws.ToBool(out.IsTruncated) {
		page.NextToken = aws.ToString(out.NextContinuationToken)
	}
	return page, nil
}
