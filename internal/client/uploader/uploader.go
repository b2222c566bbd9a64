// Package uploader drives the presigned upload protocol from the client
// side: it asks the server to open an upload, PUTs the bytes straight to the
// object store over presigned URLs, and finalizes with the collected ETags.
// The server never sees the file content.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"

	"github.com/terravista/terraplan/internal/netx"
)

// DefaultPartSize balances request count against memory: 8 MiB parts keep a
// 10 GiB upload well under the store's part-count ceiling.
const DefaultPartSize = 8 << 20

const DefaultParallel = 4

// Client talks to one terraplan server.
type Client struct {
	BaseURL  string
	APIKey   string
	HTTP     *http.Client
	PartSize int64
	Parallel int
}

// Result describes the finished object.
type Result struct {
	Key      string
	Location string
	ETag     string
}

// Options carries the optional file-record fields sent at completion time.
type Options struct {
	Key         string
	ContentType string
	MilestoneID string
	Name        string
}

type apiEnvelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type createResponse struct {
	apiEnvelope
	Bucket   string `json:"bucket"`
	Key      string `json:"key"`
	UploadID string `json:"uploadId"`
}

type urlResponse struct {
	apiEnvelope
	Key string `json:"key"`
	URL string `json:"url"`
}

type completeResponse struct {
	apiEnvelope
	Location string `json:"location"`
	ETag     string `json:"etag"`
}

type partResult struct {
	PartNumber int32  `json:"PartNumber"`
	ETag       string `json:"ETag"`
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) partSize() int64 {
	if c.PartSize > 0 {
		return c.PartSize
	}
	return DefaultPartSize
}

func (c *Client) parallel() int {
	if c.Parallel > 0 {
		return c.Parallel
	}
	return DefaultParallel
}

// post sends one JSON request to the server API and decodes the response
// into out, which must embed apiEnvelope.
func (c *Client) post(ctx context.Context, path string, body any, out interface {
	envelope() *apiEnvelope
}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.APIKey)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", path, err)
	}

	env := out.envelope()
	if !env.OK {
		msg := env.Error
		if msg == "" {
			msg = resp.Status
		}
		return fmt.Errorf("%s: server error: %s", path, msg)
	}
	return nil
}

func (e *apiEnvelope) envelope() *apiEnvelope { return e }

// UploadFile uploads the file at path. Files no larger than one part go via
// the single-PUT route; everything else runs the multipart protocol with
// parts uploaded in parallel.
func (c *Client) UploadFile(ctx context.Context, path string, opts Options) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Result{}, err
	}

	if info.Size() <= c.partSize() {
		return c.uploadSingle(ctx, f, opts)
	}
	return c.uploadMultipart(ctx, f, info.Size(), opts)
}

func (c *Client) uploadSingle(ctx context.Context, r io.Reader, opts Options) (Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Result{}, err
	}

	var signed urlResponse
	err = c.post(ctx, "/uploads/sign-put", map[string]string{
		"key":         opts.Key,
		"contentType": opts.ContentType,
	}, &signed)
	if err != nil {
		return Result{}, err
	}

	etag, err := netx.PutPresigned(ctx, c.httpClient(), signed.URL, opts.ContentType, data)
	if err != nil {
		return Result{}, err
	}

	return Result{Key: signed.Key, ETag: etag}, nil
}

func (c *Client) uploadMultipart(ctx context.Context, r io.Reader, size int64, opts Options) (Result, error) {
	var created createResponse
	err := c.post(ctx, "/uploads/create", map[string]any{
		"key":         opts.Key,
		"contentType": opts.ContentType,
		"size":        size,
	}, &created)
	if err != nil {
		return Result{}, err
	}

	parts, err := c.uploadParts(ctx, r, created.Key, created.UploadID, opts.ContentType)
	if err != nil {
		c.abort(created.Key, created.UploadID)
		return Result{}, err
	}

	var completed completeResponse
	err = c.post(ctx, "/uploads/complete", map[string]any{
		"key":         created.Key,
		"uploadId":    created.UploadID,
		"parts":       parts,
		"milestoneId": opts.MilestoneID,
		"name":        opts.Name,
		"contentType": opts.ContentType,
		"size":        size,
	}, &completed)
	if err != nil {
		// Completion failures are surfaced, not retried: a blind retry
		// against a store-side success could double-finalize. The upload is
		// aborted so it stops consuming storage.
		c.abort(created.Key, created.UploadID)
		return Result{}, err
	}

	return Result{Key: created.Key, Location: completed.Location, ETag: completed.ETag}, nil
}

type partJob struct {
	number int32
	data   []byte
}

// uploadParts reads r sequentially into part-sized chunks and uploads them
// over a small pool of workers. Part order on the wire does not matter; the
// server sorts the final list before completing.
func (c *Client) uploadParts(ctx context.Context, r io.Reader, key, uploadID, contentType string) ([]partResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan partJob)
	results := make(chan partResult)
	errs := make(chan error, c.parallel()+1)

	var wg sync.WaitGroup
	for i := 0; i < c.parallel(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				etag, err := c.uploadOnePart(ctx, key, uploadID, job.number, contentType, job.data)
				if err != nil {
					errs <- fmt.Errorf("part %d: %w", job.number, err)
					cancel()
					return
				}
				select {
				case results <- partResult{PartNumber: job.number, ETag: etag}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		number := int32(1)
		for {
			buf := make([]byte, c.partSize())
			n, err := io.ReadFull(r, buf)
			if n > 0 {
				select {
				case jobs <- partJob{number: number, data: buf[:n]}:
					number++
				case <-ctx.Done():
					return
				}
			}
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return
			}
			if err != nil {
				errs <- err
				cancel()
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var parts []partResult
	for part := range results {
		parts = append(parts, part)
	}

	select {
	case err := <-errs:
		return nil, err
	default:
	}

	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })
	return parts, nil
}

func (c *Client) uploadOnePart(ctx context.Context, key, uploadID string, number int32, contentType string, data []byte) (string, error) {
	var signed urlResponse
	err := c.post(ctx, "/uploads/sign-part", map[string]any{
		"key":        key,
		"uploadId":   uploadID,
		"partNumber": number,
	}, &signed)
	if err != nil {
		return "", err
	}

	return netx.PutPresigned(ctx, c.httpClient(), signed.URL, contentType, data)
}

// abort is best-effort cleanup after a failed upload; its own failure is
// ignored, since abandoned uploads are reclaimed by store lifecycle rules.
func (c *Client) abort(key, uploadID string) {
	var resp apiEnvelope
	_ = c.post(context.Background(), "/uploads/abort", map[string]string{
		"key":      key,
		"uploadId": uploadID,
	}, &resp)
}
