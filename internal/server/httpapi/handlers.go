package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/terravista/terraplan/internal/common"
	"github.com/terravista/terraplan/internal/logging"
	"github.com/terravista/terraplan/internal/server/blobstore"
	"github.com/terravista/terraplan/internal/server/uploads"
)

type Handler struct {
	uploads *uploads.Service
	logger  logging.Logger
}

func NewHandler(u *uploads.Service, l logging.Logger) *Handler {
	return &Handler{uploads: u, logger: l.With("module", "httpapi")}
}

// statusFromError translates the error taxonomy to an HTTP status exactly
// once, here at the edge. Everything below the handlers returns tagged
// errors and never thinks in status codes.
func statusFromError(err error) int {
	if errors.Is(err, common.ErrorUnsupportedContentType) {
		return http.StatusUnsupportedMediaType
	}
	if errors.Is(err, common.ErrorNotFound) {
		return http.StatusNotFound
	}
	var ve *common.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFromError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, errorResponse{Error: err.Error()})
}

func (h *Handler) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// CreateUpload opens a multipart upload and hands the client the capability
// (key + uploadId) it needs for every later call.
func (h *Handler) CreateUpload(c *gin.Context) {
	var req createUploadRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.uploads.CreateUpload(c.Request.Context(), req.Key, req.ContentType, req.Size)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, createUploadResponse{
		OK:       true,
		Bucket:   result.Bucket,
		Key:      result.Key,
		UploadID: result.UploadID,
	})
}

func (h *Handler) SignPart(c *gin.Context) {
	var req signPartRequest
	if !h.bindJSON(c, &req) {
		return
	}

	url, err := h.uploads.SignPartURL(c.Request.Context(), req.Key, req.UploadID, req.PartNumber)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, urlResponse{OK: true, URL: url})
}

func (h *Handler) CompleteUpload(c *gin.Context) {
	var req completeUploadRequest
	if !h.bindJSON(c, &req) {
		return
	}

	parts := make([]blobstore.Part, 0, len(req.Parts))
	for _, p := range req.Parts {
		parts = append(parts, blobstore.Part{PartNumber: p.PartNumber, ETag: p.ETag})
	}

	result, err := h.uploads.Complete(c.Request.Context(), uploads.CompleteInput{
		Key:         req.Key,
		UploadID:    req.UploadID,
		Parts:       parts,
		MilestoneID: req.MilestoneID,
		Name:        req.Name,
		ContentType: req.ContentType,
		Size:        req.Size,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, completeUploadResponse{
		OK:       true,
		Location: result.Location,
		ETag:     result.ETag,
	})
}

func (h *Handler) AbortUpload(c *gin.Context) {
	var req abortUploadRequest
	if !h.bindJSON(c, &req) {
		return
	}

	if err := h.uploads.Abort(c.Request.Context(), req.Key, req.UploadID); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, okResponse{OK: true})
}

// SignPut is the single-PUT path for small files.
func (h *Handler) SignPut(c *gin.Context) {
	var req signPutRequest
	if !h.bindJSON(c, &req) {
		return
	}

	key, url, err := h.uploads.SignedPutURL(c.Request.Context(), req.Key, req.ContentType)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, signPutResponse{OK: true, Key: key, URL: url})
}

func (h *Handler) ListFiles(c *gin.Context) {
	page, err := h.uploads.List(c.Request.Context(), c.Query("prefix"), c.Query("token"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	items := make([]fileItem, 0, len(page.Items))
	for _, obj := range page.Items {
		items = append(items, fileItem{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified.UTC().Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, listFilesResponse{
		OK:        true,
		Count:     len(items),
		Items:     items,
		NextToken: page.NextToken,
	})
}

func (h *Handler) FileURL(c *gin.Context) {
	var req fileURLRequest
	if !h.bindJSON(c, &req) {
		return
	}

	url, err := h.uploads.SignedGetURL(c.Request.Context(), req.Key, time.Duration(req.Expires)*time.Second, "")
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, urlResponse{OK: true, URL: url})
}

// DownloadFile redirects the browser straight to a short-lived signed GET
// URL, so the object bytes never pass through this server.
func (h *Handler) DownloadFile(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: "key is required"})
		return
	}

	var expires int64
	if raw := c.Query("expires"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "expires must be an integer number of seconds"})
			return
		}
		expires = parsed
	}

	url, err := h.uploads.SignedGetURL(c.Request.Context(), key, time.Duration(expires)*time.Second, "")
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Redirect(http.StatusFound, url)
}

func (h *Handler) RenameFile(c *gin.Context) {
	var req renameRequest
	if !h.bindJSON(c, &req) {
		return
	}

	if err := h.uploads.Rename(c.Request.Context(), req.FromKey, req.ToKey); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, okResponse{OK: true})
}

func (h *Handler) DeleteFile(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: "key is required"})
		return
	}

	if err := h.uploads.Delete(c.Request.Context(), key); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, okResponse{OK: true})
}

// ShareFile returns a signed GET URL with a content-disposition override so
// the recipient's browser saves the object under the given name.
func (h *Handler) ShareFile(c *gin.Context) {
	var req shareRequest
	if !h.bindJSON(c, &req) {
		return
	}

	url, err := h.uploads.SignedGetURL(c.Request.Context(), req.Key, time.Duration(req.Expires)*time.Second, req.DownloadName)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, urlResponse{OK: true, URL: url})
}

func (h *Handler) ListRecords(c *gin.Context) {
	records, err := h.uploads.Records(c.Request.Context(), c.Query("milestoneId"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	items := make([]recordItem, 0, len(records))
	for _, r := range records {
		items = append(items, recordItem{
			ID:          r.ID,
			MilestoneID: r.MilestoneID,
			Name:        r.Name,
			ContentType: r.ContentType,
			Size:        r.Size,
			Key:         r.StorageKey,
			URL:         r.URL,
			CreatedAt:   r.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, listRecordsResponse{OK: true, Count: len(items), Items: items})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, okResponse{OK: true})
}
