package httpapi

// Request/response bodies for the upload API. Every endpoint has an explicit
// typed body; nothing is read loosely out of raw JSON.

type createUploadRequest struct {
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

type createUploadResponse struct {
	OK       bool   `json:"ok"`
	Bucket   string `json:"bucket"`
	Key      string `json:"key"`
	UploadID string `json:"uploadId"`
}

type signPartRequest struct {
	Key        string `json:"key"`
	UploadID   string `json:"uploadId"`
	PartNumber int32  `json:"partNumber"`
}

type partInput struct {
	ETag       string `json:"ETag"`
	PartNumber int32  `json:"PartNumber"`
}

type completeUploadRequest struct {
	Key      string      `json:"key"`
	UploadID string      `json:"uploadId"`
	Parts    []partInput `json:"parts"`

	// Optional file-record fields; when milestoneId is present the finished
	// object is registered with the tracker.
	MilestoneID string `json:"milestoneId"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

type completeUploadResponse struct {
	OK       bool   `json:"ok"`
	Location string `json:"location,omitempty"`
	ETag     string `json:"etag,omitempty"`
}

type abortUploadRequest struct {
	Key      string `json:"key"`
	UploadID string `json:"uploadId"`
}

type signPutRequest struct {
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
}

type signPutResponse struct {
	OK  bool   `json:"ok"`
	Key string `json:"key"`
	URL string `json:"url"`
}

type fileItem struct {
	Key          string `json:"key"`
	Size         int64  `json:"size"`
	LastModified string `json:"lastModified"`
}

type listFilesResponse struct {
	OK        bool       `json:"ok"`
	Count     int        `json:"count"`
	Items     []fileItem `json:"items"`
	NextToken string     `json:"nextToken,omitempty"`
}

type fileURLRequest struct {
	Key     string `json:"key"`
	Expires int64  `json:"expires"` // seconds; 0 means the server default
}

type renameRequest struct {
	FromKey string `json:"fromKey"`
	ToKey   string `json:"toKey"`
}

type shareRequest struct {
	Key          string `json:"key"`
	Expires      int64  `json:"expires"`
	DownloadName string `json:"downloadName"`
}

type urlResponse struct {
	OK  bool   `json:"ok"`
	URL string `json:"url"`
}

type recordItem struct {
	ID          string `json:"id"`
	MilestoneID string `json:"milestoneId"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Key         string `json:"key"`
	URL         string `json:"url,omitempty"`
	CreatedAt   string `json:"createdAt"`
}

type listRecordsResponse struct {
	OK    bool         `json:"ok"`
	Count int          `json:"count"`
	Items []recordItem `json:"items"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
