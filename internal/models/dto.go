package models

import "time"

// UploadResponse is returned by the intake endpoint after an upload
type UploadResponse struct {
	Message     string `json:"message"`
	FileID      string `json:"fileId,omitempty"`
	IsDuplicate bool   `json:"isDuplicate,omitempty"`
}

// NewUploadResponse creates a response for a newly stored photo
func NewUploadResponse(id string) UploadResponse {
	return UploadResponse{
		Message: "File uploaded successfully",
		FileID:  id,
	}
}

// DuplicateUploadResponse creates a response for content the server already holds
func DuplicateUploadResponse(id string) UploadResponse {
	return UploadResponse{
		Message:     "File already uploaded",
		FileID:      id,
		IsDuplicate: true,
	}
}

// CheckHashesRequest is the request body for checking hashes
type CheckHashesRequest struct {
	Hashes []string `json:"hashes"`
}

// CheckHashesResult is returned when checking which hashes exist
type CheckHashesResult struct {
	Existing []string `json:"existing"`
	Missing  []string `json:"missing"`
}

// PhotoResponse is a single photo in API responses
type PhotoResponse struct {
	ID               string    `json:"id"`
	OriginalFilename string    `json:"originalFilename"`
	StoredPath       string    `json:"storedPath"`
	FileSize         int64     `json:"fileSize"`
	ContentType      string    `json:"contentType"`
	DateTaken        time.Time `json:"dateTaken"`
	UploadedAt       time.Time `json:"uploadedAt"`
}

// PhotoListResponse is returned when listing photos
type PhotoListResponse struct {
	Photos     []PhotoResponse `json:"photos"`
	TotalCount int             `json:"totalCount"`
	Skip       int             `json:"skip"`
	Take       int             `json:"take"`
}

// HealthResponse is returned by health check
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// SyncStatusResponse is returned by the agent status endpoint
type SyncStatusResponse struct {
	Running   bool       `json:"running"`
	State     string     `json:"state"`
	Watermark int64      `json:"watermark"`
	Indexed   int        `json:"indexed"`
	Pending   int        `json:"pending"`
	Stats     *SyncStats `json:"stats,omitempty"`
}

// SyncRunResponse is returned after a manual sync request
type SyncRunResponse struct {
	Message string     `json:"message"`
	Result  SyncResult `json:"result"`
}

// PhotoToResponse converts a Photo to PhotoResponse
func PhotoToResponse(p *Photo) PhotoResponse {
	return PhotoResponse{
		ID:               p.ID,
		OriginalFilename: p.OriginalFilename,
		StoredPath:       p.StoredPath,
		FileSize:         p.FileSize,
		ContentType:      p.ContentType,
		DateTaken:        p.DateTaken,
		UploadedAt:       p.UploadedAt,
	}
}
