package models

// DocumentStatus is one uploaded document as reported by the backend.
// The backend reports "pending" before processing starts.
type DocumentStatus struct {
	ID              FlexString `json:"id"`
	Filename        string     `json:"filename,omitempty"`
	FilePath        string     `json:"file_path,omitempty"`
	Status          string     `json:"status"`
	UploadedAt      string     `json:"uploaded_at,omitempty"`
	CreatedAt       string     `json:"created_at,omitempty"`
	ProcessedAt     string     `json:"processed_at,omitempty"`
	FileSize        int64      `json:"file_size,omitempty"`
	ProcessedChunks int        `json:"processed_chunks,omitempty"`
	TotalChunks     int        `json:"total_chunks,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// DocumentStatusResponse is the response of GET /upload/documents/status.
type DocumentStatusResponse struct {
	Documents []DocumentStatus `json:"documents"`
}

// UploadResponse is the backend's answer to a successful upload.
type UploadResponse struct {
	Msg      string     `json:"msg,omitempty"`
	ID       FlexString `json:"id,omitempty"`
	FilePath string     `json:"file_path,omitempty"`
	Status   string     `json:"status,omitempty"`
}

// UploadProgress tracks one file transfer from ragdesk to the backend.
type UploadProgress struct {
	// ID identifies the upload within a desk session
	ID string `json:"id"`

	// Filename is the name the user picked
	Filename string `json:"filename"`

	// Written and Total are byte counts; Percent is round(Written*100/Total)
	Written int64 `json:"written"`
	Total   int64 `json:"total"`
	Percent int   `json:"percent"`

	// State is "uploading", "succeeded" or "failed"
	State string `json:"state"`

	// Message is the user-facing outcome once the upload finished
	Message string `json:"message,omitempty"`
}

// Upload states.
const (
	UploadUploading = "uploading"
	UploadSucceeded = "succeeded"
	UploadFailed    = "failed"
)
