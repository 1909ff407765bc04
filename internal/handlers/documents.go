package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ragdesk/ragdesk/internal/models"
	"github.com/ragdesk/ragdesk/internal/services"
)

// maxFilesPerUpload bounds one multipart request.
const maxFilesPerUpload = 20

// UploadResult is the response of POST /api/documents, one entry per file.
type UploadResult struct {
	Uploads []models.UploadProgress `json:"uploads"`
}

// DocumentHandler contains HTTP handlers for document upload and status.
type DocumentHandler struct {
	documentService *services.DocumentService
	maxBytes        int64
}

// NewDocumentHandler creates a new DocumentHandler instance.
func NewDocumentHandler(documentService *services.DocumentService, maxBytes int64) *DocumentHandler {
	return &DocumentHandler{documentService: documentService, maxBytes: maxBytes}
}

// Upload handles POST /api/documents
// Every multipart "file" part is uploaded in order; a rejected file does not
// stop the others.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	desk, _ := services.DeskFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes*maxFilesPerUpload+1<<20)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "expected a multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "no file selected")
		return
	}
	if len(headers) > maxFilesPerUpload {
		writeError(w, http.StatusBadRequest, "too many files")
		return
	}

	files := make([]services.UploadFile, 0, len(headers))
	for _, fh := range headers {
		files = append(files, uploadFile(fh))
	}

	results := h.documentService.UploadAll(r.Context(), desk, files)
	writeJSON(w, http.StatusOK, UploadResult{Uploads: results})
}

func uploadFile(fh *multipart.FileHeader) services.UploadFile {
	return services.UploadFile{
		Name: fh.Filename,
		Size: fh.Size,
		Open: func() (io.ReadCloser, error) { return fh.Open() },
	}
}

// ListUploads handles GET /api/documents/uploads
// Returns this session's upload progress, oldest first.
func (h *DocumentHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	desk, _ := services.DeskFromContext(r.Context())
	writeJSON(w, http.StatusOK, UploadResult{Uploads: desk.Uploads.List()})
}

// Status handles GET /api/documents
func (h *DocumentHandler) Status(w http.ResponseWriter, r *http.Request) {
	desk, _ := services.DeskFromContext(r.Context())

	resp, err := h.documentService.Status(r.Context(), desk)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Document handles GET /api/documents/{documentID}
func (h *DocumentHandler) Document(w http.ResponseWriter, r *http.Request) {
	desk, _ := services.DeskFromContext(r.Context())

	doc, err := h.documentService.Document(r.Context(), desk, chi.URLParam(r, "documentID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}
