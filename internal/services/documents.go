package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ragdesk/ragdesk/internal/models"
)

// User-facing upload messages.
const (
	UnsupportedFileMessage = "Only .txt files are supported."
	uploadFailedFallback   = "Upload failed"
)

var (
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrFileTooLarge    = errors.New("file too large")
)

// maxTrackedUploads is how many uploads a desk remembers. Finished uploads
// beyond it are forgotten oldest first; uploads in flight are always kept.
const maxTrackedUploads = 50

// UploadTracker records the progress of a desk's uploads, newest last.
type UploadTracker struct {
	mu      sync.Mutex
	uploads map[string]*models.UploadProgress
	order   []string
}

func NewUploadTracker() *UploadTracker {
	return &UploadTracker{uploads: make(map[string]*models.UploadProgress)}
}

func (t *UploadTracker) start(filename string, total int64) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := uuid.New().String()
	t.uploads[id] = &models.UploadProgress{
		ID:       id,
		Filename: filename,
		Total:    total,
		State:    models.UploadUploading,
	}
	t.order = append(t.order, id)
	t.pruneLocked()
	return id
}

func (t *UploadTracker) pruneLocked() {
	excess := len(t.order) - maxTrackedUploads
	if excess <= 0 {
		return
	}
	kept := t.order[:0]
	for _, id := range t.order {
		if excess > 0 && t.uploads[id].State != models.UploadUploading {
			delete(t.uploads, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	t.order = kept
}

func (t *UploadTracker) progress(id string, written int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.uploads[id]
	if !ok {
		return
	}
	p.Written = written
	p.Percent = percent(written, p.Total)
}

func (t *UploadTracker) finish(id, state, message string) models.UploadProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.uploads[id]
	p.State = state
	p.Message = message
	if state == models.UploadSucceeded {
		p.Percent = 100
	} else {
		p.Percent = 0
	}
	return *p
}

// List returns every tracked upload in start order.
func (t *UploadTracker) List() []models.UploadProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.UploadProgress, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.uploads[id])
	}
	return out
}

// percent is round(written*100/total), clamped to 0..100.
func percent(written, total int64) int {
	if total <= 0 {
		return 0
	}
	p := int((written*100 + total/2) / total)
	return min(max(p, 0), 100)
}

// UploadFile is one file picked by the user.
type UploadFile struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// DocumentService validates uploads and forwards them to the backend.
type DocumentService struct {
	maxBytes int64
	log      zerolog.Logger
}

// NewDocumentService creates a new DocumentService instance.
func NewDocumentService(maxBytes int64, log zerolog.Logger) *DocumentService {
	return &DocumentService{
		maxBytes: maxBytes,
		log:      log.With().Str("component", "documents").Logger(),
	}
}

// Validate checks a file before anything is sent.
func (s *DocumentService) Validate(name string, size int64) error {
	if !strings.EqualFold(filepath.Ext(name), ".txt") {
		return ErrUnsupportedFile
	}
	if size > s.maxBytes {
		return ErrFileTooLarge
	}
	return nil
}

// UploadAll uploads files one after the other. A rejected or failed file
// does not stop the rest; every file gets an entry in the result.
func (s *DocumentService) UploadAll(ctx context.Context, desk *Desk, files []UploadFile) []models.UploadProgress {
	results := make([]models.UploadProgress, 0, len(files))
	for _, f := range files {
		results = append(results, s.Upload(ctx, desk, f))
	}
	return results
}

// Upload sends one file to the backend, reporting progress to the desk's
// upload tracker.
func (s *DocumentService) Upload(ctx context.Context, desk *Desk, f UploadFile) models.UploadProgress {
	id := desk.Uploads.start(f.Name, f.Size)

	if err := s.Validate(f.Name, f.Size); err != nil {
		msg := UnsupportedFileMessage
		if errors.Is(err, ErrFileTooLarge) {
			msg = fmt.Sprintf("Failed to upload %s: file exceeds %d bytes", f.Name, s.maxBytes)
		}
		return desk.Uploads.finish(id, models.UploadFailed, msg)
	}

	rc, err := f.Open()
	if err != nil {
		s.log.Error().Err(err).Str("filename", f.Name).Msg("failed to open upload")
		return desk.Uploads.finish(id, models.UploadFailed, failedUploadMessage(f.Name, err))
	}
	defer rc.Close()

	_, err = desk.Backend.UploadDocument(ctx, f.Name, rc, func(written int64) {
		desk.Uploads.progress(id, written)
	})
	if err != nil {
		s.log.Error().Err(err).Str("desk_id", desk.ID).Str("filename", f.Name).Msg("upload failed")
		noteBackendError(ctx, desk, err, s.log)
		return desk.Uploads.finish(id, models.UploadFailed, failedUploadMessage(f.Name, err))
	}

	s.log.Info().Str("desk_id", desk.ID).Str("filename", f.Name).Int64("bytes", f.Size).Msg("document uploaded")
	return desk.Uploads.finish(id, models.UploadSucceeded, fmt.Sprintf("Successfully uploaded %s", f.Name))
}

func failedUploadMessage(name string, err error) string {
	return fmt.Sprintf("Failed to upload %s: %s", name, serverMessage(err, uploadFailedFallback))
}

// Status lists the backend's processing status of every document.
func (s *DocumentService) Status(ctx context.Context, desk *Desk) (*models.DocumentStatusResponse, error) {
	resp, err := desk.Backend.DocumentStatus(ctx)
	if err != nil {
		s.log.Error().Err(err).Str("desk_id", desk.ID).Msg("failed to fetch document status")
		noteBackendError(ctx, desk, err, s.log)
		return nil, err
	}
	if resp.Documents == nil {
		resp.Documents = []models.DocumentStatus{}
	}
	return resp, nil
}

// Document returns the processing status of one document.
func (s *DocumentService) Document(ctx context.Context, desk *Desk, documentID string) (*models.DocumentStatus, error) {
	doc, err := desk.Backend.Document(ctx, documentID)
	if err != nil {
		s.log.Error().Err(err).Str("desk_id", desk.ID).Str("document_id", documentID).Msg("failed to fetch document")
		noteBackendError(ctx, desk, err, s.log)
		return nil, err
	}
	return doc, nil
}

type serverMessager interface {
	ServerMessage() string
}

// serverMessage returns the backend's message carried by err, or fallback.
func serverMessage(err error, fallback string) string {
	var sm serverMessager
	if errors.As(err, &sm) && sm.ServerMessage() != "" {
		return sm.ServerMessage()
	}
	return fallback
}
