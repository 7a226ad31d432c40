package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kerane/projectdesk-api/internal/models"
	appErrors "github.com/kerane/projectdesk-api/pkg/errors"
	"github.com/kerane/projectdesk-api/pkg/storage"
)

type documentRepository interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id string) (*models.Document, error)
	List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error)
	Delete(ctx context.Context, id string) error
}

// DocumentService stores uploaded files on disk and hands out signed download
// URLs for them.
type DocumentService struct {
	repo     documentRepository
	store    *storage.LocalStorage
	signer   *storage.SignedURLSigner
	activity activityWriter
	maxBytes int64
	logger   *zap.Logger
}

// NewDocumentService constructs the service.
func NewDocumentService(repo documentRepository, store *storage.LocalStorage, signer *storage.SignedURLSigner, activity activityWriter, maxBytes int64, logger *zap.Logger) *DocumentService {
	if maxBytes <= 0 {
		maxBytes = 25 << 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{repo: repo, store: store, signer: signer, activity: activity, maxBytes: maxBytes, logger: logger}
}

// UploadRequest describes an inbound file upload.
type UploadRequest struct {
	Name      string
	MimeType  string
	SizeBytes int64
	ProjectID *string
	TaskID    *string
	Body      io.Reader
}

// Upload stores the file and records its metadata.
func (s *DocumentService) Upload(ctx context.Context, actor models.UserSnapshot, req UploadRequest) (*models.Document, error) {
	if req.Name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file name is required")
	}
	if req.SizeBytes > s.maxBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds the %d byte limit", s.maxBytes))
	}

	relPath := filepath.Join(time.Now().UTC().Format("2006/01"), uuid.NewString()+filepath.Ext(req.Name))
	written, err := s.store.SaveStream(relPath, io.LimitReader(req.Body, s.maxBytes+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}
	if written > s.maxBytes {
		if err := s.store.Delete(relPath); err != nil {
			s.logger.Warn("oversized upload cleanup failed", zap.String("path", relPath), zap.Error(err))
		}
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds the %d byte limit", s.maxBytes))
	}

	doc := &models.Document{
		Name:         req.Name,
		FilePath:     relPath,
		MimeType:     req.MimeType,
		SizeBytes:    written,
		ProjectID:    req.ProjectID,
		TaskID:       req.TaskID,
		UploadedByID: actor.ID,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		if delErr := s.store.Delete(relPath); delErr != nil {
			s.logger.Warn("orphan upload cleanup failed", zap.String("path", relPath), zap.Error(delErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record document")
	}
	s.recordActivity(ctx, actor.ID, models.ActivityActionCreate, doc.ID, fmt.Sprintf("Document uploaded: %s", doc.Name))
	return doc, nil
}

// Get returns document metadata.
func (s *DocumentService) Get(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	return doc, nil
}

// List returns documents matching the filter.
func (s *DocumentService) List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	docs, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	return docs, nil
}

// SignedDownloadURL returns a time-limited token for fetching the file.
func (s *DocumentService) SignedDownloadURL(ctx context.Context, id string) (string, time.Time, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return "", time.Time{}, err
	}
	token, expiresAt, err := s.signer.Generate(doc.ID, doc.FilePath)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download")
	}
	return token, expiresAt, nil
}

// OpenSigned validates a download token and opens the underlying file.
func (s *DocumentService) OpenSigned(ctx context.Context, token string) (*models.Document, *os.File, error) {
	documentID, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download link")
	}
	doc, err := s.Get(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	if doc.FilePath != relPath {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "download link does not match document")
	}
	file, err := s.store.Open(doc.FilePath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file")
	}
	return doc, file, nil
}

// Delete removes the metadata and the stored file.
func (s *DocumentService) Delete(ctx context.Context, actor models.UserSnapshot, id string) error {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete document")
	}
	if err := s.store.Delete(doc.FilePath); err != nil {
		s.logger.Warn("stored file removal failed", zap.String("path", doc.FilePath), zap.Error(err))
	}
	s.recordActivity(ctx, actor.ID, models.ActivityActionDelete, id, fmt.Sprintf("Document deleted: %s", doc.Name))
	return nil
}

func (s *DocumentService) recordActivity(ctx context.Context, userID, action, docID, details string) {
	if s.activity == nil {
		return
	}
	entry := &models.ActivityLog{
		UserID:     &userID,
		Action:     action,
		EntityType: "document",
		EntityID:   docID,
		Details:    details,
	}
	if err := s.activity.Create(ctx, entry); err != nil {
		s.logger.Warn("document audit entry failed", zap.Error(err))
	}
}
