package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"ecofin/internal/apperror"
	"ecofin/internal/model"
	"ecofin/internal/repository"
	"ecofin/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type DocumentUpload struct {
	WorkerID     string
	DocumentType string
	FileName     string
	ContentType  string
	Description  string
	Data         []byte
}

type WorkerDocumentResponse struct {
	ID           string  `json:"id"`
	WorkerID     string  `json:"worker_id"`
	DocumentType string  `json:"document_type"`
	FileName     string  `json:"file_name"`
	ContentType  string  `json:"content_type"`
	Size         int64   `json:"size"`
	Description  string  `json:"description"`
	UploadedBy   *string `json:"uploaded_by"`
	CreatedAt    string  `json:"created_at"`
}

// DocumentFile is a downloaded document.
type DocumentFile struct {
	FileName    string
	ContentType string
	Data        []byte
}

type WorkerDocumentService interface {
	Upload(ctx context.Context, actor Actor, req DocumentUpload) (WorkerDocumentResponse, error)
	List(ctx context.Context, workerID string) ([]WorkerDocumentResponse, error)
	Download(ctx context.Context, id string) (DocumentFile, error)
	Delete(ctx context.Context, actor Actor, id string) error
}

type workerDocumentService struct {
	docs    repository.WorkerDocumentRepository
	workers repository.WorkerRepository
	store   storage.Store
	audit   auditWriter
	logger  *zap.Logger
}

func NewWorkerDocumentService(docs repository.WorkerDocumentRepository, workers repository.WorkerRepository, auditRepo repository.AuditRepository, store storage.Store, log *zap.Logger) WorkerDocumentService {
	return &workerDocumentService{
		docs:    docs,
		workers: workers,
		store:   store,
		audit:   auditWriter{repo: auditRepo, logger: log},
		logger:  log,
	}
}

// Upload stores the file under documents/<worker>/<document id>/<name> and records it.
func (s *workerDocumentService) Upload(ctx context.Context, actor Actor, req DocumentUpload) (WorkerDocumentResponse, error) {
	workerID, err := parseID("worker", req.WorkerID)
	if err != nil {
		return WorkerDocumentResponse{}, err
	}
	if len(req.Data) == 0 {
		return WorkerDocumentResponse{}, apperror.Validation("file is required")
	}
	docType := req.DocumentType
	if docType == "" {
		docType = model.DocOther
	}
	if !slices.Contains(model.DocumentTypes, docType) {
		return WorkerDocumentResponse{}, apperror.Validation("unknown document type %q", docType)
	}
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(req.FileName), "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return WorkerDocumentResponse{}, apperror.Validation("file name is required")
	}

	worker, err := s.workers.FindByID(ctx, workerID)
	if err != nil {
		return WorkerDocumentResponse{}, notFound(err, "worker")
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	doc := &model.WorkerDocument{
		ID:           uuid.New(),
		WorkerID:     worker.ID,
		DocumentType: docType,
		FileName:     name,
		ContentType:  contentType,
		Size:         int64(len(req.Data)),
		Description:  req.Description,
		UploadedBy:   actor.UserID,
	}
	doc.StorageKey = fmt.Sprintf("documents/%s/%s/%s", worker.ID, doc.ID, name)

	if err := s.store.Put(ctx, doc.StorageKey, contentType, req.Data); err != nil {
		return WorkerDocumentResponse{}, fmt.Errorf("failed to store document: %w", err)
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		if delErr := s.store.Delete(ctx, doc.StorageKey); delErr != nil {
			s.logger.Warn("Failed to remove orphaned document", zap.String("key", doc.StorageKey), zap.Error(delErr))
		}
		return WorkerDocumentResponse{}, fmt.Errorf("failed to save document: %w", err)
	}

	s.audit.write(ctx, actor, model.ActionUploadDocument, doc.ID.String(), worker.FullName(), map[string]any{
		"document_type": docType, "file_name": name, "size": doc.Size,
	})
	return toDocumentResponse(*doc), nil
}

func (s *workerDocumentService) List(ctx context.Context, workerID string) ([]WorkerDocumentResponse, error) {
	id, err := parseID("worker", workerID)
	if err != nil {
		return nil, err
	}
	if _, err := s.workers.FindByID(ctx, id); err != nil {
		return nil, notFound(err, "worker")
	}
	docs, err := s.docs.ListByWorker(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	res := make([]WorkerDocumentResponse, 0, len(docs))
	for _, d := range docs {
		res = append(res, toDocumentResponse(d))
	}
	return res, nil
}

func (s *workerDocumentService) Download(ctx context.Context, id string) (DocumentFile, error) {
	doc, err := s.find(ctx, id)
	if err != nil {
		return DocumentFile{}, err
	}
	data, err := s.store.Get(ctx, doc.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return DocumentFile{}, apperror.NotFound("document file %s is missing from storage", doc.FileName)
		}
		return DocumentFile{}, fmt.Errorf("failed to read document: %w", err)
	}
	return DocumentFile{FileName: doc.FileName, ContentType: doc.ContentType, Data: data}, nil
}

// Delete removes the record first; a blob left behind is only logged.
func (s *workerDocumentService) Delete(ctx context.Context, actor Actor, id string) error {
	doc, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, doc.ID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if err := s.store.Delete(ctx, doc.StorageKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("Failed to delete document file", zap.String("key", doc.StorageKey), zap.Error(err))
	}
	s.audit.write(ctx, actor, model.ActionDeleteDocument, doc.ID.String(), doc.FileName, nil)
	return nil
}

func (s *workerDocumentService) find(ctx context.Context, id string) (*model.WorkerDocument, error) {
	docID, err := parseID("document", id)
	if err != nil {
		return nil, err
	}
	doc, err := s.docs.FindByID(ctx, docID)
	if err != nil {
		return nil, notFound(err, "document")
	}
	return doc, nil
}

func toDocumentResponse(d model.WorkerDocument) WorkerDocumentResponse {
	return WorkerDocumentResponse{
		ID:           d.ID.String(),
		WorkerID:     d.WorkerID.String(),
		DocumentType: d.DocumentType,
		FileName:     d.FileName,
		ContentType:  d.ContentType,
		Size:         d.Size,
		Description:  d.Description,
		UploadedBy:   idString(d.UploadedBy),
		CreatedAt:    formatTime(d.CreatedAt),
	}
}
