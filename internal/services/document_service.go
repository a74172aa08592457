package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vchaoxi/execteam/internal/core"
	"github.com/vchaoxi/execteam/internal/knowledge"
	"github.com/vchaoxi/execteam/internal/models"
)

// maxStoredContent caps the extracted text kept inline on the document row.
const maxStoredContent = 100_000

// ingestTimeout bounds one background ingestion run end to end.
const ingestTimeout = 10 * time.Minute

var ErrNotOwner = errors.New("document does not belong to this user")

// DocumentService owns the document lifecycle: upload to object storage,
// metadata record, background knowledge indexing, retry and cascading delete.
type DocumentService struct {
	db        core.DbClient
	storage   core.ObjectClient
	bucket    string
	processor *knowledge.Processor
	store     *knowledge.Store
	namespace string
}

func NewDocumentService(db core.DbClient, storage core.ObjectClient, bucket string,
	processor *knowledge.Processor, store *knowledge.Store, namespace string) *DocumentService {
	if namespace == "" {
		namespace = knowledge.DefaultNamespace
	}
	return &DocumentService{
		db: db, storage: storage, bucket: bucket,
		processor: processor, store: store, namespace: namespace,
	}
}

// Upload stores the raw file, records the document as pending and kicks off
// indexing in the background. The caller gets the record immediately;
// processing_status reports progress.
func (s *DocumentService) Upload(ctx context.Context, userID, filename, contentType string, data []byte, sourceType string) (*models.Document, error) {
	docID := uuid.NewString()
	key := s.objectKey(userID, docID, filename)

	url, err := s.storage.UploadFile(ctx, s.bucket, key, bytes.NewReader(data), contentType)
	if err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}

	doc := &models.Document{
		ID:               docID,
		UserID:           userID,
		FileName:         filename,
		StorageURL:       url,
		SourceType:       sourceType,
		ContentType:      contentType,
		ProcessingStatus: models.ProcessingPending,
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document record: %w", err)
	}

	// Fire-and-forget: the upload response never waits on embedding or the
	// vector database. Detached from the request context on purpose.
	go s.ingest(doc, data)

	return doc, nil
}

func (s *DocumentService) Get(ctx context.Context, userID, id string) (*models.Document, error) {
	doc, err := s.db.GetDocumentByID(ctx, id)
	if err != nil || doc == nil {
		return doc, err
	}
	if doc.UserID != userID {
		return nil, ErrNotOwner
	}
	return doc, nil
}

func (s *DocumentService) ListByUser(ctx context.Context, userID string) ([]models.Document, error) {
	return s.db.ListDocumentsByUser(ctx, userID)
}

// Retry re-runs indexing for a document whose processing failed or degraded.
// The raw file is fetched back from object storage.
func (s *DocumentService) Retry(ctx context.Context, userID, id string) (*models.Document, error) {
	doc, err := s.Get(ctx, userID, id)
	if err != nil || doc == nil {
		return doc, err
	}

	data, err := s.storage.GetFile(ctx, s.bucket, s.objectKey(doc.UserID, doc.ID, doc.FileName))
	if err != nil {
		return nil, fmt.Errorf("fetch stored file: %w", err)
	}

	doc.ProcessingStatus = models.ProcessingPending
	doc.ProcessingError = ""
	if err := s.db.UpdateDocumentProcessing(ctx, doc.ID, doc.ProcessingStatus, "", nil); err != nil {
		return nil, err
	}

	go s.ingest(doc, data)
	return doc, nil
}

// Delete removes the document row, its stored file and its vectors. Vector
// and object deletion run concurrently; a vector-side failure aborts so the
// index never holds chunks of a document the user believes gone.
func (s *DocumentService) Delete(ctx context.Context, userID, id string) error {
	doc, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if doc == nil {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.store.DeleteDocument(gctx, doc.ID, s.namespace)
	})
	g.Go(func() error {
		return s.storage.DeleteFile(gctx, s.bucket, s.objectKey(doc.UserID, doc.ID, doc.FileName))
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("delete document artifacts: %w", err)
	}

	return s.db.DeleteDocument(ctx, doc.ID)
}

// ingest runs extraction, chunking, embedding and indexing for one document,
// then records the outcome on the document row. It never panics the caller:
// it runs on its own goroutine with its own timeout.
func (s *DocumentService) ingest(doc *models.Document, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	if err := s.db.UpdateDocumentProcessing(ctx, doc.ID, models.ProcessingInProgress, "", nil); err != nil {
		log.Printf("document %s: mark processing: %v", doc.ID, err)
	}

	text, err := knowledge.Extract(data, doc.FileName, doc.ContentType)
	if err != nil {
		log.Printf("document %s: extraction failed: %v", doc.ID, err)
		s.finish(ctx, doc.ID, models.ProcessingError, err.Error(), nil)
		return
	}

	if len(text) <= maxStoredContent {
		if err := s.db.UpdateDocumentContent(ctx, doc.ID, text); err != nil {
			log.Printf("document %s: store content: %v", doc.ID, err)
		}
	}

	res, err := s.processor.Process(ctx, doc.ID, doc.FileName, text, s.namespace)
	if err != nil {
		log.Printf("document %s: indexing aborted: %v", doc.ID, err)
	}

	status, detail := mapProcessStatus(res)
	s.finish(ctx, doc.ID, status, detail, res.VectorIDs)
	log.Printf("document %s: processing finished: %s", doc.ID, status)
}

func (s *DocumentService) finish(ctx context.Context, docID, status, detail string, vectorIDs []string) {
	if err := s.db.UpdateDocumentProcessing(ctx, docID, status, detail, vectorIDs); err != nil {
		log.Printf("document %s: record outcome %q: %v", docID, status, err)
	}
}

// mapProcessStatus translates the pipeline outcome into the document
// lifecycle. Total indexing failure still leaves readable text behind, so it
// surfaces as partial with a zero ratio rather than a hard error.
func mapProcessStatus(res *knowledge.ProcessResult) (status, detail string) {
	switch res.Status {
	case knowledge.StatusCompleted:
		return models.ProcessingCompleted, ""
	case knowledge.StatusPartial, knowledge.StatusFailed:
		return models.ProcessingPartial, res.Ratio()
	case knowledge.StatusNoChunks, knowledge.StatusAPIKeyMissing:
		return models.ProcessingTextOnly, ""
	default:
		return models.ProcessingError, fmt.Sprintf("unexpected pipeline status %q", res.Status)
	}
}

// objectKey creates a consistent S3 key layout.
func (s *DocumentService) objectKey(userID, docID, filename string) string {
	filename = strings.TrimSpace(filename)
	filename = strings.ReplaceAll(filename, " ", "_")
	return path.Join("users", userID, "documents", docID, filename)
}
