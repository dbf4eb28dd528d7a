package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/flockhq/flock/internal/blobstore"
	"github.com/flockhq/flock/internal/extract"
	"github.com/flockhq/flock/internal/job"
	"github.com/flockhq/flock/internal/model"
	appErr "github.com/flockhq/flock/internal/pkg/errors"
	"github.com/flockhq/flock/internal/repo"
)

const (
	maxFilesPerUpload = 10
	downloadTTL       = 3600 * time.Second
	sniffLen          = 512
)

// UploadFile abstracts one incoming multipart part so the service does
// not depend on the HTTP layer.
type UploadFile struct {
	Filename    string
	Size        int64
	ContentType string
	Open        func() (io.ReadCloser, error)
}

type UploadedDocument struct {
	DocID    int64  `json:"doc_id"`
	Filename string `json:"filename"`
	FileType string `json:"file_type"`
	Status   string `json:"status"`
	JobID    string `json:"job_id"`
}

type FailedUpload struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

type UploadResult struct {
	Uploaded []UploadedDocument `json:"uploaded"`
	Failed   []FailedUpload     `json:"failed"`
}

type DocumentDetail struct {
	Document       *model.Document       `json:"document"`
	Classification *model.Classification `json:"classification,omitempty"`
}

type DocumentService struct {
	docs            *repo.DocumentRepo
	classifications *repo.ClassificationRepo
	blobs           blobstore.Store
	executor        *job.Executor
	maxUploadBytes  int64
}

func NewDocumentService(docs *repo.DocumentRepo, classifications *repo.ClassificationRepo, blobs blobstore.Store, executor *job.Executor, maxUploadBytes int64) *DocumentService {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 << 20
	}
	return &DocumentService{
		docs:            docs,
		classifications: classifications,
		blobs:           blobs,
		executor:        executor,
		maxUploadBytes:  maxUploadBytes,
	}
}

// Upload accepts up to 10 files; each file succeeds or fails on its own
// so one bad file never voids the batch.
func (s *DocumentService) Upload(ctx context.Context, orgID, userID string, files []UploadFile) (*UploadResult, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files in request", appErr.ErrInvalid)
	}
	if len(files) > maxFilesPerUpload {
		return nil, fmt.Errorf("%w: at most %d files per upload", appErr.ErrInvalid, maxFilesPerUpload)
	}
	result := &UploadResult{Uploaded: []UploadedDocument{}, Failed: []FailedUpload{}}
	for _, file := range files {
		uploaded, err := s.uploadOne(ctx, orgID, userID, file)
		if err != nil {
			logutil.GetLogger(ctx).Warn("reject upload",
				zap.String("filename", file.Filename), zap.Error(err))
			result.Failed = append(result.Failed, FailedUpload{
				Filename: file.Filename,
				Reason:   err.Error(),
			})
			continue
		}
		result.Uploaded = append(result.Uploaded, *uploaded)
	}
	return result, nil
}

func (s *DocumentService) uploadOne(ctx context.Context, orgID, userID string, file UploadFile) (*UploadedDocument, error) {
	fileType := fileTypeOf(file.Filename)
	if !extract.IsSupportedType(fileType) {
		return nil, fmt.Errorf("%w: %s", appErr.ErrUnsupportedType, fileType)
	}
	if file.Size > s.maxUploadBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", appErr.ErrPayloadTooBig, s.maxUploadBytes)
	}
	if file.Size == 0 {
		return nil, appErr.ErrEmptyDocument
	}
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	docID, jobID, err := s.ingest(ctx, orgID, userID, file.Filename, fileType, rc, file.Size, file.ContentType)
	if err != nil {
		return nil, err
	}
	return &UploadedDocument{
		DocID:    docID,
		Filename: blobstore.SanitizeFilename(file.Filename),
		FileType: fileType,
		Status:   model.DocumentStatusPending,
		JobID:    jobID,
	}, nil
}

// IngestFile is the entry point for source connectors; it runs the same
// checks and pipeline submission as a direct upload.
func (s *DocumentService) IngestFile(ctx context.Context, orgID, uploadedBy, filename, fileType string, r io.Reader, size int64) (int64, string, error) {
	if fileType == "" {
		fileType = fileTypeOf(filename)
	}
	if !extract.IsSupportedType(fileType) {
		return 0, "", fmt.Errorf("%w: %s", appErr.ErrUnsupportedType, fileType)
	}
	if size > s.maxUploadBytes {
		return 0, "", fmt.Errorf("%w: file exceeds %d bytes", appErr.ErrPayloadTooBig, s.maxUploadBytes)
	}
	return s.ingest(ctx, orgID, uploadedBy, filename, fileType, r, size, "")
}

func (s *DocumentService) ingest(ctx context.Context, orgID, uploadedBy, filename, fileType string, r io.Reader, size int64, contentType string) (int64, string, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return 0, "", err
	}
	head = head[:n]
	if !extract.MatchesType(fileType, head) {
		return 0, "", fmt.Errorf("%w: content does not look like %s", appErr.ErrInvalid, fileType)
	}
	body := io.MultiReader(bytes.NewReader(head), r)

	clean := blobstore.SanitizeFilename(filename)
	key := blobstore.BuildKey(orgID, filename)
	if err := s.blobs.Put(ctx, key, body, size, contentType); err != nil {
		return 0, "", fmt.Errorf("%w: store blob: %v", appErr.ErrUpstream, err)
	}

	now := time.Now().Unix()
	doc := &model.Document{
		OrgID:      orgID,
		Filename:   clean,
		FileType:   fileType,
		StorageKey: key,
		SizeBytes:  size,
		Status:     model.DocumentStatusPending,
		UploadedBy: uploadedBy,
		Ctime:      now,
		Mtime:      now,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		if delErr := s.blobs.Delete(ctx, key); delErr != nil {
			logutil.GetLogger(ctx).Warn("orphan blob after failed insert",
				zap.String("key", key), zap.Error(delErr))
		}
		return 0, "", err
	}
	jobID, err := s.executor.Submit(ctx, orgID, model.JobTypeProcessDocument, job.ProcessDocumentArgs{DocID: doc.ID})
	if err != nil {
		return 0, "", err
	}
	return doc.ID, jobID, nil
}

func (s *DocumentService) List(ctx context.Context, orgID string) ([]*model.Document, error) {
	return s.docs.ListByOrg(ctx, orgID)
}

func (s *DocumentService) Get(ctx context.Context, orgID string, docID int64) (*DocumentDetail, error) {
	doc, err := s.getOwned(ctx, orgID, docID)
	if err != nil {
		return nil, err
	}
	detail := &DocumentDetail{Document: doc}
	classification, err := s.classifications.GetByDocument(ctx, docID)
	if err == nil {
		detail.Classification = classification
	} else if !appErr.IsNotFound(err) {
		return nil, err
	}
	return detail, nil
}

func (s *DocumentService) GetClassification(ctx context.Context, orgID string, docID int64) (*model.Classification, error) {
	if _, err := s.getOwned(ctx, orgID, docID); err != nil {
		return nil, err
	}
	return s.classifications.GetByDocument(ctx, docID)
}

// DownloadURL presigns a short-lived link; the blob itself never streams
// through this process.
func (s *DocumentService) DownloadURL(ctx context.Context, orgID string, docID int64) (string, int, error) {
	doc, err := s.getOwned(ctx, orgID, docID)
	if err != nil {
		return "", 0, err
	}
	url, err := s.blobs.PresignGet(ctx, doc.StorageKey, downloadTTL)
	if err != nil {
		return "", 0, fmt.Errorf("%w: presign: %v", appErr.ErrUpstream, err)
	}
	return url, int(downloadTTL.Seconds()), nil
}

// Delete soft-deletes the row and enqueues vector removal; the blob and
// relational leftovers are purged by the nightly sweep.
func (s *DocumentService) Delete(ctx context.Context, orgID string, docID int64) error {
	doc, err := s.getOwned(ctx, orgID, docID)
	if err != nil {
		return err
	}
	if err := s.docs.SoftDelete(ctx, doc.ID); err != nil {
		return err
	}
	if _, err := s.executor.Submit(ctx, orgID, model.JobTypeDeleteDocVectors, job.DeleteDocVectorsArgs{DocID: doc.ID}); err != nil {
		logutil.GetLogger(ctx).Warn("enqueue vector deletion failed, sweep will catch it",
			zap.Int64("doc_id", doc.ID), zap.Error(err))
	}
	return nil
}

func (s *DocumentService) Reclassify(ctx context.Context, orgID string, docID int64) (string, error) {
	doc, err := s.getOwned(ctx, orgID, docID)
	if err != nil {
		return "", err
	}
	if doc.Status != model.DocumentStatusCompleted {
		return "", fmt.Errorf("%w: document is not processed yet", appErr.ErrConflict)
	}
	return s.executor.Submit(ctx, orgID, model.JobTypeReclassifyDocument, job.ReclassifyArgs{DocID: docID})
}

func (s *DocumentService) getOwned(ctx context.Context, orgID string, docID int64) (*model.Document, error) {
	doc, err := s.docs.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.OrgID != orgID {
		return nil, appErr.ErrForbidden
	}
	return doc, nil
}

func fileTypeOf(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}
