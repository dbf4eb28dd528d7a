package job

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/flockhq/flock/internal/pkg/errors"
)

// SourceFile is one candidate document offered by an external source
// connector.
type SourceFile struct {
	Name     string
	FileType string
	Open     func(ctx context.Context) (io.ReadCloser, int64, error)
}

// SourceConnector lists files from an external system. Connectors are
// registered at startup; the sync task only sees names.
type SourceConnector interface {
	ListFiles(ctx context.Context, orgID string) ([]SourceFile, error)
}

var (
	connectorMu  sync.RWMutex
	connectorMap = make(map[string]SourceConnector)
)

func RegisterConnector(name string, c SourceConnector) {
	connectorMu.Lock()
	defer connectorMu.Unlock()
	connectorMap[name] = c
}

func lookupConnector(name string) (SourceConnector, bool) {
	connectorMu.RLock()
	defer connectorMu.RUnlock()
	c, ok := connectorMap[name]
	return c, ok
}

type SyncSourceArgs struct {
	Source string `json:"source"`
}

type syncSourceResult struct {
	Synced  int `json:"synced"`
	Skipped int `json:"skipped"`
}

// Ingestor is the slice of the document service the sync task needs: push
// one file through the normal upload path.
type Ingestor interface {
	IngestFile(ctx context.Context, orgID, uploadedBy, filename, fileType string, r io.Reader, size int64) (docID int64, jobID string, err error)
}

// SyncSourceHandler pulls files from a registered connector into the
// regular ingestion pipeline. A source without a connector completes with
// zero counts rather than failing.
type SyncSourceHandler struct {
	ingestor Ingestor
}

func NewSyncSourceHandler(ingestor Ingestor) *SyncSourceHandler {
	return &SyncSourceHandler{ingestor: ingestor}
}

func (h *SyncSourceHandler) Handle(ctx context.Context, task *Task, progress ProgressFunc) (string, error) {
	var args SyncSourceArgs
	if err := json.Unmarshal(task.Args, &args); err != nil {
		return "", fmt.Errorf("%w: %v", appErr.ErrInvalid, err)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("source", args.Source), zap.String("org_id", task.OrgID))
	connector, ok := lookupConnector(args.Source)
	if !ok {
		logger.Info("no connector registered, nothing to sync")
		result, _ := json.Marshal(syncSourceResult{})
		return string(result), nil
	}
	files, err := connector.ListFiles(ctx, task.OrgID)
	if err != nil {
		return "", fmt.Errorf("%w: list source files: %v", appErr.ErrUpstream, err)
	}
	progress(20)

	var out syncSourceResult
	for i, file := range files {
		if err := h.ingest(ctx, task.OrgID, args.Source, file); err != nil {
			logger.Warn("skip source file", zap.String("file", file.Name), zap.Error(err))
			out.Skipped++
		} else {
			out.Synced++
		}
		if len(files) > 0 {
			progress(20 + (i+1)*75/len(files))
		}
	}
	result, _ := json.Marshal(out)
	return string(result), nil
}

func (h *SyncSourceHandler) ingest(ctx context.Context, orgID, source string, file SourceFile) error {
	rc, size, err := file.Open(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()
	_, _, err = h.ingestor.IngestFile(ctx, orgID, "sync:"+source, file.Name, file.FileType, rc, size)
	return err
}
