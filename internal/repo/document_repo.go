package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/flockhq/flock/internal/model"
	"github.com/flockhq/flock/internal/pkg/dbutil"
	appErr "github.com/flockhq/flock/internal/pkg/errors"
)

var documentFields = []string{
	"id", "org_id", "filename", "file_type", "storage_key", "size_bytes",
	"status", "meta_json", "uploaded_by", "is_deleted", "ctime", "mtime", "deleted_at",
}

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	var metaBlob []byte
	if doc.Meta != nil {
		blob, err := json.Marshal(doc.Meta)
		if err != nil {
			return err
		}
		metaBlob = blob
	}
	data := map[string]interface{}{
		"org_id":      doc.OrgID,
		"filename":    doc.Filename,
		"file_type":   doc.FileType,
		"storage_key": doc.StorageKey,
		"size_bytes":  doc.SizeBytes,
		"status":      doc.Status,
		"meta_json":   nullableBlob(metaBlob),
		"uploaded_by": doc.UploadedBy,
		"is_deleted":  0,
		"ctime":       doc.Ctime,
		"mtime":       doc.Mtime,
		"deleted_at":  0,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr+" RETURNING id", args)
	return r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&doc.ID)
}

// GetByID returns the document regardless of tenant; callers must verify
// org ownership before acting on it.
func (r *DocumentRepo) GetByID(ctx context.Context, docID int64) (*model.Document, error) {
	where := map[string]interface{}{
		"id":         docID,
		"is_deleted": 0,
	}
	docs, err := r.list(ctx, where)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, appErr.ErrNotFound
	}
	return docs[0], nil
}

func (r *DocumentRepo) ListByOrg(ctx context.Context, orgID string) ([]*model.Document, error) {
	where := map[string]interface{}{
		"org_id":     orgID,
		"is_deleted": 0,
		"_orderby":   "ctime desc",
	}
	return r.list(ctx, where)
}

func (r *DocumentRepo) GetByIDs(ctx context.Context, ids []int64) (map[int64]*model.Document, error) {
	if len(ids) == 0 {
		return map[int64]*model.Document{}, nil
	}
	where := map[string]interface{}{
		"id in":      ids,
		"is_deleted": 0,
	}
	docs, err := r.list(ctx, where)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]*model.Document, len(docs))
	for _, doc := range docs {
		out[doc.ID] = doc
	}
	return out, nil
}

func (r *DocumentRepo) list(ctx context.Context, where map[string]interface{}) ([]*model.Document, error) {
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []*model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *DocumentRepo) UpdateStatus(ctx context.Context, docID int64, status string) error {
	return r.update(ctx, docID, map[string]interface{}{
		"status": status,
		"mtime":  time.Now().Unix(),
	})
}

func (r *DocumentRepo) UpdateMeta(ctx context.Context, docID int64, meta *model.DocumentMeta) error {
	blob, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return r.update(ctx, docID, map[string]interface{}{
		"meta_json": blob,
		"mtime":     time.Now().Unix(),
	})
}

func (r *DocumentRepo) update(ctx context.Context, docID int64, update map[string]interface{}) error {
	where := map[string]interface{}{
		"id":         docID,
		"is_deleted": 0,
	}
	sqlStr, args, err := builder.BuildUpdate("documents", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *DocumentRepo) SoftDelete(ctx context.Context, docID int64) error {
	now := time.Now().Unix()
	return r.update(ctx, docID, map[string]interface{}{
		"is_deleted": 1,
		"deleted_at": now,
		"mtime":      now,
	})
}

func (r *DocumentRepo) HardDelete(ctx context.Context, docID int64) error {
	sqlStr, args, err := builder.BuildDelete("documents", map[string]interface{}{"id": docID})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// ListSoftDeletedBefore feeds the nightly purge sweep.
func (r *DocumentRepo) ListSoftDeletedBefore(ctx context.Context, cutoff int64, limit uint) ([]*model.Document, error) {
	where := map[string]interface{}{
		"is_deleted":   1,
		"deleted_at <": cutoff,
		"_orderby":     "deleted_at asc",
		"_limit":       []uint{0, limit},
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []*model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *DocumentRepo) CountByStatus(ctx context.Context, orgID string) (map[string]int64, error) {
	const query = `
		SELECT status, COUNT(*)
		FROM documents
		WHERE org_id = $1 AND is_deleted = 0
		GROUP BY status
	`
	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int64{}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func scanDocument(rows *sql.Rows) (*model.Document, error) {
	var doc model.Document
	var metaBlob []byte
	if err := rows.Scan(
		&doc.ID, &doc.OrgID, &doc.Filename, &doc.FileType, &doc.StorageKey,
		&doc.SizeBytes, &doc.Status, &metaBlob, &doc.UploadedBy, &doc.IsDeleted,
		&doc.Ctime, &doc.Mtime, &doc.DeletedAt,
	); err != nil {
		return nil, err
	}
	if len(metaBlob) > 0 {
		var meta model.DocumentMeta
		if err := json.Unmarshal(metaBlob, &meta); err != nil {
			return nil, err
		}
		doc.Meta = &meta
	}
	return &doc, nil
}

func nullableBlob(blob []byte) interface{} {
	if len(blob) == 0 {
		return nil
	}
	return blob
}
