package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/flockhq/flock/internal/model"
	"github.com/flockhq/flock/internal/pkg/dbutil"
)

var chunkFields = []string{"id", "document_id", "chunk_index", "chunk_text", "token_count", "ctime"}

type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// InsertBatchAndComplete writes every chunk of a document and flips the
// document to completed in one transaction. This is the only multi-row
// transaction in the pipeline: either the document ends up completed with
// its full chunk set, or nothing is written.
func (r *ChunkRepo) InsertBatchAndComplete(ctx context.Context, docID int64, chunks []*model.Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	rows := make([]map[string]interface{}, 0, len(chunks))
	for _, chunk := range chunks {
		rows = append(rows, map[string]interface{}{
			"document_id": docID,
			"chunk_index": chunk.Index,
			"chunk_text":  chunk.Text,
			"token_count": chunk.TokenCount,
			"ctime":       now,
		})
	}
	sqlStr, args, err := builder.BuildInsert("document_chunks", rows)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return err
	}

	updStr, updArgs, err := builder.BuildUpdate("documents",
		map[string]interface{}{"id": docID},
		map[string]interface{}{"status": model.DocumentStatusCompleted, "mtime": now},
	)
	if err != nil {
		return err
	}
	updStr, updArgs = dbutil.Finalize(updStr, updArgs)
	if _, err := tx.ExecContext(ctx, updStr, updArgs...); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *ChunkRepo) ListByDocument(ctx context.Context, docID int64) ([]*model.Chunk, error) {
	where := map[string]interface{}{
		"document_id": docID,
		"_orderby":    "chunk_index asc",
	}
	sqlStr, args, err := builder.BuildSelect("document_chunks", where, chunkFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var chunks []*model.Chunk
	for rows.Next() {
		var chunk model.Chunk
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Index, &chunk.Text, &chunk.TokenCount, &chunk.Ctime); err != nil {
			return nil, err
		}
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}

func (r *ChunkRepo) DeleteByDocument(ctx context.Context, docID int64) error {
	sqlStr, args, err := builder.BuildDelete("document_chunks", map[string]interface{}{"document_id": docID})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ChunkRepo) CountByDocument(ctx context.Context, docID int64) (int64, error) {
	const query = `SELECT COUNT(*) FROM document_chunks WHERE document_id = $1`
	var count int64
	if err := r.db.QueryRowContext(ctx, query, docID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
