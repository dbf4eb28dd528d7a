package repo

import (
	"context"
	"database/sql"

	"github.com/pgvector/pgvector-go"

	"github.com/flockhq/flock/internal/model"
)

// EmbeddingCacheRepo is the durable tier of the embedding cache, keyed by
// (model, sha256 of the text). The column is a pgvector so cached entries
// stay queryable with vector operators if ever needed.
type EmbeddingCacheRepo struct {
	db *sql.DB
}

func NewEmbeddingCacheRepo(db *sql.DB) *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{db: db}
}

func (r *EmbeddingCacheRepo) Get(ctx context.Context, modelName, contentHash string) ([]float32, bool, error) {
	const query = `
		SELECT embedding FROM embedding_cache
		WHERE model_name = $1 AND content_hash = $2
	`
	var vec pgvector.Vector
	err := r.db.QueryRowContext(ctx, query, modelName, contentHash).Scan(&vec)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return vec.Slice(), true, nil
}

func (r *EmbeddingCacheRepo) Save(ctx context.Context, entry *model.EmbeddingCache) error {
	const query = `
		INSERT INTO embedding_cache (model_name, content_hash, embedding, ctime)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (model_name, content_hash) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, entry.ModelName, entry.ContentHash, pgvector.NewVector(entry.Embedding), entry.Ctime)
	return err
}

func (r *EmbeddingCacheRepo) DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	const query = `DELETE FROM embedding_cache WHERE ctime < $1`
	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
