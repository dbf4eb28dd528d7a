package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/flockhq/flock/internal/model"
	"github.com/flockhq/flock/internal/pkg/dbutil"
	appErr "github.com/flockhq/flock/internal/pkg/errors"
)

var employeeFields = []string{"id", "org_id", "user_id", "vector_id", "profile_json", "mtime"}

type EmployeeRepo struct {
	db *sql.DB
}

func NewEmployeeRepo(db *sql.DB) *EmployeeRepo {
	return &EmployeeRepo{db: db}
}

// Upsert keeps one row per (org, user); regeneration overwrites the
// snapshot and timestamp.
func (r *EmployeeRepo) Upsert(ctx context.Context, emb *model.EmployeeEmbedding) error {
	var profileBlob []byte
	if emb.Profile != nil {
		blob, err := json.Marshal(emb.Profile)
		if err != nil {
			return err
		}
		profileBlob = blob
	}
	const query = `
		INSERT INTO employee_embeddings (org_id, user_id, vector_id, profile_json, mtime)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (org_id, user_id) DO UPDATE SET
			vector_id = EXCLUDED.vector_id,
			profile_json = EXCLUDED.profile_json,
			mtime = EXCLUDED.mtime
	`
	_, err := r.db.ExecContext(ctx, query, emb.OrgID, emb.UserID, emb.VectorID, nullableBlob(profileBlob), emb.Mtime)
	return err
}

func (r *EmployeeRepo) Get(ctx context.Context, orgID, userID string) (*model.EmployeeEmbedding, error) {
	where := map[string]interface{}{
		"org_id":  orgID,
		"user_id": userID,
	}
	sqlStr, args, err := builder.BuildSelect("employee_embeddings", where, employeeFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, appErr.ErrNotFound
	}
	return scanEmployee(rows)
}

func (r *EmployeeRepo) GetByUserIDs(ctx context.Context, orgID string, userIDs []string) (map[string]*model.EmployeeEmbedding, error) {
	if len(userIDs) == 0 {
		return map[string]*model.EmployeeEmbedding{}, nil
	}
	where := map[string]interface{}{
		"org_id":     orgID,
		"user_id in": userIDs,
	}
	sqlStr, args, err := builder.BuildSelect("employee_embeddings", where, employeeFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]*model.EmployeeEmbedding{}
	for rows.Next() {
		emb, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out[emb.UserID] = emb
	}
	return out, rows.Err()
}

func scanEmployee(rows *sql.Rows) (*model.EmployeeEmbedding, error) {
	var emb model.EmployeeEmbedding
	var profileBlob []byte
	if err := rows.Scan(&emb.ID, &emb.OrgID, &emb.UserID, &emb.VectorID, &profileBlob, &emb.Mtime); err != nil {
		return nil, err
	}
	if len(profileBlob) > 0 {
		var profile model.EmployeeProfile
		if err := json.Unmarshal(profileBlob, &profile); err != nil {
			return nil, err
		}
		emb.Profile = &profile
	}
	return &emb, nil
}
