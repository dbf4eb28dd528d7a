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

var classificationFields = []string{
	"id", "document_id", "org_id", "team", "project", "doc_type", "time_period",
	"confidentiality", "mentioned_people", "tags", "summary", "confidence_json",
	"ctime", "mtime",
}

type ClassificationRepo struct {
	db *sql.DB
}

func NewClassificationRepo(db *sql.DB) *ClassificationRepo {
	return &ClassificationRepo{db: db}
}

// Upsert replaces the row wholesale: a document carries at most one
// classification and re-classification overwrites every field.
func (r *ClassificationRepo) Upsert(ctx context.Context, c *model.Classification) error {
	people, err := json.Marshal(emptyIfNil(c.MentionedPeople))
	if err != nil {
		return err
	}
	tags, err := json.Marshal(emptyIfNil(c.Tags))
	if err != nil {
		return err
	}
	confidence, err := json.Marshal(c.Confidence)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	const query = `
		INSERT INTO document_classifications
			(document_id, org_id, team, project, doc_type, time_period, confidentiality,
			 mentioned_people, tags, summary, confidence_json, ctime, mtime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		ON CONFLICT (document_id) DO UPDATE SET
			org_id = EXCLUDED.org_id,
			team = EXCLUDED.team,
			project = EXCLUDED.project,
			doc_type = EXCLUDED.doc_type,
			time_period = EXCLUDED.time_period,
			confidentiality = EXCLUDED.confidentiality,
			mentioned_people = EXCLUDED.mentioned_people,
			tags = EXCLUDED.tags,
			summary = EXCLUDED.summary,
			confidence_json = EXCLUDED.confidence_json,
			mtime = EXCLUDED.mtime
	`
	_, err = r.db.ExecContext(ctx, query,
		c.DocumentID, c.OrgID, c.Team, c.Project, c.DocType, c.TimePeriod,
		c.Confidentiality, people, tags, c.Summary, confidence, now,
	)
	return err
}

func (r *ClassificationRepo) GetByDocument(ctx context.Context, docID int64) (*model.Classification, error) {
	where := map[string]interface{}{
		"document_id": docID,
	}
	sqlStr, args, err := builder.BuildSelect("document_classifications", where, classificationFields)
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
	return scanClassification(rows)
}

func (r *ClassificationRepo) DeleteByDocument(ctx context.Context, docID int64) error {
	sqlStr, args, err := builder.BuildDelete("document_classifications", map[string]interface{}{"document_id": docID})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// DistinctValues backs the classifier's organizational context: known
// teams, projects and doc types already present for a tenant.
func (r *ClassificationRepo) DistinctValues(ctx context.Context, orgID, column string, exclude string) ([]string, error) {
	allowed := map[string]string{
		"team":     "team",
		"project":  "project",
		"doc_type": "doc_type",
	}
	col, ok := allowed[column]
	if !ok {
		return nil, appErr.ErrInvalid
	}
	query := `SELECT DISTINCT ` + col + ` FROM document_classifications WHERE org_id = $1 AND ` + col + ` <> $2 ORDER BY ` + col
	rows, err := r.db.QueryContext(ctx, query, orgID, exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func scanClassification(rows *sql.Rows) (*model.Classification, error) {
	var c model.Classification
	var people, tags, confidence []byte
	if err := rows.Scan(
		&c.ID, &c.DocumentID, &c.OrgID, &c.Team, &c.Project, &c.DocType,
		&c.TimePeriod, &c.Confidentiality, &people, &tags, &c.Summary,
		&confidence, &c.Ctime, &c.Mtime,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(people, &c.MentionedPeople); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tags, &c.Tags); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(confidence, &c.Confidence); err != nil {
		return nil, err
	}
	return &c, nil
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
