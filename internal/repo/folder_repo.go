package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	appErr "github.com/flockhq/flock/internal/pkg/errors"
)

// FolderBucket is one facet value of a smart-folder view with the
// documents that fall into it.
type FolderBucket struct {
	Value     string           `json:"value"`
	Count     int64            `json:"count"`
	Documents []FolderDocument `json:"documents"`
}

type FolderDocument struct {
	ID       int64  `json:"id"`
	Filename string `json:"filename"`
	DocType  string `json:"doc_type"`
}

type FolderRepo struct {
	db *sql.DB
}

func NewFolderRepo(db *sql.DB) *FolderRepo {
	return &FolderRepo{db: db}
}

var folderColumns = map[string]string{
	"team":        "dc.team",
	"project":     "dc.project",
	"doc_type":    "dc.doc_type",
	"time_period": "dc.time_period",
}

// ByFacet aggregates documents per scalar facet value; filter narrows to a
// single bucket. Buckets are ordered count-descending, then by value.
func (r *FolderRepo) ByFacet(ctx context.Context, orgID, facet, filter string) ([]*FolderBucket, error) {
	column, ok := folderColumns[facet]
	if !ok {
		return nil, appErr.ErrInvalid
	}
	query := `
		SELECT ` + column + ` AS facet_value,
			COUNT(DISTINCT d.id) AS document_count,
			json_agg(json_build_object('id', d.id, 'filename', d.filename, 'doc_type', dc.doc_type)) AS documents
		FROM documents d
		INNER JOIN document_classifications dc ON dc.document_id = d.id
		WHERE d.org_id = $1 AND d.is_deleted = 0
	`
	args := []interface{}{orgID}
	if filter != "" {
		query += ` AND ` + column + ` = $2`
		args = append(args, filter)
	}
	query += `
		GROUP BY ` + column + `
		ORDER BY document_count DESC, facet_value ASC
	`
	return r.queryBuckets(ctx, query, args)
}

// ByPerson unnests the mentioned_people array so one document can appear
// in several person buckets.
func (r *FolderRepo) ByPerson(ctx context.Context, orgID, filter string) ([]*FolderBucket, error) {
	query := `
		SELECT person AS facet_value,
			COUNT(DISTINCT d.id) AS document_count,
			json_agg(json_build_object('id', d.id, 'filename', d.filename, 'doc_type', dc.doc_type)) AS documents
		FROM documents d
		INNER JOIN document_classifications dc ON dc.document_id = d.id,
		jsonb_array_elements_text(dc.mentioned_people) AS person
		WHERE d.org_id = $1 AND d.is_deleted = 0
	`
	args := []interface{}{orgID}
	if filter != "" {
		query += ` AND person = $2`
		args = append(args, filter)
	}
	query += `
		GROUP BY person
		ORDER BY document_count DESC, facet_value ASC
	`
	return r.queryBuckets(ctx, query, args)
}

func (r *FolderRepo) queryBuckets(ctx context.Context, query string, args []interface{}) ([]*FolderBucket, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var buckets []*FolderBucket
	for rows.Next() {
		var bucket FolderBucket
		var docsBlob []byte
		if err := rows.Scan(&bucket.Value, &bucket.Count, &docsBlob); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(docsBlob, &bucket.Documents); err != nil {
			return nil, err
		}
		buckets = append(buckets, &bucket)
	}
	return buckets, rows.Err()
}
