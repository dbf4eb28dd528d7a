package service

import (
	"context"

	appErr "github.com/flockhq/flock/internal/pkg/errors"
	"github.com/flockhq/flock/internal/repo"
)

// facet name per view as exposed on the API
var folderViews = map[string]string{
	"team":    "team",
	"project": "project",
	"type":    "doc_type",
	"date":    "time_period",
	"person":  "person",
}

type FolderService struct {
	folders *repo.FolderRepo
}

func NewFolderService(folders *repo.FolderRepo) *FolderService {
	return &FolderService{folders: folders}
}

// View computes one smart-folder view. An optional filter narrows to a
// single bucket; views never materialize state, only classification rows.
func (s *FolderService) View(ctx context.Context, orgID, view, filter string) ([]*repo.FolderBucket, error) {
	facet, ok := folderViews[view]
	if !ok {
		return nil, appErr.ErrInvalid
	}
	var buckets []*repo.FolderBucket
	var err error
	if facet == "person" {
		buckets, err = s.folders.ByPerson(ctx, orgID, filter)
	} else {
		buckets, err = s.folders.ByFacet(ctx, orgID, facet, filter)
	}
	if err != nil {
		return nil, err
	}
	if buckets == nil {
		buckets = []*repo.FolderBucket{}
	}
	return buckets, nil
}
