package resolvers

import (
	"context"
	"net/url"
	"sort"

	"github.com/dalemusser/licensehub/internal/app/system/cache"
	"github.com/dalemusser/licensehub/internal/app/system/docstore"
	"github.com/dalemusser/licensehub/internal/app/system/remote"
	"github.com/dalemusser/licensehub/internal/domain/models"
	"go.uber.org/zap"
)

// ProjectDatasets returns the project's dataset links, most recently
// assigned first. The link rows carry the dataset snapshot, so no dataset
// documents are read.
func (r *Resolvers) ProjectDatasets(ctx context.Context, projectID string) []models.ProjectDataset {
	if projectID == "" {
		return []models.ProjectDataset{}
	}
	ls, err := load(ctx, r, cache.ProjectDatasetsKey(projectID), r.cfg.TTL, func(ctx context.Context) ([]models.ProjectDataset, error) {
		return remote.Do(ctx, r.cfg.Remote, "project_datasets",
			func(ctx context.Context, c *remote.Client) ([]models.ProjectDataset, error) {
				var out []models.ProjectDataset
				err := c.Get(ctx, "/api/projects/"+url.PathEscape(projectID)+"/datasets", &out)
				return out, err
			},
			func(ctx context.Context) ([]models.ProjectDataset, error) {
				return r.loadProjectDatasets(ctx, projectID), nil
			})
	})
	if err != nil {
		r.log.Warn("resolve project datasets failed",
			zap.String("project_id", projectID),
			zap.Error(err))
		return []models.ProjectDataset{}
	}
	return ls
}

func (r *Resolvers) loadProjectDatasets(ctx context.Context, projectID string) []models.ProjectDataset {
	docs := r.db.Query(ctx, models.CollProjectDatasets, docstore.Eq("projectId", projectID))
	out := make([]models.ProjectDataset, 0, len(docs))
	for _, d := range docs {
		out = append(out, ProjectDatasetFromDoc(d))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].AssignedAt.Equal(out[j].AssignedAt) {
			return out[i].AssignedAt.After(out[j].AssignedAt)
		}
		return out[i].DatasetName < out[j].DatasetName
	})
	return out
}

// ProjectDatasetFromDoc reads a project_datasets row.
func ProjectDatasetFromDoc(d docstore.Doc) models.ProjectDataset {
	pd := models.ProjectDataset{
		ID:          d.ID(),
		ProjectID:   d.Str("projectId"),
		DatasetID:   d.Str("datasetId"),
		DatasetName: d.Str("datasetName"),
		AssignedAt:  d.TimeOrZero("assignedAt"),
	}
	if m := d.Map("collection"); m != nil {
		pd.Collection = &models.CollectionAssignment{
			CollectionID:   m.FirstStr("collectionId", "id"),
			CollectionName: m.FirstStr("collectionName", "name"),
		}
	}
	return pd
}
