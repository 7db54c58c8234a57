package coordinator

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"github.com/dalemusser/licensehub/internal/app/resolvers"
	"github.com/dalemusser/licensehub/internal/app/system/auditlog"
	"github.com/dalemusser/licensehub/internal/app/system/cache"
	"github.com/dalemusser/licensehub/internal/app/system/docstore"
	"github.com/dalemusser/licensehub/internal/app/system/remote"
	"github.com/dalemusser/licensehub/internal/domain/models"
)

// LinkID is the id of the project_datasets row linking projectID and
// datasetID.
func LinkID(projectID, datasetID string) string {
	return projectID + "_" + datasetID
}

// collectionSnapshot copies the dataset's collection assignment for the link
// row. Older datasets store it flat.
func collectionSnapshot(ds docstore.Doc) docstore.Doc {
	if m := ds.Map("collection"); m != nil {
		return docstore.Doc{
			"collectionId":   m.FirstStr("collectionId", "id"),
			"collectionName": m.FirstStr("collectionName", "name"),
		}
	}
	if id := ds.Str("collectionId"); id != "" {
		return docstore.Doc{"collectionId": id, "collectionName": ds.Str("collectionName")}
	}
	return nil
}

// AssignDatasetToProject moves datasetID into projectID. In one batch it
// sets the dataset's projectId, creates or updates the (project, dataset)
// link row with a snapshot of the dataset's collection, deletes links to any
// other project and touches updatedAt on every project involved.
func (c *Coordinator) AssignDatasetToProject(ctx context.Context, datasetID, projectID string) (*models.ProjectDataset, error) {
	link, err := remote.Mutate(ctx, c.cfg.Remote, "assign_dataset",
		func(ctx context.Context, cl *remote.Client) (*models.ProjectDataset, error) {
			var out models.ProjectDataset
			body := map[string]string{"projectId": projectID}
			if err := cl.Do(ctx, http.MethodPatch, "/api/datasets/"+url.PathEscape(datasetID)+"/project", body, &out); err != nil {
				return nil, remoteErr(err)
			}
			return &out, nil
		},
		func(ctx context.Context) (*models.ProjectDataset, error) {
			link, err := c.assignDataset(ctx, datasetID, projectID)
			if err != nil {
				c.audit.Failed(ctx, auditlog.EventDatasetAssigned, actor(ctx), err, map[string]string{
					"dataset_id": datasetID,
					"project_id": projectID,
				})
			}
			return link, err
		})
	c.finish(ctx, "assign_dataset", err, cache.PrefixProjectDatasets)
	return link, err
}

func (c *Coordinator) assignDataset(ctx context.Context, datasetID, projectID string) (*models.ProjectDataset, error) {
	ds, err := c.fetch(ctx, models.CollDatasets, datasetID, ErrDatasetNotFound)
	if err != nil {
		return nil, err
	}
	if _, err := c.fetch(ctx, models.CollProjects, projectID, ErrProjectNotFound); err != nil {
		return nil, err
	}
	links, err := c.datasetLinks(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	prev := ds.Str("projectId")
	linkID := LinkID(projectID, datasetID)
	now := c.now()
	snapshot := collectionSnapshot(ds)

	b := c.db.Batch()
	b.Update(models.CollDatasets, datasetID, docstore.Doc{"projectId": projectID})

	touched := map[string]bool{projectID: true, prev: true}
	existing := false
	for _, l := range links {
		if l.ID() == linkID {
			existing = true
			continue
		}
		b.Delete(models.CollProjectDatasets, l.ID())
		touched[l.Str("projectId")] = true
	}

	linkData := docstore.Doc{
		"projectId":   projectID,
		"datasetId":   datasetID,
		"datasetName": ds.Str("name"),
		"collection":  snapshot,
	}
	if existing {
		if prev != projectID {
			linkData["assignedAt"] = now
		}
		b.Update(models.CollProjectDatasets, linkID, linkData)
	} else {
		linkData["assignedAt"] = now
		b.Set(models.CollProjectDatasets, linkID, linkData)
	}

	if err := c.touchProjects(ctx, b, touched); err != nil {
		return nil, err
	}
	if err := b.Commit(ctx); err != nil {
		return nil, fmt.Errorf("assign dataset %s to project %s: %w", datasetID, projectID, err)
	}

	c.audit.DatasetAssigned(ctx, actor(ctx), datasetID, projectID, prev)

	if d := c.db.GetByID(ctx, models.CollProjectDatasets, linkID); d != nil {
		pd := resolvers.ProjectDatasetFromDoc(d)
		return &pd, nil
	}
	pd := resolvers.ProjectDatasetFromDoc(docstore.Doc{
		"id":          linkID,
		"projectId":   projectID,
		"datasetId":   datasetID,
		"datasetName": ds.Str("name"),
		"collection":  snapshot,
		"assignedAt":  now,
	})
	return &pd, nil
}

// UnassignDatasetFromProject clears the dataset's projectId, deletes every
// link row for the dataset and touches the projects involved. Unassigning a
// free dataset succeeds.
func (c *Coordinator) UnassignDatasetFromProject(ctx context.Context, datasetID string) error {
	_, err := remote.Mutate(ctx, c.cfg.Remote, "unassign_dataset",
		func(ctx context.Context, cl *remote.Client) (struct{}, error) {
			err := cl.Do(ctx, http.MethodDelete, "/api/datasets/"+url.PathEscape(datasetID)+"/project", nil, nil)
			return struct{}{}, remoteErr(err)
		},
		func(ctx context.Context) (struct{}, error) {
			err := c.unassignDataset(ctx, datasetID)
			if err != nil {
				c.audit.Failed(ctx, auditlog.EventDatasetUnassigned, actor(ctx), err, map[string]string{
					"dataset_id": datasetID,
				})
			}
			return struct{}{}, err
		})
	c.finish(ctx, "unassign_dataset", err, cache.PrefixProjectDatasets)
	return err
}

func (c *Coordinator) unassignDataset(ctx context.Context, datasetID string) error {
	ds, err := c.fetch(ctx, models.CollDatasets, datasetID, ErrDatasetNotFound)
	if err != nil {
		return err
	}
	links, err := c.datasetLinks(ctx, datasetID)
	if err != nil {
		return err
	}

	prev := ds.Str("projectId")
	b := c.db.Batch()
	b.Update(models.CollDatasets, datasetID, docstore.Doc{"projectId": nil})
	touched := map[string]bool{prev: true}
	for _, l := range links {
		b.Delete(models.CollProjectDatasets, l.ID())
		touched[l.Str("projectId")] = true
	}
	if err := c.touchProjects(ctx, b, touched); err != nil {
		return err
	}
	if err := b.Commit(ctx); err != nil {
		return fmt.Errorf("unassign dataset %s: %w", datasetID, err)
	}

	c.audit.DatasetUnassigned(ctx, actor(ctx), datasetID, prev)
	return nil
}

func (c *Coordinator) datasetLinks(ctx context.Context, datasetID string) ([]docstore.Doc, error) {
	links, err := c.db.Find(ctx, models.CollProjectDatasets, docstore.Query{
		Where: []docstore.Condition{docstore.Eq("datasetId", datasetID)},
	})
	if err != nil {
		return nil, fmt.Errorf("find links of dataset %s: %w", datasetID, err)
	}
	return links, nil
}

// touchProjects queues an updatedAt bump for each existing project in ids.
// Projects that no longer exist are skipped so a stale reference cannot fail
// the batch.
func (c *Coordinator) touchProjects(ctx context.Context, b *docstore.Batch, ids map[string]bool) error {
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		if id != "" {
			sorted = append(sorted, id)
		}
	}
	sort.Strings(sorted)
	for _, id := range sorted {
		p, err := c.lookup(ctx, models.CollProjects, id)
		if err != nil {
			return err
		}
		if p != nil {
			b.Update(models.CollProjects, id, docstore.Doc{})
		}
	}
	return nil
}
