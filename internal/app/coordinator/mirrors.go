package coordinator

import (
	"context"

	"github.com/dalemusser/licensehub/internal/app/system/docstore"
	"github.com/dalemusser/licensehub/internal/domain/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// mirrorCollections duplicate a user's license assignment.
var mirrorCollections = []string{models.CollTeamMembers, models.CollOrgMembers}

// MirrorResult is the outcome of one mirror lookup.
type MirrorResult struct {
	Collection string   `json:"collection"`
	Updated    []string `json:"updated"`
	Error      string   `json:"error,omitempty"`
}

// MirrorReport collects mirror outcomes for one call.
type MirrorReport []MirrorResult

// Failed returns the collections whose lookup failed.
func (r MirrorReport) Failed() []string {
	var out []string
	for _, m := range r {
		if m.Error != "" {
			out = append(out, m.Collection)
		}
	}
	return out
}

// lookupMirrors runs find for every mirror collection concurrently. Each
// lookup stands alone: a failure is recorded in the report and the other
// mirrors are still returned for writing.
func (c *Coordinator) lookupMirrors(ctx context.Context, find func(ctx context.Context, coll string) ([]docstore.Doc, error)) (map[string][]docstore.Doc, MirrorReport) {
	found := make([][]docstore.Doc, len(mirrorCollections))
	errs := make([]error, len(mirrorCollections))

	var g errgroup.Group
	for i, coll := range mirrorCollections {
		g.Go(func() error {
			found[i], errs[i] = find(ctx, coll)
			return nil
		})
	}
	_ = g.Wait()

	rows := make(map[string][]docstore.Doc, len(mirrorCollections))
	report := make(MirrorReport, 0, len(mirrorCollections))
	for i, coll := range mirrorCollections {
		res := MirrorResult{Collection: coll, Updated: []string{}}
		if errs[i] != nil {
			res.Error = errs[i].Error()
			c.log.Warn("mirror lookup failed; continuing without it",
				zap.String("collection", coll),
				zap.Error(errs[i]))
			report = append(report, res)
			continue
		}
		rows[coll] = found[i]
		for _, d := range found[i] {
			res.Updated = append(res.Updated, d.ID())
		}
		report = append(report, res)
	}
	return rows, report
}
