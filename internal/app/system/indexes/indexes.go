// Package indexes creates the natural-key and lookup indexes licensehub's
// queries rely on. Every ensure function is idempotent.
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/licensehub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called at startup. Problems are aggregated so every failing
collection is visible and startup can fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	var problems []string
	for _, set := range indexSets() {
		if err := ensureIndexSet(ctx, db.Collection(set.collection), set.models, logger); err != nil {
			problems = append(problems, set.collection+": "+err.Error())
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

type indexSet struct {
	collection string
	models     []mongo.IndexModel
}

func idx(name string, keys ...bson.E) mongo.IndexModel {
	return mongo.IndexModel{Keys: bson.D(keys), Options: options.Index().SetName(name)}
}

func uniq(name string, keys ...bson.E) mongo.IndexModel {
	m := idx(name, keys...)
	m.Options.SetUnique(true)
	return m
}

func asc(field string) bson.E { return bson.E{Key: field, Value: 1} }
func desc(field string) bson.E { return bson.E{Key: field, Value: -1} }

func indexSets() []indexSet {
	// Only string emails participate; legacy rows without one must not
	// collide on null.
	emailUnique := uniq("uniq_users_email", asc("email"))
	emailUnique.Options.SetPartialFilterExpression(bson.M{"email": bson.M{"$type": "string"}})

	return []indexSet{
		{models.CollUsers, []mongo.IndexModel{
			emailUnique,
			idx("idx_users_org", asc("organizationId")),
			// legacy documents carry orgId instead of organizationId
			idx("idx_users_orgid", asc("orgId")),
		}},
		{models.CollTeamMembers, []mongo.IndexModel{
			idx("idx_tm_user", asc("userId")),
			idx("idx_tm_org", asc("organizationId")),
			idx("idx_tm_email", asc("email")),
		}},
		{models.CollOrgMembers, []mongo.IndexModel{
			idx("idx_om_user_org", asc("userId"), asc("organizationId")),
			idx("idx_om_email", asc("email")),
		}},
		{models.CollUserProfiles, []mongo.IndexModel{
			idx("idx_up_user", asc("userId")),
		}},
		{models.CollLicenses, []mongo.IndexModel{
			idx("idx_lic_org_created", asc("organizationId"), desc("createdAt")),
			idx("idx_lic_assignee", asc("assignedTo.userId")),
		}},
		{models.CollSubscriptions, []mongo.IndexModel{
			idx("idx_sub_org_status_created", asc("organizationId"), asc("status"), desc("createdAt")),
		}},
		{models.CollDatasets, []mongo.IndexModel{
			idx("idx_ds_project", asc("projectId")),
		}},
		{models.CollProjectDatasets, []mongo.IndexModel{
			uniq("uniq_pd_project_dataset", asc("projectId"), asc("datasetId")),
			idx("idx_pd_dataset", asc("datasetId")),
		}},
		{models.CollProjectMembers, []mongo.IndexModel{
			uniq("uniq_pm_project_user", asc("projectId"), asc("userId")),
			idx("idx_pm_project_role", asc("projectId"), asc("role")),
		}},
		{models.CollAuditEvents, []mongo.IndexModel{
			idx("idx_audit_created", desc("createdAt")),
			idx("idx_audit_user_created", asc("userId"), desc("createdAt")),
		}},
	}
}

/* -------------------------------------------------------------------------- */
/* Reconcile a set of desired indexes for one collection                      */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func sameBoolPtr(a, b *bool) bool {
	return (a != nil && *a) == (b != nil && *b)
}

// Mongo/DocDB sometimes returns IndexOptionsConflict when an index with the
// same keys already exists under a different name (or options differ).
func isOptionsConflictErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "IndexOptionsConflict")
}

func listExisting(ctx context.Context, coll *mongo.Collection, logger *zap.Logger) map[string]existingIndex {
	existing := map[string]existingIndex{}
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return existing
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var ix existingIndex
		if err := cur.Decode(&ix); err != nil {
			logger.Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		existing[keySig(ix.Key)] = ix
	}
	return existing
}

func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel, logger *zap.Logger) error {
	var errs []string

	for _, m := range models {
		name := *m.Options.Name
		unique := m.Options.Unique
		sig := keySig(m.Keys.(bson.D))
		start := time.Now()
		log := logger.With(
			zap.String("collection", coll.Name()),
			zap.String("name", name),
			zap.String("keys", sig))

		ex, found := listExisting(ctx, coll, logger)[sig]
		if found && sameBoolPtr(unique, ex.Unique) && ex.Name == name {
			log.Debug("reusing existing index")
			continue
		}
		if found {
			// Same keys under another name or with other options: replace.
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				log.Warn("drop existing index failed", zap.String("existing", ex.Name), zap.Error(err))
				errs = append(errs, fmt.Sprintf("%s(%s): drop failed: %v", coll.Name(), name, err))
				continue
			}
		}

		_, err := coll.Indexes().CreateOne(ctx, m)
		if err != nil && isOptionsConflictErr(err) {
			// Raced with another instance creating the same keys.
			if ex, ok := listExisting(ctx, coll, logger)[sig]; ok && sameBoolPtr(unique, ex.Unique) {
				log.Info("reusing existing index (post-conflict)", zap.String("existing", ex.Name))
				continue
			}
		}
		if err != nil {
			if wafflemongo.IsDup(err) && unique != nil && *unique {
				errs = append(errs, fmt.Sprintf("%s(%s): cannot create unique index (duplicates present)", coll.Name(), name))
			} else {
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), name, err))
			}
			log.Warn("index ensure failed", zap.Error(err))
			continue
		}
		log.Info("index ensured", zap.Duration("took", time.Since(start)))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
