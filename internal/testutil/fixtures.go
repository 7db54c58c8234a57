package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/licensehub/internal/app/system/docstore"
	"github.com/dalemusser/licensehub/internal/app/system/docstore/memstore"
	"github.com/dalemusser/licensehub/internal/domain/models"
	"go.uber.org/zap"
)

// Epoch is the fixed clock used by fixture stores.
var Epoch = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

// Fixtures seeds an in-memory store. Documents are inserted as given, so
// tests can store legacy shapes the adapter would never write.
type Fixtures struct {
	t     *testing.T
	store *memstore.Store
	db    *docstore.Adapter
	tick  int
}

// NewFixtures creates an empty in-memory store whose clock starts at Epoch
// and advances one second per write, so createdAt ordering follows
// insertion order.
func NewFixtures(t *testing.T) *Fixtures {
	t.Helper()
	f := &Fixtures{t: t}
	f.store = memstore.New(memstore.WithClock(func() time.Time {
		f.tick++
		return Epoch.Add(time.Duration(f.tick) * time.Second)
	}))
	f.db = docstore.NewAdapter(f.store, zap.NewNop())
	return f
}

// Store returns the backend, for fault injection.
func (f *Fixtures) Store() *memstore.Store { return f.store }

// DB returns the adapter over the fixture store.
func (f *Fixtures) DB() *docstore.Adapter { return f.db }

// Seed inserts doc as-is into collection. A createdAt is added when absent.
func (f *Fixtures) Seed(collection string, doc docstore.Doc) docstore.Doc {
	f.t.Helper()
	if _, ok := doc["createdAt"]; !ok {
		doc["createdAt"] = docstore.ServerTime
	}
	d, err := f.store.Insert(context.Background(), collection, doc)
	if err != nil {
		f.t.Fatalf("seed %s: %v", collection, err)
	}
	return d
}

// Get reads a document back, failing the test if it is missing.
func (f *Fixtures) Get(collection, id string) docstore.Doc {
	f.t.Helper()
	d, err := f.db.Fetch(context.Background(), collection, id)
	if err != nil {
		f.t.Fatalf("get %s/%s: %v", collection, id, err)
	}
	return d
}

// Exists reports whether the document is present.
func (f *Fixtures) Exists(collection, id string) bool {
	return f.db.GetByID(context.Background(), collection, id) != nil
}

// Organization seeds an organization.
func (f *Fixtures) Organization(id, name, tier string) docstore.Doc {
	return f.Seed(models.CollOrganizations, docstore.Doc{"id": id, "name": name, "tier": tier})
}

// User seeds a canonical user.
func (f *Fixtures) User(id, email, name, orgID string) docstore.Doc {
	return f.Seed(models.CollUsers, docstore.Doc{
		"id":             id,
		"email":          email,
		"name":           name,
		"organizationId": orgID,
		"role":           "MEMBER",
		"status":         models.UserActive,
	})
}

// TeamMember seeds a teamMembers mirror row for userID.
func (f *Fixtures) TeamMember(id, userID, email, orgID, role string) docstore.Doc {
	return f.Seed(models.CollTeamMembers, docstore.Doc{
		"id":             id,
		"userId":         userID,
		"email":          email,
		"organizationId": orgID,
		"role":           role,
		"status":         models.UserActive,
	})
}

// OrgMember seeds an orgMembers mirror row for userID.
func (f *Fixtures) OrgMember(id, userID, email, orgID string) docstore.Doc {
	return f.Seed(models.CollOrgMembers, docstore.Doc{
		"id":             id,
		"userId":         userID,
		"email":          email,
		"organizationId": orgID,
		"status":         models.UserActive,
	})
}

// License seeds an unassigned license.
func (f *Fixtures) License(id, key, tier, orgID string) docstore.Doc {
	return f.Seed(models.CollLicenses, docstore.Doc{
		"id":             id,
		"key":            key,
		"tier":           tier,
		"status":         models.LicensePending,
		"organizationId": orgID,
		"assignedTo":     nil,
	})
}

// AssignedLicense seeds a license already held by userID.
func (f *Fixtures) AssignedLicense(id, key, tier, orgID, userID, email string) docstore.Doc {
	return f.Seed(models.CollLicenses, docstore.Doc{
		"id":             id,
		"key":            key,
		"tier":           tier,
		"status":         models.LicenseActive,
		"organizationId": orgID,
		"assignedTo":     docstore.Doc{"userId": userID, "email": email, "assignedAt": Epoch},
	})
}

// Subscription seeds a subscription.
func (f *Fixtures) Subscription(id, orgID, status, tier string) docstore.Doc {
	return f.Seed(models.CollSubscriptions, docstore.Doc{
		"id":             id,
		"organizationId": orgID,
		"status":         status,
		"tier":           tier,
		"seats":          5,
	})
}

// Project seeds a project.
func (f *Fixtures) Project(id, name, orgID string) docstore.Doc {
	return f.Seed(models.CollProjects, docstore.Doc{"id": id, "name": name, "organizationId": orgID})
}

// Dataset seeds an unassigned dataset with a collection assignment.
func (f *Fixtures) Dataset(id, name, orgID, collectionID string) docstore.Doc {
	return f.Seed(models.CollDatasets, docstore.Doc{
		"id":             id,
		"name":           name,
		"organizationId": orgID,
		"projectId":      nil,
		"collection":     docstore.Doc{"collectionId": collectionID, "collectionName": "Collection " + collectionID},
	})
}
