// Package readiness makes sure a user has every per-user row the portal
// expects before project operations touch them. Missing teamMembers,
// orgMembers and userProfiles rows are synthesized from the canonical users
// document.
package readiness

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/dalemusser/licensehub/internal/app/system/auditlog"
	"github.com/dalemusser/licensehub/internal/app/system/docstore"
	"github.com/dalemusser/licensehub/internal/app/system/metrics"
	"github.com/dalemusser/licensehub/internal/app/system/normalize"
	"github.com/dalemusser/licensehub/internal/app/system/remote"
	"github.com/dalemusser/licensehub/internal/domain/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultAvatarBaseURL renders initials avatars.
const DefaultAvatarBaseURL = "https://ui-avatars.com/api/"

// Report describes one audit.
type Report struct {
	UserID string `json:"userId"`
	// Success is false only when the users row itself is missing or
	// unreadable. Failures on mirror collections are listed in Errors.
	Success bool              `json:"success"`
	Found   []string          `json:"found"`
	Created []string          `json:"created"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func (r *Report) fail(collection string, err error) {
	if r.Errors == nil {
		r.Errors = make(map[string]string)
	}
	r.Errors[collection] = err.Error()
}

// Config tunes the auditor.
type Config struct {
	// AvatarBaseURL is the initials avatar endpoint; "?name=XY" is appended.
	AvatarBaseURL string
	// Remote selects the try-remote-else-direct path. Nil means direct.
	Remote *remote.Strategy
}

// Auditor checks and repairs per-user rows.
type Auditor struct {
	db    *docstore.Adapter
	audit *auditlog.Logger
	cfg   Config
	log   *zap.Logger
}

// New creates an Auditor. audit may be nil.
func New(db *docstore.Adapter, audit *auditlog.Logger, cfg Config, logger *zap.Logger) *Auditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AvatarBaseURL == "" {
		cfg.AvatarBaseURL = DefaultAvatarBaseURL
	}
	if cfg.Remote == nil {
		cfg.Remote = remote.Direct()
	}
	return &Auditor{db: db, audit: audit, cfg: cfg, log: logger}
}

// mirror is an audited collection and the template that builds its row
// from the canonical users document.
type mirror struct {
	coll  string
	build func(user docstore.Doc) docstore.Doc
}

// mirrors lists the audited collections in report order.
func (a *Auditor) mirrors() []mirror {
	return []mirror{
		{models.CollTeamMembers, teamMemberRow},
		{models.CollOrgMembers, orgMemberRow},
		{models.CollUserProfiles, a.userProfileRow},
	}
}

func personFields(user docstore.Doc) docstore.Doc {
	return docstore.Doc{
		"userId":         user.ID(),
		"email":          normalize.Email(user.Str("email")),
		"name":           displayName(user),
		"organizationId": user.FirstStr("organizationId", "orgId"),
	}
}

func displayName(user docstore.Doc) string {
	return normalize.DisplayName(user.Str("name"), user.Str("firstName"), user.Str("lastName"), user.Str("email"))
}

func teamMemberRow(user docstore.Doc) docstore.Doc {
	d := personFields(user)
	d["role"] = normalize.Role(user.Str("role"))
	d["department"] = user.Str("department")
	d["status"] = normalize.Status(user.Str("status"))
	if la := user.Map("licenseAssignment"); la != nil {
		d["licenseAssignment"] = la
	}
	return d
}

func orgMemberRow(user docstore.Doc) docstore.Doc {
	d := personFields(user)
	d["role"] = normalize.Role(user.Str("role"))
	d["status"] = normalize.Status(user.Str("status"))
	d["seatReserved"] = true
	return d
}

func (a *Auditor) userProfileRow(user docstore.Doc) docstore.Doc {
	name := displayName(user)
	return docstore.Doc{
		"userId":      user.ID(),
		"email":       normalize.Email(user.Str("email")),
		"displayName": name,
		"avatarUrl":   a.cfg.AvatarBaseURL + "?name=" + url.QueryEscape(normalize.Initials(name)),
	}
}

// Ensure checks each mirror collection for a row with userId and creates the
// missing ones. It never returns an error; see Report.
func (a *Auditor) Ensure(ctx context.Context, userID string) Report {
	rep, err := remote.Mutate(ctx, a.cfg.Remote, "user_readiness",
		func(ctx context.Context, c *remote.Client) (Report, error) {
			var rep Report
			err := c.Do(ctx, http.MethodPost, "/api/users/"+url.PathEscape(userID)+"/readiness", nil, &rep)
			return rep, err
		},
		func(ctx context.Context) (Report, error) {
			return a.ensure(ctx, userID), nil
		})
	if err != nil {
		rep = Report{UserID: userID}
		rep.fail(models.CollUsers, err)
	}
	return rep
}

func (a *Auditor) ensure(ctx context.Context, userID string) Report {
	rep := Report{UserID: userID, Found: []string{}, Created: []string{}}

	user, err := a.db.Fetch(ctx, models.CollUsers, userID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			a.log.Info("readiness: user not found", zap.String("user_id", userID))
		} else {
			a.log.Warn("readiness: user lookup failed", zap.String("user_id", userID), zap.Error(err))
		}
		rep.fail(models.CollUsers, err)
		return rep
	}
	rep.Success = true

	mirrors := a.mirrors()
	type outcome struct {
		found, created bool
		err            error
	}
	results := make([]outcome, len(mirrors))

	var g errgroup.Group
	for i, m := range mirrors {
		g.Go(func() error {
			rows, err := a.db.Find(ctx, m.coll, docstore.Query{
				Where: []docstore.Condition{docstore.Eq("userId", userID)},
				Limit: 1,
			})
			if err != nil {
				results[i].err = err
				return nil
			}
			if len(rows) > 0 {
				results[i].found = true
				return nil
			}
			if _, err := a.db.Create(ctx, m.coll, m.build(user)); err != nil {
				results[i].err = err
				return nil
			}
			results[i].created = true
			return nil
		})
	}
	_ = g.Wait()

	for i, m := range mirrors {
		switch res := results[i]; {
		case res.err != nil:
			a.log.Warn("readiness: mirror check failed",
				zap.String("user_id", userID),
				zap.String("collection", m.coll),
				zap.Error(res.err))
			rep.fail(m.coll, res.err)
		case res.found:
			rep.Found = append(rep.Found, m.coll)
		case res.created:
			rep.Created = append(rep.Created, m.coll)
			metrics.ReadinessRowsCreated.WithLabelValues(m.coll).Inc()
		}
	}

	if len(rep.Created) > 0 {
		a.audit.ReadinessRowsCreated(ctx, userID, rep.Created)
	}
	return rep
}
