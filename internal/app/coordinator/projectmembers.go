package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dalemusser/licensehub/internal/app/system/auditlog"
	"github.com/dalemusser/licensehub/internal/app/system/docstore"
	"github.com/dalemusser/licensehub/internal/app/system/inputval"
	"github.com/dalemusser/licensehub/internal/app/system/normalize"
	"github.com/dalemusser/licensehub/internal/app/system/remote"
	"github.com/dalemusser/licensehub/internal/domain/models"
)

// ProjectMemberID is the id of userID's project_members row in projectID.
func ProjectMemberID(projectID, userID string) string {
	return projectID + "_" + userID
}

// AddProjectMember grants userID role on projectID, or changes the role if
// the user is already a member. The user's per-user rows are audited and
// repaired first. A project has at most one ADMIN: granting a second fails
// with ErrProjectAdminExists and changes nothing.
func (c *Coordinator) AddProjectMember(ctx context.Context, projectID, userID, role string) (*models.ProjectMember, error) {
	m, err := remote.Mutate(ctx, c.cfg.Remote, "add_project_member",
		func(ctx context.Context, cl *remote.Client) (*models.ProjectMember, error) {
			var out models.ProjectMember
			body := map[string]string{"userId": userID, "role": role}
			if err := cl.Do(ctx, http.MethodPost, "/api/projects/"+url.PathEscape(projectID)+"/members", body, &out); err != nil {
				return nil, remoteErr(err)
			}
			return &out, nil
		},
		func(ctx context.Context) (*models.ProjectMember, error) {
			m, err := c.addProjectMember(ctx, projectID, userID, role)
			if err != nil {
				c.audit.Failed(ctx, auditlog.EventProjectMemberAdded, actor(ctx), err, map[string]string{
					"project_id": projectID,
					"user_id":    userID,
					"role":       role,
				})
			}
			return m, err
		})
	c.finish(ctx, "add_project_member", err)
	return m, err
}

func (c *Coordinator) addProjectMember(ctx context.Context, projectID, userID, role string) (*models.ProjectMember, error) {
	role, err := projectRole(role)
	if err != nil {
		return nil, err
	}
	project, err := c.fetch(ctx, models.CollProjects, projectID, ErrProjectNotFound)
	if err != nil {
		return nil, err
	}
	user, err := c.ensureUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	memberID := ProjectMemberID(projectID, userID)
	existing, err := c.lookup(ctx, models.CollProjectMembers, memberID)
	if err != nil {
		return nil, err
	}
	m, err := c.writeProjectMember(ctx, project, memberID, userID, normalize.Email(user.Str("email")), role, existing)
	if err != nil {
		return nil, err
	}
	c.audit.ProjectMemberAdded(ctx, actor(ctx), userID, projectID, role)
	return m, nil
}

// UpdateProjectMemberRole changes the role of a project_members row, with
// the same single-ADMIN rule as AddProjectMember.
func (c *Coordinator) UpdateProjectMemberRole(ctx context.Context, memberID, role string) (*models.ProjectMember, error) {
	m, err := remote.Mutate(ctx, c.cfg.Remote, "update_project_member",
		func(ctx context.Context, cl *remote.Client) (*models.ProjectMember, error) {
			var out models.ProjectMember
			body := map[string]string{"role": role}
			if err := cl.Do(ctx, http.MethodPatch, "/api/project-members/"+url.PathEscape(memberID), body, &out); err != nil {
				return nil, remoteErr(err)
			}
			return &out, nil
		},
		func(ctx context.Context) (*models.ProjectMember, error) {
			m, err := c.updateProjectMemberRole(ctx, memberID, role)
			if err != nil {
				c.audit.Failed(ctx, auditlog.EventProjectMemberRole, actor(ctx), err, map[string]string{
					"member_id": memberID,
					"role":      role,
				})
			}
			return m, err
		})
	c.finish(ctx, "update_project_member", err)
	return m, err
}

func (c *Coordinator) updateProjectMemberRole(ctx context.Context, memberID, role string) (*models.ProjectMember, error) {
	role, err := projectRole(role)
	if err != nil {
		return nil, err
	}
	existing, err := c.fetch(ctx, models.CollProjectMembers, memberID, ErrMemberNotFound)
	if err != nil {
		return nil, err
	}
	projectID, userID := existing.Str("projectId"), existing.Str("userId")
	project, err := c.fetch(ctx, models.CollProjects, projectID, ErrProjectNotFound)
	if err != nil {
		return nil, err
	}
	if _, err := c.ensureUser(ctx, userID); err != nil {
		return nil, err
	}

	from := normalize.Role(existing.Str("role"))
	m, err := c.writeProjectMember(ctx, project, memberID, userID, existing.Str("email"), role, existing)
	if err != nil {
		return nil, err
	}
	c.audit.ProjectMemberRoleChanged(ctx, actor(ctx), memberID, from, role)
	return m, nil
}

func projectRole(role string) (string, error) {
	r := normalize.Role(role)
	if !inputval.IsValidProjectRole(r) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	return r, nil
}

// ensureUser runs the readiness audit for userID and returns the users row.
func (c *Coordinator) ensureUser(ctx context.Context, userID string) (docstore.Doc, error) {
	rep := c.readiness.Ensure(ctx, userID)
	if !rep.Success {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	return c.fetch(ctx, models.CollUsers, userID, ErrUserNotFound)
}

// writeProjectMember creates or updates a membership. The project document
// records its admin in adminMemberId; granting ADMIN is conditional on that
// field not having changed since it was read, so two concurrent grants
// cannot both succeed.
func (c *Coordinator) writeProjectMember(ctx context.Context, project docstore.Doc, memberID, userID, email, role string, existing docstore.Doc) (*models.ProjectMember, error) {
	projectID := project.ID()

	if role == models.ProjectRoleAdmin {
		members, err := c.db.Find(ctx, models.CollProjectMembers, docstore.Query{
			Where: []docstore.Condition{docstore.Eq("projectId", projectID)},
		})
		if err != nil {
			return nil, fmt.Errorf("list members of project %s: %w", projectID, err)
		}
		for _, m := range members {
			if m.ID() != memberID && normalize.Role(m.Str("role")) == models.ProjectRoleAdmin {
				return nil, fmt.Errorf("project %s admin is %s: %w", projectID, m.Str("userId"), ErrProjectAdminExists)
			}
		}
	}

	b := c.db.Batch()
	currentAdmin := project.Str("adminMemberId")
	switch {
	case role == models.ProjectRoleAdmin:
		b.Require(models.CollProjects, projectID, docstore.Eq("adminMemberId", rawValue(project, "adminMemberId")))
		b.Update(models.CollProjects, projectID, docstore.Doc{"adminMemberId": memberID})
	case currentAdmin == memberID:
		b.Update(models.CollProjects, projectID, docstore.Doc{"adminMemberId": nil})
	}

	data := docstore.Doc{
		"projectId": projectID,
		"userId":    userID,
		"email":     email,
		"role":      role,
	}
	if existing != nil {
		b.Update(models.CollProjectMembers, memberID, data)
	} else {
		b.Set(models.CollProjectMembers, memberID, data)
	}

	if err := b.Commit(ctx); err != nil {
		if errors.Is(err, docstore.ErrPreconditionFailed) {
			return nil, fmt.Errorf("project %s admin changed: %w", projectID, ErrProjectAdminExists)
		}
		return nil, fmt.Errorf("write project member %s: %w", memberID, err)
	}

	m := &models.ProjectMember{
		ID:        memberID,
		ProjectID: projectID,
		UserID:    userID,
		Email:     email,
		Role:      role,
		CreatedAt: c.now(),
	}
	if existing != nil {
		m.CreatedAt = existing.TimeOrZero("createdAt")
	}
	return m, nil
}
