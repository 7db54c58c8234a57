// internal/domain/models/collections.go
package models

// Collection names. Several of these hold denormalized copies of the same
// person (users, teamMembers, orgMembers, userProfiles) and must be kept in
// agreement by the coordinator.
const (
	CollUsers           = "users"
	CollTeamMembers     = "teamMembers"
	CollOrgMembers      = "orgMembers"
	CollUserProfiles    = "userProfiles"
	CollOrganizations   = "organizations"
	CollSubscriptions   = "subscriptions"
	CollLicenses        = "licenses"
	CollProjects        = "projects"
	CollDatasets        = "datasets"
	CollProjectDatasets = "project_datasets"
	CollProjectMembers  = "project_members"
	CollAuditEvents     = "audit_events"
)
