// Package auditlog records who changed what. Events go to the audit_events
// collection, to zap, to both, or nowhere, depending on configuration.
package auditlog

import (
	"context"
	"strconv"
	"time"

	"github.com/dalemusser/licensehub/internal/app/system/docstore"
	"github.com/dalemusser/licensehub/internal/domain/models"
	"go.uber.org/zap"
)

// Modes for Config.Mode.
const (
	ModeAll = "all" // store + zap
	ModeDB  = "db"
	ModeLog = "log"
	ModeOff = "off"
)

// Event types.
const (
	EventLicenseAssigned      = "license_assigned"
	EventLicenseUnassigned    = "license_unassigned"
	EventTeamMemberRemoved    = "team_member_removed"
	EventDatasetAssigned      = "dataset_assigned"
	EventDatasetUnassigned    = "dataset_unassigned"
	EventMemberInvited        = "member_invited"
	EventProjectMemberAdded   = "project_member_added"
	EventProjectMemberRole    = "project_member_role_changed"
	EventReadinessRowsCreated = "readiness_rows_created"
)

// Event is one audit record.
type Event struct {
	EventType      string            `json:"eventType"`
	ActorID        string            `json:"actorId,omitempty"`
	UserID         string            `json:"userId,omitempty"`
	OrganizationID string            `json:"organizationId,omitempty"`
	Success        bool              `json:"success"`
	FailureReason  string            `json:"failureReason,omitempty"`
	Details        map[string]string `json:"details,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// Config holds audit logging configuration.
type Config struct {
	// Mode is "all" (store + zap), "db", "log" or "off". Empty means "all".
	Mode string
}

// Logger records audit events.
type Logger struct {
	store  *docstore.Adapter
	zapLog *zap.Logger
	config Config
}

// New creates a Logger. store may be nil when Mode is "log" or "off".
func New(store *docstore.Adapter, zapLog *zap.Logger, config Config) *Logger {
	if zapLog == nil {
		zapLog = zap.NewNop()
	}
	if config.Mode == "" {
		config.Mode = ModeAll
	}
	return &Logger{store: store, zapLog: zapLog, config: config}
}

func (l *Logger) logToZap(event Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
	}
	if event.ActorID != "" {
		fields = append(fields, zap.String("actor_id", event.ActorID))
	}
	if event.UserID != "" {
		fields = append(fields, zap.String("user_id", event.UserID))
	}
	if event.OrganizationID != "" {
		fields = append(fields, zap.String("organization_id", event.OrganizationID))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records event according to the configured mode. A nil Logger is a
// no-op, which lets tests pass nil.
func (l *Logger) Log(ctx context.Context, event Event) {
	if l == nil || l.config.Mode == ModeOff {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	mode := l.config.Mode
	if mode == ModeAll || mode == ModeLog {
		l.logToZap(event)
	}
	if (mode == ModeAll || mode == ModeDB) && l.store != nil {
		details := make(docstore.Doc, len(event.Details))
		for k, v := range event.Details {
			details[k] = v
		}
		_, err := l.store.Create(ctx, models.CollAuditEvents, docstore.Doc{
			"eventType":      event.EventType,
			"actorId":        event.ActorID,
			"userId":         event.UserID,
			"organizationId": event.OrganizationID,
			"success":        event.Success,
			"failureReason":  event.FailureReason,
			"details":        details,
			"createdAt":      event.CreatedAt,
		})
		if err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType))
		}
	}
}

// --- License events ---

// LicenseAssigned logs an assignment of licenseID to userID.
func (l *Logger) LicenseAssigned(ctx context.Context, actorID, licenseID, userID, orgID string) {
	l.Log(ctx, Event{
		EventType:      EventLicenseAssigned,
		ActorID:        actorID,
		UserID:         userID,
		OrganizationID: orgID,
		Success:        true,
		Details:        map[string]string{"license_id": licenseID},
	})
}

// LicenseUnassigned logs that licenseID no longer belongs to prevUserID.
func (l *Logger) LicenseUnassigned(ctx context.Context, actorID, licenseID, prevUserID, orgID string) {
	l.Log(ctx, Event{
		EventType:      EventLicenseUnassigned,
		ActorID:        actorID,
		UserID:         prevUserID,
		OrganizationID: orgID,
		Success:        true,
		Details:        map[string]string{"license_id": licenseID},
	})
}

// TeamMemberRemoved logs a member removal and how many licenses it freed.
func (l *Logger) TeamMemberRemoved(ctx context.Context, actorID, userID, orgID string, released, deleted int) {
	l.Log(ctx, Event{
		EventType:      EventTeamMemberRemoved,
		ActorID:        actorID,
		UserID:         userID,
		OrganizationID: orgID,
		Success:        true,
		Details: map[string]string{
			"licenses_released": strconv.Itoa(released),
			"rows_deleted":      strconv.Itoa(deleted),
		},
	})
}

// --- Dataset events ---

// DatasetAssigned logs a dataset moving to projectID from prevProjectID.
func (l *Logger) DatasetAssigned(ctx context.Context, actorID, datasetID, projectID, prevProjectID string) {
	l.Log(ctx, Event{
		EventType: EventDatasetAssigned,
		ActorID:   actorID,
		Success:   true,
		Details: map[string]string{
			"dataset_id":      datasetID,
			"project_id":      projectID,
			"prev_project_id": prevProjectID,
		},
	})
}

// DatasetUnassigned logs a dataset leaving projectID.
func (l *Logger) DatasetUnassigned(ctx context.Context, actorID, datasetID, projectID string) {
	l.Log(ctx, Event{
		EventType: EventDatasetUnassigned,
		ActorID:   actorID,
		Success:   true,
		Details: map[string]string{
			"dataset_id": datasetID,
			"project_id": projectID,
		},
	})
}

// --- Membership events ---

// MemberInvited logs a new organization member.
func (l *Logger) MemberInvited(ctx context.Context, actorID, userID, orgID, role string) {
	l.Log(ctx, Event{
		EventType:      EventMemberInvited,
		ActorID:        actorID,
		UserID:         userID,
		OrganizationID: orgID,
		Success:        true,
		Details:        map[string]string{"role": role},
	})
}

// ProjectMemberAdded logs a project membership.
func (l *Logger) ProjectMemberAdded(ctx context.Context, actorID, userID, projectID, role string) {
	l.Log(ctx, Event{
		EventType: EventProjectMemberAdded,
		ActorID:   actorID,
		UserID:    userID,
		Success:   true,
		Details: map[string]string{
			"project_id": projectID,
			"role":       role,
		},
	})
}

// ProjectMemberRoleChanged logs a project role change.
func (l *Logger) ProjectMemberRoleChanged(ctx context.Context, actorID, memberID, from, to string) {
	l.Log(ctx, Event{
		EventType: EventProjectMemberRole,
		ActorID:   actorID,
		Success:   true,
		Details: map[string]string{
			"member_id": memberID,
			"from":      from,
			"to":        to,
		},
	})
}

// ReadinessRowsCreated logs mirror rows synthesized for userID.
func (l *Logger) ReadinessRowsCreated(ctx context.Context, userID string, collections []string) {
	details := make(map[string]string, len(collections))
	for i, c := range collections {
		details["created_"+strconv.Itoa(i)] = c
	}
	l.Log(ctx, Event{
		EventType: EventReadinessRowsCreated,
		UserID:    userID,
		Success:   true,
		Details:   details,
	})
}

// Failed logs an operation that did not complete.
func (l *Logger) Failed(ctx context.Context, eventType, actorID string, err error, details map[string]string) {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	l.Log(ctx, Event{
		EventType:     eventType,
		ActorID:       actorID,
		Success:       false,
		FailureReason: reason,
		Details:       details,
	})
}
