package services

import (
	"context"

	"github.com/charlesng35/taskboard/internal/models"
)

// recordAudit logs the supplied entry while tolerating audit failures.
func recordAudit(audit *AuditService, ctx context.Context, entry AuditEntry) {
	if audit == nil {
		return
	}
	_ = audit.Log(ctx, entry)
}

func actorEntry(actor *models.User, action, resource string, metadata map[string]any) AuditEntry {
	entry := AuditEntry{
		Action:   action,
		Resource: resource,
		Result:   "success",
		Metadata: metadata,
	}
	if actor != nil {
		entry.UserID = stringPtr(actor.ID)
		entry.Username = actor.Username
	}
	return entry
}
