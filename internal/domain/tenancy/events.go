package tenancy

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType names a tenant lifecycle event
type EventType string

const (
	EventTenantCreated       EventType = "tenant.created"
	EventTenantUpdated       EventType = "tenant.updated"
	EventTenantPlanChanged   EventType = "tenant.plan_changed"
	EventTenantSuspended     EventType = "tenant.suspended"
	EventTenantReactivated   EventType = "tenant.reactivated"
	EventTenantCancelled     EventType = "tenant.cancelled"
	EventTenantConfigUpdated EventType = "tenant.config_updated"
	EventTenantQuotaExceeded EventType = "tenant.quota_exceeded"
)

// Event is a notification that something happened to a tenant
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	TenantID   string         `json:"tenantId"`
	OccurredAt time.Time      `json:"occurredAt"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// NewEvent creates an event with a fresh id
func NewEvent(typ EventType, tenantID string, now time.Time, payload map[string]any) *Event {
	return &Event{
		ID:         uuid.NewString(),
		Type:       typ,
		TenantID:   tenantID,
		OccurredAt: now,
		Payload:    payload,
	}
}

// EventPublisher delivers tenant events to interested parties
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
}
