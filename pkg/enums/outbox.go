package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateEntity     OutboxAggregateType = "entity"
	AggregateMembership OutboxAggregateType = "membership"
	AggregateInvite     OutboxAggregateType = "invite"
	AggregateGrant      OutboxAggregateType = "grant"
	AggregateProject    OutboxAggregateType = "project"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateEntity,
	AggregateMembership,
	AggregateInvite,
	AggregateGrant,
	AggregateProject,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventInviteCreated         OutboxEventType = "invite_created"
	EventInviteAccepted        OutboxEventType = "invite_accepted"
	EventInviteCancelled       OutboxEventType = "invite_cancelled"
	EventMemberRemoved         OutboxEventType = "member_removed"
	EventMemberPromoted        OutboxEventType = "member_promoted"
	EventMemberDemoted         OutboxEventType = "member_demoted"
	EventProjectAccessGranted  OutboxEventType = "project_access_granted"
	EventProjectAccessRevoked  OutboxEventType = "project_access_revoked"
	EventEntityCreated         OutboxEventType = "entity_created"
	EventNotificationRequested OutboxEventType = "notification_requested"
)

var validOutboxEventTypes = []OutboxEventType{
	EventInviteCreated,
	EventInviteAccepted,
	EventInviteCancelled,
	EventMemberRemoved,
	EventMemberPromoted,
	EventMemberDemoted,
	EventProjectAccessGranted,
	EventProjectAccessRevoked,
	EventEntityCreated,
	EventNotificationRequested,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
