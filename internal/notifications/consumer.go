package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/paramvora-capmatch/capmatch-backend/pkg/db/models"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/logger"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/outbox"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/outbox/idempotency"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/outbox/payloads"
)

const rosterNotificationConsumer = "roster-notifications"

type repository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// Consumer watches domain events and turns roster and access changes into
// in-app notifications on the entity feed.
type Consumer struct {
	repo         repository
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds a roster notification consumer.
func NewConsumer(repo repository, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	rawType := msg.Attributes["event_type"]
	fields := map[string]any{
		"message_id": msg.ID,
		"event_type": rawType,
	}
	logCtx := c.logg.WithFields(ctx, fields)

	eventType, err := enums.ParseOutboxEventType(rawType)
	if err != nil || !c.handles(eventType) {
		c.logg.Info(logCtx, "skipping event without notification mapping")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, rosterNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	notification, err := c.build(eventType, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		_ = c.idempotency.Delete(ctx, rosterNotificationConsumer, eventID)
		return processResult{nack: true}
	}
	if notification == nil {
		return processResult{ack: true}
	}

	logCtx = c.logg.WithField(logCtx, "entity_id", notification.EntityID.String())
	if err := c.repo.Create(ctx, notification); err != nil {
		c.logg.Error(logCtx, "notification write failed", err)
		_ = c.idempotency.Delete(ctx, rosterNotificationConsumer, eventID)
		return processResult{nack: true}
	}

	c.logg.Info(logCtx, "notification recorded")
	return processResult{ack: true}
}

func (c *Consumer) handles(eventType enums.OutboxEventType) bool {
	switch eventType {
	case enums.EventInviteAccepted,
		enums.EventMemberRemoved,
		enums.EventMemberPromoted,
		enums.EventMemberDemoted,
		enums.EventProjectAccessGranted,
		enums.EventProjectAccessRevoked:
		return true
	default:
		return false
	}
}

func (c *Consumer) build(eventType enums.OutboxEventType, data json.RawMessage) (*models.Notification, error) {
	switch eventType {
	case enums.EventInviteAccepted:
		var payload payloads.InviteAcceptedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		link := fmt.Sprintf("/entities/%s/members", payload.EntityID)
		return &models.Notification{
			EntityID: payload.EntityID,
			Type:     enums.NotificationTypeMembership,
			Title:    "New member joined",
			Message:  fmt.Sprintf("A new %s accepted their invitation.", payload.Role),
			Link:     stringPtr(link),
		}, nil
	case enums.EventMemberRemoved:
		var payload payloads.MemberRemovedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		message := "A member was removed from the team."
		if payload.GrantsRevoked > 0 {
			message = fmt.Sprintf("A member was removed from the team; %d document grants were revoked.", payload.GrantsRevoked)
		}
		return &models.Notification{
			EntityID: payload.EntityID,
			Type:     enums.NotificationTypeMembership,
			Title:    "Member removed",
			Message:  message,
			Link:     stringPtr(fmt.Sprintf("/entities/%s/members", payload.EntityID)),
		}, nil
	case enums.EventMemberPromoted:
		var payload payloads.MemberPromotedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return &models.Notification{
			EntityID: payload.EntityID,
			Type:     enums.NotificationTypeMembership,
			Title:    "Member promoted to owner",
			Message:  fmt.Sprintf("A %s was promoted to owner.", payload.PriorRole),
			Link:     stringPtr(fmt.Sprintf("/entities/%s/members", payload.EntityID)),
		}, nil
	case enums.EventMemberDemoted:
		var payload payloads.MemberDemotedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return &models.Notification{
			EntityID: payload.EntityID,
			Type:     enums.NotificationTypeMembership,
			Title:    "Owner demoted to member",
			Message:  fmt.Sprintf("An owner stepped down to member with access to %d projects.", payload.GrantsCreated),
			Link:     stringPtr(fmt.Sprintf("/entities/%s/members", payload.EntityID)),
		}, nil
	case enums.EventProjectAccessGranted:
		var payload payloads.ProjectAccessGrantedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return &models.Notification{
			EntityID: payload.EntityID,
			Type:     enums.NotificationTypeAccess,
			Title:    "Document access granted",
			Message:  "A member received new document grants on a project.",
			Link:     stringPtr(fmt.Sprintf("/projects/%s", payload.ProjectID)),
		}, nil
	case enums.EventProjectAccessRevoked:
		var payload payloads.ProjectAccessRevokedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return &models.Notification{
			EntityID: payload.EntityID,
			Type:     enums.NotificationTypeAccess,
			Title:    "Document access revoked",
			Message:  "Document grants were revoked on a project.",
			Link:     stringPtr(fmt.Sprintf("/projects/%s", payload.ProjectID)),
		}, nil
	default:
		return nil, nil
	}
}

func stringPtr(value string) *string {
	return &value
}
