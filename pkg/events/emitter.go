// Package events handles event emission for roster and assignment changes.
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/holly/pkg/kafka"
	"github.com/Ramsey-B/holly/pkg/models"
	"github.com/Ramsey-B/holly/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter publishes exchange lifecycle events. A nil Emitter (or one built
// without a producer) drops every event, so callers never need to branch on
// whether Kafka is enabled.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter. producer may be nil.
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

func (e *Emitter) enabled() bool {
	return e != nil && e.producer != nil
}

func (e *Emitter) publish(ctx context.Context, event *kafka.ExchangeEvent) error {
	if err := e.producer.PublishExchangeEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", event.EventType)
		return err
	}
	return nil
}

// EmitParticipantCreated emits a participant created event
func (e *Emitter) EmitParticipantCreated(ctx context.Context, p *models.Participant) error {
	if !e.enabled() {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitParticipantCreated")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"name":           p.Name,
	})

	return e.publish(ctx, &kafka.ExchangeEvent{
		EventType:     "participant.created",
		ParticipantID: p.ID.String(),
		Data:          data,
	})
}

// EmitParticipantUpdated emits a participant updated event
func (e *Emitter) EmitParticipantUpdated(ctx context.Context, p *models.Participant) error {
	if !e.enabled() {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitParticipantUpdated")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"name":           p.Name,
	})

	return e.publish(ctx, &kafka.ExchangeEvent{
		EventType:     "participant.updated",
		ParticipantID: p.ID.String(),
		Data:          data,
	})
}

// EmitParticipantDeleted emits a participant deleted event
func (e *Emitter) EmitParticipantDeleted(ctx context.Context, id uuid.UUID) error {
	if !e.enabled() {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitParticipantDeleted")
	defer span.End()

	return e.publish(ctx, &kafka.ExchangeEvent{
		EventType:     "participant.deleted",
		ParticipantID: id.String(),
	})
}

// EmitExclusionsReplaced emits an event when a participant's exclusion set
// is replaced
func (e *Emitter) EmitExclusionsReplaced(ctx context.Context, id uuid.UUID, excludedIDs []uuid.UUID) error {
	if !e.enabled() {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitExclusionsReplaced")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"excluded_ids":   excludedIDs,
	})

	return e.publish(ctx, &kafka.ExchangeEvent{
		EventType:     "exclusions.replaced",
		ParticipantID: id.String(),
		Data:          data,
	})
}

// EmitAssignmentCreated emits an event when the engine commits a draw. The
// target id stays out of the payload so downstream consumers cannot spoil
// the exchange.
func (e *Emitter) EmitAssignmentCreated(ctx context.Context, assignerID uuid.UUID, eligibleCount int) error {
	if !e.enabled() {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitAssignmentCreated")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"eligible_count": eligibleCount,
	})

	return e.publish(ctx, &kafka.ExchangeEvent{
		EventType:     "assignment.created",
		ParticipantID: assignerID.String(),
		Data:          data,
	})
}
