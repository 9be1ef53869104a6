// Package assignment implements the draw: picking, for one requesting
// participant, an eligible gift target. Each draw is greedy, uniformly
// random and irrevocable; the engine never reconsiders a committed
// assignment, because a target that has been revealed to a player must stay
// stable. Whether a later requester still has an eligible target therefore
// depends on the order earlier requesters were served.
package assignment

import (
	"context"
	"database/sql"
	"math/rand"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/holly/pkg/database"
	"github.com/Ramsey-B/holly/pkg/events"
	"github.com/Ramsey-B/holly/pkg/metrics"
	"github.com/Ramsey-B/holly/pkg/models"
	"github.com/Ramsey-B/holly/pkg/tracing"
)

// ParticipantStore is the slice of the participant repository the engine
// needs.
type ParticipantStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Participant, error)
	ListUnclaimed(ctx context.Context, excludeID uuid.UUID) ([]models.Participant, error)
	SetTarget(ctx context.Context, id, targetID uuid.UUID) error
}

// ExclusionStore resolves a participant's exclusion set.
type ExclusionStore interface {
	ListFor(ctx context.Context, participantID uuid.UUID) ([]uuid.UUID, error)
}

// TxProvider begins (or joins) the context-carried transaction.
// database.DB satisfies it.
type TxProvider interface {
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error)
}

// Engine computes assignment targets on demand.
type Engine struct {
	db           TxProvider
	participants ParticipantStore
	exclusions   ExclusionStore
	emitter      *events.Emitter
	logger       ectologger.Logger
}

// NewEngine creates a new assignment engine
func NewEngine(db TxProvider, participants ParticipantStore, exclusions ExclusionStore, emitter *events.Emitter, logger ectologger.Logger) *Engine {
	return &Engine{
		db:           db,
		participants: participants,
		exclusions:   exclusions,
		emitter:      emitter,
		logger:       logger,
	}
}

// Assign returns the target for the requesting participant, drawing one if
// none is stored yet. Repeated calls for an already-assigned requester
// return the stored target and never re-roll.
//
// The read of current state, the draw and the commit run inside a single
// serializable transaction, so two concurrent calls cannot both claim the
// same target: one of the two commits, the other retries against the
// updated claimed set at the storage level or fails its SetTarget on the
// target_id unique index.
func (e *Engine) Assign(ctx context.Context, requesterID uuid.UUID) (*models.Participant, error) {
	ctx, span := tracing.StartSpan(ctx, "assignment.Engine.Assign")
	defer span.End()

	ctx, tx, err := e.db.GetTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	requester, err := e.participants.GetByID(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	// Idempotent read: a stored target is returned as-is.
	if requester.TargetID != nil {
		target, err := e.participants.GetByID(ctx, *requester.TargetID)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		metrics.AssignmentsTotal.WithLabelValues("existing").Inc()
		return target, nil
	}

	eligible, err := e.eligibleTargets(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	metrics.EligibleSetSize.Observe(float64(len(eligible)))

	if len(eligible) == 0 {
		metrics.AssignmentsTotal.WithLabelValues("no_eligible_target").Inc()
		e.logger.WithContext(ctx).WithFields(map[string]any{
			"requester_id": requesterID,
		}).Warn("No eligible target for requester")
		return nil, httperror.NewHTTPError(http.StatusConflict, "no eligible target available for assignment")
	}

	// The draw happens after the eligible set is fixed and inside the same
	// transaction as the commit.
	target := eligible[rand.Intn(len(eligible))]

	if err := e.participants.SetTarget(ctx, requesterID, target.ID); err != nil {
		metrics.AssignmentsTotal.WithLabelValues("commit_failed").Inc()
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.AssignmentsTotal.WithLabelValues("commit_failed").Inc()
		return nil, err
	}

	metrics.AssignmentsTotal.WithLabelValues("assigned").Inc()
	e.logger.WithContext(ctx).WithFields(map[string]any{
		"requester_id": requesterID,
		"eligible":     len(eligible),
	}).Info("Committed new assignment")

	// Best effort; the assignment is already durable.
	_ = e.emitter.EmitAssignmentCreated(ctx, requesterID, len(eligible))

	return &target, nil
}

// eligibleTargets computes the set of participants the requester may draw:
// everyone who is not the requester, is not already claimed as someone
// else's target, and is not excluded from pairing with the requester.
func (e *Engine) eligibleTargets(ctx context.Context, requesterID uuid.UUID) ([]models.Participant, error) {
	excludedIDs, err := e.exclusions.ListFor(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	excluded := make(map[uuid.UUID]bool, len(excludedIDs))
	for _, id := range excludedIDs {
		excluded[id] = true
	}

	unclaimed, err := e.participants.ListUnclaimed(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	eligible := make([]models.Participant, 0, len(unclaimed))
	for _, p := range unclaimed {
		if !excluded[p.ID] {
			eligible = append(eligible, p)
		}
	}

	return eligible, nil
}
