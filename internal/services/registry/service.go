// Package registry implements the participant roster operations behind the
// admin dashboard and the player login.
package registry

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/holly/pkg/database"
	"github.com/Ramsey-B/holly/pkg/events"
	"github.com/Ramsey-B/holly/pkg/metrics"
	"github.com/Ramsey-B/holly/pkg/models"
	"github.com/Ramsey-B/holly/pkg/tracing"
)

type ParticipantRepository interface {
	Insert(ctx context.Context, p *models.Participant) error
	Update(ctx context.Context, id uuid.UUID, req models.UpdateParticipantRequest) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Participant, error)
	GetByPIN(ctx context.Context, pin string) (*models.Participant, error)
	IsTargetOfAnyone(ctx context.Context, id uuid.UUID) (bool, error)
	IsPINTaken(ctx context.Context, pin string, excludeID uuid.UUID) (bool, error)
	List(ctx context.Context) ([]models.Participant, error)
	ListAdminViews(ctx context.Context) ([]models.AdminParticipantView, error)
}

type ExclusionRepository interface {
	ReplaceFor(ctx context.Context, participantID uuid.UUID, excludedIDs []uuid.UUID) error
}

// TxProvider begins (or joins) the context-carried transaction.
type TxProvider interface {
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error)
}

// Service owns the roster: registering, updating and removing participants,
// and authenticating players by PIN.
type Service struct {
	db           TxProvider
	participants ParticipantRepository
	exclusions   ExclusionRepository
	emitter      *events.Emitter
	logger       ectologger.Logger
}

// NewService creates a new registry service
func NewService(db TxProvider, participants ParticipantRepository, exclusions ExclusionRepository, emitter *events.Emitter, logger ectologger.Logger) *Service {
	return &Service{
		db:           db,
		participants: participants,
		exclusions:   exclusions,
		emitter:      emitter,
		logger:       logger,
	}
}

// Create registers a participant and their initial exclusion set in one
// transaction.
func (s *Service) Create(ctx context.Context, req models.CreateParticipantRequest) (*models.Participant, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.Create")
	defer span.End()

	name := strings.TrimSpace(req.Name)
	if name == "" {
		metrics.AdminMutationsTotal.WithLabelValues("create", "invalid").Inc()
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	if !models.ValidPIN(req.PIN) {
		metrics.AdminMutationsTotal.WithLabelValues("create", "invalid").Inc()
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "pin must be exactly 4 digits")
	}

	now := time.Now().UTC()
	p := &models.Participant{
		ID:        uuid.New(),
		Name:      name,
		PIN:       req.PIN,
		CreatedAt: now,
		UpdatedAt: now,
	}

	ctx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Friendly pre-check; the unique index on pin is the real guarantee.
	taken, err := s.participants.IsPINTaken(ctx, req.PIN, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if taken {
		metrics.AdminMutationsTotal.WithLabelValues("create", "conflict").Inc()
		return nil, httperror.NewHTTPError(http.StatusConflict, "pin is already in use")
	}

	if err := s.participants.Insert(ctx, p); err != nil {
		metrics.AdminMutationsTotal.WithLabelValues("create", "error").Inc()
		return nil, err
	}

	if len(req.ExcludedIDs) > 0 {
		if err := s.exclusions.ReplaceFor(ctx, p.ID, req.ExcludedIDs); err != nil {
			metrics.AdminMutationsTotal.WithLabelValues("create", "error").Inc()
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	metrics.AdminMutationsTotal.WithLabelValues("create", "ok").Inc()
	_ = s.emitter.EmitParticipantCreated(ctx, p)
	if len(req.ExcludedIDs) > 0 {
		_ = s.emitter.EmitExclusionsReplaced(ctx, p.ID, req.ExcludedIDs)
	}

	return p, nil
}

// Update applies a partial update. Name and PIN change in place; a non-nil
// ExcludedIDs replaces the participant's whole exclusion set.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req models.UpdateParticipantRequest) (*models.Participant, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.Update")
	defer span.End()

	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" {
			metrics.AdminMutationsTotal.WithLabelValues("update", "invalid").Inc()
			return nil, httperror.NewHTTPError(http.StatusBadRequest, "name is required")
		}
		req.Name = &trimmed
	}
	if req.PIN != nil && !models.ValidPIN(*req.PIN) {
		metrics.AdminMutationsTotal.WithLabelValues("update", "invalid").Inc()
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "pin must be exactly 4 digits")
	}

	ctx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Existence check up front so a pure exclusion update still 404s on an
	// unknown id.
	if _, err := s.participants.GetByID(ctx, id); err != nil {
		metrics.AdminMutationsTotal.WithLabelValues("update", "error").Inc()
		return nil, err
	}

	if req.PIN != nil {
		taken, err := s.participants.IsPINTaken(ctx, *req.PIN, id)
		if err != nil {
			return nil, err
		}
		if taken {
			metrics.AdminMutationsTotal.WithLabelValues("update", "conflict").Inc()
			return nil, httperror.NewHTTPError(http.StatusConflict, "pin is already in use")
		}
	}

	if req.Name != nil || req.PIN != nil {
		if err := s.participants.Update(ctx, id, req); err != nil {
			metrics.AdminMutationsTotal.WithLabelValues("update", "error").Inc()
			return nil, err
		}
	}

	if req.ExcludedIDs != nil {
		if err := s.exclusions.ReplaceFor(ctx, id, *req.ExcludedIDs); err != nil {
			metrics.AdminMutationsTotal.WithLabelValues("update", "error").Inc()
			return nil, err
		}
	}

	updated, err := s.participants.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	metrics.AdminMutationsTotal.WithLabelValues("update", "ok").Inc()
	_ = s.emitter.EmitParticipantUpdated(ctx, updated)
	if req.ExcludedIDs != nil {
		_ = s.emitter.EmitExclusionsReplaced(ctx, id, *req.ExcludedIDs)
	}

	return updated, nil
}

// Delete removes a participant. A participant that someone else already
// drew cannot be removed; deleting them would orphan a committed
// assignment.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.Delete")
	defer span.End()

	ctx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := s.participants.GetByID(ctx, id); err != nil {
		metrics.AdminMutationsTotal.WithLabelValues("delete", "error").Inc()
		return err
	}

	referenced, err := s.participants.IsTargetOfAnyone(ctx, id)
	if err != nil {
		return err
	}
	if referenced {
		metrics.AdminMutationsTotal.WithLabelValues("delete", "conflict").Inc()
		return httperror.NewHTTPError(http.StatusConflict, "participant is already assigned as someone's target")
	}

	if err := s.participants.Delete(ctx, id); err != nil {
		metrics.AdminMutationsTotal.WithLabelValues("delete", "error").Inc()
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	metrics.AdminMutationsTotal.WithLabelValues("delete", "ok").Inc()
	_ = s.emitter.EmitParticipantDeleted(ctx, id)
	return nil
}

// List returns the admin projection of the whole roster.
func (s *Service) List(ctx context.Context) ([]models.AdminParticipantView, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.List")
	defer span.End()

	return s.participants.ListAdminViews(ctx)
}

// Roster returns every participant's public identity, ordered by name. The
// order is display convenience only.
func (s *Service) Roster(ctx context.Context) ([]models.Participant, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.Roster")
	defer span.End()

	return s.participants.List(ctx)
}

// TargetOf resolves the participant p has drawn, or nil when they have not
// drawn yet.
func (s *Service) TargetOf(ctx context.Context, p *models.Participant) (*models.Participant, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.TargetOf")
	defer span.End()

	if p.TargetID == nil {
		return nil, nil
	}
	return s.participants.GetByID(ctx, *p.TargetID)
}

// Login resolves a player by PIN. The response for a wrong PIN carries no
// hint about which PINs exist.
func (s *Service) Login(ctx context.Context, pin string) (*models.Participant, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.Login")
	defer span.End()

	if !models.ValidPIN(pin) {
		metrics.PlayerLoginsTotal.WithLabelValues("invalid").Inc()
		return nil, httperror.NewHTTPError(http.StatusUnauthorized, "invalid pin")
	}

	p, err := s.participants.GetByPIN(ctx, pin)
	if err != nil {
		return nil, err
	}
	if p == nil {
		metrics.PlayerLoginsTotal.WithLabelValues("failed").Inc()
		s.logger.WithContext(ctx).Warn("Player login failed")
		return nil, httperror.NewHTTPError(http.StatusUnauthorized, "invalid pin")
	}

	metrics.PlayerLoginsTotal.WithLabelValues("ok").Inc()
	return p, nil
}
