// Package participant persists the participant roster: identity, PIN,
// and the committed assignment target.
package participant

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/holly/pkg/database"
	"github.com/Ramsey-B/holly/pkg/models"
	"github.com/Ramsey-B/holly/pkg/tracing"
)

const participantsTable = "participants"

var participantColumns = []string{"id", "name", "pin", "target_id", "created_at", "updated_at"}

// Repository handles participant persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new participant repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Insert persists a new participant with no target.
func (r *Repository) Insert(ctx context.Context, p *models.Participant) error {
	ctx, span := tracing.StartSpan(ctx, "participant.Repository.Insert")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ib := database.NewInsertBuilder()
	ib.InsertInto(participantsTable)
	ib.Cols("id", "name", "pin", "created_at", "updated_at")
	ib.Values(p.ID, p.Name, p.PIN, p.CreatedAt, p.UpdatedAt)

	query, args := ib.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return httperror.NewHTTPError(http.StatusConflict, "pin is already in use")
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to insert participant")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create participant")
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": p.ID, "name": p.Name}).Info("Created participant")
	return nil
}

// Update applies a partial update to name and/or pin. Nil fields are left
// untouched.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, req models.UpdateParticipantRequest) error {
	ctx, span := tracing.StartSpan(ctx, "participant.Repository.Update")
	defer span.End()

	if req.Name == nil && req.PIN == nil {
		return nil
	}

	ub := database.NewUpdateBuilder()
	ub.Update(participantsTable)
	assignments := []string{ub.Assign("updated_at", time.Now().UTC())}
	if req.Name != nil {
		assignments = append(assignments, ub.Assign("name", *req.Name))
	}
	if req.PIN != nil {
		assignments = append(assignments, ub.Assign("pin", *req.PIN))
	}
	ub.Set(assignments...)
	ub.Where(ub.Equal("id", id))

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query, args := ub.Build()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return httperror.NewHTTPError(http.StatusConflict, "pin is already in use")
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update participant")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update participant")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "participant %s not found", id)
	}

	return tx.Commit(ctx)
}

// Delete removes the participant. Exclusion rows touching it are removed by
// the schema's ON DELETE CASCADE.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "participant.Repository.Delete")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	db := database.NewDeleteBuilder()
	db.DeleteFrom(participantsTable)
	db.Where(db.Equal("id", id))

	query, args := db.Build()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete participant")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete participant")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "participant %s not found", id)
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Deleted participant")
	return nil
}

// GetByID retrieves a participant by id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	ctx, span := tracing.StartSpan(ctx, "participant.Repository.GetByID")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(participantColumns...)
	sb.From(participantsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var p models.Participant
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &p, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "participant %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get participant")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get participant")
	}

	return &p, nil
}

// GetByPIN retrieves a participant by PIN. A miss returns (nil, nil); the
// caller decides whether that is an authentication failure.
func (r *Repository) GetByPIN(ctx context.Context, pin string) (*models.Participant, error) {
	ctx, span := tracing.StartSpan(ctx, "participant.Repository.GetByPIN")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(participantColumns...)
	sb.From(participantsTable)
	sb.Where(sb.Equal("pin", pin))

	query, args := sb.Build()
	var p models.Participant
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &p, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get participant by pin")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to look up participant")
	}

	return &p, nil
}

// List retrieves all participants ordered by name. The order is for display
// only; the assignment engine attaches no meaning to it.
func (r *Repository) List(ctx context.Context) ([]models.Participant, error) {
	ctx, span := tracing.StartSpan(ctx, "participant.Repository.List")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(participantColumns...)
	sb.From(participantsTable)
	sb.OrderBy("name")

	query, args := sb.Build()
	var participants []models.Participant
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &participants, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list participants")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list participants")
	}

	return participants, nil
}

// ListUnclaimed retrieves every participant that is nobody's target and is
// not excludeID. This is the engine's candidate pool before exclusions are
// applied.
func (r *Repository) ListUnclaimed(ctx context.Context, excludeID uuid.UUID) ([]models.Participant, error) {
	ctx, span := tracing.StartSpan(ctx, "participant.Repository.ListUnclaimed")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(participantColumns...)
	sb.From(participantsTable)
	sb.Where(
		sb.NotEqual("id", excludeID),
		"id NOT IN (SELECT target_id FROM participants WHERE target_id IS NOT NULL)",
	)

	query, args := sb.Build()
	var participants []models.Participant
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &participants, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list unclaimed participants")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list unclaimed participants")
	}

	return participants, nil
}

// SetTarget commits the assignment: requester's target_id transitions from
// absent to targetID. The partial unique index on target_id rejects a
// double claim at the storage level.
func (r *Repository) SetTarget(ctx context.Context, id, targetID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "participant.Repository.SetTarget")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ub := database.NewUpdateBuilder()
	ub.Update(participantsTable)
	ub.Set(
		ub.Assign("target_id", targetID),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.IsNull("target_id"),
	)

	query, args := ub.Build()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return httperror.NewHTTPError(http.StatusConflict, "target is already claimed")
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to set target")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit assignment")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "participant %s already has a target", id)
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id, "target_id": targetID}).Info("Committed assignment")
	return nil
}

// IsTargetOfAnyone reports whether any participant currently has the given
// id as their target.
func (r *Repository) IsTargetOfAnyone(ctx context.Context, id uuid.UUID) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "participant.Repository.IsTargetOfAnyone")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(participantsTable)
	sb.Where(sb.Equal("target_id", id))

	query, args := sb.Build()
	var count int
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to check target references")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to check target references")
	}

	return count > 0, nil
}

// IsPINTaken reports whether pin is in use by a participant other than
// excludeID (pass uuid.Nil to consider everyone).
func (r *Repository) IsPINTaken(ctx context.Context, pin string, excludeID uuid.UUID) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "participant.Repository.IsPINTaken")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(participantsTable)
	where := []string{sb.Equal("pin", pin)}
	if excludeID != uuid.Nil {
		where = append(where, sb.NotEqual("id", excludeID))
	}
	sb.Where(where...)

	query, args := sb.Build()
	var count int
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to check pin")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to check pin")
	}

	return count > 0, nil
}

type adminRow struct {
	models.Participant
	TargetName *string `db:"target_name"`
}

type excludedRow struct {
	ID   uuid.UUID `db:"id"`
	Name string    `db:"name"`
}

// ListAdminViews retrieves the admin projection: every participant with
// assignment status, target name, and resolved exclusions, ordered by name.
func (r *Repository) ListAdminViews(ctx context.Context) ([]models.AdminParticipantView, error) {
	ctx, span := tracing.StartSpan(ctx, "participant.Repository.ListAdminViews")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("p.id", "p.name", "p.pin", "p.target_id", "p.created_at", "p.updated_at", "sp.name AS target_name")
	sb.From(participantsTable + " p")
	sb.JoinWithOption(sqlbuilder.LeftJoin, participantsTable+" sp", "p.target_id = sp.id")
	sb.OrderBy("p.name")

	query, args := sb.Build()
	q := database.FromContext(ctx, r.db)

	var rows []adminRow
	if err := q.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list admin views")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list participants")
	}

	views := make([]models.AdminParticipantView, 0, len(rows))
	for _, row := range rows {
		esb := database.NewSelectBuilder()
		esb.Select("p.id", "p.name")
		esb.From("exclusions e")
		esb.JoinWithOption(sqlbuilder.InnerJoin, participantsTable+" p", "e.excluded_with_id = p.id")
		esb.Where(esb.Equal("e.participant_id", row.ID))
		esb.OrderBy("p.name")

		equery, eargs := esb.Build()
		var excluded []excludedRow
		if err := q.SelectContext(ctx, &excluded, equery, eargs...); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to resolve exclusions")
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list participants")
		}

		view := models.AdminParticipantView{
			ID:            row.ID,
			Name:          row.Name,
			PIN:           row.PIN,
			HasAssignment: row.TargetID != nil,
			TargetName:    row.TargetName,
			ExcludedIDs:   make([]uuid.UUID, 0, len(excluded)),
			ExcludedNames: make([]string, 0, len(excluded)),
		}
		for _, e := range excluded {
			view.ExcludedIDs = append(view.ExcludedIDs, e.ID)
			view.ExcludedNames = append(view.ExcludedNames, e.Name)
		}
		views = append(views, view)
	}

	return views, nil
}
