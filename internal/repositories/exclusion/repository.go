// Package exclusion persists the symmetric incompatibility relation between
// participants. Every directed row (a, b) has a twin (b, a); both are
// written and removed inside one transaction so the relation can never be
// observed half-applied.
package exclusion

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/holly/pkg/database"
	"github.com/Ramsey-B/holly/pkg/tracing"
)

const exclusionsTable = "exclusions"

// Repository handles exclusion pair persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new exclusion repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListFor returns the ids of every participant excluded from pairing with
// the given participant.
func (r *Repository) ListFor(ctx context.Context, participantID uuid.UUID) ([]uuid.UUID, error) {
	ctx, span := tracing.StartSpan(ctx, "exclusion.Repository.ListFor")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("excluded_with_id")
	sb.From(exclusionsTable)
	sb.Where(sb.Equal("participant_id", participantID))

	query, args := sb.Build()
	var ids []uuid.UUID
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &ids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list exclusions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list exclusions")
	}

	return ids, nil
}

// ReplaceFor replaces the participant's exclusion set: every directed pair
// touching the participant is deleted, then the new set is inserted in both
// directions. Self-pairs are dropped. Ids that do not reference an existing
// participant are rejected.
func (r *Repository) ReplaceFor(ctx context.Context, participantID uuid.UUID, excludedIDs []uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "exclusion.Repository.ReplaceFor")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	db := database.NewDeleteBuilder()
	db.DeleteFrom(exclusionsTable)
	db.Where(db.Or(
		db.Equal("participant_id", participantID),
		db.Equal("excluded_with_id", participantID),
	))

	query, args := db.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to clear exclusions")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace exclusions")
	}

	inserted := 0
	for _, excludedID := range excludedIDs {
		if excludedID == participantID {
			continue // a participant cannot be excluded from itself
		}

		ib := database.NewInsertBuilder()
		ib.InsertInto(exclusionsTable)
		ib.Cols("participant_id", "excluded_with_id")
		ib.Values(participantID, excludedID)
		ib.Values(excludedID, participantID)
		ib.OnConflictDoNothing()

		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if database.IsForeignKeyViolation(err) {
				return httperror.NewHTTPErrorf(http.StatusBadRequest, "excluded participant %s does not exist", excludedID)
			}
			r.logger.WithContext(ctx).WithError(err).Error("Failed to insert exclusion pair")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace exclusions")
		}
		inserted++
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"participant_id": participantID,
		"pairs":          inserted,
	}).Info("Replaced exclusions")
	return nil
}

// IsExcludedPair reports whether the unordered pair {a, b} is excluded.
func (r *Repository) IsExcludedPair(ctx context.Context, a, b uuid.UUID) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "exclusion.Repository.IsExcludedPair")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(exclusionsTable)
	sb.Where(
		sb.Equal("participant_id", a),
		sb.Equal("excluded_with_id", b),
	)

	query, args := sb.Build()
	var count int
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to check exclusion pair")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to check exclusion pair")
	}

	return count > 0, nil
}
