package assignment

import (
	"context"
	"database/sql"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/holly/pkg/database"
	"github.com/Ramsey-B/holly/pkg/models"
)

type fakeTx struct {
	commits   int
	rollbacks int
	closed    bool
}

func (t *fakeTx) IsOpen() bool { return !t.closed }

func (t *fakeTx) Commit(ctx context.Context) error {
	if !t.closed {
		t.commits++
		t.closed = true
	}
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.closed {
		t.rollbacks++
		t.closed = true
	}
	return nil
}

func (t *fakeTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, nil
}

func (t *fakeTx) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}

func (t *fakeTx) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}

func (t *fakeTx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return nil
}

type fakeTxProvider struct {
	last *fakeTx
}

func (p *fakeTxProvider) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error) {
	p.last = &fakeTx{}
	return ctx, p.last, nil
}

// fakeRoster backs both store interfaces with an in-memory participant map.
type fakeRoster struct {
	participants map[uuid.UUID]*models.Participant
	exclusions   map[uuid.UUID][]uuid.UUID
	setTargets   int
}

func newFakeRoster(names ...string) *fakeRoster {
	r := &fakeRoster{
		participants: make(map[uuid.UUID]*models.Participant),
		exclusions:   make(map[uuid.UUID][]uuid.UUID),
	}
	for _, name := range names {
		p := &models.Participant{ID: uuid.New(), Name: name}
		r.participants[p.ID] = p
	}
	return r
}

func (r *fakeRoster) byName(name string) *models.Participant {
	for _, p := range r.participants {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (r *fakeRoster) exclude(a, b uuid.UUID) {
	r.exclusions[a] = append(r.exclusions[a], b)
	r.exclusions[b] = append(r.exclusions[b], a)
}

func (r *fakeRoster) GetByID(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	p, ok := r.participants[id]
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "participant %s not found", id)
	}
	cp := *p
	return &cp, nil
}

func (r *fakeRoster) ListUnclaimed(ctx context.Context, excludeID uuid.UUID) ([]models.Participant, error) {
	claimed := make(map[uuid.UUID]bool)
	for _, p := range r.participants {
		if p.TargetID != nil {
			claimed[*p.TargetID] = true
		}
	}
	var out []models.Participant
	for _, p := range r.participants {
		if p.ID == excludeID || claimed[p.ID] {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (r *fakeRoster) SetTarget(ctx context.Context, id, targetID uuid.UUID) error {
	p, ok := r.participants[id]
	if !ok {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "participant %s not found", id)
	}
	if p.TargetID != nil {
		return httperror.NewHTTPErrorf(http.StatusConflict, "participant %s already has a target", id)
	}
	for _, other := range r.participants {
		if other.TargetID != nil && *other.TargetID == targetID {
			return httperror.NewHTTPError(http.StatusConflict, "target is already claimed")
		}
	}
	tid := targetID
	p.TargetID = &tid
	r.setTargets++
	return nil
}

func (r *fakeRoster) ListFor(ctx context.Context, participantID uuid.UUID) ([]uuid.UUID, error) {
	return r.exclusions[participantID], nil
}

func newTestEngine(r *fakeRoster) (*Engine, *fakeTxProvider) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	txp := &fakeTxProvider{}
	return NewEngine(txp, r, r, nil, logger), txp
}

func TestAssignNeverSelf(t *testing.T) {
	roster := newFakeRoster("ana", "bo")
	engine, _ := newTestEngine(roster)

	ana := roster.byName("ana")
	for i := 0; i < 20; i++ {
		roster.participants[ana.ID].TargetID = nil
		target, err := engine.Assign(context.Background(), ana.ID)
		require.NoError(t, err)
		assert.NotEqual(t, ana.ID, target.ID)
	}
}

func TestAssignIsIdempotent(t *testing.T) {
	roster := newFakeRoster("ana", "bo", "cy", "dee")
	engine, txp := newTestEngine(roster)

	ana := roster.byName("ana")
	first, err := engine.Assign(context.Background(), ana.ID)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 1, txp.last.commits)

	for i := 0; i < 10; i++ {
		again, err := engine.Assign(context.Background(), ana.ID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
	}
	assert.Equal(t, 1, roster.setTargets)
}

func TestAssignUnknownRequester(t *testing.T) {
	roster := newFakeRoster("ana")
	engine, txp := newTestEngine(roster)

	_, err := engine.Assign(context.Background(), uuid.New())
	require.Error(t, err)
	require.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	assert.Equal(t, 1, txp.last.rollbacks)
}

func TestAssignRespectsExclusions(t *testing.T) {
	roster := newFakeRoster("ana", "bo", "cy")
	engine, _ := newTestEngine(roster)

	ana := roster.byName("ana")
	bo := roster.byName("bo")
	cy := roster.byName("cy")
	roster.exclude(ana.ID, bo.ID)

	for i := 0; i < 20; i++ {
		roster.participants[ana.ID].TargetID = nil
		target, err := engine.Assign(context.Background(), ana.ID)
		require.NoError(t, err)
		assert.Equal(t, cy.ID, target.ID)
	}
}

func TestAssignExclusionsAreSymmetric(t *testing.T) {
	roster := newFakeRoster("ana", "bo", "cy")
	engine, _ := newTestEngine(roster)

	ana := roster.byName("ana")
	bo := roster.byName("bo")
	cy := roster.byName("cy")
	roster.exclude(ana.ID, bo.ID)

	// The pair was declared from ana's side; bo must not draw ana either.
	target, err := engine.Assign(context.Background(), bo.ID)
	require.NoError(t, err)
	assert.Equal(t, cy.ID, target.ID)
}

func TestAssignNoEligibleTarget(t *testing.T) {
	roster := newFakeRoster("ana", "bo")
	engine, txp := newTestEngine(roster)

	ana := roster.byName("ana")
	bo := roster.byName("bo")
	roster.exclude(ana.ID, bo.ID)

	_, err := engine.Assign(context.Background(), ana.ID)
	require.Error(t, err)
	require.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
	assert.Equal(t, "no eligible target available for assignment", err.Error())
	assert.Equal(t, 0, txp.last.commits)
	assert.Equal(t, 1, txp.last.rollbacks)

	// A failed draw writes nothing; ana stays unassigned.
	assert.Nil(t, roster.participants[ana.ID].TargetID)
}

func TestAssignSingleParticipant(t *testing.T) {
	roster := newFakeRoster("ana")
	engine, _ := newTestEngine(roster)

	_, err := engine.Assign(context.Background(), roster.byName("ana").ID)
	require.Error(t, err)
	require.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}

func TestAssignTwoParticipantsPairEachOther(t *testing.T) {
	roster := newFakeRoster("ana", "bo")
	engine, _ := newTestEngine(roster)

	ana := roster.byName("ana")
	bo := roster.byName("bo")

	anaTarget, err := engine.Assign(context.Background(), ana.ID)
	require.NoError(t, err)
	assert.Equal(t, bo.ID, anaTarget.ID)

	boTarget, err := engine.Assign(context.Background(), bo.ID)
	require.NoError(t, err)
	assert.Equal(t, ana.ID, boTarget.ID)
}

func TestAssignTargetsAreInjective(t *testing.T) {
	names := []string{"ana", "bo", "cy", "dee", "eli", "fay"}

	// The draw is random and greedy, so a late requester can hit a dead end
	// (only themself left unclaimed). Whatever does commit must still be one
	// target per requester, never the requester themself, never a target
	// someone else already claimed.
	for round := 0; round < 10; round++ {
		roster := newFakeRoster(names...)
		engine, _ := newTestEngine(roster)

		seen := make(map[uuid.UUID]bool)
		for _, p := range roster.participants {
			target, err := engine.Assign(context.Background(), p.ID)
			if err != nil {
				require.True(t, httperror.IsHTTPError(err))
				require.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
				continue
			}
			assert.False(t, seen[target.ID], "target %s drawn twice", target.Name)
			assert.NotEqual(t, p.ID, target.ID)
			seen[target.ID] = true
		}
		assert.GreaterOrEqual(t, len(seen), len(names)-1)
	}
}

// Draw order decides feasibility: with ana-bo excluded in a trio, serving cy
// first can leave the later requester without a target. The engine reports
// the dead end instead of reshuffling committed draws.
func TestAssignOrderDependentDeadEnd(t *testing.T) {
	roster := newFakeRoster("ana", "bo", "cy")
	engine, _ := newTestEngine(roster)

	ana := roster.byName("ana")
	bo := roster.byName("bo")
	cy := roster.byName("cy")
	roster.exclude(ana.ID, bo.ID)

	// Force the dead end: cy claims ana, then ana claims cy.
	require.NoError(t, roster.SetTarget(context.Background(), cy.ID, ana.ID))

	anaTarget, err := engine.Assign(context.Background(), ana.ID)
	require.NoError(t, err)
	assert.Equal(t, cy.ID, anaTarget.ID)

	_, err = engine.Assign(context.Background(), bo.ID)
	require.Error(t, err)
	require.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}

func TestAssignExcludedPairNeverDrawnEitherWay(t *testing.T) {
	roster := newFakeRoster("ana", "bo", "cy", "dee")
	engine, _ := newTestEngine(roster)

	ana := roster.byName("ana")
	bo := roster.byName("bo")
	roster.exclude(ana.ID, bo.ID)

	for _, p := range roster.participants {
		target, err := engine.Assign(context.Background(), p.ID)
		if err != nil {
			require.True(t, httperror.IsHTTPError(err))
			require.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
			continue
		}
		if p.ID == ana.ID {
			assert.NotEqual(t, bo.ID, target.ID)
		}
		if p.ID == bo.ID {
			assert.NotEqual(t, ana.ID, target.ID)
		}
	}
}
