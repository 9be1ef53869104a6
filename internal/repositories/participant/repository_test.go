package participant_test

import (
	"context"
	"net/http"
	"os"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/holly/internal/repositories/exclusion"
	"github.com/Ramsey-B/holly/internal/repositories/participant"
	"github.com/Ramsey-B/holly/pkg/database"
	"github.com/Ramsey-B/holly/pkg/models"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func getTestDB(t *testing.T) database.DB {
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "user"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "password"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "holly"
	}

	dsn := "host=" + dbHost + " user=" + dbUser + " password=" + dbPass + " dbname=" + dbName + " sslmode=disable"
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Skipf("postgres not reachable, skipping: %v", err)
	}

	logger := getTestLogger()

	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	require.NoError(t, err)
	ms := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: "../../../db/pg",
	})
	require.NoError(t, ms.Migrate(dbName, driver))

	_, err = db.Exec("DELETE FROM exclusions")
	require.NoError(t, err)
	_, err = db.Exec("UPDATE participants SET target_id = NULL")
	require.NoError(t, err)
	_, err = db.Exec("DELETE FROM participants")
	require.NoError(t, err)

	return database.NewDatabaseInstance(db, logger)
}

func newParticipant(name, pin string) *models.Participant {
	return &models.Participant{
		ID:   uuid.New(),
		Name: name,
		PIN:  pin,
	}
}

func TestInsertAndGetByID(t *testing.T) {
	db := getTestDB(t)
	repo := participant.NewRepository(db, getTestLogger())
	ctx := context.Background()

	p := newParticipant("Ana", "1234")
	require.NoError(t, repo.Insert(ctx, p))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "Ana", got.Name)
	assert.Equal(t, "1234", got.PIN)
	assert.Nil(t, got.TargetID)
}

func TestInsertDuplicatePIN(t *testing.T) {
	db := getTestDB(t)
	repo := participant.NewRepository(db, getTestLogger())
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, newParticipant("Ana", "1234")))

	err := repo.Insert(ctx, newParticipant("Bo", "1234"))
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}

func TestGetByPIN(t *testing.T) {
	db := getTestDB(t)
	repo := participant.NewRepository(db, getTestLogger())
	ctx := context.Background()

	p := newParticipant("Ana", "1234")
	require.NoError(t, repo.Insert(ctx, p))

	got, err := repo.GetByPIN(ctx, "1234")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.ID, got.ID)

	missing, err := repo.GetByPIN(ctx, "0000")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdateParticipantFields(t *testing.T) {
	db := getTestDB(t)
	repo := participant.NewRepository(db, getTestLogger())
	ctx := context.Background()

	p := newParticipant("Ana", "1234")
	require.NoError(t, repo.Insert(ctx, p))

	name := "Ana Maria"
	require.NoError(t, repo.Update(ctx, p.ID, models.UpdateParticipantRequest{Name: &name}))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", got.Name)
	assert.Equal(t, "1234", got.PIN)

	err = repo.Update(ctx, uuid.New(), models.UpdateParticipantRequest{Name: &name})
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}

func TestDeleteCascadesExclusions(t *testing.T) {
	db := getTestDB(t)
	repo := participant.NewRepository(db, getTestLogger())
	exclusionRepo := exclusion.NewRepository(db, getTestLogger())
	ctx := context.Background()

	ana := newParticipant("Ana", "1234")
	bo := newParticipant("Bo", "5678")
	require.NoError(t, repo.Insert(ctx, ana))
	require.NoError(t, repo.Insert(ctx, bo))
	require.NoError(t, exclusionRepo.ReplaceFor(ctx, ana.ID, []uuid.UUID{bo.ID}))

	require.NoError(t, repo.Delete(ctx, ana.ID))

	_, err := repo.GetByID(ctx, ana.ID)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))

	// bo's side of the pair went with ana
	ids, err := exclusionRepo.ListFor(ctx, bo.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestListUnclaimed(t *testing.T) {
	db := getTestDB(t)
	repo := participant.NewRepository(db, getTestLogger())
	ctx := context.Background()

	ana := newParticipant("Ana", "1234")
	bo := newParticipant("Bo", "5678")
	cy := newParticipant("Cy", "9012")
	for _, p := range []*models.Participant{ana, bo, cy} {
		require.NoError(t, repo.Insert(ctx, p))
	}

	// ana draws cy; cy is claimed now
	require.NoError(t, repo.SetTarget(ctx, ana.ID, cy.ID))

	unclaimed, err := repo.ListUnclaimed(ctx, ana.ID)
	require.NoError(t, err)
	require.Len(t, unclaimed, 1)
	assert.Equal(t, bo.ID, unclaimed[0].ID)
}

func TestSetTargetIsSingleShot(t *testing.T) {
	db := getTestDB(t)
	repo := participant.NewRepository(db, getTestLogger())
	ctx := context.Background()

	ana := newParticipant("Ana", "1234")
	bo := newParticipant("Bo", "5678")
	cy := newParticipant("Cy", "9012")
	for _, p := range []*models.Participant{ana, bo, cy} {
		require.NoError(t, repo.Insert(ctx, p))
	}

	require.NoError(t, repo.SetTarget(ctx, ana.ID, bo.ID))

	// a second draw for ana is rejected
	err := repo.SetTarget(ctx, ana.ID, cy.ID)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))

	// bo is claimed; cy cannot draw bo too
	err = repo.SetTarget(ctx, cy.ID, bo.ID)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}

func TestIsTargetOfAnyone(t *testing.T) {
	db := getTestDB(t)
	repo := participant.NewRepository(db, getTestLogger())
	ctx := context.Background()

	ana := newParticipant("Ana", "1234")
	bo := newParticipant("Bo", "5678")
	require.NoError(t, repo.Insert(ctx, ana))
	require.NoError(t, repo.Insert(ctx, bo))

	referenced, err := repo.IsTargetOfAnyone(ctx, bo.ID)
	require.NoError(t, err)
	assert.False(t, referenced)

	require.NoError(t, repo.SetTarget(ctx, ana.ID, bo.ID))

	referenced, err = repo.IsTargetOfAnyone(ctx, bo.ID)
	require.NoError(t, err)
	assert.True(t, referenced)
}

func TestIsPINTaken(t *testing.T) {
	db := getTestDB(t)
	repo := participant.NewRepository(db, getTestLogger())
	ctx := context.Background()

	ana := newParticipant("Ana", "1234")
	require.NoError(t, repo.Insert(ctx, ana))

	taken, err := repo.IsPINTaken(ctx, "1234", uuid.Nil)
	require.NoError(t, err)
	assert.True(t, taken)

	// the owner keeping their own pin is not a collision
	taken, err = repo.IsPINTaken(ctx, "1234", ana.ID)
	require.NoError(t, err)
	assert.False(t, taken)

	taken, err = repo.IsPINTaken(ctx, "0000", uuid.Nil)
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestListAdminViews(t *testing.T) {
	db := getTestDB(t)
	repo := participant.NewRepository(db, getTestLogger())
	exclusionRepo := exclusion.NewRepository(db, getTestLogger())
	ctx := context.Background()

	ana := newParticipant("Ana", "1234")
	bo := newParticipant("Bo", "5678")
	cy := newParticipant("Cy", "9012")
	for _, p := range []*models.Participant{ana, bo, cy} {
		require.NoError(t, repo.Insert(ctx, p))
	}
	require.NoError(t, exclusionRepo.ReplaceFor(ctx, ana.ID, []uuid.UUID{bo.ID}))
	require.NoError(t, repo.SetTarget(ctx, ana.ID, cy.ID))

	views, err := repo.ListAdminViews(ctx)
	require.NoError(t, err)
	require.Len(t, views, 3)

	// ordered by name
	assert.Equal(t, "Ana", views[0].Name)
	assert.Equal(t, "Bo", views[1].Name)
	assert.Equal(t, "Cy", views[2].Name)

	anaView := views[0]
	assert.True(t, anaView.HasAssignment)
	require.NotNil(t, anaView.TargetName)
	assert.Equal(t, "Cy", *anaView.TargetName)
	assert.Equal(t, []uuid.UUID{bo.ID}, anaView.ExcludedIDs)
	assert.Equal(t, []string{"Bo"}, anaView.ExcludedNames)

	boView := views[1]
	assert.False(t, boView.HasAssignment)
	assert.Nil(t, boView.TargetName)
	assert.Equal(t, []uuid.UUID{ana.ID}, boView.ExcludedIDs)
}
