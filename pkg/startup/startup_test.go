package startup

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestStartRespectsDependencyOrder(t *testing.T) {
	s := NewStartup(noopLogger(), 1)

	var started []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			started = append(started, name)
			return nil
		}
	}

	s.AddDependency(&Func{Name: "migrations", Needs: []string{"database"}, StartFunc: record("migrations")})
	s.AddDependency(&Func{Name: "database", StartFunc: record("database")})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"database", "migrations"}, started)
}

func TestStartRetriesOnlyFailedDependencies(t *testing.T) {
	s := NewStartup(noopLogger(), 3)

	dbStarts := 0
	s.AddDependency(&Func{Name: "database", StartFunc: func(context.Context) error {
		dbStarts++
		return nil
	}})

	flakyStarts := 0
	s.AddDependency(&Func{Name: "redis", StartFunc: func(context.Context) error {
		flakyStarts++
		if flakyStarts < 2 {
			return errors.New("connection refused")
		}
		return nil
	}})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 1, dbStarts)
	assert.Equal(t, 2, flakyStarts)
}

func TestStartFailsAfterMaxAttempts(t *testing.T) {
	s := NewStartup(noopLogger(), 2)

	s.AddDependency(&Func{Name: "database", StartFunc: func(context.Context) error {
		return errors.New("connection refused")
	}})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "startup failed after 2 attempts")
}

func TestStartUnknownDependency(t *testing.T) {
	s := NewStartup(noopLogger(), 1)

	s.AddDependency(&Func{Name: "migrations", Needs: []string{"database"}})

	err := s.Start(context.Background())
	require.Error(t, err)
}

func TestStopReversesStartOrder(t *testing.T) {
	s := NewStartup(noopLogger(), 1)

	var stopped []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			stopped = append(stopped, name)
			return nil
		}
	}

	s.AddDependency(&Func{Name: "database", StopFunc: record("database")})
	s.AddDependency(&Func{Name: "migrations", Needs: []string{"database"}, StopFunc: record("migrations")})

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"migrations", "database"}, stopped)
}
