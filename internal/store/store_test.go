package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_Checks(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(3)

	for i := 0; i < 5; i++ {
		require.NoError(t, m.SaveCheck(ctx, CheckRecord{
			ID:       fmt.Sprintf("c%d", i),
			TestName: "cart_add_remove_test",
			Status:   "passed",
			Steps:    []string{"frontend ok"},
		}))
	}

	got, err := m.RecentChecks(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "c4", got[0].ID)
	assert.Equal(t, "c2", got[2].ID)

	got, err = m.RecentChecks(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c4", got[0].ID)
}

func TestMemory_Runs(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)
	assert.Equal(t, DefaultCapacity, m.capacity)

	require.NoError(t, m.SaveRun(ctx, RunRecord{ID: "a", Scenario: "smoke", Passed: true}))
	require.NoError(t, m.SaveRun(ctx, RunRecord{ID: "b", Scenario: "load"}))

	runs, err := m.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[0].ID)
	assert.True(t, runs[1].Passed)
}

func TestMemory_CopiesSteps(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10)
	steps := []string{"one"}
	require.NoError(t, m.SaveCheck(ctx, CheckRecord{ID: "x", Steps: steps}))
	steps[0] = "mutated"

	got, err := m.RecentChecks(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, got[0].Steps)
}

func TestMemory_Closed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(1)
	require.NoError(t, m.Close())

	assert.ErrorIs(t, m.SaveRun(ctx, RunRecord{}), ErrClosed)
	assert.ErrorIs(t, m.SaveCheck(ctx, CheckRecord{}), ErrClosed)
	_, err := m.RecentChecks(ctx, 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = m.RecentRuns(ctx, 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPostgresConfig_DataSource(t *testing.T) {
	assert.Equal(t, "postgres://u@h/db", PostgresConfig{DSN: "postgres://u@h/db", Host: "ignored"}.dataSource())
	assert.Equal(t,
		"host=db port=5432 user=load password=secret dbname=boutique sslmode=disable",
		PostgresConfig{Host: "db", User: "load", Password: "secret", Database: "boutique"}.dataSource())
}

func testDSN(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	return dsn
}

func TestPostgres_RoundTrip(t *testing.T) {
	dsn := testDSN(t)

	db, err := NewPostgres(PostgresConfig{DSN: dsn})
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, db.Ping(ctx))
	require.NoError(t, db.CreateTables(ctx))

	check := CheckRecord{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC().Add(time.Hour),
		TestName:  "cart_add_remove_test",
		Status:    "failed",
		Duration:  1.25,
		Error:     "frontend returned 503",
		Steps:     []string{"frontend health check"},
	}
	require.NoError(t, db.SaveCheck(ctx, check))

	checks, err := db.RecentChecks(ctx, 1)
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.Equal(t, check.ID, checks[0].ID)
	assert.Equal(t, check.Steps, checks[0].Steps)
	assert.Equal(t, check.Error, checks[0].Error)

	summary, err := json.Marshal(map[string]bool{"passed": true})
	require.NoError(t, err)
	run := RunRecord{
		ID:         uuid.NewString(),
		Scenario:   "smoke",
		Target:     "http://frontend",
		StartedAt:  time.Now().UTC().Add(time.Hour),
		FinishedAt: time.Now().UTC().Add(2 * time.Hour),
		Iterations: 42,
		Passed:     true,
		Summary:    summary,
	}
	require.NoError(t, db.SaveRun(ctx, run))

	runs, err := db.RecentRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, int64(42), runs[0].Iterations)
	assert.JSONEq(t, string(summary), string(runs[0].Summary))
}
