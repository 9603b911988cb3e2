package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/credit-applier/internal/types"
)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	j, err := OpenSQLite(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestSQLite_RunLifecycle(t *testing.T) {
	j := openTestSQLite(t)
	ctx := context.Background()

	runID, err := j.StartRun(ctx, RunInput{Source: "sheet-123/Июнь"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, runID)

	require.NoError(t, j.RecordOutcome(ctx, runID, OutcomeInput{
		Row: 2, Name: "Ivanova A.", Category: "activity", Outcome: "applied", Units: 2, UnitsApplied: 2,
	}))
	require.NoError(t, j.RecordOutcome(ctx, runID, OutcomeInput{
		Row: 3, Name: "Petrov B.", Category: "activity", Outcome: "failed", Units: 5, UnitsApplied: 3,
		Error: "unit 4 of 5: timed out",
	}))
	require.NoError(t, j.FinishRun(ctx, runID, types.RunStateFinished, "records processed with warnings"))

	runs, err := j.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)
	assert.Equal(t, "finished", runs[0].State)
	assert.Equal(t, "sheet-123/Июнь", runs[0].Source)
	require.NotNil(t, runs[0].FinishedAt)
	assert.WithinDuration(t, time.Now(), runs[0].StartedAt, time.Minute)

	outcomes, err := j.ListOutcomes(ctx, runID)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "Ivanova A.", outcomes[0].Name)
	assert.Equal(t, 3, outcomes[1].UnitsApplied)
	assert.Equal(t, "unit 4 of 5: timed out", outcomes[1].Error)
	assert.Equal(t, runID, outcomes[1].RunID)
}

func TestSQLite_ListRunsNewestFirst(t *testing.T) {
	j := openTestSQLite(t)
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Second)
		j.now = func() time.Time { return at }
		id, err := j.StartRun(ctx, RunInput{})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	runs, err := j.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
	assert.Equal(t, StateRunning, runs[0].State)
	assert.Nil(t, runs[0].FinishedAt)
}

func TestSQLite_FinishUnknownRun(t *testing.T) {
	j := openTestSQLite(t)
	err := j.FinishRun(context.Background(), uuid.New(), types.RunStateAborted, "")
	assert.Error(t, err)
}

func TestSQLite_OutcomeRequiresRun(t *testing.T) {
	j := openTestSQLite(t)
	err := j.RecordOutcome(context.Background(), uuid.New(), OutcomeInput{Row: 2, Name: "A", Category: "activity", Outcome: "applied"})
	assert.Error(t, err, "foreign keys are enforced")
}

func TestSQLite_ReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := OpenSQLite(path)
	require.NoError(t, err)
	runID, err := j.StartRun(ctx, RunInput{Source: "a.csv"})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = OpenSQLite(path)
	require.NoError(t, err)
	defer j.Close()

	runs, err := j.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)
}

func TestOpen_DefaultsToSQLite(t *testing.T) {
	j, err := Open(context.Background(), "", filepath.Join(t.TempDir(), "j.db"))
	require.NoError(t, err)
	defer j.Close()
	_, ok := j.(*SQLite)
	assert.True(t, ok)
}

func TestNop(t *testing.T) {
	var j Journal = Nop{}
	ctx := context.Background()

	id, err := j.StartRun(ctx, RunInput{})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	assert.NoError(t, j.RecordOutcome(ctx, id, OutcomeInput{}))
	assert.NoError(t, j.FinishRun(ctx, id, types.RunStateFinished, ""))
	runs, err := j.ListRuns(ctx, 1)
	assert.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, j.Close())
}
