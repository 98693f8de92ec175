package join

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dclake/internal/domain"
)

func scheduledJoins() []domain.JoinDefinition {
	return []domain.JoinDefinition{
		{Name: "combined", LeftDC: "left", RightDC: "right", OnColumns: []string{"k"}, Persist: true,
			Granularity: &domain.GranularitySpec{NumericDefault: "mean"}, Schedule: "@every 1h"},
		{Name: "hourly-bad", LeftDC: "left", RightDC: "right", OnColumns: []string{"k"}, Persist: true, Schedule: "not a schedule"},
		{Name: "manual", LeftDC: "left", RightDC: "right", OnColumns: []string{"k"}, Persist: true},
		{Name: "broken", LeftDC: "left", RightDC: "nowhere", OnColumns: []string{"k"}, Persist: true, Schedule: "0 3 * * *"},
	}
}

func TestScheduler_RegistersValidSchedules(t *testing.T) {
	ctx := context.Background()
	f := batchFixture(t, scheduledJoins()...)
	s := NewScheduler(f.svc, "demo", RunOptions{AutoProcess: true}, discardLogger())

	require.NoError(t, s.Reload(ctx))
	entries := s.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "broken", entries[0].Name)
	assert.Equal(t, "combined", entries[1].Name)
	assert.Equal(t, "@every 1h", entries[1].Schedule)
	assert.True(t, entries[1].Next.IsZero(), "no next run before start")

	require.NoError(t, s.Start(ctx))
	defer s.Stop()
	for _, e := range s.Entries() {
		assert.False(t, e.Next.IsZero(), e.Name)
	}
}

func TestScheduler_TriggerOverwrites(t *testing.T) {
	ctx := context.Background()
	f := batchFixture(t, scheduledJoins()...)
	s := NewScheduler(f.svc, "demo", RunOptions{AutoProcess: true}, discardLogger())

	first, err := s.Trigger(ctx, "combined")
	require.NoError(t, err)
	require.Len(t, first.Processed, 1)
	id := first.Processed[0].Result.DataCollectionID

	second, err := s.Trigger(ctx, "combined")
	require.NoError(t, err, "reruns replace the previous result")
	require.Len(t, second.Processed, 1)
	assert.Equal(t, id, second.Processed[0].Result.DataCollectionID)
}

func TestScheduler_TriggerFailure(t *testing.T) {
	f := batchFixture(t, scheduledJoins()...)
	s := NewScheduler(f.svc, "demo", RunOptions{AutoProcess: true}, discardLogger())

	report, err := s.Trigger(context.Background(), "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "join broken failed")
	require.NotNil(t, report)
	assert.Equal(t, domain.BatchPartial, report.Status)

	_, err = s.Trigger(context.Background(), "missing")
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}
