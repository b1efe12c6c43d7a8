package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fernandezvara/opsledger/ledger"
)

type fakeRoller struct {
	days []time.Time
	err  error
}

func (f *fakeRoller) RollupInventory(ctx context.Context, day time.Time) ([]ledger.InventorySummary, error) {
	f.days = append(f.days, day)
	if f.err != nil {
		return nil, f.err
	}
	return []ledger.InventorySummary{{SummaryDate: day}, {SummaryDate: day}}, nil
}

func TestRunOnce_PreviousDay(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	roller := &fakeRoller{}
	s, err := New("15 0 * * *", roller, zap.New(core))
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2024, 3, 15, 0, 15, 0, 0, time.UTC) }

	out, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, out, 2)
	require.Len(t, roller.days, 1)
	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), roller.days[0])

	entries := logs.FilterMessage("scheduled rollup finished").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "2024-03-14", entries[0].ContextMap()["day"])
	assert.EqualValues(t, 2, entries[0].ContextMap()["materials"])
}

func TestRunOnce_CrossesMonth(t *testing.T) {
	roller := &fakeRoller{}
	s, err := New("@daily", roller, nil)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2024, 3, 1, 5, 0, 0, 0, time.FixedZone("GST", 4*3600)) }

	_, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), roller.days[0])
}

func TestRunOnce_Error(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	boom := errors.New("boom")
	s, err := New("@daily", &fakeRoller{err: boom}, zap.New(core))
	require.NoError(t, err)

	_, err = s.RunOnce(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, logs.FilterMessage("scheduled rollup failed").Len())
}

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := New("every night", &fakeRoller{}, nil)
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	s, err := New("15 0 * * *", &fakeRoller{}, nil)
	require.NoError(t, err)

	s.Start()
	s.Start()
	next := s.NextRun()
	assert.False(t, next.IsZero())
	assert.Equal(t, 0, next.Hour())
	assert.Equal(t, 15, next.Minute())
	s.Stop()
	s.Stop()
}
