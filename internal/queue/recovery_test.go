package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/queue.report/internal/occupancy"
)

func seedOrphan(t *testing.T, store *MemStore, start time.Time) int64 {
	t.Helper()
	id, err := store.CreateEvent(context.Background(), "shop", start, 7, 2, 2)
	require.NoError(t, err)
	return id
}

func TestRecoverDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	seedOrphan(t, store, t0)

	res, err := Recover(ctx, store, "shop", OrphanDelete, nil)
	require.NoError(t, err)
	assert.Equal(t, RecoverResult{Deleted: 1}, res)
	assert.Empty(t, store.Events())
}

func TestRecoverClose(t *testing.T) {
	ctx := context.Background()
	last := t0.Add(5 * time.Minute)

	tests := []struct {
		name    string
		last    LastSampleFunc
		wantEnd time.Time
	}{
		{
			name: "last sample after start",
			last: func(context.Context, string) (time.Time, bool, error) {
				return last, true, nil
			},
			wantEnd: last,
		},
		{
			name: "last sample before start",
			last: func(context.Context, string) (time.Time, bool, error) {
				return t0.Add(-time.Hour), true, nil
			},
			wantEnd: t0,
		},
		{
			name: "no samples",
			last: func(context.Context, string) (time.Time, bool, error) {
				return time.Time{}, false, nil
			},
			wantEnd: t0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemStore()
			seedOrphan(t, store, t0)

			res, err := Recover(ctx, store, "shop", OrphanClose, tt.last)
			require.NoError(t, err)
			assert.Equal(t, 1, res.Closed)

			events := store.Events()
			require.Len(t, events, 1)
			require.NotNil(t, events[0].End)
			assert.True(t, events[0].End.Equal(tt.wantEnd), "end = %v, want %v", events[0].End, tt.wantEnd)
			assert.Equal(t, ReasonOrphan, events[0].CloseReason)
		})
	}
}

func TestRecoverUnknownPolicy(t *testing.T) {
	store := NewMemStore()
	seedOrphan(t, store, t0)
	_, err := Recover(context.Background(), store, "shop", "resume", nil)
	assert.Error(t, err)
}

func TestRecoverThenMonitorStartsIdle(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	seedOrphan(t, store, t0)

	_, err := Recover(ctx, store, "shop", OrphanDelete, nil)
	require.NoError(t, err)

	m := NewMonitor("shop", DefaultThresholds(), store)
	out, err := m.Observe(ctx, occupancy.Sample{Time: t0.Add(time.Hour), Count: 9})
	require.NoError(t, err)
	assert.NotZero(t, out.EventID)

	open, err := store.OpenEvents(ctx, "shop")
	require.NoError(t, err)
	assert.Len(t, open, 1, "only the fresh episode should be open")
}
