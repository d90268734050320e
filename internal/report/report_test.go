package report

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/queue.report/internal/occupancy"
	"github.com/banshee-data/queue.report/internal/queue"
	"github.com/banshee-data/queue.report/internal/timeutil"
)

const shop = "shop"

type fakeStore struct {
	*queue.MemStore
	samples []occupancy.Sample
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{MemStore: queue.NewMemStore()}
}

func (f *fakeStore) add(t time.Time, count int) {
	f.samples = append(f.samples, occupancy.Sample{LocationID: shop, Time: t, Count: count})
	sort.Slice(f.samples, func(i, j int) bool { return f.samples[i].Time.Before(f.samples[j].Time) })
}

func (f *fakeStore) event(t *testing.T, start, end time.Time, turnover, estimate int) {
	t.Helper()
	ctx := context.Background()
	id, err := f.CreateEvent(ctx, shop, start, 7, turnover, estimate)
	require.NoError(t, err)
	if !end.IsZero() {
		require.NoError(t, f.CloseEvent(ctx, id, end, queue.ReasonDrained))
	}
}

func (f *fakeStore) LatestSample(context.Context, string) (*occupancy.Sample, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.samples) == 0 {
		return nil, nil
	}
	s := f.samples[len(f.samples)-1]
	return &s, nil
}

func (f *fakeStore) SamplesBetween(_ context.Context, _ string, from, to time.Time) ([]occupancy.Sample, error) {
	var out []occupancy.Sample
	for _, s := range f.samples {
		if !s.Time.Before(from) && s.Time.Before(to) {
			out = append(out, s)
		}
	}
	return out, f.err
}

func (f *fakeStore) RecentSamples(_ context.Context, _ string, limit int) ([]occupancy.Sample, error) {
	var out []occupancy.Sample
	for i := len(f.samples) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.samples[i])
	}
	return out, f.err
}

func (f *fakeStore) SampleCount(context.Context, string) (int64, error) {
	return int64(len(f.samples)), f.err
}

func (f *fakeStore) StatusChanges(_ context.Context, _ string, limit int) ([]occupancy.Sample, error) {
	var out []occupancy.Sample
	for i, s := range f.samples {
		if i == 0 || s.Status() != f.samples[i-1].Status() {
			out = append(out, s)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, f.err
}

func (f *fakeStore) RecentClosedEvents(ctx context.Context, loc string, limit int) ([]queue.Event, error) {
	events, _ := f.ClosedEventsSince(ctx, loc, time.Time{})
	sort.Slice(events, func(i, j int) bool { return events[i].Start.After(events[j].Start) })
	if len(events) > limit {
		events = events[:limit]
	}
	return events, f.err
}

var now = time.Date(2024, 6, 3, 12, 30, 0, 0, time.UTC)

func newService(store Store) *Service {
	return &Service{
		Store:      store,
		LocationID: shop,
		Location:   time.UTC,
		Thresholds: queue.DefaultThresholds(),
		Clock:      timeutil.NewMockClock(now),
	}
}

func at(day, hour, min int) time.Time {
	return time.Date(2024, 6, day, hour, min, 0, 0, time.UTC)
}

func TestParseParams(t *testing.T) {
	days, err := ParseDays("")
	require.NoError(t, err)
	assert.Equal(t, DefaultDays, days)

	days, err = ParseDays(" 30 ")
	require.NoError(t, err)
	assert.Equal(t, 30, days)

	for _, raw := range []string{"0", "91", "-1", "seven"} {
		_, err := ParseDays(raw)
		assert.ErrorIs(t, err, ErrBadRequest, raw)
	}

	limit, err := ParseLimit("", DefaultHistoryLimit)
	require.NoError(t, err)
	assert.Equal(t, DefaultHistoryLimit, limit)
	_, err = ParseLimit("1001", DefaultHistoryLimit)
	assert.ErrorIs(t, err, ErrBadRequest)

	d, err := ParseDate("", time.UTC, now)
	require.NoError(t, err)
	assert.Equal(t, at(3, 0, 0), d)
	d, err = ParseDate("2024-05-31", time.UTC, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC), d)
	_, err = ParseDate("31/05/2024", time.UTC, now)
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestReportsRejectBadInput(t *testing.T) {
	svc := newService(newFakeStore())
	ctx := context.Background()

	_, err := svc.DailySamples(ctx, 0)
	assert.ErrorIs(t, err, ErrBadRequest)
	_, err = svc.QueueDaily(ctx, 91)
	assert.ErrorIs(t, err, ErrBadRequest)
	_, err = svc.Heatmap(ctx, -3)
	assert.ErrorIs(t, err, ErrBadRequest)
	_, err = svc.QueueHistory(ctx, 0)
	assert.ErrorIs(t, err, ErrBadRequest)
	_, err = svc.StatusHistory(ctx, 5000)
	assert.ErrorIs(t, err, ErrBadRequest)
	_, err = svc.Dashboard(ctx, 100)
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestLatestAndCount(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)
	ctx := context.Background()

	l, err := svc.Latest(ctx)
	require.NoError(t, err)
	assert.False(t, l.Recorded)
	assert.Equal(t, occupancy.Unknown, l.Status)

	store.add(at(3, 12, 0), 1)
	store.add(at(3, 12, 1), 7)
	l, err = svc.Latest(ctx)
	require.NoError(t, err)
	assert.True(t, l.Recorded)
	assert.Equal(t, 7, l.Count)
	assert.Equal(t, occupancy.VeryCrowded, l.Status)

	c, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Records)
}

func TestStatusHistory(t *testing.T) {
	store := newFakeStore()
	for i, c := range []int{0, 0, 3, 4, 7, 2} {
		store.add(at(3, 11, i), c)
	}
	got, err := newService(store).StatusHistory(context.Background(), 10)
	require.NoError(t, err)

	want := []StatusEntry{
		{Timestamp: at(3, 11, 5), Status: occupancy.SlightlyBusy, Count: 2},
		{Timestamp: at(3, 11, 4), Status: occupancy.VeryCrowded, Count: 7},
		{Timestamp: at(3, 11, 2), Status: occupancy.SlightlyBusy, Count: 3},
		{Timestamp: at(3, 11, 0), Status: occupancy.Vacant, Count: 0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("StatusHistory mismatch (-want +got):\n%s", diff)
	}
}

func TestDailyAndHourlySamples(t *testing.T) {
	store := newFakeStore()
	store.add(at(1, 9, 0), 2)
	store.add(at(1, 9, 30), 4)
	store.add(at(2, 10, 0), 1)
	store.add(at(2, 10, 10), 5)
	store.add(at(2, 11, 0), 9)
	svc := newService(store)
	ctx := context.Background()

	daily, err := svc.DailySamples(ctx, 7)
	require.NoError(t, err)
	want := []SampleStats{
		{Date: "2024-06-02", AvgCount: 5, MaxCount: 9, MinCount: 1, RecordCount: 3},
		{Date: "2024-06-01", AvgCount: 3, MaxCount: 4, MinCount: 2, RecordCount: 2},
	}
	if diff := cmp.Diff(want, daily); diff != "" {
		t.Errorf("DailySamples mismatch (-want +got):\n%s", diff)
	}

	hourly, err := svc.HourlySamples(ctx, at(2, 0, 0))
	require.NoError(t, err)
	require.Len(t, hourly, 2)
	assert.Equal(t, 10, *hourly[0].Hour)
	assert.Equal(t, 3.0, hourly[0].AvgCount)
	assert.Equal(t, 2, hourly[0].RecordCount)
	assert.Equal(t, 11, *hourly[1].Hour)
	assert.Equal(t, 9, hourly[1].MaxCount)
}

func TestQueueDailyAndHistory(t *testing.T) {
	store := newFakeStore()
	store.event(t, at(1, 12, 0), at(1, 12, 20), 3, 3)
	store.event(t, at(2, 9, 0), at(2, 9, 10), 1, 1)
	store.event(t, at(2, 18, 0), at(2, 18, 30), 5, 5)
	store.event(t, at(3, 12, 20), time.Time{}, 2, 2)
	svc := newService(store)
	ctx := context.Background()

	daily, err := svc.QueueDaily(ctx, 7)
	require.NoError(t, err)
	require.Len(t, daily, 2)
	assert.Equal(t, "2024-06-02", daily[0].Date)
	assert.Equal(t, 2, daily[0].Count)
	assert.Equal(t, 3.0, daily[0].AvgTurnover)
	assert.Equal(t, 5, daily[0].MaxTurnover)
	assert.Equal(t, 20.0, daily[0].AvgDurationMinutes)
	assert.Equal(t, "2024-06-01", daily[1].Date)
	assert.Equal(t, 1, daily[1].Count)

	hist, err := svc.QueueHistory(ctx, 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, at(2, 18, 0), hist[0].Start)
	assert.Equal(t, 30.0, hist[0].DurationMinutes)
	assert.Equal(t, 4, hist[0].RefillCount)
	assert.Equal(t, at(2, 9, 0), hist[1].Start)
}

func TestHeatmapCountsTurnoverOnce(t *testing.T) {
	store := newFakeStore()
	store.event(t, at(2, 12, 45), at(2, 13, 5), 4, 4)
	cells, err := newService(store).Heatmap(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, cells, 3)

	assert.Equal(t, "12:40", cells[0].Label)
	assert.True(t, cells[0].IsStart)
	require.NotNil(t, cells[0].Turnover)
	assert.Equal(t, 4, *cells[0].Turnover)
	assert.Equal(t, 5.0, cells[0].DurationMinutes)

	for _, c := range cells[1:] {
		assert.False(t, c.IsStart)
		assert.Nil(t, c.Turnover, c.Label)
		assert.Nil(t, c.EstimatedQueue, c.Label)
	}
	assert.Equal(t, "12:50", cells[1].Label)
	assert.Equal(t, 10.0, cells[1].DurationMinutes)
	assert.Equal(t, "13:00", cells[2].Label)
	assert.Equal(t, 5.0, cells[2].DurationMinutes)
}

func TestQueueStacksAndWeeklyHourly(t *testing.T) {
	store := newFakeStore()
	store.event(t, at(1, 12, 45), at(1, 14, 10), 3, 3)
	store.event(t, at(2, 12, 0), at(2, 12, 30), 1, 1)
	svc := newService(store)
	ctx := context.Background()

	stacks, err := svc.QueueStacks(ctx, 7)
	require.NoError(t, err)
	require.Len(t, stacks, 2)
	assert.Equal(t, "2024-06-02", stacks[0].Date)
	assert.Len(t, stacks[0].Hours, 1)
	assert.Equal(t, "2024-06-01", stacks[1].Date)
	require.Len(t, stacks[1].Hours, 3)
	assert.Equal(t, 15.0, stacks[1].Hours[0].Minutes)
	assert.Equal(t, 60.0, stacks[1].Hours[1].Minutes)
	assert.Equal(t, 10.0, stacks[1].Hours[2].Minutes)

	weekly, err := svc.WeeklyHourly(ctx, 7)
	require.NoError(t, err)
	require.Len(t, weekly, 3)
	assert.Equal(t, 12, weekly[0].Key.Hour)
	assert.Equal(t, 2, weekly[0].EventCount)
	assert.Equal(t, 45.0, weekly[0].TotalMinutes)
	assert.Equal(t, 2.0, weekly[0].AvgTurnover)
	assert.Equal(t, 1, weekly[1].EventCount)
}

func TestCurrentHidesQueueWhenNearlyEmpty(t *testing.T) {
	store := newFakeStore()
	store.event(t, at(3, 12, 20), time.Time{}, 3, 3)
	store.add(at(3, 12, 29), 2)
	svc := newService(store)

	cur, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.False(t, cur.HasQueue)
	assert.Nil(t, cur.Event)
	assert.Equal(t, 2, cur.Count)
	assert.Equal(t, queue.EstimateNote, cur.EstimateNote)

	store.add(at(3, 12, 30), 6)
	cur, err = svc.Current(context.Background())
	require.NoError(t, err)
	assert.True(t, cur.HasQueue)
	require.NotNil(t, cur.Event)
	assert.Equal(t, 3, cur.Turnover)
	assert.Equal(t, 10.0, cur.ElapsedMinutes)
}

func TestDashboardFallbackPrediction(t *testing.T) {
	store := newFakeStore()
	store.add(at(2, 12, 10), 2)
	store.add(at(2, 12, 40), 4)
	store.add(at(2, 13, 0), 40)
	store.event(t, at(3, 12, 20), time.Time{}, 3, 3)
	store.add(at(3, 12, 28), 7)
	store.add(at(3, 12, 29), 9)

	d, err := newService(store).Dashboard(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 12, d.Hour)
	assert.Equal(t, 9, d.Count)
	assert.Equal(t, 3.0, d.HourAvgCount)
	assert.Equal(t, 4, d.HourMaxCount)
	assert.Equal(t, 2, d.HourMinCount)
	assert.Equal(t, 200, d.Percentage)
	assert.Equal(t, TrendRising, d.Trend)
	assert.True(t, d.HasQueue)
	assert.Equal(t, 2, d.Processed)
	assert.Equal(t, 1, d.Remaining, "only the fill in progress is still waiting")
	assert.Equal(t, 3, d.Total, "total is the turnover count, refills are not counted twice")
	assert.Equal(t, 2.0, d.PredictedWait)
}

func TestDashboardGapEstimateIsRemaining(t *testing.T) {
	store := newFakeStore()
	store.event(t, at(3, 12, 20), time.Time{}, 3, 4)
	store.add(at(3, 12, 28), 9)
	store.add(at(3, 12, 29), 9)

	svc := newService(store)
	svc.Thresholds.Estimator = queue.EstimateGap
	d, err := svc.Dashboard(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, d.HasQueue)
	assert.Equal(t, 2, d.Processed)
	assert.Equal(t, 4, d.Remaining)
	assert.Equal(t, 6, d.Total)
	assert.Equal(t, 8.0, d.PredictedWait)
}

func TestTrendIgnoresSinglePersonChange(t *testing.T) {
	tests := []struct {
		name         string
		newest, prev int
		want         Trend
	}{
		{"one more", 8, 7, TrendStable},
		{"one fewer", 7, 8, TrendStable},
		{"two more", 9, 7, TrendRising},
		{"two fewer", 5, 7, TrendFalling},
		{"unchanged", 7, 7, TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recent := []occupancy.Sample{
				{Time: at(3, 12, 29), Count: tt.newest},
				{Time: at(3, 12, 28), Count: tt.prev},
			}
			assert.Equal(t, tt.want, trendOf(recent))
		})
	}
	assert.Equal(t, TrendStable, trendOf([]occupancy.Sample{{Time: at(3, 12, 29), Count: 9}}))
}

func TestDashboardPredictsFromHourHistory(t *testing.T) {
	store := newFakeStore()
	store.event(t, at(2, 12, 10), at(2, 12, 40), 5, 5)
	store.event(t, at(2, 15, 0), at(2, 16, 0), 1, 1)
	store.event(t, at(3, 12, 20), time.Time{}, 3, 3)
	store.add(at(3, 12, 28), 9)
	store.add(at(3, 12, 29), 9)

	d, err := newService(store).Dashboard(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 5.0, d.HourAvgQueue)
	assert.Equal(t, 30.0, d.HourAvgDuration)
	assert.Equal(t, TrendStable, d.Trend)
	assert.Equal(t, 0, d.Percentage)
	assert.Equal(t, 1, d.Remaining)
	assert.Equal(t, 6.0, d.PredictedWait)
}

func TestDashboardQuietLocation(t *testing.T) {
	store := newFakeStore()
	store.add(at(3, 12, 28), 3)
	store.add(at(3, 12, 29), 1)

	d, err := newService(store).Dashboard(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, d.HasQueue)
	assert.Equal(t, TrendFalling, d.Trend)
	assert.Zero(t, d.PredictedWait)
	assert.Equal(t, occupancy.SlightlyBusy, d.Status)
}

func TestStoreErrorsPropagate(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("disk gone")
	svc := newService(store)
	ctx := context.Background()

	_, err := svc.Latest(ctx)
	assert.EqualError(t, err, "disk gone")
	_, err = svc.DailySamples(ctx, 7)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrBadRequest)
	_, err = svc.Dashboard(ctx, 7)
	assert.Error(t, err)
}
