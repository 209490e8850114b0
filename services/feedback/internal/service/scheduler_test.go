package service

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeeklySchedule_Next(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	tests := []struct {
		name     string
		schedule WeeklySchedule
		after    time.Time
		want     time.Time
	}{
		{
			name:     "later the same week",
			schedule: WeeklySchedule{Weekday: time.Monday, Hour: 9, Location: time.UTC},
			// Friday
			after: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
			want:  time.Date(2024, 3, 18, 9, 0, 0, 0, time.UTC),
		},
		{
			name:     "same day before the hour",
			schedule: WeeklySchedule{Weekday: time.Monday, Hour: 9, Location: time.UTC},
			after:    time.Date(2024, 3, 18, 8, 59, 0, 0, time.UTC),
			want:     time.Date(2024, 3, 18, 9, 0, 0, 0, time.UTC),
		},
		{
			name:     "exactly at the firing time",
			schedule: WeeklySchedule{Weekday: time.Monday, Hour: 9, Location: time.UTC},
			after:    time.Date(2024, 3, 18, 9, 0, 0, 0, time.UTC),
			want:     time.Date(2024, 3, 25, 9, 0, 0, 0, time.UTC),
		},
		{
			name:     "named zone",
			schedule: WeeklySchedule{Weekday: time.Monday, Hour: 9, Location: berlin},
			after:    time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
			want:     time.Date(2024, 3, 18, 9, 0, 0, 0, berlin),
		},
		{
			name:     "nil location is UTC",
			schedule: WeeklySchedule{Weekday: time.Sunday, Hour: 0},
			after:    time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
			want:     time.Date(2024, 3, 17, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.schedule.Next(tt.after)
			assert.True(t, tt.want.Equal(got), "got %s, want %s", got, tt.want)
		})
	}
}

func TestParseWeekday(t *testing.T) {
	d, err := ParseWeekday("Monday")
	require.NoError(t, err)
	assert.Equal(t, time.Monday, d)

	d, err = ParseWeekday(" sat ")
	require.NoError(t, err)
	assert.Equal(t, time.Saturday, d)

	_, err = ParseWeekday("funday")
	assert.Error(t, err)
}

func TestRunWeekly_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	schedule := WeeklySchedule{Weekday: time.Now().Weekday(), Hour: 0, Location: time.UTC}

	done := make(chan struct{})
	go func() {
		RunWeekly(ctx, schedule, func(context.Context) error {
			t.Error("run should not fire before the schedule")
			return nil
		}, newTestLogger())
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunWeekly did not stop after cancel")
	}
}
