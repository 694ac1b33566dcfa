package planning_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/planning-engine/planning"
)

func TestParseClockTime(t *testing.T) {
	c, err := planning.ParseClockTime("07:30")
	require.NoError(t, err)
	assert.Equal(t, 450, c.Minutes())
	assert.Equal(t, "07:30", c.String())

	c, err = planning.ParseClockTime("16:45:00")
	require.NoError(t, err)
	assert.Equal(t, "16:45", c.String())

	c, err = planning.ParseClockTime("24:00")
	require.NoError(t, err)
	assert.Equal(t, planning.MinutesPerDay, c.Minutes())

	_, err = planning.ParseClockTime("7h")
	assert.Error(t, err)
}

func TestDate_WeekStart(t *testing.T) {
	// 2025-01-22 is a Wednesday.
	assert.Equal(t, "2025-01-20", planning.MustParseDate("2025-01-22").WeekStart().String())
	assert.Equal(t, "2025-01-20", planning.MustParseDate("2025-01-20").WeekStart().String())
	assert.Equal(t, "2025-01-20", planning.MustParseDate("2025-01-26").WeekStart().String())
}

func TestDurationBetween_MidnightAware(t *testing.T) {
	assert.Equal(t, 8*time.Hour, planning.DurationBetween(planning.NewClockTime(22, 0), planning.NewClockTime(6, 0)))
	assert.Equal(t, 9*time.Hour, planning.DurationBetween(planning.NewClockTime(7, 0), planning.NewClockTime(16, 0)))
	assert.Equal(t, time.Duration(0), planning.DurationBetween(planning.NewClockTime(8, 0), planning.NewClockTime(8, 0)))
}

func TestHours_Decimal(t *testing.T) {
	assert.Equal(t, "7.75", planning.Hours(planning.NewClockTime(8, 0), planning.NewClockTime(15, 45)).StringFixed(2))
	assert.Equal(t, "8.00", planning.Hours(planning.NewClockTime(22, 0), planning.NewClockTime(6, 0)).StringFixed(2))
}

func TestDispatchItem_Covers(t *testing.T) {
	end := planning.MustParseDate("2025-01-24")
	item := planning.DispatchItem{Date: planning.MustParseDate("2025-01-22"), EndDate: &end}
	assert.True(t, item.Covers(planning.MustParseDate("2025-01-23")))
	assert.True(t, item.Covers(end))
	assert.False(t, item.Covers(planning.MustParseDate("2025-01-25")))
}
