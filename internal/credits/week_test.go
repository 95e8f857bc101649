package credits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var storeZone = time.FixedZone("CST", -6*60*60)

func TestWeekStartOnSaturdayIsSameDay(t *testing.T) {
	sat := time.Date(2024, time.May, 11, 15, 30, 0, 0, storeZone)
	week := WeekOf(sat)

	require.Equal(t, time.Date(2024, time.May, 11, 0, 0, 0, 0, storeZone), week.Start)
	require.Equal(t, time.Date(2024, time.May, 17, 23, 59, 59, int(999*time.Millisecond), storeZone), week.End)
	require.Equal(t, "2024-05-17", DateString(week.DueDate()))
}

func TestWeekStartMidweek(t *testing.T) {
	wed := time.Date(2024, time.May, 15, 9, 0, 0, 0, storeZone)
	require.Equal(t, time.Date(2024, time.May, 11, 0, 0, 0, 0, storeZone), WeekStart(wed))

	sun := time.Date(2024, time.May, 12, 0, 0, 1, 0, storeZone)
	require.Equal(t, time.Date(2024, time.May, 11, 0, 0, 0, 0, storeZone), WeekStart(sun))

	fri := time.Date(2024, time.May, 17, 23, 59, 59, 0, storeZone)
	require.Equal(t, time.Date(2024, time.May, 11, 0, 0, 0, 0, storeZone), WeekStart(fri))
}

func TestWeekCrossesMonthAndYear(t *testing.T) {
	mon := time.Date(2024, time.January, 1, 12, 0, 0, 0, storeZone)
	week := WeekOf(mon)

	require.Equal(t, "2023-12-30", DateString(week.Start))
	require.Equal(t, "2024-01-05", DateString(week.End))
	require.Equal(t, "30/12 - 05/01", week.Range())
}

func TestFormatWeekRange(t *testing.T) {
	start := time.Date(2024, time.May, 11, 0, 0, 0, 0, storeZone)
	require.Equal(t, "11/05 - 17/05", FormatWeekRange(start))
}

func TestWeekContainsBoundaries(t *testing.T) {
	week := WeekOf(time.Date(2024, time.May, 15, 0, 0, 0, 0, storeZone))

	require.True(t, week.Contains(week.Start))
	require.True(t, week.Contains(week.End))
	require.False(t, week.Contains(week.Start.Add(-time.Nanosecond)))
	require.False(t, week.Contains(week.End.Add(time.Millisecond)))
}

func TestIsCurrentWeek(t *testing.T) {
	now := time.Date(2024, time.May, 15, 9, 0, 0, 0, storeZone)

	require.True(t, IsCurrentWeek(time.Date(2024, time.May, 11, 0, 0, 0, 0, storeZone), now))
	require.True(t, IsCurrentWeek(time.Date(2024, time.May, 17, 20, 0, 0, 0, storeZone), now))
	require.False(t, IsCurrentWeek(time.Date(2024, time.May, 10, 23, 0, 0, 0, storeZone), now))
}

func TestCalendarUsesStoreZone(t *testing.T) {
	// 2024-05-18 03:00 UTC is still Friday evening in the store.
	instant := time.Date(2024, time.May, 18, 3, 0, 0, 0, time.UTC)
	cal := NewCalendar(storeZone, func() time.Time { return instant })

	week := cal.WeekOf(cal.Now())
	require.Equal(t, "2024-05-11", DateString(week.Start))
	require.Equal(t, "2024-05-17", DateString(cal.Today()))

	scanned := time.Date(2024, time.May, 11, 0, 0, 0, 0, time.UTC)
	require.Equal(t, week.Start, cal.InStore(scanned))
}
