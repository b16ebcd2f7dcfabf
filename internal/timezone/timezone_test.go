package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocalRoundTrip(t *testing.T) {
	zones := []string{"America/New_York", "Europe/Berlin", "Asia/Kolkata", "UTC", "Australia/Sydney"}
	for _, z := range zones {
		t.Run(z, func(t *testing.T) {
			utc, err := ParseLocal("2025-07-01", "10:30", z)
			require.NoError(t, err)
			assert.Equal(t, time.UTC, utc.Location())

			local, err := ToLocal(utc, z)
			require.NoError(t, err)
			assert.Equal(t, "2025-07-01 10:30", local.Format("2006-01-02 15:04"))
		})
	}
}

func TestParseLocalKnownOffset(t *testing.T) {
	utc, err := ParseLocal("2025-07-01", "10:00", "America/New_York")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 7, 1, 14, 0, 0, 0, time.UTC), utc)

	assert.Equal(t, "2025-07-01 10:00 EDT", Render(utc, "America/New_York"))
	assert.Equal(t, "2025-07-01 14:00 UTC", Render(utc, "Not/AZone"))
}

func TestAmbiguousTimePrefersStandard(t *testing.T) {
	// 01:30 2 ноября 2025 в Нью-Йорке бывает дважды: EDT и EST
	utc, err := ParseLocal("2025-11-02", "01:30", "America/New_York")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 11, 2, 6, 30, 0, 0, time.UTC), utc)

	again, err := ParseLocal("2025-11-02", "01:30", "America/New_York")
	require.NoError(t, err)
	assert.Equal(t, utc, again)
}

func TestNonexistentTimeUsesStandardOffset(t *testing.T) {
	// 02:30 9 марта 2025 в Нью-Йорке не существует
	utc, err := ParseLocal("2025-03-09", "02:30", "America/New_York")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 9, 7, 30, 0, 0, time.UTC), utc)
}

func TestUnknownZone(t *testing.T) {
	_, err := ParseLocal("2025-07-01", "10:00", "Mars/Olympus")
	assert.ErrorIs(t, err, ErrUnknownZone)
	_, err = Load("")
	assert.ErrorIs(t, err, ErrUnknownZone)
	assert.False(t, Valid("Local"))
	assert.True(t, Valid("Europe/Paris"))

	for _, z := range Common {
		assert.True(t, Valid(z), z)
	}
}

func TestPreview(t *testing.T) {
	instant := time.Date(2025, 7, 1, 14, 0, 0, 0, time.UTC)
	entries, err := Preview(instant, []string{"UTC", "Europe/Berlin", "Asia/Tokyo"})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "2025-07-01 14:00 UTC", entries[0].Display)
	assert.Equal(t, "CEST", entries[1].Abbreviation)
	assert.Equal(t, 16, entries[1].Local.Hour())
	assert.Equal(t, 23, entries[2].Local.Hour())
	for _, e := range entries {
		assert.True(t, e.Local.Equal(instant))
	}

	_, err = Preview(instant, []string{"Nope/Nope"})
	assert.Error(t, err)
}

func TestDayBounds(t *testing.T) {
	loc, err := Load("Europe/Berlin")
	require.NoError(t, err)

	start, end, err := DayBounds("2025-07-01", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 30, 22, 0, 0, 0, time.UTC), start)
	assert.Equal(t, 24*time.Hour, end.Sub(start))

	// день перехода на летнее время короче
	start, end, err = DayBounds("2025-03-30", loc)
	require.NoError(t, err)
	assert.Equal(t, 23*time.Hour, end.Sub(start))
}
