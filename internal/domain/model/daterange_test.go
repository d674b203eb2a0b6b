package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2026, 8, d, 0, 0, 0, 0, time.UTC)
}

func TestDateRangeValidate(t *testing.T) {
	assert.NoError(t, DateRange{Start: day(1), End: day(7)}.Validate())
	assert.NoError(t, DateRange{Start: day(1), End: day(1)}.Validate())
	assert.Error(t, DateRange{Start: day(7), End: day(1)}.Validate())
	assert.Error(t, DateRange{}.Validate())
	assert.Error(t, DateRange{Start: day(1)}.Validate())
}

func TestDateRangeDays(t *testing.T) {
	assert.Equal(t, 1, DateRange{Start: day(1), End: day(1)}.Days())
	assert.Equal(t, 7, DateRange{Start: day(1), End: day(7)}.Days())
	assert.Equal(t, 31, DateRange{Start: day(1), End: day(31)}.Days())
}

func TestDateRangeContains(t *testing.T) {
	rng := DateRange{Start: day(1), End: day(7)}

	assert.True(t, rng.Contains(day(1)))
	assert.True(t, rng.Contains(day(4).Add(15*time.Hour)))
	// End day is inclusive through its full day.
	assert.True(t, rng.Contains(day(7).Add(23*time.Hour)))
	assert.False(t, rng.Contains(day(8)))
	assert.False(t, rng.Contains(day(1).Add(-time.Second)))
}

func TestDateRangeChunks(t *testing.T) {
	t.Run("short range stays whole", func(t *testing.T) {
		rng := DateRange{Start: day(1), End: day(7)}
		chunks := rng.Chunks(31)
		require.Len(t, chunks, 1)
		assert.Equal(t, rng, chunks[0])
	})

	t.Run("long range splits into consecutive chunks", func(t *testing.T) {
		rng := DateRange{Start: day(1), End: day(20)}
		chunks := rng.Chunks(7)
		require.Len(t, chunks, 3)

		assert.Equal(t, DateRange{Start: day(1), End: day(7)}, chunks[0])
		assert.Equal(t, DateRange{Start: day(8), End: day(14)}, chunks[1])
		assert.Equal(t, DateRange{Start: day(15), End: day(20)}, chunks[2])

		total := 0
		for _, c := range chunks {
			total += c.Days()
		}
		assert.Equal(t, rng.Days(), total)
	})

	t.Run("non-positive max keeps the range whole", func(t *testing.T) {
		rng := DateRange{Start: day(1), End: day(20)}
		assert.Len(t, rng.Chunks(0), 1)
		assert.Len(t, rng.Chunks(-1), 1)
	})
}
