package airquality

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnixSecondsUsesUTC(t *testing.T) {
	ts, err := UnixSeconds("2022/06/01")
	require.NoError(t, err)
	assert.Equal(t, int64(1654041600), ts)

	// Round trip through a UTC calendar formatter.
	assert.Equal(t, "2022-06-01", time.Unix(ts, 0).UTC().Format("2006-01-02"))
}

func TestUnixSecondsMonotonic(t *testing.T) {
	dates := []string{
		"2021/12/31", "2022/01/01", "2022/02/28", "2022/03/01",
		"2022/06/01", "2022/08/31", "2024/02/29", "2024/03/01",
	}
	var prev int64
	for i, d := range dates {
		ts, err := UnixSeconds(d)
		require.NoError(t, err, d)
		if i > 0 {
			assert.Greater(t, ts, prev, "%s should come after %s", d, dates[i-1])
		}
		prev = ts
	}

	same, err := UnixSeconds("2022/06/01")
	require.NoError(t, err)
	again, err := UnixSeconds("2022/06/01")
	require.NoError(t, err)
	assert.Equal(t, same, again)
}

func TestParseDateRejectsMalformedInput(t *testing.T) {
	for _, in := range []string{"", "2022-06-01", "06/01/2022", "2022/13/01", "2022/02/30", "2022/6/1", "yesterday"} {
		_, err := ParseDate(in)
		assert.True(t, errors.Is(err, ErrInvalidDate), "input %q", in)
	}
}

func TestParseDateRange(t *testing.T) {
	r, err := ParseDateRange("2022/06/01", "2022/08/31")
	require.NoError(t, err)
	assert.Equal(t, 91*24*time.Hour, r.End.Sub(r.Start))

	_, err = ParseDateRange("2022/08/31", "2022/06/01")
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = ParseDateRange("2022/06/01", "bad")
	assert.ErrorIs(t, err, ErrInvalidDate)

	single, err := ParseDateRange("2022/06/01", "2022/06/01")
	require.NoError(t, err)
	assert.True(t, single.Start.Equal(single.End))
}

func TestRFC3339Interval(t *testing.T) {
	got, err := RFC3339Interval("2022/06/01", "2022/08/31")
	require.NoError(t, err)
	assert.Equal(t, "2022-06-01T00:00:00Z/2022-08-31T00:00:00Z", got)
}
