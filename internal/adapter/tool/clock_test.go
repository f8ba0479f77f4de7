package tool

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() *ClockTool {
	c := NewClockTool(testLogger())
	c.now = func() time.Time { return time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC) }
	return c
}

func TestClockDefaultsToUTC(t *testing.T) {
	res, err := fixedClock().Execute(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)

	got, err := decode[clockResult](res)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-14T15:09:26Z", got.Time)
	assert.Equal(t, "Friday", got.Weekday)
	assert.Equal(t, int64(1741964966), got.Unix)
	assert.Contains(t, got.Timezone, "UTC")
}

func TestClockTimezone(t *testing.T) {
	res, err := fixedClock().Execute(context.Background(), json.RawMessage(`{"timezone":"Asia/Tokyo"}`))
	require.NoError(t, err)

	got, err := decode[clockResult](res)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-15T00:09:26+09:00", got.Time)
	assert.Equal(t, "Saturday", got.Weekday)
	assert.Contains(t, got.Timezone, "Asia/Tokyo")
}

func TestClockUnknownTimezone(t *testing.T) {
	res, err := fixedClock().Execute(context.Background(), json.RawMessage(`{"timezone":"Mars/Olympus"}`))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, `unknown time zone "Mars/Olympus"`)
}
