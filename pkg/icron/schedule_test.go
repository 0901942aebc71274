package icron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTriggerInfo_Hourly(t *testing.T) {
	ref := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

	info, err := GetTriggerInfo("0 * * * *", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC), info.Next)
	assert.Equal(t, 30*time.Minute, info.TimeUntilNext)
	assert.False(t, info.Last.IsZero())
	assert.True(t, info.Last.Before(ref))
}

func TestGetTriggerInfo_Descriptor(t *testing.T) {
	ref := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	info, err := GetTriggerInfo("@every 15m", ref)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, info.TimeUntilNext)
}

func TestGetTriggerInfo_Invalid(t *testing.T) {
	_, err := GetTriggerInfo("not a cron", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron expression")
}

func TestGetTriggerInfo_DailyLast(t *testing.T) {
	ref := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	info, err := GetTriggerInfo("0 3 * * *", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC), info.Last)
	assert.Equal(t, time.Date(2024, 5, 2, 3, 0, 0, 0, time.UTC), info.Next)
	assert.Equal(t, 7*time.Hour, info.TimeSinceLast)
}
