package icron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTriggerInfo_Standard(t *testing.T) {
	ref := time.Date(2024, 5, 1, 10, 7, 30, 0, time.UTC)

	info, err := GetTriggerInfo("*/5 * * * *", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 10, 0, 0, time.UTC), info.Next)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 5, 0, 0, time.UTC), info.Last)
	assert.Equal(t, 150*time.Second, info.TimeSinceLast)
	assert.Equal(t, 150*time.Second, info.TimeUntilNext)
}

func TestGetTriggerInfo_Daily(t *testing.T) {
	ref := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	info, err := GetTriggerInfo("0 3 * * *", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 2, 3, 0, 0, 0, time.UTC), info.Next)
	assert.Equal(t, time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC), info.Last)
}

func TestGetTriggerInfo_Every(t *testing.T) {
	ref := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	info, err := GetTriggerInfo("@every 30s", ref)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, info.TimeUntilNext)
	assert.False(t, info.Last.After(ref))
	assert.False(t, info.Last.IsZero())
}

func TestGetTriggerInfo_Invalid(t *testing.T) {
	_, err := GetTriggerInfo("every minute", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron expression")
}
