package icron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// TriggerInfo describes where a reference time sits within a schedule.
type TriggerInfo struct {
	Next       time.Time `json:"next"`
	Last       time.Time `json:"last,omitempty"`
	Expression string    `json:"expression"`

	TimeSinceLast time.Duration `json:"time_since_last,omitempty"`
	TimeUntilNext time.Duration `json:"time_until_next"`
}

// Parse accepts standard five-field expressions and descriptors such as
// "@hourly" or "@every 30s".
func Parse(cronExpr string) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

func GetTriggerInfo(cronExpr string, refTime time.Time) (*TriggerInfo, error) {
	schedule, err := Parse(cronExpr)
	if err != nil {
		return nil, err
	}

	info := &TriggerInfo{
		Expression: cronExpr,
		Next:       schedule.Next(refTime),
		Last:       lastBefore(schedule, refTime),
	}
	info.TimeUntilNext = info.Next.Sub(refTime)
	if !info.Last.IsZero() {
		info.TimeSinceLast = refTime.Sub(info.Last)
	}
	return info, nil
}

// lastBefore finds the latest activation at or before refTime, looking back
// at most a year. Zero means none was found.
func lastBefore(schedule cron.Schedule, refTime time.Time) time.Time {
	for window := time.Minute; window <= 366*24*time.Hour; window *= 2 {
		candidate := schedule.Next(refTime.Add(-window))
		if candidate.After(refTime) {
			continue
		}
		// Walk forward to the activation closest to refTime.
		for {
			next := schedule.Next(candidate)
			if next.After(refTime) {
				return candidate
			}
			candidate = next
		}
	}
	return time.Time{}
}
