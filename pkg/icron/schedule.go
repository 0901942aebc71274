package icron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// lookback bounds the search for the previous trigger.
const lookback = 366 * 24 * time.Hour

type TriggerInfo struct {
	Expression string
	Next       time.Time
	// Last is zero when the schedule did not fire within a year of ref.
	Last time.Time

	TimeSinceLast time.Duration
	TimeUntilNext time.Duration
}

// Parse accepts a standard five-field expression or a descriptor such as
// "@every 30m", the same grammar cron.New accepts by default.
func Parse(cronExpr string) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

func GetTriggerInfo(cronExpr string, ref time.Time) (*TriggerInfo, error) {
	schedule, err := Parse(cronExpr)
	if err != nil {
		return nil, err
	}

	info := &TriggerInfo{
		Expression: cronExpr,
		Next:       schedule.Next(ref),
		Last:       previous(schedule, ref),
	}
	info.TimeUntilNext = info.Next.Sub(ref)
	if !info.Last.IsZero() {
		info.TimeSinceLast = ref.Sub(info.Last)
	}
	return info, nil
}

// previous walks back in growing steps until a trigger lands at or
// before ref, then walks forward to the latest such trigger.
func previous(schedule cron.Schedule, ref time.Time) time.Time {
	step := time.Minute
	for back := step; back <= lookback; back *= 2 {
		t := schedule.Next(ref.Add(-back))
		if t.After(ref) {
			continue
		}
		for {
			next := schedule.Next(t)
			if next.After(ref) {
				return t
			}
			t = next
		}
	}
	return time.Time{}
}
