package schedule

import (
	"time"
)

// NextWindow returns the earliest run time at or after now that falls
// outside quiet hours. A tick outside quiet hours runs immediately; a
// tick inside a quiet block is deferred to the top of the first awake
// hour rather than a full interval past it.
func NextWindow(now time.Time, interval time.Duration, quietHours []int) time.Time {
	if interval <= 0 {
		interval = time.Hour
	}
	quiet := make(map[int]struct{}, len(quietHours))
	for _, h := range quietHours {
		quiet[((h % 24) + 24) % 24] = struct{}{}
	}
	if _, q := quiet[now.Hour()]; !q {
		return now
	}
	cand := now.Truncate(time.Hour)
	for i := 0; i < 24; i++ {
		cand = cand.Add(time.Hour)
		if _, q := quiet[cand.Hour()]; !q {
			return cand
		}
	}
	// every hour quiet: keep the normal cadence
	return now.Add(interval)
}
