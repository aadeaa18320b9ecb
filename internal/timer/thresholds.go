package timer

import (
	"fmt"
	"time"
)

// Thresholds are the elapsed times that raise a one-shot notification.
var Thresholds = []time.Duration{
	30 * time.Minute,
	time.Hour,
	2 * time.Hour,
	4 * time.Hour,
}

// Crossed returns the thresholds elapsed fell within the first second past,
// skipping those already in fired.
func Crossed(elapsed time.Duration, fired map[time.Duration]bool) []time.Duration {
	var out []time.Duration
	for _, th := range Thresholds {
		if fired[th] {
			continue
		}
		if elapsed >= th && elapsed < th+time.Second {
			out = append(out, th)
		}
	}
	return out
}

// ThresholdMessage is the notification text for a crossed threshold.
func ThresholdMessage(th time.Duration) string {
	switch {
	case th < time.Hour:
		return fmt.Sprintf("Working on this ticket for %d minutes.", int(th/time.Minute))
	case th == time.Hour:
		return "Working on this ticket for 1 hour."
	default:
		return fmt.Sprintf("Working on this ticket for %d hours.", int(th/time.Hour))
	}
}
