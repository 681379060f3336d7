package utils

import (
	"fmt"
	"math"
	"time"
)

// Round2 rounds a rate to two decimals for presentation.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Percent returns part/whole*100, or 0 when whole is zero.
func Percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

// HumanDuration renders whole seconds as "3m 7s". Minutes are floored, so a
// negative span keeps a non-negative seconds part: -8 renders as "-1m 52s".
func HumanDuration(seconds int64) string {
	m, s := seconds/60, seconds%60
	if s < 0 {
		m, s = m-1, s+60
	}
	return fmt.Sprintf("%dm %ds", m, s)
}

// TrailingWindow returns [now-days, now].
func TrailingWindow(now time.Time, days int) (time.Time, time.Time) {
	return now.AddDate(0, 0, -days), now
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
