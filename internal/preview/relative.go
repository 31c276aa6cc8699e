package preview

import (
	"fmt"
	"time"
)

// RelativeTime はtからnowまでの経過を"3 days ago"のような英語表現で返す。
// tが未来の場合は"in 3 days"になる。
func RelativeTime(t, now time.Time) string {
	d := now.Sub(t)
	if d < 0 {
		return "in " + distance(-d)
	}
	return distance(d) + " ago"
}

// distance は期間をおおよその英語表現に変換する。
func distance(d time.Duration) string {
	seconds := int(d.Round(time.Second) / time.Second)
	minutes := int(d.Round(time.Minute) / time.Minute)

	switch {
	case seconds < 30:
		return "less than a minute"
	case minutes < 2:
		return "1 minute"
	case minutes < 45:
		return fmt.Sprintf("%d minutes", minutes)
	case minutes < 90:
		return "about 1 hour"
	}

	hours := int(d.Round(time.Hour) / time.Hour)
	const (
		minutesPerDay   = 24 * 60
		minutesPerMonth = 30 * minutesPerDay
	)
	switch {
	case minutes < minutesPerDay:
		return fmt.Sprintf("about %d hours", hours)
	case minutes < 42*60:
		return "1 day"
	case minutes < minutesPerMonth:
		return fmt.Sprintf("%d days", (minutes+minutesPerDay/2)/minutesPerDay)
	case minutes < 45*minutesPerDay:
		return "about 1 month"
	case minutes < 60*minutesPerDay:
		return "about 2 months"
	}

	months := minutes / minutesPerMonth
	if months < 12 {
		return fmt.Sprintf("%d months", months)
	}

	years := months / 12
	rem := months % 12
	switch {
	case rem < 3:
		return fmt.Sprintf("about %s", plural(years, "year"))
	case rem < 9:
		return fmt.Sprintf("over %s", plural(years, "year"))
	default:
		return fmt.Sprintf("almost %s", plural(years+1, "year"))
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
