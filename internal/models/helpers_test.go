package models

import "time"

func daysAgo(n int) time.Time {
	return time.Now().AddDate(0, 0, -n)
}
