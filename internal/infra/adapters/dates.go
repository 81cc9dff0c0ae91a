package adapters

import "time"

func parseDateOnly(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}
