package fakeserver

import "time"

func timeToUnix(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().UnixNano()
	}
	return t.UnixNano()
}

func unixToTime(nanos int64) time.Time {
	return time.Unix(0, nanos).UTC()
}
