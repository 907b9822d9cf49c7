package receiver

import "time"

func modTimeFromUnix(sec int64) time.Time {
	return time.Unix(sec, 0)
}
