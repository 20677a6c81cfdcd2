package timesync

import "time"

// SystemClock reads the host's wall clock in microseconds.
type SystemClock struct{}

// NowUs returns the current time as signed microseconds since the epoch.
func (SystemClock) NowUs() int64 {
	return time.Now().UnixMicro()
}
