package timex

import "time"

// NowMs returns Unix milliseconds as int64. Bus timestamps use this unit.
func NowMs() int64 { return time.Now().UnixMilli() }
