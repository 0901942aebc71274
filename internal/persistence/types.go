package persistence

import (
	"time"

	"github.com/MimeLyc/video-sub-translator/internal/jobs"
)

const defaultHistoryLimit = 50

// HistoryQuery filters ListHistory. Zero values mean no filter.
type HistoryQuery struct {
	Limit  int
	Status jobs.Status
	Since  time.Time
}

func (q HistoryQuery) limit() int {
	if q.Limit <= 0 {
		return defaultHistoryLimit
	}
	return q.Limit
}
