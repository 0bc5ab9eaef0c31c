package engine

import "time"

// Clock supplies wall-clock timestamps for audit rows, overrides and the
// recency threshold.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
