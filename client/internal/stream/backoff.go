package stream

import "time"

// retryDelays is the fixed reconnect ladder. After the last rung the client
// holds at 5 seconds until it either connects or is stopped.
var retryDelays = []time.Duration{
	0,
	100 * time.Millisecond,
	500 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
}

// ladder walks retryDelays and holds at the final rung.
type ladder struct {
	idx int
}

// next returns the current delay and advances, saturating at the last rung.
func (l *ladder) next() time.Duration {
	d := retryDelays[l.idx]
	if l.idx < len(retryDelays)-1 {
		l.idx++
	}
	return d
}

func (l *ladder) reset() {
	l.idx = 0
}
