package mqtt

import (
	"sync"
	"time"
)

// DailyTokens tracks LLM token usage that resets at local midnight. It
// is safe for concurrent use and satisfies agent.TokenObserver, so it
// can be handed straight to the agent loop.
type DailyTokens struct {
	mu       sync.Mutex
	input    int64
	output   int64
	requests int64
	day      time.Time // local midnight of the current counting day
	loc      *time.Location
	now      func() time.Time
}

// NewDailyTokens creates a new accumulator using the given timezone for
// midnight detection. If loc is nil, [time.Local] is used.
func NewDailyTokens(loc *time.Location) *DailyTokens {
	if loc == nil {
		loc = time.Local
	}
	d := &DailyTokens{loc: loc, now: time.Now}
	d.day = d.today()
	return d
}

// OnTokens records token counts from one completed LLM request.
func (d *DailyTokens) OnTokens(inputTokens, outputTokens int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.maybeReset()
	d.input += int64(inputTokens)
	d.output += int64(outputTokens)
	d.requests++
}

// Snapshot returns today's totals: input tokens, output tokens, and
// request count.
func (d *DailyTokens) Snapshot() (input, output, requests int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.maybeReset()
	return d.input, d.output, d.requests
}

func (d *DailyTokens) today() time.Time {
	y, m, day := d.now().In(d.loc).Date()
	return time.Date(y, m, day, 0, 0, 0, 0, d.loc)
}

// maybeReset zeroes the counters once the local date has moved on.
// Must be called with d.mu held.
func (d *DailyTokens) maybeReset() {
	if today := d.today(); !today.Equal(d.day) {
		d.input = 0
		d.output = 0
		d.requests = 0
		d.day = today
	}
}
