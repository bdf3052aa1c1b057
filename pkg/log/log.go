// Package log configures the process-wide zerolog logger from the
// configured log level and provides a per-class log throttle (spec §7 "no
// error class more than once per second per channel").
package log

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init sets the global zerolog level and output writer from the
// [settings].log_level config value.
func Init(level string) error {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log: %w", err)
	}
	zerolog.SetGlobalLevel(parsed)
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	return nil
}

// Throttled rate-limits repeated log lines, keyed by an arbitrary
// caller-chosen class string (e.g. "channel:main:blend-error"). At most one
// line per class per interval. No pipeline code uses it: the render loop
// logs every per-period warning, while ingest and overlay capture throttle
// their own warnings to one per 5 s.
type Throttled struct {
	interval time.Duration
	mu       sync.Mutex
	last     map[string]time.Time
}

// NewThrottled builds a throttle enforcing at most one log line per class
// every interval.
func NewThrottled(interval time.Duration) *Throttled {
	return &Throttled{interval: interval, last: make(map[string]time.Time)}
}

// Allow reports whether class may log now, recording the attempt either
// way is not needed: a true result always advances the class's clock.
func (t *Throttled) Allow(class string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if last, ok := t.last[class]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.last[class] = now
	return true
}
