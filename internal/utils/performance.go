package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// slowOperation is the duration past which a finished operation is logged at warn level.
const slowOperation = 30 * time.Second

// Timer measures how long a named operation takes and logs it on Stop.
type Timer struct {
	start time.Time
	name  string
	log   zerolog.Logger
}

// NewTimer starts a timer for the named operation.
func NewTimer(name string, log zerolog.Logger) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
		log:   log,
	}
}

// Stop logs the elapsed duration and returns it.
func (t *Timer) Stop() time.Duration {
	return t.StopWith(nil)
}

// StopWith logs the elapsed duration together with the given fields.
func (t *Timer) StopWith(fields map[string]interface{}) time.Duration {
	duration := time.Since(t.start)

	level := zerolog.DebugLevel
	if duration > slowOperation {
		level = zerolog.WarnLevel
	}

	t.log.WithLevel(level).
		Str("operation", t.name).
		Dur("duration_ms", duration).
		Fields(fields).
		Msg("Operation completed")

	return duration
}
