package utils

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestTimer_StopWith(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)

	timer := NewTimer("preprocess 2025-07-24", log)
	d := timer.StopWith(map[string]interface{}{"files": 3})

	assert.GreaterOrEqual(t, d, time.Duration(0))
	assert.Contains(t, buf.String(), `"operation":"preprocess 2025-07-24"`)
	assert.Contains(t, buf.String(), `"files":3`)
	assert.Contains(t, buf.String(), `"level":"debug"`)
}
