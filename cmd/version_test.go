package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatBuildTime(t *testing.T) {
	assert.Equal(t, "unknown", formatBuildTime(time.Time{}))

	built := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-08-29T12:00:00Z", formatBuildTime(built))
}
