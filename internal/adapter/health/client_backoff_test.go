package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		name               string
		baseInterval       time.Duration
		currentMultiplier  int
		success            bool
		expectedInterval   time.Duration
		expectedMultiplier int
		description        string
	}{
		{
			name:               "success_resets_backoff",
			baseInterval:       5 * time.Second,
			currentMultiplier:  8,
			success:            true,
			expectedInterval:   5 * time.Second,
			expectedMultiplier: 1,
			description:        "Successful check should reset backoff to normal interval",
		},
		{
			name:               "first_failure_keeps_normal_interval",
			baseInterval:       5 * time.Second,
			currentMultiplier:  1,
			success:            false,
			expectedInterval:   5 * time.Second,
			expectedMultiplier: 2,
			description:        "First failure should keep normal interval but set multiplier to 2",
		},
		{
			name:               "second_failure_doubles_interval",
			baseInterval:       5 * time.Second,
			currentMultiplier:  2,
			success:            false,
			expectedInterval:   10 * time.Second,
			expectedMultiplier: 4,
			description:        "Second failure should double the interval (using multiplier 2)",
		},
		{
			name:               "third_failure_exponential_growth",
			baseInterval:       5 * time.Second,
			currentMultiplier:  4,
			success:            false,
			expectedInterval:   20 * time.Second,
			expectedMultiplier: 8,
			description:        "Third failure uses multiplier 4 (20s interval)",
		},
		{
			name:               "backoff_capped_at_max_multiplier",
			baseInterval:       5 * time.Second,
			currentMultiplier:  8,
			success:            false,
			expectedInterval:   40 * time.Second,
			expectedMultiplier: MaxBackoffMultiplier,
			description:        "Fourth failure uses multiplier 8, next capped at max",
		},
		{
			name:               "backoff_capped_at_max_seconds",
			baseInterval:       10 * time.Second,
			currentMultiplier:  6,
			success:            false,
			expectedInterval:   MaxBackoffSeconds,
			expectedMultiplier: MaxBackoffMultiplier,
			description:        "Interval should be capped at MaxBackoffSeconds",
		},
		{
			name:               "already_at_max_multiplier_stays_at_max",
			baseInterval:       5 * time.Second,
			currentMultiplier:  MaxBackoffMultiplier,
			success:            false,
			expectedInterval:   MaxBackoffSeconds,
			expectedMultiplier: MaxBackoffMultiplier,
			description:        "Once at max multiplier, should stay at max",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			interval, multiplier := calculateBackoff(tt.baseInterval, tt.currentMultiplier, tt.success)

			assert.Equal(t, tt.expectedInterval, interval, "Interval mismatch: %s", tt.description)
			assert.Equal(t, tt.expectedMultiplier, multiplier, "Multiplier mismatch: %s", tt.description)
		})
	}
}

// TestBackoffProgressionSequence verifies the complete exponential backoff sequence.
func TestBackoffProgressionSequence(t *testing.T) {
	baseInterval := 5 * time.Second
	multiplier := 1

	expectedSequence := []struct {
		interval   time.Duration
		multiplier int
	}{
		{5 * time.Second, 2},
		{10 * time.Second, 4},
		{20 * time.Second, 8},
		{40 * time.Second, MaxBackoffMultiplier},
		{MaxBackoffSeconds, MaxBackoffMultiplier},
	}

	for i, expected := range expectedSequence {
		interval, next := calculateBackoff(baseInterval, multiplier, false)

		assert.Equal(t, expected.interval, interval, "Failure %d: interval mismatch", i+1)
		assert.Equal(t, expected.multiplier, next, "Failure %d: multiplier mismatch", i+1)

		multiplier = next
	}

	interval, next := calculateBackoff(baseInterval, multiplier, true)
	assert.Equal(t, 5*time.Second, interval, "Success should reset to original interval")
	assert.Equal(t, 1, next, "Success should reset multiplier to 1")
}
