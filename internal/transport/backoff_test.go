package transport

import (
	"testing"
	"time"
)

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	opts := Options{BaseDelay: time.Second, MaxDelay: 30 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{10, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := opts.backoffDelay(tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestOptionsDefaults(t *testing.T) {
	var opts Options
	opts.defaults()

	if opts.BaseDelay != time.Second {
		t.Errorf("BaseDelay = %s, want 1s", opts.BaseDelay)
	}
	if opts.MaxDelay != 30*time.Second {
		t.Errorf("MaxDelay = %s, want 30s", opts.MaxDelay)
	}
	if opts.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", opts.MaxAttempts)
	}
	if opts.DialTimeout != 10*time.Second {
		t.Errorf("DialTimeout = %s, want 10s", opts.DialTimeout)
	}
}
