package transport

import "time"

// Options tune the connection lifecycle. Zero values select the defaults.
type Options struct {
	// BaseDelay is the first reconnect delay; each subsequent attempt
	// doubles it, capped at MaxDelay.
	BaseDelay time.Duration
	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration
	// MaxAttempts bounds the reconnect loop. After exhaustion the
	// transport settles at Disconnected until an explicit Connect.
	MaxAttempts int
	// DialTimeout bounds a single connection attempt.
	DialTimeout time.Duration
}

func (o *Options) defaults() {
	if o.BaseDelay == 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay == 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 5
	}
	if o.DialTimeout == 0 {
		o.DialTimeout = 10 * time.Second
	}
}

// backoffDelay returns the delay before the given 1-based attempt.
func (o Options) backoffDelay(attempt int) time.Duration {
	d := o.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= o.MaxDelay {
			return o.MaxDelay
		}
	}
	if d > o.MaxDelay {
		return o.MaxDelay
	}
	return d
}
