package registry

import "time"

// Option defines a functional configuration type for the Registry.
type Option func(*Registry)

// WithMaxPerUser caps how many simultaneous sessions one user may hold.
func WithMaxPerUser(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.config.maxPerUser = n
		}
	}
}

// WithMailboxSize sets the buffer capacity of each session's outbound mailbox.
func WithMailboxSize(size int) Option {
	return func(r *Registry) {
		if size > 0 {
			r.config.mailboxSize = size
		}
	}
}

// WithSendTimeout bounds how long Broadcast waits on a full mailbox before
// counting the frame as dropped for that session.
func WithSendTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.config.sendTimeout = d
		}
	}
}

// WithWriteWait bounds a single socket write inside the pump.
func WithWriteWait(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.config.writeWait = d
		}
	}
}
