package cosmopolite

import (
	"encoding/json"
	"sync/atomic"
	"time"
)

// messageRateLimiter is an atomic-counter, periodic-reset limiter guarding
// callbacks.Message invocation. Grounded on the teacher's
// internal/mqtt/subscriber.go messageRateLimiter: no token bucket, just a
// counter reset once per interval — cheap enough to check on every
// dispatched event. A limit of 0 disables it entirely, which is the
// default, keeping behavior identical to the original C client (which has
// no such guard) unless a caller opts in via WithMessageRateLimit.
type messageRateLimiter struct {
	limit    int64
	interval time.Duration
	count    atomic.Int64
	window   atomic.Int64 // unix nanos of the current window's start
}

func newMessageRateLimiter(limit int) *messageRateLimiter {
	return &messageRateLimiter{limit: int64(limit), interval: time.Second}
}

// allow reports whether one more callback invocation fits within the
// current window. Always true when the limiter is disabled.
func (l *messageRateLimiter) allow(now time.Time) bool {
	if l.limit <= 0 {
		return true
	}

	nowNanos := now.UnixNano()
	windowStart := l.window.Load()
	if nowNanos-windowStart >= l.interval.Nanoseconds() {
		// Start a new window. A race here just means two goroutines both
		// reset around the same instant, which only makes the limiter
		// marginally more permissive for one tick — acceptable for a
		// best-effort guard.
		l.window.Store(nowNanos)
		l.count.Store(0)
	}

	return l.count.Add(1) <= l.limit
}

// dispatchEvent classifies one inbound event and updates the client
// accordingly (spec.md §4.6). It must be called while holding c.mu for the
// registry mutation, but callbacks.Message/Login/Logout are invoked after
// releasing the lock — the caller (worker.go) is responsible for that
// split; dispatchEvent itself returns what, if anything, should run
// outside the lock.
type dispatchAction struct {
	fireMessage bool
	message     Message
	fireLogin   bool
	fireLogout  bool
}

func (c *Client) dispatchEvent(ev wireEvent) dispatchAction {
	switch ev.EventType {
	case "message":
		return c.dispatchMessageEvent(ev)
	case "login":
		if c.loginState != loginStateLoggedIn {
			c.loginState = loginStateLoggedIn
			return dispatchAction{fireLogin: true}
		}
		return dispatchAction{}
	case "logout":
		if c.loginState != loginStateLoggedOut {
			c.loginState = loginStateLoggedOut
			return dispatchAction{fireLogout: true}
		}
		return dispatchAction{}
	default:
		c.logger.Debug("dropping unknown event type", "event_type", ev.EventType)
		return dispatchAction{}
	}
}

func (c *Client) dispatchMessageEvent(ev wireEvent) dispatchAction {
	if ev.Subject == nil {
		c.logger.Debug("dropping message event with no subject")
		return dispatchAction{}
	}

	var decoded any
	if err := json.Unmarshal([]byte(ev.Message), &decoded); err != nil {
		c.logger.Debug("dropping malformed message event", "error", err)
		return dispatchAction{}
	}

	msg := Message{
		Subject: *ev.Subject,
		ID:      ev.ID,
		Message: decoded,
		EventID: ev.EventID,
	}

	inserted, known := c.registry.insertMessage(*ev.Subject, msg)
	if !known {
		c.logger.Debug("dropping message for unknown subject", "subject", ev.Subject.Name)
		return dispatchAction{}
	}
	if !inserted {
		return dispatchAction{} // duplicate, already buffered
	}

	if !c.rateLimiter.allow(time.Now()) {
		c.logger.Debug("message callback rate-limited", "subject", ev.Subject.Name)
		return dispatchAction{}
	}

	return dispatchAction{fireMessage: true, message: msg}
}
