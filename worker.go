package cosmopolite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"reflect"
	"time"

	"github.com/cosmopolite/cosmopolite-go/internal/tracelog"
)

// run is the session worker's main loop: one cycle per tick, where a tick
// is either the cycle timer firing or an API call waking it early for
// faster-than-scheduled delivery of freshly queued work (spec.md §4.7, §9).
func (c *Client) run() {
	defer close(c.done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-c.shutdownCh:
			c.drainShutdown()
			return
		case <-timer.C:
		case <-c.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		next := c.cycle()
		timer.Reset(next)
	}
}

// cycle runs exactly one request/response round trip and returns how long
// to wait before the next one.
func (c *Client) cycle() time.Duration {
	c.mu.Lock()
	cmds := c.queue.drain()
	ack := c.ack
	c.ack = nil
	clientID := c.clientID
	instanceID := c.instanceID
	pendingChange := c.pendingClientIDChange
	c.mu.Unlock()

	body, err := buildEnvelope(clientID, instanceID, ack, cmds)
	if err != nil {
		c.logger.Error("failed to build request envelope", "error", err)
		c.failCommands(cmds, err)
		return c.nextInterval()
	}

	next := c.nextInterval()
	tracelog.Outbound(c.logger, body, next)

	status, respBody, retryAfterZero, err := c.transport.Post(context.Background(), c.baseURL, body)
	if err != nil {
		c.handleCycleFailure(cmds, err)
		return next
	}
	tracelog.Inbound(c.logger, respBody)

	// Retry-After: 0 is the server telling us to come back immediately,
	// regardless of what this response otherwise contains.
	if retryAfterZero {
		next = 0
	}

	if status < 200 || status >= 300 {
		c.handleCycleFailure(cmds, fmt.Errorf("cosmopolite: unexpected status %d", status))
		return next
	}

	env, err := parseEnvelope(respBody, len(cmds)+1)
	if err != nil {
		c.handleCycleFailure(cmds, err)
		return next
	}

	c.handleSuccess(cmds, pendingChange, env)
	return next
}

// handleSuccess processes one well-formed response envelope: connect-state
// transition, profile and generation bookkeeping, event dispatch, and the
// per-command result walk.
func (c *Client) handleSuccess(cmds []*command, pendingChange bool, env *wireEnvelope) {
	c.mu.Lock()
	c.lastSuccess = time.Now()
	reconnected := c.connectState != connectStateConnected
	c.connectState = connectStateConnected
	c.mu.Unlock()

	if reconnected {
		c.invoke("Connect", func() {
			if c.callbacks.Connect != nil {
				c.callbacks.Connect(c.passthrough)
			}
		})
	}

	if pendingChange {
		c.mu.Lock()
		c.pendingClientIDChange = false
		id := c.clientID
		c.mu.Unlock()
		c.invoke("ClientIDChange", func() {
			if c.callbacks.ClientIDChange != nil {
				c.callbacks.ClientIDChange(c.passthrough, id)
			}
		})
	}

	c.handleProfile(env.Profile)

	if len(env.Responses) > 0 && c.handleGeneration(env.Responses[0].InstanceGeneration) {
		c.resubscribeAll()
	}

	c.dispatchEvents(env.Events)
	c.resolveCommands(cmds, env.Responses)
}

// dispatchEvents classifies every event under the lock, queues the
// resulting ack ids, then fires callbacks outside the lock.
func (c *Client) dispatchEvents(events []wireEvent) {
	if len(events) == 0 {
		return
	}

	c.mu.Lock()
	actions := make([]dispatchAction, 0, len(events))
	for _, ev := range events {
		if ev.EventID != "" {
			c.ack = append(c.ack, ev.EventID)
		}
		actions = append(actions, c.dispatchEvent(ev))
	}
	c.mu.Unlock()

	for _, a := range actions {
		a := a
		switch {
		case a.fireMessage:
			c.invoke("Message", func() {
				if c.callbacks.Message != nil {
					c.callbacks.Message(c.passthrough, a.message)
				}
			})
		case a.fireLogin:
			c.invoke("Login", func() {
				if c.callbacks.Login != nil {
					c.callbacks.Login(c.passthrough)
				}
			})
		case a.fireLogout:
			c.invoke("Logout", func() {
				if c.callbacks.Logout != nil {
					c.callbacks.Logout(c.passthrough)
				}
			})
		}
	}
}

// resolveCommands walks responses positionally against cmds (responses[0]
// is the poll command's own response and is skipped), resolving each
// command's promise via its onOK/onFail closure, and splices any
// server-advised retries onto the queue's tail.
func (c *Client) resolveCommands(cmds []*command, responses []wireResponse) {
	if len(cmds) == 0 {
		return
	}

	var retry []*command
	for i, cmd := range cmds {
		resp := responses[i+1]
		switch resp.Result {
		case "ok":
			if cmd.onOK != nil {
				cmd.onOK(resp)
			}
		case "retry":
			retry = append(retry, cmd)
		default:
			if cmd.onFail != nil {
				cmd.onFail(&CommandFailedError{Command: cmd.name, Result: resp.Result})
			}
		}
	}

	if len(retry) > 0 {
		c.mu.Lock()
		c.queue.appendTail(retry)
		c.mu.Unlock()
	}
}

// handleCycleFailure requeues every command that never got a response and
// evaluates the disconnect timeout. The acks detached for the failed cycle
// are not put back: each event id is sent in at most one poll.
func (c *Client) handleCycleFailure(cmds []*command, err error) {
	c.logger.Warn("cycle failed", "error", err)

	c.mu.Lock()
	c.queue.appendTail(cmds)

	disconnected := false
	if (c.connectState == connectStateConnected || c.connectState == connectStateInitial) &&
		time.Since(c.lastSuccess) >= c.connectTimeout {
		c.connectState = connectStateDisconnected
		disconnected = true
	}
	c.mu.Unlock()

	if disconnected {
		c.invoke("Disconnect", func() {
			if c.callbacks.Disconnect != nil {
				c.callbacks.Disconnect(c.passthrough)
			}
		})
	}
}

// failCommands fails every command outright, bypassing the queue — used
// when the request could not even be built (a command with an unknown
// name), so retrying would be futile, and by drainShutdown.
func (c *Client) failCommands(cmds []*command, err error) {
	for _, cmd := range cmds {
		if cmd.onFail != nil {
			cmd.onFail(err)
		}
	}
}

// handleProfile decodes the envelope's profile field and, if it differs
// from the cached value, updates it and resolves every pending
// GetProfile waiter.
func (c *Client) handleProfile(raw json.RawMessage) {
	if len(raw) == 0 || string(raw) == "null" {
		return
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		c.logger.Debug("dropping malformed profile", "error", err)
		return
	}

	c.mu.Lock()
	if c.hasProfile && reflect.DeepEqual(c.profile, decoded) {
		c.mu.Unlock()
		return
	}
	c.profile = decoded
	c.hasProfile = true
	waiters := c.profileWaiters
	c.profileWaiters = nil
	c.mu.Unlock()

	for _, w := range waiters {
		w.Succeed(decoded)
	}
}

// handleGeneration records the poll response's instance_generation and
// reports whether it changed since the last cycle. The first sighting is
// never a "change" — there is nothing to resubscribe yet.
func (c *Client) handleGeneration(raw json.RawMessage) bool {
	if len(raw) == 0 || string(raw) == "null" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	changed := c.hasGeneration && !bytes.Equal(c.generation, raw)
	c.generation = append([]byte(nil), raw...)
	c.hasGeneration = true
	return changed
}

// resubscribeAll re-issues a subscribe command for every active
// subscription after a generation change, using each subscription's
// buffered-message high-water mark as the replay point (spec.md §3).
func (c *Client) resubscribeAll() {
	c.mu.Lock()
	subs := c.registry.active()
	cmds := make([]*command, 0, len(subs))
	for _, sub := range subs {
		sub.State = SubscriptionPending
		subject := sub.Subject
		cmds = append(cmds, &command{
			name:        "subscribe",
			subject:     subject,
			numMessages: sub.NumMessages,
			lastID:      sub.replayLastID(),
			onOK: func(wireResponse) {
				c.mu.Lock()
				if s, ok := c.registry.find(subject); ok {
					s.State = SubscriptionActive
				}
				c.mu.Unlock()
			},
			onFail: func(err error) {
				c.logger.Warn("resubscribe failed", "subject", subject.Name, "error", err)
			},
		})
	}
	for _, cmd := range cmds {
		c.queue.push(cmd)
	}
	c.mu.Unlock()

	if len(cmds) > 0 {
		c.logger.Info("server generation changed, resubscribing", "count", len(cmds))
	}
}

// nextInterval computes the next cycle's delay: cycleBase plus jitter
// uniformly distributed in [0, cycleBase/staggerFactor), so a fleet of
// clients doesn't synchronize on the same wall-clock instant (spec.md §9).
func (c *Client) nextInterval() time.Duration {
	c.mu.Lock()
	base := c.cycleBase
	stagger := c.staggerFactor
	c.mu.Unlock()

	span := int64(base) / int64(stagger)
	if span <= 0 {
		return base
	}
	return base + time.Duration(rand.Int63n(span))
}

// drainShutdown fails every queued command and pending profile waiter with
// ErrShutdown. Called once, from run, after shutdownCh closes.
func (c *Client) drainShutdown() {
	c.mu.Lock()
	cmds := c.queue.drain()
	waiters := c.profileWaiters
	c.profileWaiters = nil
	c.mu.Unlock()

	c.failCommands(cmds, ErrShutdown)
	for _, w := range waiters {
		w.Fail(ErrShutdown)
	}
}
