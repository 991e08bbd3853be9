// Package cosmopolite is a client library for the Cosmopolite pub/sub
// messaging backend: an application links the library, instantiates one or
// more Clients, and uses them to subscribe to named subjects, publish
// messages, receive delivered messages via callbacks, and observe
// connectivity and session state. The server exposes a single endpoint
// that multiplexes a batch of commands per request and returns a batch of
// responses plus a stream of asynchronous events; there is no
// server-initiated push, so liveness comes from a background worker that
// polls on a fixed cadence.
package cosmopolite

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cosmopolite/cosmopolite-go/internal/tracelog"
)

// Default timing constants, per spec.md §4.7.
const (
	defaultCycleBase      = 10 * time.Second
	defaultStaggerFactor  = 10
	defaultConnectTimeout = 60 * time.Second
)

type connectState int

const (
	connectStateInitial connectState = iota
	connectStateConnected
	connectStateDisconnected
)

type loginState int

const (
	loginStateLoggedOut loginState = iota
	loginStateLoggedIn
)

// Client is a session with one Cosmopolite endpoint. The zero value is not
// usable; construct with New.
type Client struct {
	mu sync.Mutex

	clientID   string
	instanceID string
	baseURL    string

	transport      Transporter
	callbacks      Callbacks
	passthrough    any
	cycleBase      time.Duration
	staggerFactor  int
	connectTimeout time.Duration
	rateLimiter    *messageRateLimiter
	logger         *slog.Logger
	debug          bool

	registry *registry
	queue    *commandQueue
	ack      []string

	profile        any
	hasProfile     bool
	profileWaiters []*Promise[any]

	generation    json.RawMessage
	hasGeneration bool

	connectState connectState
	loginState   loginState
	lastSuccess  time.Time

	pendingClientIDChange bool

	wake         chan struct{}
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}
}

// Option configures a Client at construction time.
type Option func(*clientOptions)

type clientOptions struct {
	clientID         string
	callbacks        Callbacks
	passthrough      any
	cycleBase        time.Duration
	staggerFactor    int
	connectTimeout   time.Duration
	debug            bool
	logger           *slog.Logger
	transport        Transporter
	messageRateLimit int
}

// WithClientID supplies a persistent client_id, rather than generating a
// fresh one and firing Callbacks.ClientIDChange.
func WithClientID(id string) Option {
	return func(o *clientOptions) { o.clientID = id }
}

// WithCallbacks sets the notification hooks invoked from the worker goroutine.
func WithCallbacks(cb Callbacks) Option {
	return func(o *clientOptions) { o.callbacks = cb }
}

// WithPassthrough sets the opaque value threaded through to every callback.
func WithPassthrough(v any) Option {
	return func(o *clientOptions) { o.passthrough = v }
}

// WithCycleBase overrides the base poll interval (default 10s).
func WithCycleBase(d time.Duration) Option {
	return func(o *clientOptions) { o.cycleBase = d }
}

// WithStaggerFactor overrides the jitter divisor (default 10, i.e. jitter
// in [0, cycleBase/10)).
func WithStaggerFactor(n int) Option {
	return func(o *clientOptions) { o.staggerFactor = n }
}

// WithConnectTimeout overrides the disconnect-detection window (default 60s).
func WithConnectTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.connectTimeout = d }
}

// WithDebug force-enables wire-level tracing, equivalent to setting
// COSMO_DEBUG in the environment.
func WithDebug(enabled bool) Option {
	return func(o *clientOptions) { o.debug = enabled }
}

// WithLogger supplies a logger instead of the package default (which
// writes to stderr, text on a terminal and JSON otherwise).
func WithLogger(l *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

// WithMessageRateLimit caps Callbacks.Message invocations to n per second;
// excess messages in a batch are still buffered and visible via
// Messages/LastMessage, just not delivered to the callback. 0 (the
// default) disables the limit.
func WithMessageRateLimit(n int) Option {
	return func(o *clientOptions) { o.messageRateLimit = n }
}

// withTransport overrides the production HTTP transport. Unexported: it
// exists for this package's own tests, not for integrators.
func withTransport(t Transporter) Option {
	return func(o *clientOptions) { o.transport = t }
}

// New constructs a Client, generates its instance_id, and starts the
// background worker. The returned Client is ready to use immediately;
// Subscribe/SendMessage/etc. may be called before the first cycle runs —
// they just enqueue work for the worker to pick up.
func New(ctx context.Context, baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("cosmopolite: baseURL must not be empty")
	}

	o := &clientOptions{
		cycleBase:      defaultCycleBase,
		staggerFactor:  defaultStaggerFactor,
		connectTimeout: defaultConnectTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.staggerFactor <= 0 {
		return nil, fmt.Errorf("cosmopolite: stagger factor must be positive, got %d", o.staggerFactor)
	}

	instanceID := uuid.NewString()

	pendingChange := false
	clientID := o.clientID
	if clientID == "" {
		clientID = uuid.NewString()
		pendingChange = true
	}

	debug := o.debug || os.Getenv("COSMO_DEBUG") != ""

	logger := o.logger
	if logger == nil {
		logger = tracelog.New(instanceID, debug, nil)
	}

	transport := o.transport
	if transport == nil {
		transport = newHTTPTransporter(o.cycleBase)
	}

	c := &Client{
		clientID:              clientID,
		instanceID:            instanceID,
		baseURL:               baseURL,
		transport:             transport,
		callbacks:             o.callbacks,
		passthrough:           o.passthrough,
		cycleBase:             o.cycleBase,
		staggerFactor:         o.staggerFactor,
		connectTimeout:        o.connectTimeout,
		rateLimiter:           newMessageRateLimiter(o.messageRateLimit),
		logger:                logger,
		debug:                 debug,
		registry:              newRegistry(),
		queue:                 newCommandQueue(),
		pendingClientIDChange: pendingChange,
		wake:                  make(chan struct{}, 1),
		shutdownCh:            make(chan struct{}),
		done:                  make(chan struct{}),
	}

	go c.run()

	return c, nil
}

// ClientID returns the client's persistent identifier.
func (c *Client) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

// InstanceID returns the identifier generated fresh for this process run.
func (c *Client) InstanceID() string {
	return c.instanceID
}

// Shutdown stops the worker goroutine, failing every outstanding promise,
// and waits for it to exit or for ctx to be done.
func (c *Client) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() { close(c.shutdownCh) })
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) wakeWorker() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// SubscribeOption configures a Subscribe call.
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	numMessages *int
	lastID      *int64
}

// WithNumMessages requests up to n replayed messages on (re)subscribe.
func WithNumMessages(n int) SubscribeOption {
	return func(o *subscribeOptions) { o.numMessages = &n }
}

// WithLastID requests replay starting after id. The subscribe command this
// call sends always carries id; when the worker resubscribes after a server
// generation change, a subscription with buffered messages uses the
// buffered maximum id instead (spec.md §3).
func WithLastID(id int64) SubscribeOption {
	return func(o *subscribeOptions) { o.lastID = &id }
}

// subscribeAggregator resolves a batch Subscribe's single Promise only
// once every subject in the batch has completed: succeed iff all
// succeeded, otherwise fail with the first failure. This is the resolution
// of spec.md §9's open fan-out question — see DESIGN.md.
type subscribeAggregator struct {
	mu        sync.Mutex
	remaining int
	failed    bool
	firstErr  error
	promise   *Promise[struct{}]
}

func (a *subscribeAggregator) reportOK() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.remaining--
	if a.remaining == 0 && !a.failed {
		a.promise.Succeed(struct{}{})
	}
}

func (a *subscribeAggregator) reportFail(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.failed {
		a.failed = true
		a.firstErr = err
	}
	a.remaining--
	if a.remaining == 0 {
		a.promise.Fail(a.firstErr)
	}
}

// Subscribe subscribes to one or more subjects, sharing a single completion
// promise across the whole batch: it succeeds only once every subject has
// been acknowledged Active, and fails with the first subject's error
// otherwise (see subscribeAggregator).
func (c *Client) Subscribe(subjects []Subject, opts ...SubscribeOption) *Promise[struct{}] {
	promise := NewPromise[struct{}](nil, nil)

	if len(subjects) == 0 {
		promise.Fail(ErrNoSubjects)
		return promise
	}

	so := &subscribeOptions{}
	for _, o := range opts {
		o(so)
	}

	agg := &subscribeAggregator{remaining: len(subjects), promise: promise}

	c.mu.Lock()
	for _, subject := range subjects {
		subject := subject
		c.registry.upsert(subject, so.numMessages, so.lastID)
		cmd := &command{
			name:        "subscribe",
			subject:     subject,
			numMessages: so.numMessages,
			lastID:      so.lastID,
			onOK: func(wireResponse) {
				c.mu.Lock()
				if sub, ok := c.registry.find(subject); ok {
					sub.State = SubscriptionActive
				}
				c.mu.Unlock()
				agg.reportOK()
			},
			onFail: func(err error) {
				c.mu.Lock()
				c.registry.remove(subject)
				c.mu.Unlock()
				agg.reportFail(err)
			},
		}
		c.queue.push(cmd)
	}
	c.mu.Unlock()

	c.wakeWorker()
	return promise
}

// Unsubscribe removes subject from the registry immediately and enqueues
// the unsubscribe command. A late-arriving response for a stale subscribe
// can never resurrect a subscription removed this way.
func (c *Client) Unsubscribe(subject Subject) *Promise[struct{}] {
	promise := NewPromise[struct{}](nil, nil)

	c.mu.Lock()
	c.registry.remove(subject)
	cmd := &command{
		name:    "unsubscribe",
		subject: subject,
		onOK:    func(wireResponse) { promise.Succeed(struct{}{}) },
		onFail:  func(err error) { promise.Fail(err) },
	}
	c.queue.push(cmd)
	c.mu.Unlock()

	c.wakeWorker()
	return promise
}

// SendMessage encodes message to JSON and enqueues it for delivery to
// subject. The returned promise resolves with the server-enriched Message
// (carrying the server-assigned id) on success.
func (c *Client) SendMessage(subject Subject, message any) *Promise[Message] {
	promise := NewPromise[Message](nil, nil)

	encoded, err := json.Marshal(message)
	if err != nil {
		promise.Fail(fmt.Errorf("cosmopolite: encode message: %w", err))
		return promise
	}

	cmd := &command{
		name:            "sendMessage",
		subject:         subject,
		messagePayload:  string(encoded),
		senderMessageID: uuid.NewString(),
		onOK: func(resp wireResponse) {
			if resp.Message == nil {
				promise.Fail(fmt.Errorf("cosmopolite: sendMessage response missing message"))
				return
			}
			var decoded any
			if err := json.Unmarshal([]byte(resp.Message.Message), &decoded); err != nil {
				promise.Fail(fmt.Errorf("cosmopolite: decode delivered message: %w", err))
				return
			}
			promise.Succeed(Message{
				Subject:         resp.Message.Subject,
				ID:              resp.Message.ID,
				Message:         decoded,
				EventID:         resp.Message.EventID,
				SenderMessageID: resp.Message.SenderMessageID,
			})
		},
		onFail: func(err error) { promise.Fail(err) },
	}

	c.mu.Lock()
	c.queue.push(cmd)
	c.mu.Unlock()

	c.wakeWorker()
	return promise
}

// Messages returns a deep copy of subject's buffered messages, ascending
// by id, or (nil, false) if there is no subscription for subject.
func (c *Client) Messages(subject Subject) ([]Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.registry.find(subject)
	if !ok {
		return nil, false
	}
	out := make([]Message, len(sub.Messages))
	copy(out, sub.Messages)
	for i := range out {
		// Decoded payloads are maps and slices shared with the buffer; a
		// JSON round trip gives the caller its own copy.
		if data, err := json.Marshal(out[i].Message); err == nil {
			var v any
			if json.Unmarshal(data, &v) == nil {
				out[i].Message = v
			}
		}
	}
	return out, true
}

// LastMessage returns a copy of subject's most recently buffered message,
// or (Message{}, false) if there is no subscription or no buffered messages.
func (c *Client) LastMessage(subject Subject) (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.registry.find(subject)
	if !ok || len(sub.Messages) == 0 {
		return Message{}, false
	}
	return sub.Messages[len(sub.Messages)-1], true
}

// GetProfile resolves with the logged-in principal's profile the first
// time it becomes known (non-null), or immediately if it is already cached.
func (c *Client) GetProfile() *Promise[any] {
	promise := NewPromise[any](nil, nil)

	c.mu.Lock()
	if c.hasProfile && c.profile != nil {
		cached := c.profile
		c.mu.Unlock()
		promise.Succeed(cached)
		return promise
	}
	c.profileWaiters = append(c.profileWaiters, promise)
	c.mu.Unlock()

	return promise
}

// CurrentProfile returns the cached profile snapshot without waiting.
func (c *Client) CurrentProfile() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile
}
