package cosmopolite

// SubscriptionState is a subscription's lifecycle state.
type SubscriptionState int

const (
	// SubscriptionPending means the subscribe command has been queued but
	// not yet acknowledged by the server.
	SubscriptionPending SubscriptionState = iota
	// SubscriptionActive means the server has acknowledged the subscribe
	// command with result "ok".
	SubscriptionActive
)

// Subscription tracks one subject's delivery state: its messages, ordered
// ascending by id with no duplicates, and the replay parameters used to
// resubscribe after a server generation change.
type Subscription struct {
	Subject     Subject
	State       SubscriptionState
	Messages    []Message
	NumMessages *int
	LastID      *int64
}

// replayLastID returns the last_id to use when (re)issuing a subscribe for
// this subscription: the greatest buffered message id if any messages are
// buffered, otherwise the caller-supplied LastID (spec.md §3's replay
// rule — "prefer buffered last id over caller-supplied last_id").
func (s *Subscription) replayLastID() *int64 {
	if n := len(s.Messages); n > 0 {
		id := s.Messages[n-1].ID
		return &id
	}
	return s.LastID
}
