package cosmopolite

// registryEntry pairs the exact Subject used as the map key's preimage
// with the Subscription it names, so a key-hash hit can still be verified
// by full structural comparison before use.
type registryEntry struct {
	subject Subject
	sub     *Subscription
}

// registry is the in-memory map of active subscriptions, keyed by a
// content hash of the Subject (subject.go's key method). All operations
// are called only while the client holds its lock — the registry itself
// does no locking, matching spec.md §4.4 ("all under the client lock").
type registry struct {
	entries map[string]*registryEntry
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*registryEntry)}
}

// find returns the subscription for subject, if any.
func (r *registry) find(subject Subject) (*Subscription, bool) {
	e, ok := r.entries[subject.key()]
	if !ok || !e.subject.Equal(subject) {
		return nil, false
	}
	return e.sub, true
}

// upsert inserts a new Pending subscription for subject if absent, or
// updates an existing subscription's replay parameters (preserving its
// message buffer) if present. Either pointer may be nil to leave that
// parameter unchanged.
func (r *registry) upsert(subject Subject, numMessages *int, lastID *int64) *Subscription {
	key := subject.key()
	if e, ok := r.entries[key]; ok && e.subject.Equal(subject) {
		if numMessages != nil {
			e.sub.NumMessages = numMessages
		}
		if lastID != nil {
			e.sub.LastID = lastID
		}
		return e.sub
	}

	sub := &Subscription{
		Subject:     subject,
		State:       SubscriptionPending,
		NumMessages: numMessages,
		LastID:      lastID,
	}
	r.entries[key] = &registryEntry{subject: subject, sub: sub}
	return sub
}

// remove deletes the subscription for subject, if present.
func (r *registry) remove(subject Subject) {
	key := subject.key()
	if e, ok := r.entries[key]; ok && e.subject.Equal(subject) {
		delete(r.entries, key)
	}
}

// insertMessage locates the subscription for subject and inserts msg into
// its buffer in sorted, deduplicated position, scanning from the tail
// since incoming messages are almost always already in order. known
// reports whether the subject has a live subscription at all (false means
// the caller should drop the message silently); inserted reports whether
// msg was newly added (false for a duplicate id).
func (r *registry) insertMessage(subject Subject, msg Message) (inserted, known bool) {
	e, ok := r.entries[subject.key()]
	if !ok || !e.subject.Equal(subject) {
		return false, false
	}

	msgs := e.sub.Messages
	insertAt := len(msgs)
scan:
	for i := len(msgs) - 1; i >= 0; i-- {
		switch {
		case msgs[i].ID == msg.ID:
			return false, true // duplicate
		case msgs[i].ID < msg.ID:
			insertAt = i + 1
			break scan
		default:
			insertAt = i
		}
	}

	e.sub.Messages = append(msgs, Message{})
	copy(e.sub.Messages[insertAt+1:], e.sub.Messages[insertAt:])
	e.sub.Messages[insertAt] = msg
	return true, true
}

// active returns every subscription currently in SubscriptionActive state.
func (r *registry) active() []*Subscription {
	var out []*Subscription
	for _, e := range r.entries {
		if e.sub.State == SubscriptionActive {
			out = append(out, e.sub)
		}
	}
	return out
}
