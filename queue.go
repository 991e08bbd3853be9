package cosmopolite

import "container/list"

// command is one outbound user command awaiting transmission. onOK and
// onFail are invoked by the worker once the positionally-matched server
// response is known; they close over the caller's typed Promise so the
// queue itself never needs to know what type of promise a command carries.
type command struct {
	name            string
	subject         Subject
	numMessages     *int
	lastID          *int64
	messagePayload  string // JSON-encoded message body, sendMessage only
	senderMessageID string

	onOK   func(resp wireResponse)
	onFail func(err error)
}

// commandQueue is a FIFO of *command, backed by container/list — the
// idiomatic Go equivalent of the original C client's intrusive doubly
// linked list. What matters, per spec.md §9, is O(1) append/splice and
// stable node identity so a promise travels with its command through
// retries; container/list gives us both without hand-rolled pointer
// juggling.
type commandQueue struct {
	l *list.List
}

func newCommandQueue() *commandQueue {
	return &commandQueue{l: list.New()}
}

// push appends cmd to the tail. Called under the client lock.
func (q *commandQueue) push(cmd *command) {
	q.l.PushBack(cmd)
}

// drain detaches every queued command in FIFO order and empties the queue.
// Called under the client lock at the start of a worker cycle.
func (q *commandQueue) drain() []*command {
	if q.l.Len() == 0 {
		return nil
	}
	out := make([]*command, 0, q.l.Len())
	for e := q.l.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*command))
	}
	q.l.Init()
	return out
}

// appendTail splices cmds onto the tail of whatever has accumulated in the
// queue since drain — new commands submitted by API callers while the RPC
// was in flight. Retried commands go here, at the tail, so they never
// starve newly submitted work (spec.md §4.5).
func (q *commandQueue) appendTail(cmds []*command) {
	for _, c := range cmds {
		q.l.PushBack(c)
	}
}

func (q *commandQueue) empty() bool {
	return q.l.Len() == 0
}
