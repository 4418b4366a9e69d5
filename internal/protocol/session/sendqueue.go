package session

// sendQueue holds sealed frames awaiting transmit plus the batch currently
// on the wire. It is guarded by Session.mu.
type sendQueue struct {
	queued   [][]byte
	pending  [][]byte
	inFlight bool
}

func (q *sendQueue) push(frames ...[]byte) {
	q.queued = append(q.queued, frames...)
}

func (q *sendQueue) len() int {
	return len(q.queued) + len(q.pending)
}

// take moves everything queued into the pending batch and returns it.
func (q *sendQueue) take() [][]byte {
	q.pending = q.queued
	q.queued = nil
	return q.pending
}

// complete clears the in-flight batch.
func (q *sendQueue) complete() {
	q.pending = nil
}

func (q *sendQueue) clear() {
	q.queued = nil
	q.pending = nil
	q.inFlight = false
}
