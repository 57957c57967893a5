// SPDX-License-Identifier: MIT
package render

import "sync"

// MessageQueue carries closures from any goroutine to the render goroutine.
// Post may block briefly on the queue lock; DispatchNext never blocks and
// simply does nothing when the lock is contended.
type MessageQueue struct {
	mu       sync.Mutex
	messages []func()
}

// Post appends fn to the queue. Nil closures are ignored.
func (q *MessageQueue) Post(fn func()) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	q.messages = append(q.messages, fn)
	q.mu.Unlock()
}

// DispatchNext runs the oldest queued closure on the calling goroutine and
// reports whether one ran. The closure runs without the queue lock held, so it
// may Post further messages.
func (q *MessageQueue) DispatchNext() bool {
	if !q.mu.TryLock() {
		return false
	}
	if len(q.messages) == 0 {
		q.mu.Unlock()
		return false
	}

	fn := q.messages[0]
	q.messages[0] = nil
	q.messages = q.messages[1:]
	if len(q.messages) == 0 {
		q.messages = q.messages[:0:0]
	}
	q.mu.Unlock()

	fn()
	return true
}

// Len returns the number of queued closures.
func (q *MessageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}
