package consumer

import "sync"

// Queue is the FIFO shared between producers (IRC callback, HTTP, sources) and the loop.
type Queue struct {
	mu     sync.Mutex
	items  []Message
	notify chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Put appends m and wakes a waiting consumer.
func (q *Queue) Put(m Message) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop removes the oldest message.
func (q *Queue) Pop() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Message{}, false
	}
	m := q.items[0]
	q.items[0] = Message{}
	q.items = q.items[1:]
	return m, true
}

// Len returns the current depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// ShedAllButNewest removes and returns every message except the most recent one.
func (q *Queue) ShedAllButNewest() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) <= 1 {
		return nil
	}
	shed := append([]Message(nil), q.items[:len(q.items)-1]...)
	q.items = []Message{q.items[len(q.items)-1]}
	return shed
}

// DrainExcept removes and returns all messages for which keep is false, in order.
func (q *Queue) DrainExcept(keep func(Message) bool) []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	var drained, kept []Message
	for _, m := range q.items {
		if keep != nil && keep(m) {
			kept = append(kept, m)
		} else {
			drained = append(drained, m)
		}
	}
	q.items = kept
	return drained
}

// ClearRedeem drops the Redeem flag from every queued message and reports how many had it.
func (q *Queue) ClearRedeem() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for i := range q.items {
		if q.items[i].Redeem {
			q.items[i].Redeem = false
			n++
		}
	}
	return n
}

// Notify is signalled after Put.
func (q *Queue) Notify() <-chan struct{} { return q.notify }
