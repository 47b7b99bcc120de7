package record

import "errors"

// QueueCapacity bounds how many coalesced messages one record may carry.
// A full server flight (EncryptedExtensions, Certificate, CertificateVerify,
// Finished) in a single record uses four slots.
const QueueCapacity = 8

// Queue errors.
var (
	// ErrQueueFull indicates a record coalesced more messages than the
	// queue can hold. Overflow is an explicit error, never truncation.
	ErrQueueFull = errors.New("message queue full")
)

// Queue is a fixed-capacity in-order message queue. The zero value is an
// empty queue ready for use.
type Queue struct {
	items [QueueCapacity]Message
	head  int
	count int
}

// Push appends a message.
func (q *Queue) Push(m Message) error {
	if q.count == QueueCapacity {
		return ErrQueueFull
	}
	q.items[(q.head+q.count)%QueueCapacity] = m
	q.count++
	return nil
}

// Pop removes and returns the oldest message. The second return value is
// false when the queue is empty.
func (q *Queue) Pop() (Message, bool) {
	if q.count == 0 {
		return Message{}, false
	}
	m := q.items[q.head]
	q.items[q.head] = Message{}
	q.head = (q.head + 1) % QueueCapacity
	q.count--
	return m, true
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	return q.count
}

// Reset empties the queue.
func (q *Queue) Reset() {
	*q = Queue{}
}
