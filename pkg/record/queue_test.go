package record

import (
	"errors"
	"testing"
)

func TestQueueFIFO(t *testing.T) {
	var q Queue

	for i := 0; i < 5; i++ {
		err := q.Push(Message{Type: ContentTypeApplicationData, Payload: []byte{byte(i)}})
		if err != nil {
			t.Fatalf("Push %d failed: %v", i, err)
		}
	}
	if q.Len() != 5 {
		t.Fatalf("Len = %d, want 5", q.Len())
	}

	for i := 0; i < 5; i++ {
		m, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop %d returned empty", i)
		}
		if m.Payload[0] != byte(i) {
			t.Errorf("Pop %d = %d, want %d (order broken)", i, m.Payload[0], i)
		}
	}

	if _, ok := q.Pop(); ok {
		t.Error("Pop on empty queue returned a message")
	}
}

func TestQueueOverflow(t *testing.T) {
	var q Queue
	for i := 0; i < QueueCapacity; i++ {
		if err := q.Push(Message{}); err != nil {
			t.Fatalf("Push %d failed: %v", i, err)
		}
	}
	if err := q.Push(Message{}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Push past capacity = %v, want ErrQueueFull", err)
	}
}

func TestQueueWrapsAround(t *testing.T) {
	var q Queue

	// Interleave pushes and pops so the ring indices wrap.
	next := byte(0)
	expect := byte(0)
	for round := 0; round < 3*QueueCapacity; round++ {
		if err := q.Push(Message{Payload: []byte{next}}); err != nil {
			t.Fatalf("Push failed: %v", err)
		}
		next++

		m, ok := q.Pop()
		if !ok {
			t.Fatal("Pop returned empty")
		}
		if m.Payload[0] != expect {
			t.Fatalf("Pop = %d, want %d", m.Payload[0], expect)
		}
		expect++
	}
}

func TestQueueReset(t *testing.T) {
	var q Queue
	q.Push(Message{})
	q.Push(Message{})
	q.Reset()
	if q.Len() != 0 {
		t.Errorf("Len after Reset = %d, want 0", q.Len())
	}
}
