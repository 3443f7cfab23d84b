package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeRequest(n int) Request {
	var r Request
	r.Len = n
	r.Data[0] = byte(n)
	return r
}

func TestEnqueueDequeueFIFO(t *testing.T) {
	q := New(4)
	q.Enqueue(makeRequest(1))
	q.Enqueue(makeRequest(2))
	q.Enqueue(makeRequest(3))

	r1, ok := q.Dequeue(context.Background())
	require.True(t, ok)
	assert.Equal(t, 1, r1.Len)

	r2, ok := q.Dequeue(context.Background())
	require.True(t, ok)
	assert.Equal(t, 2, r2.Len)
}

func TestQueueOverwritesOldestOnFull(t *testing.T) {
	q := New(2)
	q.Enqueue(makeRequest(1))
	q.Enqueue(makeRequest(2))
	q.Enqueue(makeRequest(3)) // queue full at 2; overwrites request 1

	assert.Equal(t, uint64(1), q.Dropped())

	r, ok := q.Dequeue(context.Background())
	require.True(t, ok)
	assert.Equal(t, 2, r.Len, "oldest (1) should have been overwritten, not 2")

	r2, ok := q.Dequeue(context.Background())
	require.True(t, ok)
	assert.Equal(t, 3, r2.Len)
}

func TestDequeueBlocksUntilEnqueue(t *testing.T) {
	q := New(4)
	done := make(chan Request, 1)

	go func() {
		r, ok := q.Dequeue(context.Background())
		if ok {
			done <- r
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Enqueue(makeRequest(42))

	select {
	case r := <-done:
		assert.Equal(t, 42, r.Len)
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not unblock after Enqueue")
	}
}

func TestDequeueUnblocksOnClose(t *testing.T) {
	q := New(4)
	result := make(chan bool, 1)

	go func() {
		_, ok := q.Dequeue(context.Background())
		result <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not unblock after Close")
	}
}

func TestDequeueUnblocksOnContextCancel(t *testing.T) {
	q := New(4)
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan bool, 1)

	go func() {
		_, ok := q.Dequeue(ctx)
		result <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not unblock after context cancellation")
	}
}

func TestConcurrentProducersConsumers(t *testing.T) {
	const n = 200
	// Capacity n keeps overwrite-oldest out of play, so every request must arrive.
	q := New(n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.Enqueue(makeRequest(i % 256))
		}(i)
	}

	received := make(chan struct{}, n)
	for i := 0; i < 4; i++ {
		go func() {
			for {
				_, ok := q.Dequeue(context.Background())
				if !ok {
					return
				}
				received <- struct{}{}
			}
		}()
	}

	wg.Wait()
	deadline := time.After(2 * time.Second)
	got := 0
	for got < n {
		select {
		case <-received:
			got++
		case <-deadline:
			q.Close()
			t.Fatalf("only received %d/%d requests (dropped=%d)", got, n, q.Dropped())
		}
	}
	q.Close()
}
