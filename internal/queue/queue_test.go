package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnbounded_FIFO(t *testing.T) {
	q := New[int]()
	for i := 0; i < 1000; i++ {
		require.True(t, q.Push(i), "push MUST never block or fail while open")
	}
	assert.Equal(t, 1000, q.Len())

	for i := 0; i < 1000; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestUnbounded_PopBlocksUntilPush(t *testing.T) {
	q := New[string]()
	got := make(chan string)
	go func() {
		v, _ := q.Pop()
		got <- v
	}()

	select {
	case <-got:
		t.Fatal("Pop MUST block on an empty queue")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push("hello")
	assert.Equal(t, "hello", <-got)
}

func TestUnbounded_CloseDiscards(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Close()

	_, ok := q.Pop()
	assert.False(t, ok)
	assert.False(t, q.Push(2))
	assert.Equal(t, 0, q.Len())
}

func TestUnbounded_DrainDeliversPending(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Push(2)
	q.Drain()

	assert.False(t, q.Push(3), "push after Drain MUST be rejected")
	v, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = q.Pop()
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestUnbounded_CloseWakesWaiters(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := q.Pop()
			assert.False(t, ok)
		}()
	}
	time.Sleep(10 * time.Millisecond)
	q.Close()
	wg.Wait()
}
