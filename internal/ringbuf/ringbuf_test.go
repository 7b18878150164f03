package ringbuf

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_BasicPushPop(t *testing.T) {
	r := New[string](4)

	require.True(t, r.Push("a"))
	require.True(t, r.Push("b"))
	assert.Equal(t, 2, r.Len())

	v, ok := r.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", v)

	v, ok = r.Pop()
	require.True(t, ok)
	assert.Equal(t, "b", v)

	_, ok = r.Pop()
	assert.False(t, ok, "pop from empty")
}

func TestRing_ExactCapacity(t *testing.T) {
	r := New[int](3)
	assert.Equal(t, 3, r.Cap())
	assert.Equal(t, 1, New[int](0).Cap())
}

func TestRing_Overflow(t *testing.T) {
	r := New[int](2)
	r.Push(1)
	r.Push(2)

	assert.False(t, r.Push(3), "push to full ring")
	assert.Equal(t, uint64(1), r.Overflow())
	assert.Equal(t, []int{1, 2}, r.Drain())
}

func TestRing_PushEvictDropsOldest(t *testing.T) {
	r := New[int](3)
	for i := 1; i <= 5; i++ {
		evicted := r.PushEvict(i)
		assert.Equal(t, i > 3, evicted, "push %d", i)
	}
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, uint64(2), r.Overflow())
	assert.Equal(t, []int{3, 4, 5}, r.Drain())
	assert.Equal(t, 0, r.Len())
}

func TestRing_Wraparound(t *testing.T) {
	r := New[int](4)
	for round := 0; round < 5; round++ {
		for i := 0; i < 4; i++ {
			require.True(t, r.Push(round*10+i), "round %d push %d", round, i)
		}
		for i := 0; i < 4; i++ {
			v, ok := r.Pop()
			require.True(t, ok, "round %d pop %d", round, i)
			assert.Equal(t, round*10+i, v)
		}
	}
}

func TestRing_SPSC_Concurrent(t *testing.T) {
	const count = 100_000
	r := New[int](1024)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < count; i++ {
			for !r.Push(i) {
			}
		}
	}()

	received := make([]int, 0, count)
	go func() {
		defer wg.Done()
		for len(received) < count {
			if v, ok := r.Pop(); ok {
				received = append(received, v)
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("SPSC test timed out")
	}

	for i, v := range received {
		require.Equal(t, i, v, "at index %d", i)
	}
}
