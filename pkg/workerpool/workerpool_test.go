package workerpool

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoomCollectsAllResults(t *testing.T) {
	p := New(Config{WorkerCount: 4, GlobalBuffer: 64})
	room := NewRoom[int](p, 32)

	const n = 32
	for i := 0; i < n; i++ {
		i := i
		room.Submit(func() int { return i * i })
	}

	results := room.Collect(n)
	require.Len(t, results, n)

	var sum int
	for _, r := range results {
		sum += r
	}

	var want int
	for i := 0; i < n; i++ {
		want += i * i
	}
	require.Equal(t, want, sum)
}

func TestTrySubmitRejectsWhenQueueFull(t *testing.T) {
	p := New(Config{WorkerCount: 1, GlobalBuffer: 1})
	room := NewRoom[int](p, 4)

	var started atomic.Bool
	block := make(chan struct{})
	room.Submit(func() int {
		started.Store(true)
		<-block
		return 1
	})

	for !started.Load() {
	}

	err := room.TrySubmit(func() int { return 2 })
	require.NoError(t, err, "one free slot should remain in the global buffer")

	err = room.TrySubmit(func() int { return 3 })
	require.Error(t, err, "global buffer should now be saturated")

	close(block)
	room.Collect(2) // only the blocked job and the one accepted TrySubmit ran
}
