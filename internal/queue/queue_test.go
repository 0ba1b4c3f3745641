package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrder(t *testing.T) {
	q := New()
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, q.Dispatch(func() { got = append(got, i) }))
	}
	q.Close()
	require.Len(t, got, 100)
	for i, v := range got {
		require.Equal(t, i, v)
	}
	require.False(t, q.Dispatch(func() {}))
	require.False(t, q.Sync(func() {}))
}

func TestSerial(t *testing.T) {
	q := New()
	defer q.Close()
	// the counter is only touched on the queue so no lock is needed
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Sync(func() { counter++ })
		}()
	}
	wg.Wait()
	final := 0
	q.Sync(func() { final = counter })
	require.Equal(t, 50, final)
}

func TestDispatchFromQueue(t *testing.T) {
	q := New()
	done := make(chan int)
	q.Dispatch(func() {
		q.Dispatch(func() { done <- 2 })
		done <- 1
	})
	require.Equal(t, 1, <-done)
	require.Equal(t, 2, <-done)
	q.Close()
}
