package throttle

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImmediateAdmissionBelowHalfLimit(t *testing.T) {
	th := New(clock.NewMock(), 8, DefaultTick)

	var releases []func()
	for i := 0; i < 3; i++ {
		done := make(chan func(), 1)
		go func() {
			done <- th.Schedule()
		}()

		select {
		case release := <-done:
			releases = append(releases, release)
		case <-time.After(time.Second):
			t.Fatal("admission below half the limit must not wait for a tick")
		}
	}

	assert.Equal(t, 3, th.Active())

	for _, release := range releases {
		release()
	}
	assert.Equal(t, 0, th.Active())
}

func TestQueuedAdmissionWaitsForTick(t *testing.T) {
	mock := clock.NewMock()
	th := New(mock, 4, DefaultTick)

	// Fill the fast path (half of 4 = 2 immediate slots).
	r1 := th.Schedule()
	r2 := th.Schedule()
	require.Equal(t, 2, th.Active())

	admitted := make(chan func(), 1)
	go func() {
		admitted <- th.Schedule()
	}()

	require.Eventually(t, func() bool {
		return th.Waiting() == 1
	}, time.Second, time.Millisecond)

	select {
	case <-admitted:
		t.Fatal("caller above half limit must queue until a drain tick")
	case <-time.After(20 * time.Millisecond):
	}

	mock.Add(DefaultTick)

	select {
	case release := <-admitted:
		release()
	case <-time.After(time.Second):
		t.Fatal("queued caller was never admitted")
	}

	r1()
	r2()
	assert.Equal(t, 0, th.Active())
}

func TestHardLimitNeverExceeded(t *testing.T) {
	const limit = 6
	th := New(clock.New(), limit, time.Millisecond)

	var (
		mu   sync.Mutex
		peak int
	)
	var wg sync.WaitGroup

	for i := 0; i < limit*4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			release := th.Schedule()

			mu.Lock()
			if a := th.Active(); a > peak {
				peak = a
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)
			release()
		}()
	}

	wg.Wait()

	assert.LessOrEqual(t, peak, limit, "active set exceeded the hard limit")
	assert.Equal(t, 0, th.Active())
	assert.Equal(t, 0, th.Waiting())
}

func TestFIFOAdmissionOrder(t *testing.T) {
	mock := clock.NewMock()
	th := New(mock, 2, DefaultTick)

	// One immediate slot (half of 2 = 1), everything after queues. The
	// held slot caps each drain tick at a single admission, so admission
	// order is observable.
	release := th.Schedule()
	defer release()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 3; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()

			r := th.Schedule()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			r()
		}()

		// Queue one at a time so arrival order is deterministic.
		require.Eventually(t, func() bool {
			return th.Waiting() == i+1
		}, time.Second, time.Millisecond)
	}

	for i := 0; i < 20; i++ {
		mock.Add(DefaultTick)
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()

	require.Equal(t, []int{0, 1, 2}, order)
}

func TestReleaseIsIdempotent(t *testing.T) {
	th := New(clock.NewMock(), 8, DefaultTick)

	release := th.Schedule()
	release()
	release()

	assert.Equal(t, 0, th.Active())
}

func TestDefaultIsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
}
