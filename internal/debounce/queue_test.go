package debounce

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inErrors "github.com/copperbear/storefront/internal/errors"
)

type recorder struct {
	mu    sync.Mutex
	sends []send
	block chan struct{}
	errs  map[uuid.UUID]error
}

type send struct {
	itemID   uuid.UUID
	quantity int
}

func newRecorder() *recorder {
	return &recorder{errs: map[uuid.UUID]error{}}
}

func (r *recorder) sendFunc(c context.Context, itemID uuid.UUID, quantity int) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sends = append(r.sends, send{itemID: itemID, quantity: quantity})
	return r.errs[itemID]
}

func (r *recorder) recorded() []send {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]send, len(r.sends))
	copy(out, r.sends)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestScheduleCoalescesToLatestValue(t *testing.T) {
	rec := newRecorder()
	q := NewQueue(context.Background(), rec.sendFunc, WithWindow(30*time.Millisecond))
	defer q.Close()
	itemId := uuid.New()

	require.NoError(t, q.Schedule(context.Background(), itemId, 1))
	require.NoError(t, q.Schedule(context.Background(), itemId, 2))
	require.NoError(t, q.Schedule(context.Background(), itemId, 3))

	waitFor(t, time.Second, func() bool { return len(rec.recorded()) == 1 })
	sends := rec.recorded()
	require.Len(t, sends, 1)
	assert.Equal(t, 3, sends[0].quantity)
}

func TestScheduleKeepsItemTimersIndependent(t *testing.T) {
	rec := newRecorder()
	q := NewQueue(context.Background(), rec.sendFunc, WithWindow(30*time.Millisecond))
	defer q.Close()
	first := uuid.New()
	second := uuid.New()

	require.NoError(t, q.Schedule(context.Background(), first, 2))
	require.NoError(t, q.Schedule(context.Background(), second, 7))

	waitFor(t, time.Second, func() bool { return len(rec.recorded()) == 2 })
	quantities := map[uuid.UUID]int{}
	for _, s := range rec.recorded() {
		quantities[s.itemID] = s.quantity
	}
	assert.Equal(t, 2, quantities[first])
	assert.Equal(t, 7, quantities[second])
}

func TestScheduleDuringInFlightSendQueuesFollowUp(t *testing.T) {
	rec := newRecorder()
	rec.block = make(chan struct{})
	q := NewQueue(context.Background(), rec.sendFunc, WithWindow(10*time.Millisecond))
	defer q.Close()
	itemId := uuid.New()

	require.NoError(t, q.Schedule(context.Background(), itemId, 1))
	// Let the first write start and park inside send.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, q.Schedule(context.Background(), itemId, 9))
	time.Sleep(50 * time.Millisecond)
	close(rec.block)

	waitFor(t, time.Second, func() bool { return len(rec.recorded()) == 2 })
	sends := rec.recorded()
	assert.Equal(t, 1, sends[0].quantity)
	assert.Equal(t, 9, sends[1].quantity)
}

func TestFlushSendsImmediately(t *testing.T) {
	rec := newRecorder()
	q := NewQueue(context.Background(), rec.sendFunc, WithWindow(10*time.Second))
	defer q.Close()
	itemId := uuid.New()

	require.NoError(t, q.Schedule(context.Background(), itemId, 4))
	q.Flush(itemId)

	waitFor(t, time.Second, func() bool { return len(rec.recorded()) == 1 })
	assert.Equal(t, 4, rec.recorded()[0].quantity)
}

func TestCloseDropsPendingTimersAndRejectsNewWork(t *testing.T) {
	rec := newRecorder()
	q := NewQueue(context.Background(), rec.sendFunc, WithWindow(50*time.Millisecond))
	itemId := uuid.New()

	require.NoError(t, q.Schedule(context.Background(), itemId, 5))
	q.Close()

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, rec.recorded(), "pending timer must not fire after close")

	err := q.Schedule(context.Background(), itemId, 6)
	assert.ErrorIs(t, err, inErrors.ErrStoreClosed)
}

func TestSendFailureInvokesErrorFunc(t *testing.T) {
	rec := newRecorder()
	itemId := uuid.New()
	cause := errors.New("upstream unavailable")
	rec.errs[itemId] = cause

	var mu sync.Mutex
	var reported []error
	q := NewQueue(
		context.Background(),
		rec.sendFunc,
		WithWindow(20*time.Millisecond),
		WithErrorFunc(func(c context.Context, id uuid.UUID, err error) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, itemId, id)
			reported = append(reported, err)
		}),
	)
	defer q.Close()

	require.NoError(t, q.Schedule(context.Background(), itemId, 2))

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reported) == 1
	})
	mu.Lock()
	assert.ErrorIs(t, reported[0], cause)
	mu.Unlock()
}
