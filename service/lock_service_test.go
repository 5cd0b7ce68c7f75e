package application

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swap_service/domain"
)

func TestLockSingleWinner(t *testing.T) {
	booking := newBooking("alice", domain.BookingAvailable)
	store := newFakeBookingStore(booking)
	service := NewLockService(store, testTracer(), testLogger())

	const contenders = 10

	var wg sync.WaitGroup
	results := make(chan error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		holder := string(rune('a' + i))
		go func() {
			defer wg.Done()
			_, err := service.Lock(context.Background(), booking.ID.Hex(), holder)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for err := range results {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, domain.ErrBookingNotAvailable)
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, domain.BookingLocked, store.status(booking.ID.Hex()))
}

func TestUnlockIsIdempotent(t *testing.T) {
	booking := newBooking("alice", domain.BookingAvailable)
	store := newFakeBookingStore(booking)
	service := NewLockService(store, testTracer(), testLogger())

	_, err := service.Lock(context.Background(), booking.ID.Hex(), "proposal-1")
	require.NoError(t, err)

	_, err = service.Unlock(context.Background(), booking.ID.Hex(), "proposal-1")
	require.NoError(t, err)

	// A second release of the same lock still succeeds.
	_, err = service.Unlock(context.Background(), booking.ID.Hex(), "proposal-1")
	assert.NoError(t, err)
	assert.Equal(t, domain.BookingAvailable, store.status(booking.ID.Hex()))
}

func TestUnlockWrongHolderFails(t *testing.T) {
	booking := newBooking("alice", domain.BookingAvailable)
	store := newFakeBookingStore(booking)
	service := NewLockService(store, testTracer(), testLogger())

	_, err := service.Lock(context.Background(), booking.ID.Hex(), "proposal-1")
	require.NoError(t, err)

	_, err = service.Unlock(context.Background(), booking.ID.Hex(), "proposal-2")
	assert.ErrorIs(t, err, domain.ErrBookingNotAvailable)
	assert.Equal(t, domain.BookingLocked, store.status(booking.ID.Hex()))
}

func TestLockPairReleasesSourceWhenTargetFails(t *testing.T) {
	source := newBooking("alice", domain.BookingAvailable)
	target := newBooking("bob", domain.BookingLocked)
	target.LockedBy = "someone-else"
	store := newFakeBookingStore(source, target)
	service := NewLockService(store, testTracer(), testLogger())

	_, _, err := service.LockPair(context.Background(), source.ID.Hex(), target.ID.Hex(), "proposal-1")
	require.ErrorIs(t, err, domain.ErrBookingNotAvailable)

	// The source lock does not leak when the pair acquisition fails.
	assert.Equal(t, domain.BookingAvailable, store.status(source.ID.Hex()))
}

func TestUnlockPairReleasesBoth(t *testing.T) {
	source := newBooking("alice", domain.BookingAvailable)
	target := newBooking("bob", domain.BookingAvailable)
	store := newFakeBookingStore(source, target)
	service := NewLockService(store, testTracer(), testLogger())

	_, _, err := service.LockPair(context.Background(), source.ID.Hex(), target.ID.Hex(), "proposal-1")
	require.NoError(t, err)

	err = service.UnlockPair(context.Background(), source.ID.Hex(), target.ID.Hex(), "proposal-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingAvailable, store.status(source.ID.Hex()))
	assert.Equal(t, domain.BookingAvailable, store.status(target.ID.Hex()))
}
