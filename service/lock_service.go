package application

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"swap_service/domain"
)

// LockService is the asset lock manager. The exclusion mechanism is the
// booking store's conditional update, not an in-process mutex, because
// multiple service instances run against the same datastore.
type LockService struct {
	bookings domain.BookingStore
	tracer   trace.Tracer
	logger   *logrus.Logger
}

func NewLockService(bookings domain.BookingStore, tracer trace.Tracer, logger *logrus.Logger) *LockService {
	return &LockService{
		bookings: bookings,
		tracer:   tracer,
		logger:   logger,
	}
}

// Lock fails deterministically with ErrBookingNotAvailable when the booking
// is already held, it never blocks waiting for the holder.
func (service *LockService) Lock(ctx context.Context, bookingId, holder string) (*domain.Booking, error) {
	ctx, span := service.tracer.Start(ctx, "LockService.Lock")
	defer span.End()

	booking, err := service.bookings.LockBooking(ctx, bookingId, holder)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return booking, nil
}

// Unlock is idempotent: releasing an already available booking succeeds so
// cleanup paths can be retried.
func (service *LockService) Unlock(ctx context.Context, bookingId, holder string) (*domain.Booking, error) {
	ctx, span := service.tracer.Start(ctx, "LockService.Unlock")
	defer span.End()

	booking, err := service.bookings.UnlockBooking(ctx, bookingId, holder)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return booking, nil
}

// LockPair acquires the source lock then the target lock. When the second
// acquisition fails the first lock is released before the caller sees the
// error, so no booking is left stuck in locked with no owning proposal.
func (service *LockService) LockPair(ctx context.Context, sourceId, targetId, holder string) (*domain.Booking, *domain.Booking, error) {
	ctx, span := service.tracer.Start(ctx, "LockService.LockPair")
	defer span.End()

	source, err := service.Lock(ctx, sourceId, holder)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	target, err := service.Lock(ctx, targetId, holder)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if _, unlockErr := service.Unlock(ctx, sourceId, holder); unlockErr != nil {
			service.logger.Errorf("failed to release source lock %s after pair failure: %s", sourceId, unlockErr)
		}
		return nil, nil, err
	}

	return source, target, nil
}

// UnlockPair releases both locks, reporting the first failure but always
// attempting both releases.
func (service *LockService) UnlockPair(ctx context.Context, sourceId, targetId, holder string) error {
	ctx, span := service.tracer.Start(ctx, "LockService.UnlockPair")
	defer span.End()

	var firstErr error
	if _, err := service.Unlock(ctx, sourceId, holder); err != nil {
		firstErr = err
	}
	if targetId != "" {
		if _, err := service.Unlock(ctx, targetId, holder); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		span.SetStatus(codes.Error, firstErr.Error())
	}
	return firstErr
}
