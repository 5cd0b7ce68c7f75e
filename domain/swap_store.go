package domain

import (
	"context"
	"time"
)

type BookingStore interface {
	GetBooking(ctx context.Context, id string) (*Booking, error)
	// LockBooking flips an available booking to locked on behalf of holder
	// in a single conditional update. Returns ErrBookingNotAvailable when
	// the booking is already locked or swapped.
	LockBooking(ctx context.Context, id string, holder string) (*Booking, error)
	// UnlockBooking releases the advisory lock. Unlocking an already
	// available booking is a no-op success so cleanup can be retried.
	UnlockBooking(ctx context.Context, id string, holder string) (*Booking, error)
	// MarkSwapped moves a locked booking to its final swapped status on
	// proposal completion.
	MarkSwapped(ctx context.Context, id string) error
}

type SwapStore interface {
	GetProposal(ctx context.Context, id string) (*SwapProposal, error)
	InsertProposal(ctx context.Context, proposal *SwapProposal) (*SwapProposal, error)
	DeleteProposal(ctx context.Context, id string) error
	// PendingExists reports whether a pending proposal already links the
	// ordered (source, target) booking pair.
	PendingExists(ctx context.Context, sourceBookingId, targetBookingId string) (bool, error)
	// HasOpenProposalForBooking reports whether the booking is the source of
	// any non-terminal proposal.
	HasOpenProposalForBooking(ctx context.Context, bookingId string) (bool, error)
	// UpdateStatus is the check-and-set transition guard: the update only
	// applies while the proposal still holds the from status, and
	// ErrSwapNotPending is returned when another writer won the race.
	UpdateStatus(ctx context.Context, id string, from, to SwapStatus, respondedAt *time.Time) error
	SetNotarizationRef(ctx context.Context, id string, transition Transition, confirmationId string) error
	SetTransferConfirmation(ctx context.Context, id string, confirmationId string) error
	FindExpiredPending(ctx context.Context, now time.Time) ([]*SwapProposal, error)
}

type TargetingStore interface {
	CreateLink(ctx context.Context, link *TargetingLink) error
	UpdateLinkStatus(ctx context.Context, sourceSwapId, targetSwapId string, status TargetingStatus) error
	GetIncoming(ctx context.Context, swapId string) ([]*TargetingLink, error)
	GetOutgoing(ctx context.Context, swapId string) ([]*TargetingLink, error)
	CountIncoming(ctx context.Context, swapId string) (int, error)
	CountOutgoing(ctx context.Context, swapId string) (int, error)
	// HasAcceptedLink reports whether an accepted link references the swap
	// in either direction; such bookings never appear in open browse.
	HasAcceptedLink(ctx context.Context, swapId string) (bool, error)
}

type CompatibilityCache interface {
	PostAnalysis(ctx context.Context, key string, analysis *CompatibilityAnalysis) error
	GetAnalysis(ctx context.Context, key string) (*CompatibilityAnalysis, error)
}
