package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swap_service/domain"
)

type swapFixture struct {
	bookings  *fakeBookingStore
	swaps     *fakeSwapStore
	targeting *fakeTargetingStore
	notary    *fakeNotary
	transfer  *fakeTransfer
	notifier  *fakeNotifier
	service   *SwapService

	source *domain.Booking
	target *domain.Booking
	now    time.Time
}

func newSwapFixture(t *testing.T) *swapFixture {
	t.Helper()

	source := newBooking("alice", domain.BookingAvailable)
	target := newBooking("bob", domain.BookingAvailable)

	fixture := &swapFixture{
		bookings:  newFakeBookingStore(source, target),
		swaps:     newFakeSwapStore(),
		targeting: &fakeTargetingStore{},
		notary:    &fakeNotary{},
		transfer:  &fakeTransfer{},
		notifier:  &fakeNotifier{},
		source:    source,
		target:    target,
		now:       time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	tracer := testTracer()
	logger := testLogger()
	locks := NewLockService(fixture.bookings, tracer, logger)
	compatibility := NewCompatibilityService(tracer)
	eligibility := NewEligibilityService(fixture.bookings, fixture.swaps, compatibility, 40, tracer, logger)

	fixture.service = NewSwapService(
		fixture.swaps, fixture.bookings, fixture.targeting,
		locks, eligibility,
		fixture.notary, fixture.transfer, fixture.notifier,
		tracer, logger,
	)
	fixture.service.nowFunc = func() time.Time { return fixture.now }

	return fixture
}

func (fixture *swapFixture) create(t *testing.T) *domain.SwapProposal {
	t.Helper()

	proposal, err := fixture.service.CreateProposal(
		context.Background(), "alice",
		fixture.source.ID.Hex(), fixture.target.ID.Hex(),
		domain.SwapTerms{Kind: domain.BookingExchangeTerms},
		fixture.now.Add(24*time.Hour),
	)
	require.NoError(t, err)
	return proposal
}

func TestCreateProposal(t *testing.T) {
	fixture := newSwapFixture(t)

	proposal := fixture.create(t)

	assert.Equal(t, domain.SwapPending, proposal.Status)
	assert.NotEmpty(t, proposal.NotarizationRefs[domain.TransitionCreated])
	assert.Equal(t, domain.BookingLocked, fixture.bookings.status(fixture.source.ID.Hex()))
	assert.Equal(t, domain.BookingLocked, fixture.bookings.status(fixture.target.ID.Hex()))

	status, ok := fixture.targeting.linkStatus(fixture.source.ID.Hex(), fixture.target.ID.Hex())
	require.True(t, ok)
	assert.Equal(t, domain.TargetingActive, status)
	assert.NotEmpty(t, fixture.notifier.messages)
}

func TestCreateProposalTermsValidation(t *testing.T) {
	cases := []struct {
		name    string
		terms   domain.SwapTerms
		expires time.Duration
		wantErr error
	}{
		{
			name:    "cash offer without amount",
			terms:   domain.SwapTerms{Kind: domain.CashOfferTerms},
			expires: 24 * time.Hour,
			wantErr: domain.ErrInvalidCashAmount,
		},
		{
			name:    "unknown terms kind",
			terms:   domain.SwapTerms{Kind: "barter"},
			expires: 24 * time.Hour,
			wantErr: domain.ErrUnknownTermsKind,
		},
		{
			name:    "expiry in the past",
			terms:   domain.SwapTerms{Kind: domain.BookingExchangeTerms},
			expires: -time.Hour,
			wantErr: domain.ErrExpiryNotInFuture,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fixture := newSwapFixture(t)

			_, err := fixture.service.CreateProposal(
				context.Background(), "alice",
				fixture.source.ID.Hex(), fixture.target.ID.Hex(),
				tc.terms, fixture.now.Add(tc.expires),
			)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, domain.BookingAvailable, fixture.bookings.status(fixture.source.ID.Hex()))
		})
	}
}

func TestCreateProposalCashOffer(t *testing.T) {
	fixture := newSwapFixture(t)

	proposal, err := fixture.service.CreateProposal(
		context.Background(), "alice",
		fixture.source.ID.Hex(), fixture.target.ID.Hex(),
		domain.SwapTerms{Kind: domain.CashOfferTerms, CashAmount: 150, CashCurrency: "EUR"},
		fixture.now.Add(24*time.Hour),
	)
	require.NoError(t, err)
	assert.Equal(t, domain.CashOfferTerms, proposal.Terms.Kind)
}

func TestCreateProposalNotarizationFailureRollsBack(t *testing.T) {
	fixture := newSwapFixture(t)
	fixture.notary.failOn(domain.TransitionCreated)

	_, err := fixture.service.CreateProposal(
		context.Background(), "alice",
		fixture.source.ID.Hex(), fixture.target.ID.Hex(),
		domain.SwapTerms{Kind: domain.BookingExchangeTerms},
		fixture.now.Add(24*time.Hour),
	)
	require.ErrorIs(t, err, domain.ErrNotarizationFailed)

	// Nothing survives a failed creation: no proposal row and both
	// bookings back to available.
	assert.Empty(t, fixture.swaps.proposals)
	assert.Equal(t, domain.BookingAvailable, fixture.bookings.status(fixture.source.ID.Hex()))
	assert.Equal(t, domain.BookingAvailable, fixture.bookings.status(fixture.target.ID.Hex()))
}

func TestAcceptProposal(t *testing.T) {
	fixture := newSwapFixture(t)
	proposal := fixture.create(t)

	accepted, err := fixture.service.AcceptProposal(context.Background(), "bob", proposal.ID.Hex())
	require.NoError(t, err)

	assert.Equal(t, domain.SwapCompleted, accepted.Status)
	assert.Equal(t, "transfer-1", accepted.TransferConfirmationId)
	assert.NotEmpty(t, accepted.NotarizationRefs[domain.TransitionAccepted])
	assert.Equal(t, domain.BookingSwapped, fixture.bookings.status(fixture.source.ID.Hex()))
	assert.Equal(t, domain.BookingSwapped, fixture.bookings.status(fixture.target.ID.Hex()))

	status, _ := fixture.targeting.linkStatus(fixture.source.ID.Hex(), fixture.target.ID.Hex())
	assert.Equal(t, domain.TargetingAccepted, status)
}

func TestAcceptProposalAuthorization(t *testing.T) {
	fixture := newSwapFixture(t)
	proposal := fixture.create(t)

	_, err := fixture.service.AcceptProposal(context.Background(), "alice", proposal.ID.Hex())
	assert.ErrorIs(t, err, domain.ErrNotTargetOwner)

	_, err = fixture.service.AcceptProposal(context.Background(), "mallory", proposal.ID.Hex())
	assert.ErrorIs(t, err, domain.ErrNotTargetOwner)
}

func TestAcceptAfterExpiry(t *testing.T) {
	fixture := newSwapFixture(t)
	proposal := fixture.create(t)

	fixture.now = fixture.now.Add(48 * time.Hour)

	_, err := fixture.service.AcceptProposal(context.Background(), "bob", proposal.ID.Hex())
	require.ErrorIs(t, err, domain.ErrSwapExpired)

	// The lapsed proposal is expired on the spot, without waiting for the
	// sweeper, and both bookings are released.
	assert.Equal(t, domain.SwapExpired, fixture.swaps.status(proposal.ID.Hex()))
	assert.Equal(t, domain.BookingAvailable, fixture.bookings.status(fixture.source.ID.Hex()))
	assert.Equal(t, domain.BookingAvailable, fixture.bookings.status(fixture.target.ID.Hex()))

	status, _ := fixture.targeting.linkStatus(fixture.source.ID.Hex(), fixture.target.ID.Hex())
	assert.Equal(t, domain.TargetingCancelled, status)
}

func TestAcceptNotarizationFailureRevertsToPending(t *testing.T) {
	fixture := newSwapFixture(t)
	proposal := fixture.create(t)
	fixture.notary.failOn(domain.TransitionAccepted)

	_, err := fixture.service.AcceptProposal(context.Background(), "bob", proposal.ID.Hex())
	require.ErrorIs(t, err, domain.ErrNotarizationFailed)

	// The acceptance was never recorded on the ledger, so the proposal
	// returns to pending with both bookings still locked for it.
	assert.Equal(t, domain.SwapPending, fixture.swaps.status(proposal.ID.Hex()))
	assert.Equal(t, domain.BookingLocked, fixture.bookings.status(fixture.source.ID.Hex()))
	assert.Zero(t, fixture.transfer.invoked)
}

func TestAcceptTransferFailureRejects(t *testing.T) {
	fixture := newSwapFixture(t)
	proposal := fixture.create(t)
	fixture.transfer.err = errors.New("transfer service down")

	_, err := fixture.service.AcceptProposal(context.Background(), "bob", proposal.ID.Hex())
	require.ErrorIs(t, err, domain.ErrTransferFailed)

	assert.Equal(t, domain.SwapRejected, fixture.swaps.status(proposal.ID.Hex()))
	assert.Equal(t, domain.BookingAvailable, fixture.bookings.status(fixture.source.ID.Hex()))
	assert.Equal(t, domain.BookingAvailable, fixture.bookings.status(fixture.target.ID.Hex()))
}

func TestRejectProposal(t *testing.T) {
	fixture := newSwapFixture(t)
	proposal := fixture.create(t)

	rejected, err := fixture.service.RejectProposal(context.Background(), "bob", proposal.ID.Hex())
	require.NoError(t, err)

	assert.Equal(t, domain.SwapRejected, rejected.Status)
	assert.NotNil(t, rejected.RespondedAt)
	assert.Equal(t, domain.BookingAvailable, fixture.bookings.status(fixture.source.ID.Hex()))

	status, _ := fixture.targeting.linkStatus(fixture.source.ID.Hex(), fixture.target.ID.Hex())
	assert.Equal(t, domain.TargetingRejected, status)
}

func TestCancelProposalRoundTrip(t *testing.T) {
	fixture := newSwapFixture(t)
	proposal := fixture.create(t)

	cancelled, err := fixture.service.CancelProposal(context.Background(), "alice", proposal.ID.Hex())
	require.NoError(t, err)

	assert.Equal(t, domain.SwapCancelled, cancelled.Status)
	assert.Equal(t, domain.BookingAvailable, fixture.bookings.status(fixture.source.ID.Hex()))
	assert.Equal(t, domain.BookingAvailable, fixture.bookings.status(fixture.target.ID.Hex()))

	status, _ := fixture.targeting.linkStatus(fixture.source.ID.Hex(), fixture.target.ID.Hex())
	assert.Equal(t, domain.TargetingCancelled, status)

	// The pair is free for a fresh proposal once the old one is terminal.
	_, err = fixture.service.CreateProposal(
		context.Background(), "alice",
		fixture.source.ID.Hex(), fixture.target.ID.Hex(),
		domain.SwapTerms{Kind: domain.BookingExchangeTerms},
		fixture.now.Add(24*time.Hour),
	)
	assert.NoError(t, err)
}

func TestCancelProposalOnlyProposer(t *testing.T) {
	fixture := newSwapFixture(t)
	proposal := fixture.create(t)

	_, err := fixture.service.CancelProposal(context.Background(), "bob", proposal.ID.Hex())
	assert.ErrorIs(t, err, domain.ErrNotProposer)
}

func TestTerminalTransitionsRace(t *testing.T) {
	fixture := newSwapFixture(t)
	proposal := fixture.create(t)

	_, err := fixture.service.CancelProposal(context.Background(), "alice", proposal.ID.Hex())
	require.NoError(t, err)

	// The losing writer of a terminal race gets a deterministic conflict.
	_, err = fixture.service.RejectProposal(context.Background(), "bob", proposal.ID.Hex())
	assert.ErrorIs(t, err, domain.ErrSwapNotPending)
}

func TestProposalOwnerFollowsBookingOwnership(t *testing.T) {
	fixture := newSwapFixture(t)
	proposal := fixture.create(t)

	// Ownership of the target booking moves; the proposal follows it.
	fixture.bookings.mu.Lock()
	fixture.bookings.bookings[fixture.target.ID.Hex()].OwnerId = "carol"
	fixture.bookings.mu.Unlock()

	_, err := fixture.service.AcceptProposal(context.Background(), "bob", proposal.ID.Hex())
	assert.ErrorIs(t, err, domain.ErrNotTargetOwner)

	accepted, err := fixture.service.AcceptProposal(context.Background(), "carol", proposal.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, domain.SwapCompleted, accepted.Status)
}

func TestDuplicatePendingProposalRejected(t *testing.T) {
	fixture := newSwapFixture(t)
	fixture.create(t)

	// A second proposal over the same pair must lose before it touches the
	// locks, regardless of which check trips first.
	_, err := fixture.service.CreateProposal(
		context.Background(), "alice",
		fixture.source.ID.Hex(), fixture.target.ID.Hex(),
		domain.SwapTerms{Kind: domain.BookingExchangeTerms},
		fixture.now.Add(24*time.Hour),
	)
	assert.Error(t, err)
}
