package application

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel/trace"

	"swap_service/domain"
)

func testTracer() trace.Tracer {
	return trace.NewNoopTracerProvider().Tracer("test")
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeBookingStore struct {
	mu       sync.Mutex
	bookings map[string]*domain.Booking
}

func newFakeBookingStore(bookings ...*domain.Booking) *fakeBookingStore {
	store := &fakeBookingStore{bookings: map[string]*domain.Booking{}}
	for _, booking := range bookings {
		store.bookings[booking.ID.Hex()] = booking
	}
	return store
}

func (store *fakeBookingStore) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	booking, ok := store.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	copied := *booking
	return &copied, nil
}

func (store *fakeBookingStore) LockBooking(ctx context.Context, id, holder string) (*domain.Booking, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	booking, ok := store.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	if booking.Status != domain.BookingAvailable {
		return nil, domain.ErrBookingNotAvailable
	}
	booking.Status = domain.BookingLocked
	booking.LockedBy = holder
	copied := *booking
	return &copied, nil
}

func (store *fakeBookingStore) UnlockBooking(ctx context.Context, id, holder string) (*domain.Booking, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	booking, ok := store.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	if booking.Status == domain.BookingAvailable {
		copied := *booking
		return &copied, nil
	}
	if booking.Status != domain.BookingLocked || booking.LockedBy != holder {
		return nil, domain.ErrBookingNotAvailable
	}
	booking.Status = domain.BookingAvailable
	booking.LockedBy = ""
	copied := *booking
	return &copied, nil
}

func (store *fakeBookingStore) MarkSwapped(ctx context.Context, id string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	booking, ok := store.bookings[id]
	if !ok {
		return domain.ErrBookingNotFound
	}
	booking.Status = domain.BookingSwapped
	booking.LockedBy = ""
	return nil
}

func (store *fakeBookingStore) status(id string) domain.BookingStatus {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.bookings[id].Status
}

type fakeSwapStore struct {
	mu        sync.Mutex
	proposals map[string]*domain.SwapProposal
}

func newFakeSwapStore(proposals ...*domain.SwapProposal) *fakeSwapStore {
	store := &fakeSwapStore{proposals: map[string]*domain.SwapProposal{}}
	for _, proposal := range proposals {
		store.proposals[proposal.ID.Hex()] = proposal
	}
	return store
}

func (store *fakeSwapStore) GetProposal(ctx context.Context, id string) (*domain.SwapProposal, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	proposal, ok := store.proposals[id]
	if !ok {
		return nil, domain.ErrSwapNotFound
	}
	copied := *proposal
	return &copied, nil
}

func (store *fakeSwapStore) InsertProposal(ctx context.Context, proposal *domain.SwapProposal) (*domain.SwapProposal, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	copied := *proposal
	store.proposals[proposal.ID.Hex()] = &copied
	return proposal, nil
}

func (store *fakeSwapStore) DeleteProposal(ctx context.Context, id string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	delete(store.proposals, id)
	return nil
}

func (store *fakeSwapStore) PendingExists(ctx context.Context, sourceBookingId, targetBookingId string) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	for _, proposal := range store.proposals {
		if proposal.SourceBookingId == sourceBookingId &&
			proposal.TargetBookingId == targetBookingId &&
			proposal.Status == domain.SwapPending {
			return true, nil
		}
	}
	return false, nil
}

func (store *fakeSwapStore) HasOpenProposalForBooking(ctx context.Context, bookingId string) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	for _, proposal := range store.proposals {
		if proposal.SourceBookingId == bookingId &&
			(proposal.Status == domain.SwapPending || proposal.Status == domain.SwapAccepted) {
			return true, nil
		}
	}
	return false, nil
}

func (store *fakeSwapStore) UpdateStatus(ctx context.Context, id string, from, to domain.SwapStatus, respondedAt *time.Time) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	proposal, ok := store.proposals[id]
	if !ok || proposal.Status != from {
		return domain.ErrSwapNotPending
	}
	proposal.Status = to
	if respondedAt != nil {
		proposal.RespondedAt = respondedAt
	}
	return nil
}

func (store *fakeSwapStore) SetNotarizationRef(ctx context.Context, id string, transition domain.Transition, confirmationId string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	proposal, ok := store.proposals[id]
	if !ok {
		return domain.ErrSwapNotFound
	}
	if proposal.NotarizationRefs == nil {
		proposal.NotarizationRefs = map[domain.Transition]string{}
	}
	proposal.NotarizationRefs[transition] = confirmationId
	return nil
}

func (store *fakeSwapStore) SetTransferConfirmation(ctx context.Context, id, confirmationId string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	proposal, ok := store.proposals[id]
	if !ok {
		return domain.ErrSwapNotFound
	}
	proposal.TransferConfirmationId = confirmationId
	return nil
}

func (store *fakeSwapStore) FindExpiredPending(ctx context.Context, now time.Time) ([]*domain.SwapProposal, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var lapsed []*domain.SwapProposal
	for _, proposal := range store.proposals {
		if proposal.Status == domain.SwapPending && !proposal.ExpiresAt.After(now) {
			copied := *proposal
			lapsed = append(lapsed, &copied)
		}
	}
	return lapsed, nil
}

func (store *fakeSwapStore) status(id string) domain.SwapStatus {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.proposals[id].Status
}

type fakeTargetingStore struct {
	mu    sync.Mutex
	links []*domain.TargetingLink

	incomingCountOverride *int
	outgoingCountOverride *int
}

func (store *fakeTargetingStore) CreateLink(ctx context.Context, link *domain.TargetingLink) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	copied := *link
	store.links = append(store.links, &copied)
	return nil
}

func (store *fakeTargetingStore) UpdateLinkStatus(ctx context.Context, sourceSwapId, targetSwapId string, status domain.TargetingStatus) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	for _, link := range store.links {
		if link.SourceSwapId == sourceSwapId && link.TargetSwapId == targetSwapId {
			link.Status = status
		}
	}
	return nil
}

func (store *fakeTargetingStore) GetIncoming(ctx context.Context, swapId string) ([]*domain.TargetingLink, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var incoming []*domain.TargetingLink
	for _, link := range store.links {
		if link.TargetSwapId == swapId {
			copied := *link
			incoming = append(incoming, &copied)
		}
	}
	return incoming, nil
}

func (store *fakeTargetingStore) GetOutgoing(ctx context.Context, swapId string) ([]*domain.TargetingLink, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var outgoing []*domain.TargetingLink
	for _, link := range store.links {
		if link.SourceSwapId == swapId &&
			(link.Status == domain.TargetingActive || link.Status == domain.TargetingAccepted) {
			copied := *link
			outgoing = append(outgoing, &copied)
		}
	}
	return outgoing, nil
}

func (store *fakeTargetingStore) CountIncoming(ctx context.Context, swapId string) (int, error) {
	if store.incomingCountOverride != nil {
		return *store.incomingCountOverride, nil
	}
	incoming, _ := store.GetIncoming(ctx, swapId)
	return len(incoming), nil
}

func (store *fakeTargetingStore) CountOutgoing(ctx context.Context, swapId string) (int, error) {
	if store.outgoingCountOverride != nil {
		return *store.outgoingCountOverride, nil
	}
	outgoing, _ := store.GetOutgoing(ctx, swapId)
	return len(outgoing), nil
}

func (store *fakeTargetingStore) HasAcceptedLink(ctx context.Context, swapId string) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	for _, link := range store.links {
		if link.Status != domain.TargetingAccepted {
			continue
		}
		if link.SourceSwapId == swapId || link.TargetSwapId == swapId {
			return true, nil
		}
	}
	return false, nil
}

func (store *fakeTargetingStore) linkStatus(sourceId, targetId string) (domain.TargetingStatus, bool) {
	store.mu.Lock()
	defer store.mu.Unlock()

	for _, link := range store.links {
		if link.SourceSwapId == sourceId && link.TargetSwapId == targetId {
			return link.Status, true
		}
	}
	return "", false
}

type fakeNotary struct {
	mu       sync.Mutex
	failures map[domain.Transition]bool
	submits  int
}

func (notary *fakeNotary) Submit(ctx context.Context, record *domain.NotarizationRecord) (*domain.NotarizationReceipt, error) {
	notary.mu.Lock()
	defer notary.mu.Unlock()

	notary.submits++
	if notary.failures[record.Transition] {
		return nil, fmt.Errorf("ledger unavailable")
	}
	return &domain.NotarizationReceipt{
		ConfirmationId: fmt.Sprintf("notary-%d", notary.submits),
		Timestamp:      time.Now(),
	}, nil
}

func (notary *fakeNotary) failOn(transitions ...domain.Transition) {
	notary.mu.Lock()
	defer notary.mu.Unlock()

	if notary.failures == nil {
		notary.failures = map[domain.Transition]bool{}
	}
	for _, transition := range transitions {
		notary.failures[transition] = true
	}
}

type fakeTransfer struct {
	err      error
	invoked  int
	confirms string
}

func (transfer *fakeTransfer) Transfer(ctx context.Context, proposal *domain.SwapProposal) (string, error) {
	transfer.invoked++
	if transfer.err != nil {
		return "", transfer.err
	}
	if transfer.confirms == "" {
		transfer.confirms = "transfer-1"
	}
	return transfer.confirms, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (notifier *fakeNotifier) Notify(ctx context.Context, byGuestId, forHostId, description string) error {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()

	notifier.messages = append(notifier.messages, description)
	return nil
}

func newBooking(owner string, status domain.BookingStatus) *domain.Booking {
	return &domain.Booking{
		ID:                primitive.NewObjectID(),
		OwnerId:           owner,
		Location:          "Barcelona, Spain",
		StartDate:         time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		EndDate:           time.Date(2026, 7, 8, 0, 0, 0, 0, time.UTC),
		TotalValue:        1000,
		AccommodationType: "apartment",
		Guests:            2,
		Status:            status,
	}
}
