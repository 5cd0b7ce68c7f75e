package application

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"swap_service/domain"
)

// SwapService owns the proposal state machine:
//
//	pending -> accepted -> completed
//	pending -> rejected | cancelled | expired
//
// Every transition is guarded by a check-and-set on the stored status and
// recorded on the external notarization ledger before it is considered
// final; a failed notarization rolls the local transition back.
type SwapService struct {
	swaps       domain.SwapStore
	bookings    domain.BookingStore
	targeting   domain.TargetingStore
	locks       *LockService
	eligibility *EligibilityService
	notary      domain.NotarizationClient
	transfer    domain.TransferClient
	notifier    domain.NotificationClient
	tracer      trace.Tracer
	logger      *logrus.Logger
	nowFunc     func() time.Time
}

func NewSwapService(
	swaps domain.SwapStore,
	bookings domain.BookingStore,
	targeting domain.TargetingStore,
	locks *LockService,
	eligibility *EligibilityService,
	notary domain.NotarizationClient,
	transfer domain.TransferClient,
	notifier domain.NotificationClient,
	tracer trace.Tracer,
	logger *logrus.Logger,
) *SwapService {
	return &SwapService{
		swaps:       swaps,
		bookings:    bookings,
		targeting:   targeting,
		locks:       locks,
		eligibility: eligibility,
		notary:      notary,
		transfer:    transfer,
		notifier:    notifier,
		tracer:      tracer,
		logger:      logger,
		nowFunc:     time.Now,
	}
}

func (service *SwapService) GetProposal(ctx context.Context, id string) (*domain.SwapProposal, error) {
	ctx, span := service.tracer.Start(ctx, "SwapService.GetProposal")
	defer span.End()

	return service.swaps.GetProposal(ctx, id)
}

// ProposalOwner derives the owner side from the target booking's current
// owner. The owner id is never read from the proposal row itself, so a
// booking ownership change can not leave the proposal pointing at a stale
// owner.
func (service *SwapService) ProposalOwner(ctx context.Context, proposal *domain.SwapProposal) (string, error) {
	if proposal.TargetBookingId == "" {
		return "", domain.ErrNoTargetSelected
	}
	target, err := service.bookings.GetBooking(ctx, proposal.TargetBookingId)
	if err != nil {
		return "", err
	}
	return target.OwnerId, nil
}

// CreateProposal validates eligibility, locks both bookings, persists the
// pending proposal and notarizes its creation. Notarization failure after
// the lock and persist steps unwinds everything: the caller either gets a
// fully created proposal or no state change at all.
func (service *SwapService) CreateProposal(ctx context.Context, proposerId, sourceBookingId, targetBookingId string, terms domain.SwapTerms, expiresAt time.Time) (*domain.SwapProposal, error) {
	ctx, span := service.tracer.Start(ctx, "SwapService.CreateProposal")
	defer span.End()

	now := service.nowFunc()

	if !expiresAt.After(now) {
		span.SetStatus(codes.Error, domain.ErrExpiryNotInFuture.Error())
		return nil, domain.ErrExpiryNotInFuture
	}

	// Exhaustive over the terms variant: a new proposal kind must be
	// handled here before it can enter the state machine.
	switch terms.Kind {
	case domain.BookingExchangeTerms:
	case domain.CashOfferTerms:
		if terms.CashAmount <= 0 {
			span.SetStatus(codes.Error, domain.ErrInvalidCashAmount.Error())
			return nil, domain.ErrInvalidCashAmount
		}
	default:
		span.SetStatus(codes.Error, domain.ErrUnknownTermsKind.Error())
		return nil, domain.ErrUnknownTermsKind
	}

	if _, err := service.eligibility.Validate(ctx, proposerId, sourceBookingId, targetBookingId); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	proposalId := primitive.NewObjectID()
	holder := proposalId.Hex()

	if _, _, err := service.locks.LockPair(ctx, sourceBookingId, targetBookingId, holder); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	proposal := &domain.SwapProposal{
		ID:               proposalId,
		SourceBookingId:  sourceBookingId,
		TargetBookingId:  targetBookingId,
		ProposerId:       proposerId,
		Status:           domain.SwapPending,
		Terms:            terms,
		ExpiresAt:        expiresAt,
		NotarizationRefs: map[domain.Transition]string{},
		ProposedAt:       now,
	}

	if _, err := service.swaps.InsertProposal(ctx, proposal); err != nil {
		span.SetStatus(codes.Error, err.Error())
		service.unlockBoth(ctx, proposal, holder)
		return nil, err
	}

	receipt, err := service.notarize(ctx, proposal, domain.TransitionCreated, proposerId)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if deleteErr := service.swaps.DeleteProposal(ctx, holder); deleteErr != nil {
			service.logger.Errorf("failed to remove half-created proposal %s: %s", holder, deleteErr)
		}
		service.unlockBoth(ctx, proposal, holder)
		return nil, err
	}
	proposal.NotarizationRefs[domain.TransitionCreated] = receipt.ConfirmationId

	link := &domain.TargetingLink{
		ID:           holder,
		SourceSwapId: sourceBookingId,
		TargetSwapId: targetBookingId,
		Status:       domain.TargetingActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := service.targeting.CreateLink(ctx, link); err != nil {
		// Targeting is a read-side convenience index; a write failure is a
		// diagnostic finding, not a reason to unwind the proposal.
		service.logger.Warnf("failed to record targeting link for proposal %s: %s", holder, err)
	}

	service.notify(ctx, proposerId, service.ownerOrEmpty(ctx, proposal),
		fmt.Sprintf("You received a swap proposal for your booking %s", targetBookingId))

	return proposal, nil
}

// AcceptProposal drives pending -> accepted -> completed. Expiry is
// re-checked here, not just in the sweeper: accepting a lapsed proposal
// expires it instead.
func (service *SwapService) AcceptProposal(ctx context.Context, userId, proposalId string) (*domain.SwapProposal, error) {
	ctx, span := service.tracer.Start(ctx, "SwapService.AcceptProposal")
	defer span.End()

	proposal, owner, err := service.loadForResponse(ctx, userId, proposalId)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if service.nowFunc().After(proposal.ExpiresAt) {
		if expireErr := service.terminate(ctx, proposal, domain.SwapExpired, domain.TransitionExpired, ""); expireErr != nil {
			service.logger.Errorf("failed to expire lapsed proposal %s on accept: %s", proposalId, expireErr)
		}
		span.SetStatus(codes.Error, domain.ErrSwapExpired.Error())
		return nil, domain.ErrSwapExpired
	}

	respondedAt := service.nowFunc()
	if err := service.swaps.UpdateStatus(ctx, proposalId, domain.SwapPending, domain.SwapAccepted, &respondedAt); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	proposal.Status = domain.SwapAccepted
	proposal.RespondedAt = &respondedAt

	receipt, err := service.notarize(ctx, proposal, domain.TransitionAccepted, owner)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		service.revertStatus(ctx, proposalId, domain.SwapAccepted, domain.SwapPending)
		return nil, err
	}
	proposal.NotarizationRefs[domain.TransitionAccepted] = receipt.ConfirmationId

	confirmationId, err := service.transfer.Transfer(ctx, proposal)
	if err != nil {
		// Rolled back to the rejected equivalent: the acceptance stands on
		// the ledger but the swap did not complete, so both assets are
		// released again.
		span.SetStatus(codes.Error, err.Error())
		service.revertStatus(ctx, proposalId, domain.SwapAccepted, domain.SwapRejected)
		service.unlockBoth(ctx, proposal, proposalId)
		service.mirrorTargeting(ctx, proposal, domain.TargetingRejected)
		return nil, fmt.Errorf("%w: %s", domain.ErrTransferFailed, err)
	}

	if err := service.swaps.SetTransferConfirmation(ctx, proposalId, confirmationId); err != nil {
		service.logger.Errorf("failed to record transfer confirmation for proposal %s: %s", proposalId, err)
	}
	proposal.TransferConfirmationId = confirmationId

	if err := service.swaps.UpdateStatus(ctx, proposalId, domain.SwapAccepted, domain.SwapCompleted, nil); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	proposal.Status = domain.SwapCompleted

	if err := service.bookings.MarkSwapped(ctx, proposal.SourceBookingId); err != nil {
		service.logger.Errorf("failed to mark source booking %s swapped: %s", proposal.SourceBookingId, err)
	}
	if err := service.bookings.MarkSwapped(ctx, proposal.TargetBookingId); err != nil {
		service.logger.Errorf("failed to mark target booking %s swapped: %s", proposal.TargetBookingId, err)
	}

	service.mirrorTargeting(ctx, proposal, domain.TargetingAccepted)
	service.notify(ctx, owner, proposal.ProposerId,
		fmt.Sprintf("Your swap proposal %s was accepted", proposalId))

	return proposal, nil
}

// RejectProposal is owner-side only and leaves both bookings available
// again.
func (service *SwapService) RejectProposal(ctx context.Context, userId, proposalId string) (*domain.SwapProposal, error) {
	ctx, span := service.tracer.Start(ctx, "SwapService.RejectProposal")
	defer span.End()

	proposal, owner, err := service.loadForResponse(ctx, userId, proposalId)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := service.terminate(ctx, proposal, domain.SwapRejected, domain.TransitionRejected, owner); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	service.notify(ctx, owner, proposal.ProposerId,
		fmt.Sprintf("Your swap proposal %s was rejected", proposalId))

	return proposal, nil
}

// CancelProposal is proposer-side only, while the proposal is pending.
func (service *SwapService) CancelProposal(ctx context.Context, userId, proposalId string) (*domain.SwapProposal, error) {
	ctx, span := service.tracer.Start(ctx, "SwapService.CancelProposal")
	defer span.End()

	proposal, err := service.swaps.GetProposal(ctx, proposalId)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if proposal.ProposerId != userId {
		span.SetStatus(codes.Error, domain.ErrNotProposer.Error())
		return nil, domain.ErrNotProposer
	}
	if proposal.Status != domain.SwapPending {
		span.SetStatus(codes.Error, domain.ErrSwapNotPending.Error())
		return nil, domain.ErrSwapNotPending
	}

	if err := service.terminate(ctx, proposal, domain.SwapCancelled, domain.TransitionCancelled, userId); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	service.notify(ctx, userId, service.ownerOrEmpty(ctx, proposal),
		fmt.Sprintf("Swap proposal %s was cancelled by the proposer", proposalId))

	return proposal, nil
}

// ExpireProposal drives the same transition as a cancellation with the
// cause tagged as expired. It is shared by the sweeper and by accept-time
// lapse detection.
func (service *SwapService) ExpireProposal(ctx context.Context, proposalId string) error {
	ctx, span := service.tracer.Start(ctx, "SwapService.ExpireProposal")
	defer span.End()

	proposal, err := service.swaps.GetProposal(ctx, proposalId)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if proposal.Status != domain.SwapPending {
		span.SetStatus(codes.Error, domain.ErrSwapNotPending.Error())
		return domain.ErrSwapNotPending
	}

	if err := service.terminate(ctx, proposal, domain.SwapExpired, domain.TransitionExpired, ""); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	owner := service.ownerOrEmpty(ctx, proposal)
	service.notify(ctx, "", proposal.ProposerId,
		fmt.Sprintf("Swap proposal %s expired without a response", proposalId))
	if owner != "" {
		service.notify(ctx, "", owner,
			fmt.Sprintf("Swap proposal %s against your booking expired", proposalId))
	}

	return nil
}

// loadForResponse resolves the proposal for an owner-side response and
// enforces the owner and pending preconditions.
func (service *SwapService) loadForResponse(ctx context.Context, userId, proposalId string) (*domain.SwapProposal, string, error) {
	proposal, err := service.swaps.GetProposal(ctx, proposalId)
	if err != nil {
		return nil, "", err
	}

	owner, err := service.ProposalOwner(ctx, proposal)
	if err != nil {
		return nil, "", err
	}
	if owner != userId {
		return nil, "", domain.ErrNotTargetOwner
	}
	if proposal.Status != domain.SwapPending {
		return nil, "", domain.ErrSwapNotPending
	}
	return proposal, owner, nil
}

// terminate elects the transition winner with a check-and-set, notarizes
// the transition and then releases both bookings. If notarization exhausts
// its retries the status change is reverted so the proposal stays pending.
func (service *SwapService) terminate(ctx context.Context, proposal *domain.SwapProposal, to domain.SwapStatus, transition domain.Transition, actorId string) error {
	proposalId := proposal.ID.Hex()

	respondedAt := service.nowFunc()
	if err := service.swaps.UpdateStatus(ctx, proposalId, domain.SwapPending, to, &respondedAt); err != nil {
		return err
	}
	proposal.Status = to
	proposal.RespondedAt = &respondedAt

	receipt, err := service.notarize(ctx, proposal, transition, actorId)
	if err != nil {
		service.revertStatus(ctx, proposalId, to, domain.SwapPending)
		proposal.Status = domain.SwapPending
		proposal.RespondedAt = nil
		return err
	}
	if proposal.NotarizationRefs == nil {
		proposal.NotarizationRefs = map[domain.Transition]string{}
	}
	proposal.NotarizationRefs[transition] = receipt.ConfirmationId

	if err := service.locks.UnlockPair(ctx, proposal.SourceBookingId, proposal.TargetBookingId, proposalId); err != nil {
		return err
	}

	mirrored := domain.TargetingStatus(to)
	if to == domain.SwapExpired {
		// The targeting index has no expired status, lapsed links read as
		// cancelled.
		mirrored = domain.TargetingCancelled
	}
	service.mirrorTargeting(ctx, proposal, mirrored)

	return nil
}

// notarize submits the transition record and persists the returned
// confirmation id. The client owns retry; an error here means the retry
// budget is spent.
func (service *SwapService) notarize(ctx context.Context, proposal *domain.SwapProposal, transition domain.Transition, actorId string) (*domain.NotarizationReceipt, error) {
	record := &domain.NotarizationRecord{
		SwapId:     proposal.ID.Hex(),
		Transition: transition,
		ActorId:    actorId,
		OccurredAt: service.nowFunc(),
	}

	receipt, err := service.notary.Submit(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotarizationFailed, err)
	}

	if err := service.swaps.SetNotarizationRef(ctx, proposal.ID.Hex(), transition, receipt.ConfirmationId); err != nil {
		service.logger.Errorf("failed to persist notarization ref for proposal %s: %s", proposal.ID.Hex(), err)
	}

	return receipt, nil
}

func (service *SwapService) revertStatus(ctx context.Context, proposalId string, from, to domain.SwapStatus) {
	if err := service.swaps.UpdateStatus(ctx, proposalId, from, to, nil); err != nil {
		service.logger.Errorf("failed to revert proposal %s from %s to %s: %s", proposalId, from, to, err)
	}
}

func (service *SwapService) unlockBoth(ctx context.Context, proposal *domain.SwapProposal, holder string) {
	if err := service.locks.UnlockPair(ctx, proposal.SourceBookingId, proposal.TargetBookingId, holder); err != nil {
		service.logger.Errorf("failed to release locks for proposal %s: %s", holder, err)
	}
}

func (service *SwapService) mirrorTargeting(ctx context.Context, proposal *domain.SwapProposal, status domain.TargetingStatus) {
	if proposal.TargetBookingId == "" {
		return
	}
	if err := service.targeting.UpdateLinkStatus(ctx, proposal.SourceBookingId, proposal.TargetBookingId, status); err != nil {
		service.logger.Warnf("failed to mirror targeting status for proposal %s: %s", proposal.ID.Hex(), err)
	}
}

func (service *SwapService) ownerOrEmpty(ctx context.Context, proposal *domain.SwapProposal) string {
	owner, err := service.ProposalOwner(ctx, proposal)
	if err != nil {
		service.logger.Warnf("could not derive owner for proposal %s: %s", proposal.ID.Hex(), err)
		return ""
	}
	return owner
}

// notify is fire-and-forget: delivery failures are logged and never block
// a lifecycle transition.
func (service *SwapService) notify(ctx context.Context, byGuestId, forHostId, description string) {
	if forHostId == "" {
		return
	}
	if err := service.notifier.Notify(ctx, byGuestId, forHostId, description); err != nil {
		service.logger.Warnf("notification delivery failed: %s", err)
	}
}
