package application

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"swap_service/domain"
)

const (
	CheckOwnership      = "ownership"
	CheckSourceOpen     = "sourceOpen"
	CheckTargetOpen     = "targetOpen"
	CheckSelfProposal   = "selfProposal"
	CheckDuplicate      = "duplicate"
	CheckSingleProposal = "singleProposal"
	CheckCompatibility  = "compatibility"
)

// EligibilityService combines ownership, availability, duplicate-proposal
// and compatibility checks into a single verdict. The five structural
// checks are blocking; a low compatibility score only produces a warning.
type EligibilityService struct {
	bookings      domain.BookingStore
	swaps         domain.SwapStore
	compatibility *CompatibilityService
	threshold     float64
	tracer        trace.Tracer
	logger        *logrus.Logger
}

func NewEligibilityService(bookings domain.BookingStore, swaps domain.SwapStore, compatibility *CompatibilityService, threshold float64, tracer trace.Tracer, logger *logrus.Logger) *EligibilityService {
	return &EligibilityService{
		bookings:      bookings,
		swaps:         swaps,
		compatibility: compatibility,
		threshold:     threshold,
		tracer:        tracer,
		logger:        logger,
	}
}

// Validate runs the checks in order and short-circuits on the first hard
// failure. The returned error is the matching sentinel for that failure;
// soft findings collected before it remain in the result.
func (service *EligibilityService) Validate(ctx context.Context, userId, sourceBookingId, targetBookingId string) (*domain.ValidationResult, error) {
	ctx, span := service.tracer.Start(ctx, "EligibilityService.Validate")
	defer span.End()

	result := &domain.ValidationResult{
		IsValid:  false,
		Errors:   []string{},
		Warnings: []string{},
		Checks:   map[string]bool{},
	}

	source, err := service.bookings.GetBooking(ctx, sourceBookingId)
	if err != nil {
		return service.fail(span, result, CheckOwnership, err)
	}

	if source.OwnerId != userId {
		return service.fail(span, result, CheckOwnership, domain.ErrNotSwapOwner)
	}
	result.Checks[CheckOwnership] = true

	if source.Status != domain.BookingAvailable {
		return service.fail(span, result, CheckSourceOpen, domain.ErrSwapNotOpen)
	}
	result.Checks[CheckSourceOpen] = true

	target, err := service.bookings.GetBooking(ctx, targetBookingId)
	if err != nil {
		return service.fail(span, result, CheckTargetOpen, err)
	}
	if target.Status != domain.BookingAvailable {
		return service.fail(span, result, CheckTargetOpen, domain.ErrTargetNotOpen)
	}
	result.Checks[CheckTargetOpen] = true

	if target.OwnerId == userId {
		return service.fail(span, result, CheckSelfProposal, domain.ErrOwnSwapProposal)
	}
	result.Checks[CheckSelfProposal] = true

	exists, err := service.swaps.PendingExists(ctx, sourceBookingId, targetBookingId)
	if err != nil {
		// A lookup failure here can not prove the pair is free, so it is a
		// hard failure unlike the compatibility check below.
		return service.fail(span, result, CheckDuplicate, err)
	}
	if exists {
		return service.fail(span, result, CheckDuplicate, domain.ErrProposalExists)
	}
	result.Checks[CheckDuplicate] = true

	// A booking backs at most one outbound proposal at a time.
	open, err := service.swaps.HasOpenProposalForBooking(ctx, sourceBookingId)
	if err != nil {
		return service.fail(span, result, CheckSingleProposal, err)
	}
	if open {
		return service.fail(span, result, CheckSingleProposal, domain.ErrSwapNotOpen)
	}
	result.Checks[CheckSingleProposal] = true

	service.checkCompatibility(ctx, source, target, result)

	result.IsValid = true
	return result, nil
}

// checkCompatibility never blocks the proposal: a low score is a warning
// and an analysis failure passes the check by default, since negotiation
// should not be stopped by an analytics problem.
func (service *EligibilityService) checkCompatibility(ctx context.Context, source, target *domain.Booking, result *domain.ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			service.logger.Warnf("compatibility analysis panicked: %v", r)
			result.Warnings = append(result.Warnings, "unable to calculate compatibility")
			result.Checks[CheckCompatibility] = true
		}
	}()

	analysis := service.compatibility.Analyze(ctx, source, target, nil)
	if analysis == nil {
		result.Warnings = append(result.Warnings, "unable to calculate compatibility")
		result.Checks[CheckCompatibility] = true
		return
	}

	if float64(analysis.OverallScore) < service.threshold {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("compatibility score %d is below the recommended threshold of %.0f", analysis.OverallScore, service.threshold))
		result.Checks[CheckCompatibility] = false
		return
	}
	result.Checks[CheckCompatibility] = true
}

func (service *EligibilityService) fail(span trace.Span, result *domain.ValidationResult, check string, err error) (*domain.ValidationResult, error) {
	span.SetStatus(codes.Error, err.Error())
	result.Checks[check] = false
	result.Errors = append(result.Errors, err.Error())
	return result, err
}
