package application

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"swap_service/domain"
)

// TargetingService is the read side of the targeting index. Writes happen
// inside the proposal lifecycle; this service answers the browse questions
// "who targets this booking" and "is it already spoken for".
type TargetingService struct {
	targeting domain.TargetingStore
	tracer    trace.Tracer
	logger    *logrus.Logger
}

func NewTargetingService(targeting domain.TargetingStore, tracer trace.Tracer, logger *logrus.Logger) *TargetingService {
	return &TargetingService{
		targeting: targeting,
		tracer:    tracer,
		logger:    logger,
	}
}

// GetBookingTargeting returns the per-booking view. A booking may only
// target one other booking at a time, so only the first outgoing link is
// exposed; extras are logged as an index anomaly.
func (service *TargetingService) GetBookingTargeting(ctx context.Context, bookingId string) (*domain.BookingTargeting, error) {
	ctx, span := service.tracer.Start(ctx, "TargetingService.GetBookingTargeting")
	defer span.End()

	incoming, err := service.targeting.GetIncoming(ctx, bookingId)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	outgoing, err := service.targeting.GetOutgoing(ctx, bookingId)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	view := &domain.BookingTargeting{
		BookingId:       bookingId,
		IncomingTargets: incoming,
		IncomingCount:   len(incoming),
		OutgoingCount:   len(outgoing),
	}
	if len(outgoing) > 0 {
		view.OutgoingTarget = outgoing[0]
	}
	if len(outgoing) > 1 {
		service.logger.Warnf("booking %s has %d open outgoing targets, expected at most one", bookingId, len(outgoing))
	}

	return view, nil
}

// ValidateTargeting cross-checks the stored counters against the actual
// link rows. It reports findings and never fails the request: a diagnostic
// endpoint that throws on the problem it exists to detect is useless.
func (service *TargetingService) ValidateTargeting(ctx context.Context, bookingId string) ([]domain.ConsistencyIssue, error) {
	ctx, span := service.tracer.Start(ctx, "TargetingService.ValidateTargeting")
	defer span.End()

	issues := []domain.ConsistencyIssue{}

	incoming, err := service.targeting.GetIncoming(ctx, bookingId)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	incomingCount, err := service.targeting.CountIncoming(ctx, bookingId)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if incomingCount != len(incoming) {
		issues = append(issues, domain.ConsistencyIssue{
			Severity: domain.SeverityMedium,
			Message:  fmt.Sprintf("incoming count %d does not match %d stored links", incomingCount, len(incoming)),
		})
	}

	outgoing, err := service.targeting.GetOutgoing(ctx, bookingId)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	outgoingCount, err := service.targeting.CountOutgoing(ctx, bookingId)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if outgoingCount != len(outgoing) {
		issues = append(issues, domain.ConsistencyIssue{
			Severity: domain.SeverityMedium,
			Message:  fmt.Sprintf("outgoing count %d does not match %d stored links", outgoingCount, len(outgoing)),
		})
	}
	if len(outgoing) > 1 {
		issues = append(issues, domain.ConsistencyIssue{
			Severity: domain.SeverityHigh,
			Message:  fmt.Sprintf("booking has %d open outgoing targets, expected at most one", len(outgoing)),
		})
	}

	return issues, nil
}

// IsSpokenFor reports whether an accepted link references the booking in
// either direction. Spoken-for bookings are filtered out of open browse.
func (service *TargetingService) IsSpokenFor(ctx context.Context, bookingId string) (bool, error) {
	ctx, span := service.tracer.Start(ctx, "TargetingService.IsSpokenFor")
	defer span.End()

	accepted, err := service.targeting.HasAcceptedLink(ctx, bookingId)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	return accepted, nil
}
